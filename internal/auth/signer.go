package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrEmptySecret は署名鍵が設定されていないことを示す。
var ErrEmptySecret = errors.New("session secret must not be empty")

// Signer はセッションIDにHMAC-SHA256で署名し、トークンを生成する。
// 鍵は生成後に変更されず、複数ゴルーチンから安全に利用できる。
type Signer struct {
	secret []byte
}

// NewSigner はSignerを生成する。secretが空の場合はErrEmptySecretを返す。
func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &Signer{secret: []byte(secret)}, nil
}

// Sign はidに対するトークン（HMAC-SHA256の16進表現）を返す。
func (s *Signer) Sign(id string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(id))
	return hex.EncodeToString(mac.Sum(nil))
}
