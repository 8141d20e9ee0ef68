// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// Googleアカウントと1対1で紐付き、カレンダー同期用のOAuthトークンを保持する。
type User struct {
	ID            string
	GoogleID      string
	Email         string
	ChessUsername string // 任意。ログイン後に遅延設定される
	RefreshToken  string
	AccessToken   string
	CreatedAt     time.Time
}

// Session はユーザーのログインセッションを表す。
// IDは署名済みトークンそのもので、作成後に変更されることはない。
type Session struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired は指定時刻においてセッションが期限切れかどうかを返す。
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// UserCalendar はカレンダー同期先となるGoogleカレンダーの紐付けを表す。
type UserCalendar struct {
	UserID       string
	CalendarID   string
	LastSyncedAt *time.Time
}
