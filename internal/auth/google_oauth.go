package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const (
	defaultGoogleIssuer = "https://accounts.google.com"
	// CalendarScope はアプリが作成したカレンダーのみを操作できるスコープ。
	CalendarScope = "https://www.googleapis.com/auth/calendar.app.created"
)

// GoogleOAuthConfig はGoogle OAuthプロバイダーの設定。
type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	IssuerURL    string
}

// idTokenClaims はIDトークンから取り出すクレーム。
type idTokenClaims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
}

// claimsVerifier はIDトークンを検証しクレームを返す。
type claimsVerifier func(ctx context.Context, rawIDToken string) (*idTokenClaims, error)

// GoogleOAuthProvider はGoogle OAuth 2.0 / OpenID Connectによる認証を提供する。
// 認可コードの交換はx/oauth2、IDトークンの検証はgo-oidcで行う。
type GoogleOAuthProvider struct {
	config oauth2.Config
	verify claimsVerifier
}

// NewGoogleOAuthProvider はOIDCディスカバリを行い、GoogleOAuthProviderを生成する。
func NewGoogleOAuthProvider(ctx context.Context, cfg GoogleOAuthConfig) (*GoogleOAuthProvider, error) {
	issuer := cfg.IssuerURL
	if issuer == "" {
		issuer = defaultGoogleIssuer
	}

	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover oidc provider: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})
	verify := func(ctx context.Context, raw string) (*idTokenClaims, error) {
		token, err := verifier.Verify(ctx, raw)
		if err != nil {
			return nil, err
		}
		var claims idTokenClaims
		if err := token.Claims(&claims); err != nil {
			return nil, fmt.Errorf("failed to decode id token claims: %w", err)
		}
		return &claims, nil
	}

	return newGoogleOAuthProvider(oauthConfig(cfg, provider.Endpoint()), verify), nil
}

func newGoogleOAuthProvider(config oauth2.Config, verify claimsVerifier) *GoogleOAuthProvider {
	return &GoogleOAuthProvider{config: config, verify: verify}
}

func oauthConfig(cfg GoogleOAuthConfig, endpoint oauth2.Endpoint) oauth2.Config {
	return oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Endpoint:     endpoint,
		Scopes:       []string{oidc.ScopeOpenID, "email", CalendarScope},
	}
}

// GetLoginURL はGoogleの同意画面URLを生成する。
// カレンダー同期のためにリフレッシュトークンが必要なので、オフラインアクセスと再同意を要求する。
func (p *GoogleOAuthProvider) GetLoginURL(state string) string {
	return p.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// ExchangeCode は認可コードをトークンに交換し、IDトークンからユーザー情報を取得する。
func (p *GoogleOAuthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.New("token response has no id_token")
	}

	claims, err := p.verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify id token: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("empty sub in id token")
	}

	return &OAuthUserInfo{
		ProviderUserID: claims.Subject,
		Email:          claims.Email,
		AccessToken:    token.AccessToken,
		RefreshToken:   token.RefreshToken,
	}, nil
}

// HTTPClient はリフレッシュトークンから自動更新されるアクセストークン付きのHTTPクライアントを返す。
// カレンダー同期ワーカーがGoogle Calendar APIを呼ぶために使用する。
func (p *GoogleOAuthProvider) HTTPClient(ctx context.Context, refreshToken string) *http.Client {
	return p.config.Client(ctx, &oauth2.Token{RefreshToken: refreshToken})
}

// compile-time interface check
var _ OAuthProvider = (*GoogleOAuthProvider)(nil)
