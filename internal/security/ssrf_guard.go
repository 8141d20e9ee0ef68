// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// allowedSchemes は外部リクエストで許可されるURLスキーム。
var allowedSchemes = []string{"http", "https"}

// blockedNetworks は静的検証でブロックされるネットワーク範囲。
var blockedNetworks []net.IPNet

func init() {
	cidrs := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		// クラウドメタデータIP (169.254.169.254) を含む
		"169.254.0.0/16",
		"0.0.0.0/8",
		"::1/128",
		"fe80::/10",
		"fc00::/7",
	}
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		blockedNetworks = append(blockedNetworks, *network)
	}
}

// NewSafeClient はSSRF防止機能付きのHTTPクライアントを生成する。
// safeurlはnet.DialerのControlフックでDNS解決後のIPアドレスを検証するため、
// プライベートIPやループバックへの接続はDNS再バインディング経由でも拒否される。
func NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()

	return safeurl.Client(config).Client
}

// ValidateURL はDNS解決を伴わない静的なURL検証を行う。
// 起動時に上流APIのベースURLを検査するために使用する。
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !isAllowedScheme(scheme) {
		return fmt.Errorf("disallowed scheme: %s (allowed: %v)", scheme, allowedSchemes)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("blocked IP address: %s", ip.String())
		}
		return nil
	}

	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}

	return nil
}

// ArchiveURLGuard はアーカイブ一覧に含まれるURLが設定済みAPIホストを指しているかを検証する。
// 上流の応答に任意のURLが混入しても、別ホストへリクエストが飛ばないようにする。
type ArchiveURLGuard struct {
	host string
}

// NewArchiveURLGuard はbaseURLのホストのみを許可するガードを生成する。
func NewArchiveURLGuard(baseURL string) (*ArchiveURLGuard, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base URL has no host: %q", baseURL)
	}
	return &ArchiveURLGuard{host: strings.ToLower(parsed.Host)}, nil
}

// Check はrawURLがhttp/httpsで、ホスト（ポート含む）がAPIホストと一致する場合にnilを返す。
func (g *ArchiveURLGuard) Check(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid archive URL: %w", err)
	}
	if !isAllowedScheme(parsed.Scheme) {
		return fmt.Errorf("disallowed scheme in archive URL: %q", parsed.Scheme)
	}
	if !strings.EqualFold(parsed.Host, g.host) {
		return fmt.Errorf("archive URL host %q does not match API host %q", parsed.Host, g.host)
	}
	return nil
}

func isAllowedScheme(scheme string) bool {
	for _, allowed := range allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}

func isBlockedIP(ip net.IP) bool {
	for _, network := range blockedNetworks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
