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

// URLGuard は利用者が登録するURLの検証と、外部サービス呼び出し用HTTPクライアントの生成を行う。
type URLGuard struct {
	outboundProtection bool
}

// NewURLGuard はURLGuardを生成する。
// outboundProtectionがtrueの場合、NewOutboundClientはsafeurlのクライアントを返す。
// ローカルのモックIdP等を相手にする開発環境ではfalseにする。
func NewURLGuard(outboundProtection bool) *URLGuard {
	return &URLGuard{outboundProtection: outboundProtection}
}

var allowedSchemes = []string{"http", "https"}

// blockedNetworks はメディアURLとして受け付けないネットワーク範囲。
var blockedNetworks []net.IPNet

func init() {
	cidrs := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"169.254.0.0/16", // クラウドメタデータ (169.254.169.254) を含む
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

// NewOutboundClient は外部IdPやテキスト生成サービスを呼び出すHTTPクライアントを生成する。
// 保護有効時はプライベートIP・ループバック・メタデータIPへの接続をダイヤル時に拒否する。
func (g *URLGuard) NewOutboundClient(timeout time.Duration) *http.Client {
	if !g.outboundProtection {
		return &http.Client{Timeout: timeout}
	}

	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443).
		Build()

	return safeurl.Client(config).Client
}

// ValidateURL は音声・動画・会議URLなど利用者が登録するURLを静的に検証する。
// 絶対URLかつ http/https であり、ホストがプライベート範囲やlocalhostでないことを要求する。
func (g *URLGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("disallowed scheme: %q (allowed: %v)", scheme, allowedSchemes)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	if ip := net.ParseIP(host); ip != nil {
		for _, network := range blockedNetworks {
			if network.Contains(ip) {
				return fmt.Errorf("blocked IP address: %s", ip.String())
			}
		}
		return nil
	}

	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}

	return nil
}

// ValidateURLs は複数URLをまとめて検証し、最初のエラーを返す。
func (g *URLGuard) ValidateURLs(rawURLs []string) error {
	for _, u := range rawURLs {
		if err := g.ValidateURL(u); err != nil {
			return err
		}
	}
	return nil
}
