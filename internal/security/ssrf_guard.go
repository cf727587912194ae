// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// SSRFGuardService はSSRF防止機能のインターフェースを定義する。
// コメント中の画像URLを分類エンジンへ渡す前と、画像を取得する時の両方で使用される。
type SSRFGuardService interface {
	// NewSafeClient はSSRF防止機能付きのHTTPクライアントを生成する。
	// 接続時にDNS解決後のIPアドレスを検証する。
	NewSafeClient(timeout time.Duration) *http.Client

	// ValidateURL はURLの安全性をDNS解決なしで検証する。
	ValidateURL(rawURL string) error
}

// defaultBlockedCIDRs はブロック対象のネットワーク範囲。
var defaultBlockedCIDRs = []string{
	// プライベートIPアドレス (RFC 1918)
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	// キャリアグレードNAT (RFC 6598)
	"100.64.0.0/10",
	// ループバック
	"127.0.0.0/8",
	// リンクローカル（169.254.169.254のメタデータIPを含む）
	"169.254.0.0/16",
	// カレントネットワーク
	"0.0.0.0/8",
	// IPv6ループバック・リンクローカル・ユニークローカル
	"::1/128",
	"fe80::/10",
	"fc00::/7",
}

// defaultBlockedHostSuffixes はブロック対象のホスト名（完全一致またはサフィックス一致）。
var defaultBlockedHostSuffixes = []string{
	"localhost",
	"internal",
	"local",
}

// ssrfGuard はSSRFGuardServiceの実装。
type ssrfGuard struct {
	schemes  []string
	ports    []int
	networks []*net.IPNet
	hosts    []string
}

// NewSSRFGuard はSSRFGuardServiceの新しいインスタンスを生成する。
// 許可するのはhttp/httpsの80/443番ポートのみ。
func NewSSRFGuard() *ssrfGuard {
	g := &ssrfGuard{
		schemes: []string{"http", "https"},
		ports:   []int{80, 443},
		hosts:   defaultBlockedHostSuffixes,
	}
	for _, cidr := range defaultBlockedCIDRs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blocked networks: %s: %v", cidr, err))
		}
		g.networks = append(g.networks, network)
	}
	return g
}

// NewSafeClient はsafeurlによるSSRF防止機能付きのHTTPクライアントを生成する。
// プライベート・ループバック・リンクローカルのアドレスへの接続は
// DNS解決後にDialerのControlフックで拒否されるため、DNS再バインディングにも対応する。
func (g *ssrfGuard) NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(g.schemes...).
		SetAllowedPorts(g.ports...).
		Build()

	return safeurl.Client(config).Client
}

// ValidateURL はURLの安全性を事前に検証する。
// DNS解決を伴わない静的な検証のため、最終的な防御はNewSafeClient側で行う。
func (g *ssrfGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !g.allowedScheme(scheme) {
		return fmt.Errorf("disallowed scheme: %q (allowed: %v)", scheme, g.schemes)
	}

	if parsed.User != nil {
		return fmt.Errorf("credentials in URL are not allowed")
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	if p := parsed.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil || !g.allowedPort(port) {
			return fmt.Errorf("disallowed port: %s", p)
		}
	}

	if ip := net.ParseIP(host); ip != nil {
		if g.blockedIP(ip) {
			return fmt.Errorf("blocked IP address: %s", ip.String())
		}
		return nil
	}

	if g.blockedHostname(host) {
		return fmt.Errorf("blocked host: %s", host)
	}

	return nil
}

func (g *ssrfGuard) allowedScheme(scheme string) bool {
	for _, allowed := range g.schemes {
		if scheme == allowed {
			return true
		}
	}
	return false
}

func (g *ssrfGuard) allowedPort(port int) bool {
	for _, allowed := range g.ports {
		if port == allowed {
			return true
		}
	}
	return false
}

// blockedIP はIPアドレスがブロック対象のネットワーク範囲に含まれるかを検証する。
// IPv4射影IPv6アドレスはIPv4として照合する。
func (g *ssrfGuard) blockedIP(ip net.IP) bool {
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	for _, network := range g.networks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

// blockedHostname はホスト名がブロック対象かを検証する。
func (g *ssrfGuard) blockedHostname(host string) bool {
	lower := strings.TrimSuffix(strings.ToLower(host), ".")
	for _, blocked := range g.hosts {
		if lower == blocked || strings.HasSuffix(lower, "."+blocked) {
			return true
		}
	}
	return false
}
