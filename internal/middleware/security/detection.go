package security

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"slices"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"gravl/internal/log"
)

// Loopback and private ranges are always trusted to forward client addresses.
var defaultTrustedProxies = []netip.Prefix{
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
}

var (
	probePatterns = []string{
		"../", "..\\", ".env", "wp-admin", "phpmyadmin",
		"admin.php", "config.php", ".git", ".ssh",
		"eval(", "javascript:", "<script", "union select",
		"etc/passwd", "cmd.exe",
	}
	scannerAgents  = []string{"sqlmap", "nmap", "nikto", "gobuster", "dirb", "masscan", "zgrab", "scanner"}
	unusualMethods = []string{"TRACE", "TRACK", "DEBUG", "CONNECT"}
)

const (
	maxURLLength = 2048
	maxProxyHops = 5
)

// Detector resolves client addresses behind trusted proxies and flags
// requests that look like probes.
type Detector struct {
	trusted    []netip.Prefix
	suspicious prometheus.Counter
	invalidIP  prometheus.Counter
	logger     *log.Logger
}

// NewDetector registers its counters on reg when reg is not nil.
func NewDetector(reg prometheus.Registerer, logger *log.Logger) *Detector {
	if logger == nil {
		logger = log.New(log.Config{Component: log.ComponentSecurity})
	}
	d := &Detector{
		trusted: slices.Clone(defaultTrustedProxies),
		suspicious: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gravl", Subsystem: "security", Name: "suspicious_requests_total",
			Help: "Requests flagged as probes or scans.",
		}),
		invalidIP: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gravl", Subsystem: "security", Name: "invalid_forwarded_ip_total",
			Help: "Forwarded client addresses from trusted proxies that did not parse.",
		}),
		logger: logger,
	}
	if reg != nil {
		reg.MustRegister(d.suspicious, d.invalidIP)
	}
	return d
}

// AddTrustedProxy trusts a CIDR, or a bare IP as a single host.
func (d *Detector) AddTrustedProxy(proxy string) error {
	if !strings.Contains(proxy, "/") {
		addr, err := netip.ParseAddr(proxy)
		if err != nil {
			return fmt.Errorf("invalid proxy address %s", proxy)
		}
		d.trusted = append(d.trusted, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
		return nil
	}
	prefix, err := netip.ParsePrefix(proxy)
	if err != nil {
		return fmt.Errorf("invalid CIDR %s: %w", proxy, err)
	}
	d.trusted = append(d.trusted, prefix.Masked())
	return nil
}

func (d *Detector) isTrustedProxy(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range d.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// DetectSuspiciousRequest flags path probes, injection attempts in the
// query, known scanners, unusual methods, oversized URLs and long proxy
// chains.
func (d *Detector) DetectSuspiciousRequest(r *http.Request) bool {
	suspicious := containsAny(strings.ToLower(r.URL.Path), probePatterns) ||
		containsAny(strings.ToLower(r.URL.RawQuery), probePatterns) ||
		containsAny(strings.ToLower(r.Header.Get("User-Agent")), scannerAgents) ||
		slices.Contains(unusualMethods, r.Method) ||
		len(r.URL.String()) > maxURLLength ||
		strings.Count(r.Header.Get("X-Forwarded-For"), ",") > maxProxyHops

	if suspicious {
		d.suspicious.Inc()
	}
	return suspicious
}

// ExtractClientIP returns the peer address, or the first forwarded address
// when the peer is a trusted proxy. X-Forwarded-For wins over X-Real-IP.
func (d *Detector) ExtractClientIP(r *http.Request) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}
	addr, err := netip.ParseAddr(peer)
	if err != nil || !d.isTrustedProxy(addr) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip, ok := d.forwarded(first); ok {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if ip, ok := d.forwarded(xri); ok {
			return ip
		}
	}
	return peer
}

func (d *Detector) forwarded(value string) (string, bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(value))
	if err != nil {
		d.invalidIP.Inc()
		return "", false
	}
	return addr.String(), true
}

// Middleware logs suspicious requests. It never blocks them; rate limiting
// is the enforcement point.
func (d *Detector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if d.DetectSuspiciousRequest(r) {
			d.logger.WarnContext(r.Context(), "Suspicious request",
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldClientIP, d.ExtractClientIP(r),
				log.FieldUserAgent, r.Header.Get("User-Agent"))
		}
		next.ServeHTTP(w, r)
	})
}
