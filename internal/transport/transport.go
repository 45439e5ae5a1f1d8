// Package transport performs the timed HTTP GET behind every ping,
// routed through the resolved proxy map.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tcnksm/go-httpstat"
	"golang.org/x/net/proxy"

	"github.com/August26/httpping-go/internal/model"
)

// UserAgent is sent with every probe.
const UserAgent = "http-ping/1.0"

// Prober issues single GET requests and reports them as ProbeResults.
type Prober struct {
	client *http.Client
	log    *slog.Logger
}

// New builds a Prober routed through proxies. A nil or disabled map
// means direct connections only.
func New(proxies *model.ProxyMap, log *slog.Logger) *Prober {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Prober{
		client: &http.Client{
			Transport: newRouter(proxies, log),
			// no Timeout here, the caller bounds each probe with its context
		},
		log: log,
	}
}

// Probe performs one GET against target and drains the body.
// Every failure, including a failure to build the request, is reported
// inside the result.
func (p *Prober) Probe(ctx context.Context, target string) model.ProbeResult {
	var stat httpstat.Result
	req, err := http.NewRequestWithContext(httpstat.WithHTTPStat(ctx, &stat), http.MethodGet, target, nil)
	if err != nil {
		return model.Failed(err)
	}
	req.Header.Set("User-Agent", UserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return model.Failed(err)
	}
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return model.Failed(fmt.Errorf("read body: %w", err))
	}
	end := time.Now()

	p.log.Debug("probe timing",
		"url", target,
		"status", resp.StatusCode,
		"dns_ms", stat.DNSLookup.Milliseconds(),
		"connect_ms", stat.TCPConnection.Milliseconds(),
		"tls_ms", stat.TLSHandshake.Milliseconds(),
		"server_ms", stat.ServerProcessing.Milliseconds(),
		"transfer_ms", stat.ContentTransfer(end).Milliseconds(),
		"total_ms", stat.Total(end).Milliseconds(),
	)

	return model.Succeeded(resp.StatusCode)
}

// router picks a transport per request from the request URL scheme:
// bypass list, then the scheme entry, then the socks entry, then direct.
type router struct {
	proxies *model.ProxyMap
	direct  *http.Transport
	log     *slog.Logger

	mu     sync.Mutex
	routes map[string]http.RoundTripper // keyed by proxy URL
}

func newRouter(proxies *model.ProxyMap, log *slog.Logger) *router {
	return &router{
		proxies: proxies,
		direct:  baseTransport(),
		log:     log,
		routes:  make(map[string]http.RoundTripper),
	}
}

func (r *router) RoundTrip(req *http.Request) (*http.Response, error) {
	proxyAddr := r.proxyFor(req.URL)
	if proxyAddr == "" {
		return r.direct.RoundTrip(req)
	}

	rt, err := r.transportFor(proxyAddr)
	if err != nil {
		return nil, err
	}
	return rt.RoundTrip(req)
}

// proxyFor returns the proxy URL serving u, or "" for a direct connection.
func (r *router) proxyFor(u *url.URL) string {
	if r.proxies.IsDirect() {
		return ""
	}
	if bypassed(u.Hostname(), r.proxies.Bypass) {
		return ""
	}
	if p, ok := r.proxies.Get(strings.ToLower(u.Scheme)); ok {
		return p
	}
	if p, ok := r.proxies.Get(model.KeySOCKS); ok {
		return p
	}
	return ""
}

func (r *router) transportFor(proxyAddr string) (http.RoundTripper, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rt, ok := r.routes[proxyAddr]; ok {
		return rt, nil
	}

	rt, err := buildProxyTransport(proxyAddr)
	if err != nil {
		return nil, err
	}
	r.log.Debug("proxy route created", "proxy", redact(proxyAddr))
	r.routes[proxyAddr] = rt
	return rt, nil
}

// buildProxyTransport builds an *http.Transport that reaches the target
// through proxyAddr. HTTP(S) proxies use the transport's own CONNECT
// support, SOCKS proxies go through an x/net/proxy dialer.
func buildProxyTransport(proxyAddr string) (*http.Transport, error) {
	u, err := url.Parse(proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy %q: %w", redact(proxyAddr), err)
	}

	transport := baseTransport()

	switch scheme := strings.ToLower(u.Scheme); scheme {
	case "http", "https":
		transport.Proxy = http.ProxyURL(u)
	case "socks5", "socks5h", "socks4", "socks4a":
		dialer, err := proxy.FromURL(u, forwardDialer())
		if err != nil {
			return nil, fmt.Errorf("build %s dialer: %w", scheme, err)
		}
		if scheme == "socks5" {
			dialer = localDNS{dialer}
		}
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialForward(ctx, dialer, network, addr)
		}
	default:
		return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}

	return transport, nil
}

// responseHeaderTimeout bounds the wait for a reply once the request is
// written. Probes with interval 0 carry no deadline of their own.
var responseHeaderTimeout = 30 * time.Second

// baseTransport never reads proxy environment variables; proxy selection
// is owned by the resolver.
func baseTransport() *http.Transport {
	return &http.Transport{
		Proxy:                 nil,
		DialContext:           forwardDialer().DialContext,
		ForceAttemptHTTP2:     true,
		DisableKeepAlives:     true, // every ping pays for its own connection
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: responseHeaderTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

func forwardDialer() *net.Dialer {
	return &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
}

// localDNS resolves the target host before handing it to a SOCKS5
// dialer, which would otherwise let the proxy resolve it (socks5h).
type localDNS struct {
	next proxy.Dialer
}

func (l localDNS) Dial(network, addr string) (net.Conn, error) {
	return l.DialContext(context.Background(), network, addr)
}

func (l localDNS) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	if net.ParseIP(host) == nil {
		ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
		if err != nil {
			return nil, err
		}
		if len(ips) == 0 {
			return nil, errors.New("no addresses for " + host)
		}
		addr = net.JoinHostPort(preferIPv4(ips).String(), port)
	}
	return dialForward(ctx, l.next, network, addr)
}

// preferIPv4 picks the first IPv4 address, falling back to the first one.
func preferIPv4(ips []net.IPAddr) net.IP {
	for _, ip := range ips {
		if ip4 := ip.IP.To4(); ip4 != nil {
			return ip4
		}
	}
	return ips[0].IP
}

func bypassed(host string, bypass []string) bool {
	host = strings.ToLower(host)
	for _, entry := range bypass {
		entry = strings.ToLower(entry)
		if entry == "*" || strings.HasSuffix(host, entry) {
			return true
		}
	}
	return false
}

// redact hides proxy credentials in logs and errors.
func redact(proxyAddr string) string {
	u, err := url.Parse(proxyAddr)
	if err != nil || u.User == nil {
		return proxyAddr
	}
	return u.Redacted()
}
