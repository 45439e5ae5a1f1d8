package model

import "strings"

// ProxyKind is the transport variant of a proxy server.
type ProxyKind int

const (
	KindHTTP ProxyKind = iota
	KindHTTPS
	KindSOCKS // generic SOCKS, treated as socks5
	KindSOCKS4
	KindSOCKS4A
	KindSOCKS5
	KindSOCKS5H
)

// schemePrefixes maps every kind to the prefix its addresses must carry.
var schemePrefixes = [...]string{
	KindHTTP:    "http://",
	KindHTTPS:   "https://",
	KindSOCKS:   "socks5://",
	KindSOCKS4:  "socks4://",
	KindSOCKS4A: "socks4a://",
	KindSOCKS5:  "socks5://",
	KindSOCKS5H: "socks5h://",
}

var kindNames = [...]string{
	KindHTTP:    "http",
	KindHTTPS:   "https",
	KindSOCKS:   "socks",
	KindSOCKS4:  "socks4",
	KindSOCKS4A: "socks4a",
	KindSOCKS5:  "socks5",
	KindSOCKS5H: "socks5h",
}

// SOCKSKinds lists the SOCKS family in resolution priority order.
// Later kinds override earlier ones.
var SOCKSKinds = []ProxyKind{KindSOCKS, KindSOCKS4, KindSOCKS4A, KindSOCKS5, KindSOCKS5H}

// AllKinds lists every kind, http first.
var AllKinds = []ProxyKind{KindHTTP, KindHTTPS, KindSOCKS, KindSOCKS4, KindSOCKS4A, KindSOCKS5, KindSOCKS5H}

// Prefix returns the scheme prefix ("socks4a://") addresses of this kind need.
func (k ProxyKind) Prefix() string {
	return schemePrefixes[k]
}

func (k ProxyKind) String() string {
	return kindNames[k]
}

// EnvNames returns the upper and lower case environment variable names
// consulted for this kind, e.g. SOCKS4A_PROXY and socks4a_proxy.
func (k ProxyKind) EnvNames() (string, string) {
	lower := kindNames[k] + "_proxy"
	return strings.ToUpper(lower), lower
}

// Map keys of a resolved proxy map.
const (
	KeyHTTP  = "http"
	KeyHTTPS = "https"
	KeySOCKS = "socks"
)

// ProxyOptions holds the proxy related part of one invocation.
// Addresses and NoEnv are indexed by ProxyKind.
type ProxyOptions struct {
	Addresses  map[ProxyKind]string
	NoEnv      map[ProxyKind]bool
	DisableAll bool
}

// ProxyMap is the resolver output. A nil *ProxyMap or one with Disabled set
// means no proxying at all, which is different from an empty Entries map.
type ProxyMap struct {
	Disabled bool
	Entries  map[string]string // "http" | "https" | "socks" -> qualified proxy URL

	// Bypass lists host suffixes that are always reached directly (NO_PROXY).
	Bypass []string
}

// DisabledProxyMap returns the "no proxying" sentinel.
func DisabledProxyMap() *ProxyMap {
	return &ProxyMap{Disabled: true}
}

// IsDirect reports whether no proxy can ever be chosen from m.
func (m *ProxyMap) IsDirect() bool {
	return m == nil || m.Disabled || len(m.Entries) == 0
}

// Get returns the entry stored under key.
func (m *ProxyMap) Get(key string) (string, bool) {
	if m == nil || m.Disabled {
		return "", false
	}
	v, ok := m.Entries[key]
	return v, ok
}

// String renders present entries in fixed order: http, https, socks.
func (m *ProxyMap) String() string {
	if m == nil || m.Disabled {
		return "disabled"
	}
	var parts []string
	for _, k := range []string{KeyHTTP, KeyHTTPS, KeySOCKS} {
		if v, ok := m.Entries[k]; ok {
			parts = append(parts, k+"="+v)
		}
	}
	return strings.Join(parts, " ")
}
