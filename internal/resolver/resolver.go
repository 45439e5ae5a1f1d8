// Package resolver decides which proxy, if any, serves each request scheme.
package resolver

import (
	"strings"

	"github.com/August26/httpping-go/internal/model"
)

const schemeSep = "://"

// Normalize makes sure addr carries a scheme. An address that already
// contains "://" is returned untouched, whatever its scheme is.
func Normalize(addr string, kind model.ProxyKind) string {
	if strings.Contains(addr, schemeSep) {
		return addr
	}
	return kind.Prefix() + addr
}

// Resolve turns the proxy options of one invocation into a ProxyMap.
//
// Precedence:
//  1. DisableAll returns the disabled sentinel, env is not read.
//  2. explicit SOCKS addresses, last in priority order wins the "socks" key
//  3. explicit http and https addresses
//  4. only when 2-3 produced nothing: environment fallback, each kind gated
//     by its own NoEnv flag
//  5. cross-fill http <-> https
func Resolve(opts model.ProxyOptions, env EnvironmentReader) *model.ProxyMap {
	if opts.DisableAll {
		return model.DisabledProxyMap()
	}

	entries := make(map[string]string)

	for _, kind := range model.SOCKSKinds {
		if addr := opts.Addresses[kind]; addr != "" {
			entries[model.KeySOCKS] = Normalize(addr, kind)
		}
	}
	if addr := opts.Addresses[model.KindHTTP]; addr != "" {
		entries[model.KeyHTTP] = Normalize(addr, model.KindHTTP)
	}
	if addr := opts.Addresses[model.KindHTTPS]; addr != "" {
		entries[model.KeyHTTPS] = Normalize(addr, model.KindHTTPS)
	}

	if len(entries) == 0 {
		fallbackFromEnv(entries, opts.NoEnv, env)
	}

	crossFill(entries)

	return &model.ProxyMap{
		Entries: entries,
		Bypass:  bypassList(env),
	}
}

func fallbackFromEnv(entries map[string]string, noEnv map[model.ProxyKind]bool, env EnvironmentReader) {
	if env == nil {
		return
	}

	lookup := func(kind model.ProxyKind) (string, bool) {
		if noEnv[kind] {
			return "", false
		}
		upper, lower := kind.EnvNames()
		v := env.Getenv(upper)
		if v == "" {
			v = env.Getenv(lower)
		}
		if v == "" {
			return "", false
		}
		return Normalize(v, kind), true
	}

	if v, ok := lookup(model.KindHTTP); ok {
		entries[model.KeyHTTP] = v
	}
	if v, ok := lookup(model.KindHTTPS); ok {
		entries[model.KeyHTTPS] = v
	}
	for _, kind := range model.SOCKSKinds {
		if v, ok := lookup(kind); ok {
			entries[model.KeySOCKS] = v
		}
	}
}

// crossFill derives a missing http or https entry from the other one by
// swapping the scheme prefix. Values without the expected prefix are
// copied as they are.
func crossFill(entries map[string]string) {
	httpProxy, hasHTTP := entries[model.KeyHTTP]
	httpsProxy, hasHTTPS := entries[model.KeyHTTPS]

	switch {
	case hasHTTP && !hasHTTPS:
		entries[model.KeyHTTPS] = swapPrefix(httpProxy, model.KindHTTP.Prefix(), model.KindHTTPS.Prefix())
	case hasHTTPS && !hasHTTP:
		entries[model.KeyHTTP] = swapPrefix(httpsProxy, model.KindHTTPS.Prefix(), model.KindHTTP.Prefix())
	}
}

func swapPrefix(s, from, to string) string {
	if rest, ok := strings.CutPrefix(s, from); ok {
		return to + rest
	}
	return s
}

// bypassList reads NO_PROXY / no_proxy as a comma separated host list.
func bypassList(env EnvironmentReader) []string {
	if env == nil {
		return nil
	}
	raw := env.Getenv("NO_PROXY")
	if raw == "" {
		raw = env.Getenv("no_proxy")
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
