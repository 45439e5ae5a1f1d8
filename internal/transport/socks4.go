package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
)

// x/net/proxy only knows socks5, teach it the SOCKS4 family so that
// proxy.FromURL covers every scheme the resolver can produce.
func init() {
	proxy.RegisterDialerType("socks4", newSOCKS4Dialer)
	proxy.RegisterDialerType("socks4a", newSOCKS4Dialer)
}

const (
	socks4Version      = 0x04
	socks4CmdConnect   = 0x01
	socks4Granted      = 0x5a
	socks4Rejected     = 0x5b
	socks4NoIdentd     = 0x5c
	socks4IdentdFailed = 0x5d
)

var errSOCKS4Reply = errors.New("socks4: malformed reply")

// socks4Dialer speaks SOCKS4 (local DNS) or SOCKS4a (proxy side DNS).
type socks4Dialer struct {
	proxyAddr string
	userID    string
	remoteDNS bool
	forward   proxy.Dialer
}

func newSOCKS4Dialer(u *url.URL, forward proxy.Dialer) (proxy.Dialer, error) {
	if u.Host == "" {
		return nil, fmt.Errorf("%s: missing proxy host", u.Scheme)
	}
	d := &socks4Dialer{
		proxyAddr: u.Host,
		remoteDNS: u.Scheme == "socks4a",
		forward:   forward,
	}
	if u.User != nil {
		d.userID = u.User.Username()
	}
	return d, nil
}

func (d *socks4Dialer) Dial(network, addr string) (net.Conn, error) {
	return d.DialContext(context.Background(), network, addr)
}

func (d *socks4Dialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	switch network {
	case "tcp", "tcp4":
	default:
		return nil, fmt.Errorf("socks4: network %q not supported", network)
	}

	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("socks4: %w", err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("socks4: invalid port %q", portStr)
	}

	// 1. figure out DSTIP before touching the proxy
	var hostname string
	ip := net.ParseIP(host).To4()
	if ip == nil {
		if d.remoteDNS {
			// 0.0.0.x with x != 0 tells a 4a server to resolve hostname
			ip = net.IPv4(0, 0, 0, 1).To4()
			hostname = host
		} else {
			ips, err := net.DefaultResolver.LookupIP(ctx, "ip4", host)
			if err != nil {
				return nil, fmt.Errorf("socks4: resolve %s: %w", host, err)
			}
			ip = ips[0].To4()
		}
	}

	conn, err := dialForward(ctx, d.forward, "tcp", d.proxyAddr)
	if err != nil {
		return nil, err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
		defer conn.SetDeadline(time.Time{})
	}

	// 2. CONNECT request
	// VN=0x04 CD=0x01 DSTPORT(2) DSTIP(4) USERID NUL [HOSTNAME NUL]
	req := []byte{socks4Version, socks4CmdConnect, byte(port >> 8), byte(port)}
	req = append(req, ip...)
	req = append(req, d.userID...)
	req = append(req, 0x00)
	if hostname != "" {
		req = append(req, hostname...)
		req = append(req, 0x00)
	}

	if _, err := conn.Write(req); err != nil {
		conn.Close()
		return nil, fmt.Errorf("socks4: write request: %w", err)
	}

	// 3. reply: VN=0x00 CD DSTPORT(2) DSTIP(4)
	reply := make([]byte, 8)
	if _, err := io.ReadFull(conn, reply); err != nil {
		conn.Close()
		return nil, fmt.Errorf("socks4: read reply: %w", err)
	}
	if reply[0] != 0x00 {
		conn.Close()
		return nil, errSOCKS4Reply
	}
	if reply[1] != socks4Granted {
		conn.Close()
		return nil, fmt.Errorf("socks4: connect to %s refused: %s", addr, socks4ReplyText(reply[1]))
	}

	return conn, nil
}

func socks4ReplyText(code byte) string {
	switch code {
	case socks4Rejected:
		return "request rejected or failed"
	case socks4NoIdentd:
		return "identd not reachable"
	case socks4IdentdFailed:
		return "identd user mismatch"
	default:
		return fmt.Sprintf("unknown reply code 0x%02x", code)
	}
}

// dialForward prefers DialContext when the forward dialer has it.
func dialForward(ctx context.Context, d proxy.Dialer, network, addr string) (net.Conn, error) {
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, network, addr)
	}
	return d.Dial(network, addr)
}
