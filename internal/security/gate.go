// Package security classifies outbound webhook targets and builds an HTTP
// client that refuses to connect to private networks.
package security

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"slices"
	"strings"
	"syscall"
	"time"
)

// ErrPrivateAddress is returned by the guarded dialer for private targets.
var ErrPrivateAddress = errors.New("private IP address not allowed")

// MaxRedirects bounds how many redirects the guarded client follows.
const MaxRedirects = 10

var thisNetwork = netip.MustParsePrefix("0.0.0.0/8")

// Gate decides whether a host points into a private address range.
type Gate struct {
	allowed  []netip.Prefix
	resolver *net.Resolver
}

// NewGate builds a gate. Addresses inside allowed are never treated as private.
func NewGate(allowed ...netip.Prefix) *Gate {
	return &Gate{allowed: slices.Clone(allowed), resolver: net.DefaultResolver}
}

// WithResolver returns a copy of the gate that looks hosts up with r.
func (g *Gate) WithResolver(r *net.Resolver) *Gate {
	return &Gate{allowed: g.allowed, resolver: r}
}

// ParsePrefixes parses CIDR strings for NewGate.
func ParsePrefixes(cidrs []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		p, err := netip.ParsePrefix(strings.TrimSpace(c))
		if err != nil {
			return nil, fmt.Errorf("parse cidr %q: %w", c, err)
		}
		out = append(out, p.Masked())
	}
	return out, nil
}

// IsPrivateAddr reports whether addr is loopback, private, link-local,
// unspecified or in 0.0.0.0/8. IPv4-mapped IPv6 addresses are unmapped first.
func (g *Gate) IsPrivateAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	if g != nil {
		for _, p := range g.allowed {
			if p.Contains(addr) {
				return false
			}
		}
	}
	return addr.IsLoopback() ||
		addr.IsPrivate() ||
		addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() ||
		addr.IsInterfaceLocalMulticast() ||
		addr.IsUnspecified() ||
		(addr.Is4() && thisNetwork.Contains(addr))
}

// IsPrivateTarget reports whether host is, or resolves to, a private address.
// Lookup failures report false; the transport surfaces them on connect.
func (g *Gate) IsPrivateTarget(ctx context.Context, host string) bool {
	host = strings.TrimSuffix(strings.Trim(host, "[]"), ".")
	if host == "" {
		return false
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return g.IsPrivateAddr(addr)
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return g.IsPrivateAddr(netip.IPv6Loopback())
	}
	addrs, err := g.resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return false
	}
	return slices.ContainsFunc(addrs, g.IsPrivateAddr)
}

// control rejects connections whose resolved address is private.
func (g *Gate) control(_, address string, _ syscall.RawConn) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("parse dial address %q: %w", address, err)
	}
	if g.IsPrivateAddr(ap.Addr()) {
		return fmt.Errorf("dial %s: %w", address, ErrPrivateAddress)
	}
	return nil
}

// NewHTTPClient returns a client whose dialer re-checks every resolved
// address, including redirect targets. Redirects follow net/http rules:
// 307 and 308 keep the method and body. Per-request timeouts come from the
// caller's context.
func (g *Gate) NewHTTPClient() *http.Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
		Resolver:  g.resolver,
		Control:   g.control,
	}
	transport := &http.Transport{
		Proxy:                 nil,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Transport: transport,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= MaxRedirects {
				return fmt.Errorf("stopped after %d redirects", MaxRedirects)
			}
			return nil
		},
	}
}
