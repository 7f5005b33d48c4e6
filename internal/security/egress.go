// Package security restricts where outbound notification webhooks may
// connect. The Policy resolves every target host and refuses unspecified,
// loopback, link-local (including the cloud metadata address), multicast and
// private ranges, both when dialing and when following redirects.
package security

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

// DefaultBlockedCIDRs are the ranges a webhook must never reach.
var DefaultBlockedCIDRs = []string{
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"198.18.0.0/15",
	"224.0.0.0/4",
	"240.0.0.0/4",
	"::/128",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
	"ff00::/8",
}

const defaultDNSTimeout = 500 * time.Millisecond

var (
	// ErrBlocked is returned when a target resolves into a blocked range.
	ErrBlocked = errors.New("egress: target address is blocked")
	// ErrDNS is returned when a target cannot be resolved in time.
	ErrDNS = errors.New("egress: DNS resolution failed")
	// ErrTooManyRedirects is returned past the redirect limit.
	ErrTooManyRedirects = errors.New("egress: too many redirects")
)

// Resolver abstracts DNS resolution. *net.Resolver satisfies it.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Policy decides whether an outbound address may be dialed.
type Policy struct {
	blocked    []*net.IPNet
	resolver   Resolver
	dnsTimeout time.Duration
	dialer     *net.Dialer
}

type Option func(*Policy)

// WithResolver replaces net.DefaultResolver.
func WithResolver(r Resolver) Option {
	return func(p *Policy) { p.resolver = r }
}

func WithDNSTimeout(d time.Duration) Option {
	return func(p *Policy) { p.dnsTimeout = d }
}

// NewPolicy parses cidrs once. A nil slice uses DefaultBlockedCIDRs.
func NewPolicy(cidrs []string, opts ...Option) (*Policy, error) {
	if cidrs == nil {
		cidrs = DefaultBlockedCIDRs
	}
	p := &Policy{
		blocked:    make([]*net.IPNet, 0, len(cidrs)),
		resolver:   net.DefaultResolver,
		dnsTimeout: defaultDNSTimeout,
		dialer:     &net.Dialer{Timeout: 5 * time.Second},
	}
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			return nil, fmt.Errorf("egress: parsing CIDR %q: %w", c, err)
		}
		p.blocked = append(p.blocked, n)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Blocked reports whether ip falls inside a blocked range. Unspecified,
// loopback, link-local and multicast addresses are blocked whatever the
// configured ranges.
func (p *Policy) Blocked(ip net.IP) bool {
	if ip == nil || ip.IsUnspecified() || ip.IsLoopback() || ip.IsMulticast() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}
	for _, n := range p.blocked {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// resolve returns the addresses of host after checking every one of them.
// A host mixing public and private addresses is refused.
func (p *Policy) resolve(ctx context.Context, host string) ([]net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		if p.Blocked(ip) {
			return nil, fmt.Errorf("%w: %s", ErrBlocked, ip)
		}
		return []net.IP{ip}, nil
	}

	dnsCtx, cancel := context.WithTimeout(ctx, p.dnsTimeout)
	defer cancel()
	addrs, err := p.resolver.LookupIPAddr(dnsCtx, host)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDNS, host, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: %s has no addresses", ErrDNS, host)
	}

	ips := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		if p.Blocked(a.IP) {
			return nil, fmt.Errorf("%w: %s (resolved from %s)", ErrBlocked, a.IP, host)
		}
		ips = append(ips, a.IP)
	}
	return ips, nil
}

// CheckURL validates a configured target before any delivery is attempted.
func (p *Policy) CheckURL(ctx context.Context, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return fmt.Errorf("%w: cannot parse host of %q", ErrBlocked, raw)
	}
	_, err = p.resolve(ctx, u.Hostname())
	return err
}

// DialContext dials the first checked IP, never the name, once every
// resolved address passed.
func (p *Policy) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("egress: invalid address %q: %w", addr, err)
	}
	ips, err := p.resolve(ctx, host)
	if err != nil {
		return nil, err
	}
	return p.dialer.DialContext(ctx, network, net.JoinHostPort(ips[0].String(), port))
}

// CheckRedirect is an http.Client CheckRedirect hook applying the policy to
// every hop.
func (p *Policy) CheckRedirect(maxRedirects int) func(*http.Request, []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("%w: limit is %d", ErrTooManyRedirects, maxRedirects)
		}
		if req.URL.Hostname() == "" {
			return fmt.Errorf("%w: redirect without host", ErrBlocked)
		}
		_, err := p.resolve(req.Context(), req.URL.Hostname())
		return err
	}
}

// Client returns an http.Client whose transport and redirects obey p.
func (p *Policy) Client(timeout time.Duration, maxRedirects int) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = p.DialContext
	return &http.Client{
		Transport:     transport,
		Timeout:       timeout,
		CheckRedirect: p.CheckRedirect(maxRedirects),
	}
}
