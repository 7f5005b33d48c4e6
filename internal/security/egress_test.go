package security

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockResolver implements Resolver for deterministic testing.
type mockResolver struct {
	ips map[string][]string
}

func (m *mockResolver) LookupIPAddr(_ context.Context, host string) ([]net.IPAddr, error) {
	raw, ok := m.ips[host]
	if !ok {
		return nil, fmt.Errorf("no such host: %s", host)
	}
	out := make([]net.IPAddr, len(raw))
	for i, s := range raw {
		out[i] = net.IPAddr{IP: net.ParseIP(s)}
	}
	return out, nil
}

// slowResolver simulates a DNS resolver that takes too long.
type slowResolver struct{}

func (slowResolver) LookupIPAddr(ctx context.Context, _ string) ([]net.IPAddr, error) {
	select {
	case <-time.After(time.Second):
		return []net.IPAddr{{IP: net.ParseIP("93.184.216.34")}}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func newTestPolicy(t *testing.T, hosts map[string][]string) *Policy {
	t.Helper()
	p, err := NewPolicy(nil, WithResolver(&mockResolver{ips: hosts}))
	require.NoError(t, err)
	return p
}

func TestNewPolicy_RejectsBadCIDR(t *testing.T) {
	_, err := NewPolicy([]string{"10.0.0.0/8", "not-a-cidr"})
	require.Error(t, err)
}

func TestBlocked(t *testing.T) {
	p := newTestPolicy(t, nil)

	blocked := []string{
		"127.0.0.1", "10.1.2.3", "172.16.0.1", "192.168.1.1", "169.254.169.254", "100.64.0.1",
		"0.0.0.0", "224.0.0.1", "240.0.0.1", "198.18.0.1",
		"::", "::1", "fd00::1", "ff02::1", "::ffff:127.0.0.1",
	}
	for _, ip := range blocked {
		assert.True(t, p.Blocked(net.ParseIP(ip)), ip)
	}
	for _, ip := range []string{"93.184.216.34", "8.8.8.8", "2606:4700::1111"} {
		assert.False(t, p.Blocked(net.ParseIP(ip)), ip)
	}
}

func TestBlocked_IntrinsicRangesIgnoreConfiguredList(t *testing.T) {
	p, err := NewPolicy([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	for _, ip := range []string{"::", "0.0.0.0", "127.0.0.1", "::1", "224.0.0.1", "169.254.169.254"} {
		assert.True(t, p.Blocked(net.ParseIP(ip)), ip)
	}
	assert.False(t, p.Blocked(net.ParseIP("192.168.1.1")))
}

func TestCheckURL(t *testing.T) {
	p := newTestPolicy(t, map[string][]string{
		"hooks.example.com": {"93.184.216.34"},
		"internal.example":  {"10.0.0.5"},
		"mixed.example.com": {"93.184.216.34", "127.0.0.1"},
	})
	ctx := context.Background()

	assert.NoError(t, p.CheckURL(ctx, "https://hooks.example.com/billing"))
	assert.ErrorIs(t, p.CheckURL(ctx, "https://internal.example/hook"), ErrBlocked)
	assert.ErrorIs(t, p.CheckURL(ctx, "https://mixed.example.com/hook"), ErrBlocked)
	assert.ErrorIs(t, p.CheckURL(ctx, "http://169.254.169.254/latest/meta-data"), ErrBlocked)
	assert.ErrorIs(t, p.CheckURL(ctx, "http://[::]:8080/"), ErrBlocked)
	assert.ErrorIs(t, p.CheckURL(ctx, "http://224.0.0.1/"), ErrBlocked)
	assert.ErrorIs(t, p.CheckURL(ctx, "https://unknown.example.com"), ErrDNS)
	assert.ErrorIs(t, p.CheckURL(ctx, "::not a url"), ErrBlocked)
}

func TestCheckURL_DNSTimeout(t *testing.T) {
	p, err := NewPolicy(nil, WithResolver(slowResolver{}), WithDNSTimeout(20*time.Millisecond))
	require.NoError(t, err)

	err = p.CheckURL(context.Background(), "https://slow.example.com")
	assert.ErrorIs(t, err, ErrDNS)
}

func TestClient_RefusesLoopbackServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "internal")
	}))
	defer srv.Close()

	p := newTestPolicy(t, nil)
	_, err := p.Client(2*time.Second, 3).Get(srv.URL)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBlocked) || strings.Contains(err.Error(), ErrBlocked.Error()), "got %v", err)
}

func TestClient_RefusesUnspecifiedAddress(t *testing.T) {
	ln, err := net.Listen("tcp", "[::]:0")
	if err != nil {
		t.Skipf("no IPv6 wildcard listener: %v", err)
	}
	srv := &httptest.Server{
		Listener: ln,
		Config: &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "internal")
		})},
	}
	srv.Start()
	defer srv.Close()

	port := ln.Addr().(*net.TCPAddr).Port
	target := fmt.Sprintf("http://[::]:%d/", port)
	p := newTestPolicy(t, nil)

	assert.ErrorIs(t, p.CheckURL(context.Background(), target), ErrBlocked)
	resp, err := p.Client(2*time.Second, 3).Get(target)
	if resp != nil {
		resp.Body.Close()
	}
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBlocked) || strings.Contains(err.Error(), ErrBlocked.Error()), "got %v", err)
}

func TestCheckRedirect(t *testing.T) {
	p := newTestPolicy(t, map[string][]string{
		"public.example.com": {"93.184.216.34"},
		"metadata.example":   {"169.254.169.254"},
	})
	check := p.CheckRedirect(2)

	hop := func(u string) *http.Request { return httptest.NewRequest(http.MethodGet, u, nil) }

	assert.NoError(t, check(hop("https://public.example.com/next"), []*http.Request{hop("https://a.example.com")}))
	assert.ErrorIs(t, check(hop("https://metadata.example/x"), nil), ErrBlocked)
	assert.ErrorIs(t, check(hop("http://127.0.0.1:8080/"), nil), ErrBlocked)
	assert.ErrorIs(t,
		check(hop("https://public.example.com/next"), []*http.Request{hop("https://a"), hop("https://b")}),
		ErrTooManyRedirects)
}
