package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

type clientIPKey struct{}

// ClientIPMiddleware resolves the caller's address once per request for the
// rate limiters and the request log. Forwarding headers are honored only
// when the direct peer is a trusted proxy.
type ClientIPMiddleware struct {
	trusted []netip.Prefix
}

// NewClientIPMiddleware parses trustedProxies, each a CIDR or a single
// address. With none, forwarding headers are ignored.
func NewClientIPMiddleware(trustedProxies []string) (*ClientIPMiddleware, error) {
	m := &ClientIPMiddleware{}
	for _, raw := range trustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			prefix, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
			}
			m.trusted = append(m.trusted, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
		}
		addr = addr.Unmap()
		m.trusted = append(m.trusted, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return m, nil
}

// Handler stores the resolved address in the request context.
func (m *ClientIPMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), clientIPKey{}, m.resolve(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *ClientIPMiddleware) resolve(r *http.Request) string {
	peer := remoteHost(r)
	if !m.isTrusted(peer) {
		return peer
	}

	// Each proxy appends the address it received the request from, so the
	// rightmost hop that is not one of ours is the client.
	var hops []string
	for _, v := range r.Header.Values("X-Forwarded-For") {
		hops = append(hops, strings.Split(v, ",")...)
	}
	for i := len(hops) - 1; i >= 0; i-- {
		addr, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
		if err != nil {
			return peer
		}
		if !m.trustedAddr(addr) {
			return addr.Unmap().String()
		}
	}

	// nginx
	if addr, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return addr.Unmap().String()
	}
	return peer
}

func (m *ClientIPMiddleware) isTrusted(host string) bool {
	addr, err := netip.ParseAddr(host)
	return err == nil && m.trustedAddr(addr)
}

func (m *ClientIPMiddleware) trustedAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range m.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr might not have a port
		return r.RemoteAddr
	}
	return host
}

// getClientIP returns the address resolved by ClientIPMiddleware, or the
// direct peer when the middleware did not run.
func getClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(clientIPKey{}).(string); ok {
		return ip
	}
	return remoteHost(r)
}
