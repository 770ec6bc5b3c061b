package fetcher

import (
	"context"
	"fmt"
	"net"
	"net/url"

	"acquirer/internal/domain/entity"
)

// ValidateURL rejects URLs that must not be fetched. Only http and https
// with a host are allowed. When denyPrivateIPs is set the host is resolved
// and every address must be public, which blocks SSRF towards internal
// services.
//
// Blocked IP ranges (when denyPrivateIPs is true):
//   - 127.0.0.0/8, ::1 (loopback)
//   - 10.0.0.0/8, 172.16.0.0/12, 192.168.0.0/16, fc00::/7 (private)
//   - 169.254.0.0/16, fe80::/10 (link-local)
//   - 0.0.0.0, :: (unspecified)
//
// Failures wrap entity.ErrInvalidInput so they abort the whole request.
func ValidateURL(ctx context.Context, rawURL string, denyPrivateIPs bool) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: parse error: %v", entity.ErrInvalidInput, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme '%s' not allowed (only http/https)", entity.ErrInvalidInput, u.Scheme)
	}
	hostname := u.Hostname()
	if hostname == "" {
		return fmt.Errorf("%w: empty hostname", entity.ErrInvalidInput)
	}
	if !denyPrivateIPs {
		return nil
	}

	if ip := net.ParseIP(hostname); ip != nil {
		if isPrivateIP(ip) {
			return fmt.Errorf("%w: %w: %s", entity.ErrInvalidInput, ErrPrivateIP, ip)
		}
		return nil
	}

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, hostname)
	if err != nil {
		// Resolution failures are transient from the caller's view.
		return fmt.Errorf("DNS lookup failed for %s: %w", hostname, err)
	}
	for _, addr := range addrs {
		if isPrivateIP(addr.IP) {
			return fmt.Errorf("%w: %w: hostname '%s' resolves to %s", entity.ErrInvalidInput, ErrPrivateIP, hostname, addr.IP)
		}
	}
	return nil
}

// isPrivateIP reports loopback, private, link-local and unspecified
// addresses for both IPv4 and IPv6.
func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified()
}
