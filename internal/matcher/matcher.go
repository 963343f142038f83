// Package matcher decides whether a URL falls under a blocked-domain pattern.
//
// Hostnames and patterns are compared lower-cased with a single trailing dot
// removed, so "WWW.Facebook.com." and "www.facebook.com" are the same host.
// Internationalized names are compared as given (no punycode conversion).
package matcher

import (
	"net/url"
	"strings"
)

// WildcardPrefix marks a pattern that matches a domain and all its subdomains.
const WildcardPrefix = "*."

// Hostname returns the normalized hostname of rawURL.
// The second result is false when rawURL has no scheme or host.
func Hostname(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	host := Normalize(u.Hostname())
	if host == "" {
		return "", false
	}
	return host, true
}

// Normalize lower-cases a hostname or pattern and drops one trailing dot.
func Normalize(host string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(host)), ".")
}

// Matches reports whether the hostname of rawURL matches pattern.
// Unparsable URLs never match.
func Matches(rawURL, pattern string) bool {
	host, ok := Hostname(rawURL)
	if !ok {
		return false
	}
	return MatchesHost(host, pattern)
}

// MatchesHost is Matches for an already extracted hostname.
func MatchesHost(host, pattern string) bool {
	host = Normalize(host)
	if strings.HasPrefix(pattern, WildcardPrefix) {
		suffix := Normalize(strings.TrimPrefix(pattern, WildcardPrefix))
		if suffix == "" {
			return false
		}
		return host == suffix || strings.HasSuffix(host, "."+suffix)
	}
	pattern = Normalize(pattern)
	if pattern == "" {
		return false
	}
	return host == pattern
}

// ExtractDomain returns the hostname of rawURL, or rawURL unchanged if it
// cannot be parsed. Use it for display and permission keys, not for matching.
func ExtractDomain(rawURL string) string {
	host, ok := Hostname(rawURL)
	if !ok {
		return rawURL
	}
	return host
}
