package policy

import (
	"fmt"
	"strings"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
	"github.com/eliteGoblin/focusd/site_mon/internal/matcher"
)

// NormalizeRules cleans a user-supplied rule list: patterns are normalized,
// empty patterns are rejected and later duplicates are dropped.
func NormalizeRules(rules []domain.BlockRule) ([]domain.BlockRule, error) {
	out := make([]domain.BlockRule, 0, len(rules))
	seen := make(map[string]bool, len(rules))

	for _, r := range rules {
		p, err := NormalizePattern(r.Pattern)
		if err != nil {
			return nil, err
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, domain.BlockRule{Pattern: p, Enabled: r.Enabled})
	}
	return out, nil
}

// NormalizePattern accepts a hostname or "*.suffix". A full URL is reduced to
// its hostname.
func NormalizePattern(raw string) (string, error) {
	p := strings.TrimSpace(raw)
	if strings.Contains(p, "://") {
		return NormalizeDomain(p)
	}

	wildcard := strings.HasPrefix(p, matcher.WildcardPrefix)
	host, err := NormalizeDomain(strings.TrimPrefix(p, matcher.WildcardPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: pattern %q", domain.ErrInvalidURL, raw)
	}
	if wildcard {
		return matcher.WildcardPrefix + host, nil
	}
	return host, nil
}

// NormalizeDomain returns the bare hostname permissions are keyed by. A full
// URL is reduced to its hostname; anything else carrying a path, port,
// wildcard or whitespace is rejected.
func NormalizeDomain(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if strings.Contains(s, "://") {
		host, ok := matcher.Hostname(s)
		if !ok {
			return "", fmt.Errorf("%w: %q", domain.ErrInvalidURL, raw)
		}
		s = host
	}
	host := matcher.Normalize(s)
	if host == "" || strings.ContainsAny(host, "/:* \t") {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidURL, raw)
	}
	return host, nil
}
