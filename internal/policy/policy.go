// Package policy decides whether a URL may be visited and issues grants.
// A domain's state is never stored: it is derived from the rule list, the
// domain's permission timestamps and the current time.
package policy

import (
	"time"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
	"github.com/eliteGoblin/focusd/site_mon/internal/matcher"
)

// MatchingRule returns the first enabled rule that matches rawURL.
func MatchingRule(rawURL string, rules []domain.BlockRule) (domain.BlockRule, bool) {
	for _, r := range rules {
		if r.Enabled && matcher.Matches(rawURL, r.Pattern) {
			return r, true
		}
	}
	return domain.BlockRule{}, false
}

// Evaluate decides whether rawURL is blocked at now.
// An open session wins over a cooldown window that also covers now.
func Evaluate(rawURL string, rules []domain.BlockRule, perms map[string]domain.Permission, now time.Time) domain.Decision {
	if _, ok := MatchingRule(rawURL, rules); !ok {
		return domain.Allowed()
	}

	d := matcher.ExtractDomain(rawURL)
	perm, ok := perms[d]
	if ok && isActive(perm, now) {
		return domain.Allowed()
	}
	if ok && inCooldown(perm, now) {
		return domain.Decision{
			Blocked:       true,
			Reason:        domain.ReasonCooldown,
			CooldownUntil: perm.CooldownUntil,
			Domain:        d,
		}
	}
	return domain.Decision{Blocked: true, Reason: domain.ReasonNoPermission, Domain: d}
}

// Status reports the permission state of a domain. exists is false when no
// permission was ever granted.
func Status(perm domain.Permission, exists bool, now time.Time) domain.PermissionStatus {
	switch {
	case !exists:
		return domain.StatusNoPermission
	case isActive(perm, now):
		return domain.StatusActive
	case inCooldown(perm, now):
		return domain.StatusCooldown
	default:
		return domain.StatusExpired
	}
}

// NewPermission computes the permission a grant of minutes at now produces.
func NewPermission(now time.Time, minutes, cooldownMinutes int) domain.Permission {
	expires := now.Add(time.Duration(minutes) * time.Minute)
	return domain.Permission{
		ExpiresAt:     expires,
		CooldownUntil: expires.Add(time.Duration(cooldownMinutes) * time.Minute),
	}
}

func isActive(p domain.Permission, now time.Time) bool {
	return !p.ExpiresAt.IsZero() && now.Before(p.ExpiresAt)
}

func inCooldown(p domain.Permission, now time.Time) bool {
	return !p.CooldownUntil.IsZero() && now.Before(p.CooldownUntil)
}
