package storage

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
)

// First-run defaults.
const (
	DefaultCooldownMinutes = 30
	DefaultGrantMinutes    = 5
	emergencyCodeLength    = 16
	emergencyCodeAlphabet  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// DefaultRules is the rule list installed on first run.
func DefaultRules() []domain.BlockRule {
	return []domain.BlockRule{{Pattern: "*.facebook.com", Enabled: true}}
}

// GenerateEmergencyCode returns a random upper-case alphanumeric code.
// Ambiguous characters (0/O, 1/I) are left out so the code can be copied by hand.
func GenerateEmergencyCode() (string, error) {
	max := big.NewInt(int64(len(emergencyCodeAlphabet)))
	code := make([]byte, emergencyCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate emergency code: %w", err)
		}
		code[i] = emergencyCodeAlphabet[n.Int64()]
	}
	return string(code), nil
}

// Bootstrap writes defaults for every key that is missing. Existing values are
// never touched. It reports whether anything was written.
func (s *State) Bootstrap(ctx context.Context) (bool, error) {
	raw, err := s.kv.Get(ctx,
		domain.KeySettings,
		domain.KeyBlockedDomains,
		domain.KeyPermissions,
		domain.KeyUsageLogs,
		domain.KeyAccessAttempts,
	)
	if err != nil {
		return false, storageErr("read defaults", err)
	}

	wrote := false
	if _, ok := raw[domain.KeySettings]; !ok {
		code, err := GenerateEmergencyCode()
		if err != nil {
			return false, err
		}
		settings := domain.Settings{
			CooldownMinutes: DefaultCooldownMinutes,
			DefaultMinutes:  DefaultGrantMinutes,
			EmergencyCode:   code,
		}
		if err := s.replace(ctx, domain.KeySettings, settings); err != nil {
			return false, err
		}
		wrote = true
	}
	if _, ok := raw[domain.KeyBlockedDomains]; !ok {
		if err := s.replace(ctx, domain.KeyBlockedDomains, DefaultRules()); err != nil {
			return false, err
		}
		wrote = true
	}
	if _, ok := raw[domain.KeyPermissions]; !ok {
		if err := s.replace(ctx, domain.KeyPermissions, map[string]domain.Permission{}); err != nil {
			return false, err
		}
		wrote = true
	}
	if _, ok := raw[domain.KeyUsageLogs]; !ok {
		if err := s.replace(ctx, domain.KeyUsageLogs, []domain.UsageLogEntry{}); err != nil {
			return false, err
		}
		wrote = true
	}
	if _, ok := raw[domain.KeyAccessAttempts]; !ok {
		if err := s.replace(ctx, domain.KeyAccessAttempts, map[string]domain.AttemptRecord{}); err != nil {
			return false, err
		}
		wrote = true
	}
	return wrote, nil
}
