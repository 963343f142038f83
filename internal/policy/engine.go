package policy

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
	"github.com/eliteGoblin/focusd/site_mon/internal/ledger"
	"github.com/eliteGoblin/focusd/site_mon/internal/matcher"
	"github.com/eliteGoblin/focusd/site_mon/internal/metrics"
	"github.com/eliteGoblin/focusd/site_mon/internal/storage"
)

// ExpiryTimerPrefix prefixes the timer name of a domain's expiry callback.
const ExpiryTimerPrefix = "expire-"

// ExpiryTimerName returns the timer name used for d.
func ExpiryTimerName(d string) string {
	return ExpiryTimerPrefix + d
}

// DomainFromTimer extracts the domain from an expiry timer name.
func DomainFromTimer(name string) (string, bool) {
	d, ok := strings.CutPrefix(name, ExpiryTimerPrefix)
	if !ok || d == "" {
		return "", false
	}
	return d, true
}

// GrantRequest asks for a justified session on Domain.
type GrantRequest struct {
	Domain        string
	Justification string
	Minutes       int
}

// StatusReport is the answer to a permission status query.
// Only the timestamp relevant to Status is set.
type StatusReport struct {
	Status        domain.PermissionStatus `json:"status"`
	ExpiresAt     *time.Time              `json:"expiresAt,omitempty"`
	CooldownUntil *time.Time              `json:"cooldownUntil,omitempty"`
}

// Engine issues grants and answers status queries against stored state.
type Engine struct {
	state     *storage.State
	ledger    *ledger.Ledger
	scheduler domain.Scheduler
	clock     domain.Clock
	logger    *zap.Logger
	metrics   *metrics.Metrics
	locks     *keyLock
}

// NewEngine creates an engine. m may be nil.
func NewEngine(
	state *storage.State,
	l *ledger.Ledger,
	scheduler domain.Scheduler,
	clock domain.Clock,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Engine {
	return &Engine{
		state:     state,
		ledger:    l,
		scheduler: scheduler,
		clock:     clock,
		logger:    logger,
		metrics:   m,
		locks:     newKeyLock(),
	}
}

// Evaluate reads the current snapshot and evaluates rawURL.
func (e *Engine) Evaluate(ctx context.Context, rawURL string) (domain.Decision, error) {
	snap, err := e.state.Snapshot(ctx)
	if err != nil {
		return domain.Decision{}, err
	}
	return Evaluate(rawURL, snap.Rules, snap.Permissions, e.clock.Now()), nil
}

// Grant opens a justified session. Any earlier permission for the domain is
// replaced.
func (e *Engine) Grant(ctx context.Context, req GrantRequest) (domain.Permission, error) {
	d, err := NormalizeDomain(req.Domain)
	if err != nil {
		return domain.Permission{}, err
	}
	if err := ValidateMinutes(req.Minutes); err != nil {
		return domain.Permission{}, err
	}
	justification := strings.TrimSpace(req.Justification)
	if err := ValidateJustification(justification); err != nil {
		return domain.Permission{}, err
	}

	settings, err := e.state.Settings(ctx)
	if err != nil {
		return domain.Permission{}, err
	}
	if settings.CooldownMinutes <= 0 {
		return domain.Permission{}, fmt.Errorf("%w: cooldown minutes not configured", domain.ErrInvalidSettings)
	}

	perm, err := e.grant(ctx, d, justification, req.Minutes, settings.CooldownMinutes, false)
	if err != nil {
		return domain.Permission{}, err
	}
	e.metrics.Grant("justified")
	return perm, nil
}

// GrantByEmergencyCode opens a session of the default length if code matches
// the configured emergency code. A wrong code changes nothing.
func (e *Engine) GrantByEmergencyCode(ctx context.Context, code, rawDomain string) (domain.Permission, error) {
	d, err := NormalizeDomain(rawDomain)
	if err != nil {
		return domain.Permission{}, err
	}

	settings, err := e.state.Settings(ctx)
	if err != nil {
		return domain.Permission{}, err
	}
	if settings.EmergencyCode == "" {
		return domain.Permission{}, fmt.Errorf("%w: emergency code not configured", domain.ErrInvalidSettings)
	}
	if code != settings.EmergencyCode {
		e.metrics.EmergencyCodeFailure()
		e.logger.Warn("emergency code rejected", zap.String("domain", d))
		return domain.Permission{}, domain.ErrInvalidCode
	}
	if settings.DefaultMinutes <= 0 || settings.CooldownMinutes <= 0 {
		return domain.Permission{}, fmt.Errorf("%w: default or cooldown minutes not configured", domain.ErrInvalidSettings)
	}
	if err := ValidateMinutes(settings.DefaultMinutes); err != nil {
		return domain.Permission{}, fmt.Errorf("%w: %w", domain.ErrInvalidSettings, err)
	}

	perm, err := e.grant(ctx, d, domain.EmergencyJustification, settings.DefaultMinutes, settings.CooldownMinutes, true)
	if err != nil {
		return domain.Permission{}, err
	}
	e.metrics.Grant("emergency")
	return perm, nil
}

func (e *Engine) grant(ctx context.Context, d, justification string, minutes, cooldown int, emergency bool) (domain.Permission, error) {
	unlock := e.locks.Lock(d)
	defer unlock()

	now := e.clock.Now()
	perm := NewPermission(now, minutes, cooldown)

	err := e.state.UpdatePermissions(ctx, func(perms map[string]domain.Permission) error {
		perms[d] = perm
		return nil
	})
	if err != nil {
		return domain.Permission{}, err
	}

	_, err = e.ledger.Append(ctx, domain.UsageLogEntry{
		Domain:               d,
		Justification:        justification,
		GrantedAt:            now,
		Duration:             minutes,
		ExpiresAt:            perm.ExpiresAt,
		WasEmergencyOverride: emergency,
	})
	if err != nil {
		return domain.Permission{}, fmt.Errorf("failed to record grant: %w", err)
	}

	if err := e.scheduler.ScheduleAt(ExpiryTimerName(d), perm.ExpiresAt); err != nil {
		e.metrics.SchedulerError()
		e.logger.Warn("failed to schedule expiry, relying on next navigation",
			zap.String("domain", d),
			zap.Error(err))
	}

	e.logger.Info("access granted",
		zap.String("domain", d),
		zap.Int("minutes", minutes),
		zap.Bool("emergency", emergency),
		zap.Time("expires_at", perm.ExpiresAt))
	return perm, nil
}

// CheckStatus reports the permission state of rawDomain at the current time.
func (e *Engine) CheckStatus(ctx context.Context, rawDomain string) (StatusReport, error) {
	d := matcher.Normalize(rawDomain)
	perm, ok, err := e.state.Permission(ctx, d)
	if err != nil {
		return StatusReport{}, err
	}

	report := StatusReport{Status: Status(perm, ok, e.clock.Now())}
	switch report.Status {
	case domain.StatusActive:
		t := perm.ExpiresAt
		report.ExpiresAt = &t
	case domain.StatusCooldown:
		t := perm.CooldownUntil
		report.CooldownUntil = &t
	}
	return report, nil
}

// ActiveExpiries returns the expiry instant of every permission still open at now.
func (e *Engine) ActiveExpiries(ctx context.Context, now time.Time) (map[string]time.Time, error) {
	perms, err := e.state.Permissions(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]time.Time)
	for d, p := range perms {
		if isActive(p, now) {
			out[d] = p.ExpiresAt
		}
	}
	return out, nil
}

// ValidateMinutes checks a grant length.
func ValidateMinutes(minutes int) error {
	if minutes < domain.MinGrantMinutes || minutes > domain.MaxGrantMinutes {
		return fmt.Errorf("%w: %d is outside %d-%d",
			domain.ErrInvalidMinutes, minutes, domain.MinGrantMinutes, domain.MaxGrantMinutes)
	}
	return nil
}

// ValidateJustification checks a trimmed justification.
func ValidateJustification(s string) error {
	if s == "" {
		return fmt.Errorf("%w: empty", domain.ErrInvalidJustification)
	}
	if n := utf8.RuneCountInString(s); n > domain.MaxJustificationRunes {
		return fmt.Errorf("%w: %d characters, max %d", domain.ErrInvalidJustification, n, domain.MaxJustificationRunes)
	}
	return nil
}
