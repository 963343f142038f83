package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
	"github.com/eliteGoblin/focusd/site_mon/internal/matcher"
	"github.com/eliteGoblin/focusd/site_mon/internal/policy"
)

// requestDomain prefers the explicit domain and falls back to the URL's host.
// Values that are not a bare hostname or a full URL are rejected.
func requestDomain(req Request) (string, error) {
	switch {
	case strings.TrimSpace(req.Domain) != "":
		return policy.NormalizeDomain(req.Domain)
	case strings.TrimSpace(req.URL) != "":
		host, ok := matcher.Hostname(req.URL)
		if !ok {
			return "", fmt.Errorf("%w: %q", domain.ErrInvalidURL, req.URL)
		}
		return host, nil
	default:
		return "", fmt.Errorf("%w: domain is required", domain.ErrInvalidURL)
	}
}

func (s *Service) savePermission(ctx context.Context, req Request) (Response, error) {
	d, err := requestDomain(req)
	if err != nil {
		return Response{}, err
	}
	perm, err := s.engine.Grant(ctx, policy.GrantRequest{
		Domain:        d,
		Justification: req.Justification,
		Minutes:       req.Minutes,
	})
	if err != nil {
		return Response{}, err
	}
	return permissionResponse(perm), nil
}

func (s *Service) checkEmergencyCode(ctx context.Context, req Request) (Response, error) {
	d, err := requestDomain(req)
	if err != nil {
		return Response{}, err
	}
	perm, err := s.engine.GrantByEmergencyCode(ctx, strings.TrimSpace(req.Code), d)
	if err != nil {
		return Response{}, err
	}
	return permissionResponse(perm), nil
}

func permissionResponse(perm domain.Permission) Response {
	expires, cooldown := perm.ExpiresAt, perm.CooldownUntil
	return Response{
		Status:        domain.StatusActive,
		ExpiresAt:     &expires,
		CooldownUntil: &cooldown,
	}
}

func (s *Service) getSettings(ctx context.Context, _ Request) (Response, error) {
	settings, err := s.state.Settings(ctx)
	if err != nil {
		return Response{}, err
	}
	return Response{Settings: &settings}, nil
}

// updateSettings replaces the settings. An empty emergency code keeps the
// stored one.
func (s *Service) updateSettings(ctx context.Context, req Request) (Response, error) {
	if req.Settings == nil {
		return Response{}, fmt.Errorf("%w: settings are required", domain.ErrInvalidSettings)
	}
	next := *req.Settings
	next.EmergencyCode = strings.TrimSpace(next.EmergencyCode)
	if err := ValidateSettings(next); err != nil {
		return Response{}, err
	}

	var saved domain.Settings
	err := s.state.UpdateSettings(ctx, func(cur domain.Settings) (domain.Settings, error) {
		if next.EmergencyCode == "" {
			next.EmergencyCode = cur.EmergencyCode
		}
		saved = next
		return next, nil
	})
	if err != nil {
		return Response{}, err
	}
	s.logger.Info("settings updated")
	return Response{Settings: &saved}, nil
}

// ValidateSettings checks user-edited settings. A zero DefaultMinutes means
// "ask every time".
func ValidateSettings(st domain.Settings) error {
	if err := policy.ValidateMinutes(st.CooldownMinutes); err != nil {
		return fmt.Errorf("%w: cooldown: %w", domain.ErrInvalidSettings, err)
	}
	if st.DefaultMinutes != 0 {
		if err := policy.ValidateMinutes(st.DefaultMinutes); err != nil {
			return fmt.Errorf("%w: default: %w", domain.ErrInvalidSettings, err)
		}
	}
	return nil
}

func (s *Service) getBlockedDomains(ctx context.Context, _ Request) (Response, error) {
	rules, err := s.state.Rules(ctx)
	if err != nil {
		return Response{}, err
	}
	if rules == nil {
		rules = []domain.BlockRule{}
	}
	return Response{BlockedDomains: rules}, nil
}

func (s *Service) updateBlockedDomains(ctx context.Context, req Request) (Response, error) {
	rules, err := policy.NormalizeRules(req.BlockedDomains)
	if err != nil {
		return Response{}, err
	}
	if err := s.state.SaveRules(ctx, rules); err != nil {
		return Response{}, err
	}
	s.logger.Info("blocked domains updated")
	return Response{BlockedDomains: rules}, nil
}

func (s *Service) getUsageLogs(ctx context.Context, req Request) (Response, error) {
	logs, err := s.ledger.List(ctx, req.Limit)
	if err != nil {
		return Response{}, err
	}
	return Response{UsageLogs: logs}, nil
}

func (s *Service) getUsageStats(ctx context.Context, _ Request) (Response, error) {
	summary, err := s.ledger.Stats(ctx)
	if err != nil {
		return Response{}, err
	}
	return Response{Stats: &summary}, nil
}

func (s *Service) checkPermissionStatus(ctx context.Context, req Request) (Response, error) {
	d, err := requestDomain(req)
	if err != nil {
		return Response{}, err
	}
	report, err := s.engine.CheckStatus(ctx, d)
	if err != nil {
		return Response{}, err
	}
	return Response{
		Status:        report.Status,
		ExpiresAt:     report.ExpiresAt,
		CooldownUntil: report.CooldownUntil,
	}, nil
}

func (s *Service) recordAccessAttempt(ctx context.Context, req Request) (Response, error) {
	d, err := requestDomain(req)
	if err != nil {
		return Response{}, err
	}
	c, err := s.counter.RecordAttempt(ctx, d, s.clock.Now())
	if err != nil {
		return Response{}, err
	}
	s.metrics.AccessAttempt()
	return Response{Count: &c.Count, LastAttempt: c.LastAttempt}, nil
}

func (s *Service) getAccessAttempts(ctx context.Context, req Request) (Response, error) {
	d, err := requestDomain(req)
	if err != nil {
		return Response{}, err
	}
	c, err := s.counter.GetAttempts(ctx, d, s.clock.Now())
	if err != nil {
		return Response{}, err
	}
	return Response{Count: &c.Count, LastAttempt: c.LastAttempt}, nil
}

func (s *Service) evaluateURL(ctx context.Context, req Request) (Response, error) {
	if _, ok := matcher.Hostname(req.URL); !ok {
		return Response{}, fmt.Errorf("%w: %q", domain.ErrInvalidURL, req.URL)
	}
	dec, err := s.engine.Evaluate(ctx, req.URL)
	if err != nil {
		return Response{}, err
	}
	view := &DecisionView{Blocked: dec.Blocked, Reason: dec.Reason, Domain: dec.Domain}
	if !dec.CooldownUntil.IsZero() {
		t := dec.CooldownUntil
		view.CooldownUntil = &t
	}
	return Response{Decision: view}, nil
}
