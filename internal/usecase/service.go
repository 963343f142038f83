// Package usecase answers the named requests UI surfaces send to the daemon.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/site_mon/internal/attempts"
	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
	"github.com/eliteGoblin/focusd/site_mon/internal/ledger"
	"github.com/eliteGoblin/focusd/site_mon/internal/metrics"
	"github.com/eliteGoblin/focusd/site_mon/internal/policy"
	"github.com/eliteGoblin/focusd/site_mon/internal/storage"
)

// Request actions.
const (
	ActionSavePermission        = "savePermission"
	ActionCheckEmergencyCode    = "checkEmergencyCode"
	ActionGetSettings           = "getSettings"
	ActionUpdateSettings        = "updateSettings"
	ActionGetBlockedDomains     = "getBlockedDomains"
	ActionUpdateBlockedDomains  = "updateBlockedDomains"
	ActionGetUsageLogs          = "getUsageLogs"
	ActionCheckPermissionStatus = "checkPermissionStatus"
	ActionRecordAccessAttempt   = "recordAccessAttempt"
	ActionGetAccessAttempts     = "getAccessAttempts"
	ActionGetUsageStats         = "getUsageStats"
	ActionEvaluateURL           = "evaluateUrl"
)

// User-facing error messages.
const (
	MsgStorageUnavailable = "storage unavailable, please try again"
	MsgInvalidCode        = "Invalid emergency code"
	MsgInternal           = "internal error"
)

// Request is one message from a UI surface. Only the fields the action
// reads need to be set.
type Request struct {
	Action         string             `json:"action"`
	Domain         string             `json:"domain,omitempty"`
	URL            string             `json:"url,omitempty"`
	Justification  string             `json:"justification,omitempty"`
	Minutes        int                `json:"minutes,omitempty"`
	Code           string             `json:"code,omitempty"`
	Settings       *domain.Settings   `json:"settings,omitempty"`
	BlockedDomains []domain.BlockRule `json:"blockedDomains,omitempty"`
	Limit          int                `json:"limit,omitempty"`
}

// Response is the single answer to a Request.
type Response struct {
	Success        bool                    `json:"success"`
	Error          string                  `json:"error,omitempty"`
	Settings       *domain.Settings        `json:"settings,omitempty"`
	BlockedDomains []domain.BlockRule      `json:"blockedDomains,omitzero"` // empty lists are sent as []
	UsageLogs      []domain.UsageLogEntry  `json:"usageLogs,omitzero"`
	Status         domain.PermissionStatus `json:"status,omitempty"`
	ExpiresAt      *time.Time              `json:"expiresAt,omitempty"`
	CooldownUntil  *time.Time              `json:"cooldownUntil,omitempty"`
	Count          *int                    `json:"count,omitempty"`
	LastAttempt    *time.Time              `json:"lastAttempt,omitempty"`
	Stats          *ledger.Summary         `json:"stats,omitempty"`
	Decision       *DecisionView           `json:"decision,omitempty"`
}

// DecisionView is the wire form of a policy decision.
type DecisionView struct {
	Blocked       bool               `json:"blocked"`
	Reason        domain.BlockReason `json:"reason,omitempty"`
	Domain        string             `json:"domain,omitempty"`
	CooldownUntil *time.Time         `json:"cooldownUntil,omitempty"`
}

type handlerFunc func(ctx context.Context, req Request) (Response, error)

// Service dispatches requests to the policy engine, ledger and counter.
type Service struct {
	state    *storage.State
	engine   *policy.Engine
	ledger   *ledger.Ledger
	counter  *attempts.Counter
	clock    domain.Clock
	logger   *zap.Logger
	metrics  *metrics.Metrics
	handlers map[string]handlerFunc
}

// NewService creates a dispatcher. m may be nil.
func NewService(
	state *storage.State,
	engine *policy.Engine,
	l *ledger.Ledger,
	counter *attempts.Counter,
	clock domain.Clock,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Service {
	s := &Service{
		state:   state,
		engine:  engine,
		ledger:  l,
		counter: counter,
		clock:   clock,
		logger:  logger,
		metrics: m,
	}
	s.handlers = map[string]handlerFunc{
		ActionSavePermission:        s.savePermission,
		ActionCheckEmergencyCode:    s.checkEmergencyCode,
		ActionGetSettings:           s.getSettings,
		ActionUpdateSettings:        s.updateSettings,
		ActionGetBlockedDomains:     s.getBlockedDomains,
		ActionUpdateBlockedDomains:  s.updateBlockedDomains,
		ActionGetUsageLogs:          s.getUsageLogs,
		ActionCheckPermissionStatus: s.checkPermissionStatus,
		ActionRecordAccessAttempt:   s.recordAccessAttempt,
		ActionGetAccessAttempts:     s.getAccessAttempts,
		ActionGetUsageStats:         s.getUsageStats,
		ActionEvaluateURL:           s.evaluateURL,
	}
	return s
}

// Dispatch answers req. It always returns exactly one response; handler
// errors and panics become unsuccessful responses.
func (s *Service) Dispatch(ctx context.Context, req Request) (resp Response) {
	handler, ok := s.handlers[req.Action]
	if !ok {
		s.metrics.Request("unknown", "error")
		s.logger.Debug("unknown action", zap.String("action", req.Action))
		return Response{Error: fmt.Sprintf("unknown action %q", req.Action)}
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("request handler panicked",
				zap.String("action", req.Action),
				zap.Any("panic", r),
				zap.Stack("stack"))
			s.metrics.Request(req.Action, "panic")
			resp = Response{Error: MsgInternal}
		}
	}()

	resp, err := handler(ctx, req)
	if err != nil {
		s.metrics.Request(req.Action, "error")
		s.logFailure(req.Action, err)
		return Response{Error: userMessage(err)}
	}
	s.metrics.Request(req.Action, "ok")
	resp.Success = true
	return resp
}

// Actions lists the supported action names.
func (s *Service) Actions() []string {
	out := make([]string, 0, len(s.handlers))
	for name := range s.handlers {
		out = append(out, name)
	}
	return out
}

func (s *Service) logFailure(action string, err error) {
	switch {
	case errors.Is(err, domain.ErrStorage):
		s.logger.Error("request failed", zap.String("action", action), zap.Error(err))
	case errors.Is(err, domain.ErrInvalidCode):
		// already logged by the engine
	default:
		s.logger.Info("request rejected", zap.String("action", action), zap.Error(err))
	}
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrStorage):
		return MsgStorageUnavailable
	case errors.Is(err, domain.ErrInvalidCode):
		return MsgInvalidCode
	default:
		return err.Error()
	}
}
