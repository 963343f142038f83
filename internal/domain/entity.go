// Package domain contains core business entities and interfaces.
// This is the innermost layer - no external dependencies.
package domain

import "time"

// Persisted key names in the key-value store.
const (
	KeySettings       = "settings"
	KeyBlockedDomains = "blockedDomains"
	KeyPermissions    = "permissions"
	KeyUsageLogs      = "usageLogs"
	KeyAccessAttempts = "accessAttempts"
)

// EmergencyJustification is the justification recorded for emergency-code grants.
const EmergencyJustification = "EMERGENCY OVERRIDE"

// BlockRule is one entry of the user's blocked-domain list.
// Pattern is either a bare hostname or "*.<suffix>".
type BlockRule struct {
	Pattern string `json:"pattern"`
	Enabled bool   `json:"enabled"`
}

// Permission is the grant state for one domain.
// A zero time means the field is unset.
type Permission struct {
	ExpiresAt     time.Time `json:"expiresAt"`
	CooldownUntil time.Time `json:"cooldownUntil"`
}

// UsageLogEntry records one granted session.
type UsageLogEntry struct {
	ID                   string    `json:"id"`
	Domain               string    `json:"domain"`
	Justification        string    `json:"justification"`
	GrantedAt            time.Time `json:"grantedAt"`
	Duration             int       `json:"duration"` // minutes
	ExpiresAt            time.Time `json:"expiresAt"`
	WasEmergencyOverride bool      `json:"wasEmergencyOverride"`
}

// AttemptRecord counts blocked access attempts for one domain on one calendar day.
type AttemptRecord struct {
	Count       int       `json:"count"`
	LastAttempt time.Time `json:"lastAttempt"`
	Date        string    `json:"date"`
}

// Settings is the global configuration edited by the user.
// Zero minutes mean the value was never configured.
type Settings struct {
	CooldownMinutes int    `json:"cooldownMinutes"`
	DefaultMinutes  int    `json:"defaultMinutes,omitempty"`
	EmergencyCode   string `json:"emergencyCode,omitempty"`
}

// BlockReason says why a navigation was blocked.
type BlockReason string

const (
	ReasonCooldown     BlockReason = "cooldown"
	ReasonNoPermission BlockReason = "no-permission"
)

// Decision is the outcome of evaluating a URL against the rules and permissions.
type Decision struct {
	Blocked       bool
	Reason        BlockReason
	CooldownUntil time.Time
	Domain        string
}

// Allowed returns the not-blocked decision.
func Allowed() Decision { return Decision{} }

// PermissionStatus is the user-facing state of a domain's permission.
type PermissionStatus string

const (
	StatusNoPermission PermissionStatus = "no-permission"
	StatusActive       PermissionStatus = "active"
	StatusCooldown     PermissionStatus = "cooldown"
	StatusExpired      PermissionStatus = "expired"
)

// PendingNavigation bridges a redirect-page hop to its final destination.
// Held in memory only.
type PendingNavigation struct {
	RedirectURL string
	Timestamp   time.Time
}

// NavigationEvent is reported by the host before a navigation commits.
type NavigationEvent struct {
	URL        string `json:"url"`
	TabID      int    `json:"tabId"`
	FrameID    int    `json:"frameId"`
	IsTopLevel bool   `json:"isTopLevel"`
}

// TopLevel reports whether the event targets the main frame.
func (e NavigationEvent) TopLevel() bool {
	return e.IsTopLevel || e.FrameID == 0
}

// NavigationAction tells the host what to do with a navigation.
type NavigationAction string

const (
	ActionProceed  NavigationAction = "proceed"
	ActionRedirect NavigationAction = "redirect"
)

// Verdict is the gate's answer to a navigation event.
type Verdict struct {
	Action      NavigationAction `json:"action"`
	RedirectURL string           `json:"redirectUrl,omitempty"`
}

// Tab is the last known state of a browser tab.
type Tab struct {
	ID  int    `json:"tabId"`
	URL string `json:"url"`
}

// TabCommand asks the host to move a tab to a new URL.
type TabCommand struct {
	TabID int    `json:"tabId"`
	URL   string `json:"url"`
}
