// Package storage is the typed repository over the key-value store.
// Every mutation of a stored key is a full read-modify-write held under that
// key's lock, so concurrent handlers cannot lose each other's updates.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
)

// Snapshot is the configuration a policy evaluation reads in one go.
type Snapshot struct {
	Settings    domain.Settings
	Rules       []domain.BlockRule
	Permissions map[string]domain.Permission
}

// State provides typed access to the persisted keys.
type State struct {
	kv    domain.KVStore
	locks map[string]*sync.Mutex
}

// NewState wraps a key-value store.
func NewState(kv domain.KVStore) *State {
	locks := make(map[string]*sync.Mutex)
	for _, k := range []string{
		domain.KeySettings,
		domain.KeyBlockedDomains,
		domain.KeyPermissions,
		domain.KeyUsageLogs,
		domain.KeyAccessAttempts,
	} {
		locks[k] = &sync.Mutex{}
	}
	return &State{kv: kv, locks: locks}
}

// Settings returns the stored settings, or zero settings if none are stored.
func (s *State) Settings(ctx context.Context) (domain.Settings, error) {
	var settings domain.Settings
	_, err := s.load(ctx, domain.KeySettings, &settings)
	return settings, err
}

// SaveSettings replaces the stored settings.
func (s *State) SaveSettings(ctx context.Context, settings domain.Settings) error {
	return s.replace(ctx, domain.KeySettings, settings)
}

// UpdateSettings runs fn on the stored settings and stores the result.
func (s *State) UpdateSettings(ctx context.Context, fn func(domain.Settings) (domain.Settings, error)) error {
	return withKey(s, ctx, domain.KeySettings, fn)
}

// Rules returns the blocked-domain list in stored order.
func (s *State) Rules(ctx context.Context) ([]domain.BlockRule, error) {
	var rules []domain.BlockRule
	_, err := s.load(ctx, domain.KeyBlockedDomains, &rules)
	return rules, err
}

// SaveRules replaces the blocked-domain list.
func (s *State) SaveRules(ctx context.Context, rules []domain.BlockRule) error {
	if rules == nil {
		rules = []domain.BlockRule{}
	}
	return s.replace(ctx, domain.KeyBlockedDomains, rules)
}

// UpdateRules runs fn on the current rule list and stores the result.
func (s *State) UpdateRules(ctx context.Context, fn func([]domain.BlockRule) ([]domain.BlockRule, error)) error {
	return withKey(s, ctx, domain.KeyBlockedDomains, fn)
}

// Permissions returns every stored permission keyed by domain.
func (s *State) Permissions(ctx context.Context) (map[string]domain.Permission, error) {
	perms := make(map[string]domain.Permission)
	_, err := s.load(ctx, domain.KeyPermissions, &perms)
	if perms == nil {
		perms = make(map[string]domain.Permission)
	}
	return perms, err
}

// Permission returns the permission for one domain.
func (s *State) Permission(ctx context.Context, d string) (domain.Permission, bool, error) {
	perms, err := s.Permissions(ctx)
	if err != nil {
		return domain.Permission{}, false, err
	}
	p, ok := perms[d]
	return p, ok, nil
}

// UpdatePermissions runs fn on the permission map and stores the result.
func (s *State) UpdatePermissions(ctx context.Context, fn func(map[string]domain.Permission) error) error {
	return withKey(s, ctx, domain.KeyPermissions, func(perms map[string]domain.Permission) (map[string]domain.Permission, error) {
		if perms == nil {
			perms = make(map[string]domain.Permission)
		}
		return perms, fn(perms)
	})
}

// UsageLogs returns the stored ledger in insertion order.
func (s *State) UsageLogs(ctx context.Context) ([]domain.UsageLogEntry, error) {
	var logs []domain.UsageLogEntry
	_, err := s.load(ctx, domain.KeyUsageLogs, &logs)
	return logs, err
}

// UpdateUsageLogs runs fn on the ledger and stores the result.
func (s *State) UpdateUsageLogs(ctx context.Context, fn func([]domain.UsageLogEntry) ([]domain.UsageLogEntry, error)) error {
	return withKey(s, ctx, domain.KeyUsageLogs, fn)
}

// Attempts returns the attempt records keyed by domain.
func (s *State) Attempts(ctx context.Context) (map[string]domain.AttemptRecord, error) {
	attempts := make(map[string]domain.AttemptRecord)
	_, err := s.load(ctx, domain.KeyAccessAttempts, &attempts)
	if attempts == nil {
		attempts = make(map[string]domain.AttemptRecord)
	}
	return attempts, err
}

// UpdateAttempts runs fn on the attempt records and stores the result.
func (s *State) UpdateAttempts(ctx context.Context, fn func(map[string]domain.AttemptRecord) error) error {
	return withKey(s, ctx, domain.KeyAccessAttempts, func(a map[string]domain.AttemptRecord) (map[string]domain.AttemptRecord, error) {
		if a == nil {
			a = make(map[string]domain.AttemptRecord)
		}
		return a, fn(a)
	})
}

// Snapshot reads settings, rules and permissions with a single store read.
func (s *State) Snapshot(ctx context.Context) (Snapshot, error) {
	raw, err := s.kv.Get(ctx, domain.KeySettings, domain.KeyBlockedDomains, domain.KeyPermissions)
	if err != nil {
		return Snapshot{}, storageErr("read snapshot", err)
	}

	snap := Snapshot{Permissions: make(map[string]domain.Permission)}
	if err := decode(raw, domain.KeySettings, &snap.Settings); err != nil {
		return Snapshot{}, err
	}
	if err := decode(raw, domain.KeyBlockedDomains, &snap.Rules); err != nil {
		return Snapshot{}, err
	}
	if err := decode(raw, domain.KeyPermissions, &snap.Permissions); err != nil {
		return Snapshot{}, err
	}
	if snap.Permissions == nil {
		snap.Permissions = make(map[string]domain.Permission)
	}
	return snap, nil
}

// load decodes key into dst. It reports whether the key was present.
func (s *State) load(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		return false, storageErr("read "+key, err)
	}
	if _, ok := raw[key]; !ok {
		return false, nil
	}
	return true, decode(raw, key, dst)
}

// replace stores v under key, holding the key's lock.
func (s *State) replace(ctx context.Context, key string, v any) error {
	mu := s.locks[key]
	mu.Lock()
	defer mu.Unlock()
	return s.store(ctx, key, v)
}

func (s *State) store(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := s.kv.Set(ctx, map[string][]byte{key: data}); err != nil {
		return storageErr("write "+key, err)
	}
	return nil
}

// withKey is the read-modify-write primitive. If fn fails nothing is written.
func withKey[T any](s *State, ctx context.Context, key string, fn func(T) (T, error)) error {
	mu := s.locks[key]
	mu.Lock()
	defer mu.Unlock()

	var current T
	if _, err := s.load(ctx, key, &current); err != nil {
		return err
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	return s.store(ctx, key, next)
}

func decode(raw map[string][]byte, key string, dst any) error {
	data, ok := raw[key]
	if !ok || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return storageErr("decode "+key, err)
	}
	return nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrStorage, op, err)
}
