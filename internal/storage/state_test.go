package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
)

func TestState_EmptyStoreReturnsZeroValues(t *testing.T) {
	ctx := context.Background()
	s := NewState(NewMemoryStore())

	settings, err := s.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Settings{}, settings)

	rules, err := s.Rules(ctx)
	require.NoError(t, err)
	assert.Empty(t, rules)

	perms, err := s.Permissions(ctx)
	require.NoError(t, err)
	assert.NotNil(t, perms)
	assert.Empty(t, perms)

	attempts, err := s.Attempts(ctx)
	require.NoError(t, err)
	assert.NotNil(t, attempts)
}

func TestState_PermissionsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewState(NewMemoryStore())
	t0 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	err := s.UpdatePermissions(ctx, func(p map[string]domain.Permission) error {
		p["facebook.com"] = domain.Permission{ExpiresAt: t0.Add(5 * time.Minute), CooldownUntil: t0.Add(35 * time.Minute)}
		return nil
	})
	require.NoError(t, err)

	p, ok, err := s.Permission(ctx, "facebook.com")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, p.ExpiresAt.Equal(t0.Add(5*time.Minute)))
	assert.True(t, p.CooldownUntil.Equal(t0.Add(35*time.Minute)))

	_, ok, err = s.Permission(ctx, "other.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestState_FailedUpdateWritesNothing(t *testing.T) {
	ctx := context.Background()
	s := NewState(NewMemoryStore())
	boom := errors.New("boom")

	err := s.UpdatePermissions(ctx, func(p map[string]domain.Permission) error {
		p["facebook.com"] = domain.Permission{ExpiresAt: time.Now()}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	perms, err := s.Permissions(ctx)
	require.NoError(t, err)
	assert.Empty(t, perms)
}

func TestState_StoreErrorsWrapErrStorage(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryStore()
	s := NewState(kv)

	kv.GetErr = errors.New("disk gone")
	_, err := s.Settings(ctx)
	assert.ErrorIs(t, err, domain.ErrStorage)

	kv.GetErr = nil
	kv.SetErr = errors.New("read-only")
	err = s.SaveRules(ctx, DefaultRules())
	assert.ErrorIs(t, err, domain.ErrStorage)
}

func TestState_CorruptValueIsStorageError(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryStore()
	require.NoError(t, kv.Set(ctx, map[string][]byte{domain.KeyBlockedDomains: []byte("{not json")}))

	_, err := NewState(kv).Rules(ctx)
	assert.ErrorIs(t, err, domain.ErrStorage)
}

func TestState_ConcurrentUpdatesAreNotLost(t *testing.T) {
	ctx := context.Background()
	s := NewState(NewMemoryStore())
	domains := []string{"a.com", "b.com", "c.com", "d.com", "e.com", "f.com", "g.com", "h.com"}

	var wg sync.WaitGroup
	for _, d := range domains {
		wg.Add(1)
		go func(d string) {
			defer wg.Done()
			err := s.UpdatePermissions(ctx, func(p map[string]domain.Permission) error {
				p[d] = domain.Permission{ExpiresAt: time.Now().Add(time.Minute)}
				return nil
			})
			assert.NoError(t, err)
		}(d)
	}
	wg.Wait()

	perms, err := s.Permissions(ctx)
	require.NoError(t, err)
	assert.Len(t, perms, len(domains))
}

func TestState_Snapshot(t *testing.T) {
	ctx := context.Background()
	s := NewState(NewMemoryStore())
	require.NoError(t, s.SaveSettings(ctx, domain.Settings{CooldownMinutes: 10}))
	require.NoError(t, s.SaveRules(ctx, []domain.BlockRule{{Pattern: "x.com", Enabled: true}}))

	snap, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, snap.Settings.CooldownMinutes)
	assert.Len(t, snap.Rules, 1)
	assert.NotNil(t, snap.Permissions)
}

func TestState_Bootstrap(t *testing.T) {
	ctx := context.Background()
	s := NewState(NewMemoryStore())

	wrote, err := s.Bootstrap(ctx)
	require.NoError(t, err)
	assert.True(t, wrote)

	settings, err := s.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultCooldownMinutes, settings.CooldownMinutes)
	assert.Equal(t, DefaultGrantMinutes, settings.DefaultMinutes)
	assert.Len(t, settings.EmergencyCode, emergencyCodeLength)

	rules, err := s.Rules(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultRules(), rules)

	// A second run keeps user edits.
	require.NoError(t, s.SaveRules(ctx, []domain.BlockRule{}))
	wrote, err = s.Bootstrap(ctx)
	require.NoError(t, err)
	assert.False(t, wrote)

	rules, err = s.Rules(ctx)
	require.NoError(t, err)
	assert.Empty(t, rules)

	again, err := s.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, settings.EmergencyCode, again.EmergencyCode)
}

func TestGenerateEmergencyCode(t *testing.T) {
	a, err := GenerateEmergencyCode()
	require.NoError(t, err)
	b, err := GenerateEmergencyCode()
	require.NoError(t, err)

	assert.Len(t, a, emergencyCodeLength)
	assert.NotEqual(t, a, b)
	for _, c := range a {
		assert.Contains(t, emergencyCodeAlphabet, string(c))
	}
}

func TestState_UpdateSettings(t *testing.T) {
	ctx := context.Background()
	s := NewState(NewMemoryStore())
	require.NoError(t, s.SaveSettings(ctx, domain.Settings{CooldownMinutes: 30, EmergencyCode: "ABC"}))

	err := s.UpdateSettings(ctx, func(cur domain.Settings) (domain.Settings, error) {
		cur.DefaultMinutes = 10
		return cur, nil
	})
	require.NoError(t, err)

	got, err := s.Settings(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Settings{CooldownMinutes: 30, DefaultMinutes: 10, EmergencyCode: "ABC"}, got)
}
