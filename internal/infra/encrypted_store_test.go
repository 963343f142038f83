package infra

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
	"github.com/eliteGoblin/focusd/site_mon/internal/storage"
)

// newTestStore creates an encrypted store in a temp directory for testing.
func newTestStore(t *testing.T) (*EncryptedStore, string, []byte) {
	t.Helper()
	dataDir := t.TempDir()
	key, err := GenerateKey()
	require.NoError(t, err)

	store, err := NewEncryptedStore(context.Background(), dataDir, key, zap.NewNop())
	require.NoError(t, err)

	t.Cleanup(func() { store.Close() })
	return store, dataDir, key
}

func TestEncryptedStore_GetSet(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(t)

	got, err := store.Get(ctx, "settings")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, store.Set(ctx, map[string][]byte{
		"settings":       []byte(`{"cooldownMinutes":30}`),
		"blockedDomains": []byte(`[]`),
	}))

	got, err = store.Get(ctx, "settings", "blockedDomains", "missing")
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{
		"settings":       []byte(`{"cooldownMinutes":30}`),
		"blockedDomains": []byte(`[]`),
	}, got)

	require.NoError(t, store.Set(ctx, map[string][]byte{"settings": []byte(`{}`)}))
	got, err = store.Get(ctx, "settings")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{}`), got["settings"])
}

func TestEncryptedStore_GetNoKeys(t *testing.T) {
	store, _, _ := newTestStore(t)
	got, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestEncryptedStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	store, dataDir, key := newTestStore(t)
	require.NoError(t, store.Set(ctx, map[string][]byte{"permissions": []byte(`{"a.com":{}}`)}))
	require.NoError(t, store.Close())

	reopened, err := NewEncryptedStore(ctx, dataDir, key, zap.NewNop())
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "permissions")
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"a.com":{}}`), got["permissions"])
}

func TestEncryptedStore_RejectsWrongKey(t *testing.T) {
	ctx := context.Background()
	store, dataDir, _ := newTestStore(t)
	require.NoError(t, store.Set(ctx, map[string][]byte{"settings": []byte(`{}`)}))
	require.NoError(t, store.Close())

	wrong, err := GenerateKey()
	require.NoError(t, err)
	_, err = NewEncryptedStore(ctx, dataDir, wrong, zap.NewNop())
	assert.Error(t, err)
}

func TestEncryptedStore_FileIsNotPlaintext(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(t)
	require.NoError(t, store.Set(ctx, map[string][]byte{"settings": []byte(`{"emergencyCode":"PLAINTEXTMARKER"}`)}))
	require.NoError(t, store.Close())

	raw, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "PLAINTEXTMARKER")
	assert.NotContains(t, string(raw), "SQLite format 3")
}

func TestOpenEncryptedStore_GeneratesKey(t *testing.T) {
	dataDir := t.TempDir()
	provider := NewFileKeyProvider(dataDir)

	store, err := OpenEncryptedStore(context.Background(), dataDir, provider, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()

	assert.True(t, provider.KeyExists())
	assert.Equal(t, filepath.Join(dataDir, stateDBName), store.Path())
}

func TestEncryptedStore_BacksStateRepository(t *testing.T) {
	ctx := context.Background()
	store, _, _ := newTestStore(t)
	state := storage.NewState(store)

	wrote, err := state.Bootstrap(ctx)
	require.NoError(t, err)
	assert.True(t, wrote)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := state.UpdateRules(ctx, func(rules []domain.BlockRule) ([]domain.BlockRule, error) {
				return append(rules, domain.BlockRule{Pattern: "x.com", Enabled: true}), nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rules, err := state.Rules(ctx)
	require.NoError(t, err)
	assert.Len(t, rules, 6)
}
