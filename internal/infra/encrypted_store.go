package infra

import (
	"context"
	"database/sql"
	"embed"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	sqlcipher "github.com/mutecomm/go-sqlcipher/v4"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/site_mon/internal/domain"
)

// Ensure sqlcipher driver is registered.
var _ = sqlcipher.ErrBusy

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	stateDBName   = "state.db"
	migrationsDir = "migrations"
)

// goose keeps its dialect, base FS and logger in package globals.
var gooseMu sync.Mutex

// EncryptedStore implements domain.KVStore on a SQLCipher encrypted SQLite
// database. Each key is one row; values are replaced whole.
type EncryptedStore struct {
	db     *sql.DB
	dbPath string
}

// OpenEncryptedStore opens (or creates) the state database in dataDir using
// the key from provider, generating one on first use.
func OpenEncryptedStore(ctx context.Context, dataDir string, provider domain.KeyProvider, logger *zap.Logger) (*EncryptedStore, error) {
	key, err := EnsureKey(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to load encryption key: %w", err)
	}
	return NewEncryptedStore(ctx, dataDir, key, logger)
}

// NewEncryptedStore opens (or creates) an encrypted state database and applies
// pending migrations. The key is used as the raw SQLCipher key.
func NewEncryptedStore(ctx context.Context, dataDir string, key []byte, logger *zap.Logger) (*EncryptedStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, stateDBName)
	keyHex := hex.EncodeToString(key)

	// Open with SQLCipher key as DSN parameter
	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, keyHex)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}
	// One writer keeps SQLite from returning SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	if err := migrate(ctx, db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate state database (wrong key?): %w", err)
	}

	return &EncryptedStore{db: db, dbPath: dbPath}, nil
}

func migrate(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(gooseLogger{logger: logger})
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, migrationsDir)
}

// Get returns the stored values for keys.
func (s *EncryptedStore) Get(ctx context.Context, keys ...string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM kv WHERE key IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query state: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k string
		var v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("failed to scan state row: %w", err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// Set writes all values in one transaction.
func (s *EncryptedStore) Set(ctx context.Context, values map[string][]byte) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().Unix()
	for k, v := range values {
		_, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO kv (key, value, updated_at) VALUES (?, ?, ?)`,
			k, v, now)
		if err != nil {
			return fmt.Errorf("failed to write %s: %w", k, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit state: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (s *EncryptedStore) Path() string {
	return s.dbPath
}

// Close releases the database connection.
func (s *EncryptedStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// gooseLogger routes migration output to zap.
type gooseLogger struct {
	logger *zap.Logger
}

func (l gooseLogger) Printf(format string, v ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)), zap.String("component", "migrations"))
}

func (l gooseLogger) Fatalf(format string, v ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, v...)), zap.String("component", "migrations"))
}

// Ensure EncryptedStore implements domain.KVStore.
var _ domain.KVStore = (*EncryptedStore)(nil)
