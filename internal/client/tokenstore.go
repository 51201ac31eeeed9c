package client

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/thereayou/abstrio/pkg/wallet"
)

// TokenStore persists one session token per wallet address.
type TokenStore interface {
	// Get returns "" when no token is cached.
	Get(ctx context.Context, address string) (string, error)
	Set(ctx context.Context, address, token string) error
	Delete(ctx context.Context, address string) error
}

const tokenKeyPrefix = "session_token:"

// SQLiteTokenStore keeps tokens in the metadata table of a local sqlite file.
type SQLiteTokenStore struct {
	db *sql.DB
}

// OpenSQLiteTokenStore opens dsn (a file path or ":memory:") and creates the
// metadata table if needed.
func OpenSQLiteTokenStore(ctx context.Context, dsn string) (*SQLiteTokenStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open token store: %w", err)
	}
	// один коннект: иначе :memory: у каждого свой
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS metadata (
  key   TEXT PRIMARY KEY,
  value BLOB NOT NULL
);`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init token store: %w", err)
	}
	return &SQLiteTokenStore{db: db}, nil
}

func (s *SQLiteTokenStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteTokenStore) Get(ctx context.Context, address string) (string, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, tokenKey(address)).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get token for %s: %w", address, err)
	}
	return string(value), nil
}

func (s *SQLiteTokenStore) Set(ctx context.Context, address, token string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, tokenKey(address), []byte(token))
	if err != nil {
		return fmt.Errorf("failed to set token for %s: %w", address, err)
	}
	return nil
}

func (s *SQLiteTokenStore) Delete(ctx context.Context, address string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM metadata WHERE key = ?`, tokenKey(address))
	if err != nil {
		return fmt.Errorf("failed to delete token for %s: %w", address, err)
	}
	return nil
}

func tokenKey(address string) string {
	return tokenKeyPrefix + wallet.NormalizeAddress(address)
}

// MemoryTokenStore is a TokenStore that lives as long as the process.
type MemoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]string
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[string]string)}
}

func (m *MemoryTokenStore) Get(ctx context.Context, address string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[tokenKey(address)], nil
}

func (m *MemoryTokenStore) Set(ctx context.Context, address, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[tokenKey(address)] = token
	return nil
}

func (m *MemoryTokenStore) Delete(ctx context.Context, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tokens, tokenKey(address))
	return nil
}
