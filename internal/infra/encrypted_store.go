package infra

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlcipher "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/eliteGoblin/bidbot/internal/domain"
)

// Ensure sqlcipher driver is registered.
var _ = sqlcipher.ErrBusy

const (
	storeDBName   = "bidbot.db"
	schemaVersion = "2"
)

// Secret names kept in the store.
const (
	SecretAgentPassword = "agent_password"
	SecretTelegramToken = "telegram_bot_token"
)

// ErrSecretNotFound is returned when a secret has never been set.
var ErrSecretNotFound = errors.New("secret not found")

// EncryptedStore keeps outcome history and secrets in a SQLCipher database.
type EncryptedStore struct {
	db     *sql.DB
	dbPath string
}

// NewEncryptedStore opens (or creates) the encrypted store in dataDir.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewEncryptedStore(dataDir string, key []byte) (*EncryptedStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, storeDBName)
	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, hex.EncodeToString(key))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}
	// One writer; sqlite serialises anyway and this avoids SQLITE_BUSY between pooled conns.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	store := &EncryptedStore{db: db, dbPath: dbPath}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return store, nil
}

func (s *EncryptedStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS bid_outcomes (
		session_id TEXT PRIMARY KEY,
		recorded_at INTEGER NOT NULL,
		success INTEGER NOT NULL,
		reaction_time_ms REAL NOT NULL,
		detection_lag_ms REAL NOT NULL DEFAULT 0,
		error_code TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		partial INTEGER NOT NULL DEFAULT 0,
		transport TEXT NOT NULL DEFAULT '',
		detected_by TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		price_limit INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS secrets (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	prior, err := s.GetMeta("schema_version")
	if err != nil {
		return err
	}
	if prior == "1" {
		if _, err := s.db.Exec(`ALTER TABLE bid_outcomes ADD COLUMN detection_lag_ms REAL NOT NULL DEFAULT 0`); err != nil {
			return fmt.Errorf("failed to add detection_lag_ms: %w", err)
		}
	}
	return s.SetMeta("schema_version", schemaVersion)
}

// Path returns the database file path.
func (s *EncryptedStore) Path() string {
	return s.dbPath
}

// --- domain.ResultLog / domain.OutcomeHistory ---

// Append records an outcome. Re-recording a session replaces the row.
func (s *EncryptedStore) Append(o domain.BidOutcome) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO bid_outcomes
			(session_id, recorded_at, success, reaction_time_ms, detection_lag_ms, error_code, message,
			 partial, transport, detected_by, url, price_limit)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.SessionID, o.Timestamp.UnixNano(), o.Success, o.ReactionTimeMs, o.DetectionLagMs, string(o.Error), o.Message,
		o.Partial, o.Transport, o.DetectedBy, o.URL, o.PriceLimit,
	)
	if err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}
	return s.SetMeta("last_session_id", o.SessionID)
}

// List returns recorded outcomes, oldest first.
func (s *EncryptedStore) List() ([]domain.BidOutcome, error) {
	rows, err := s.db.Query(`
		SELECT session_id, recorded_at, success, reaction_time_ms, detection_lag_ms, error_code, message,
		       partial, transport, detected_by, url, price_limit
		FROM bid_outcomes ORDER BY recorded_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []domain.BidOutcome
	for rows.Next() {
		var o domain.BidOutcome
		var recordedAt int64
		var code string
		if err := rows.Scan(&o.SessionID, &recordedAt, &o.Success, &o.ReactionTimeMs, &o.DetectionLagMs, &code, &o.Message,
			&o.Partial, &o.Transport, &o.DetectedBy, &o.URL, &o.PriceLimit); err != nil {
			return nil, err
		}
		o.Timestamp = time.Unix(0, recordedAt).UTC()
		o.Error = domain.ErrorCode(code)
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

// --- domain.SecretStore ---

// GetSecret retrieves a secret by key.
func (s *EncryptedStore) GetSecret(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM secrets WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %q", ErrSecretNotFound, key)
	}
	return value, err
}

// SetSecret stores a secret.
func (s *EncryptedStore) SetSecret(key, value string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO secrets (key, value, updated_at) VALUES (?, ?, ?)`,
		key, value, time.Now().Unix())
	return err
}

// SecretKeys lists the names of stored secrets (never the values).
func (s *EncryptedStore) SecretKeys() ([]string, error) {
	rows, err := s.db.Query(`SELECT key FROM secrets ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// --- meta ---

func (s *EncryptedStore) SetMeta(key, value string) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`, key, value)
	return err
}

// GetMeta returns the meta value, or "" if unset.
func (s *EncryptedStore) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// Close releases the database connection.
func (s *EncryptedStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SecretOrDefault returns the stored secret, or fallback when unset or the store is nil.
func SecretOrDefault(store domain.SecretStore, key, fallback string) string {
	if store == nil {
		return fallback
	}
	value, err := store.GetSecret(key)
	if err != nil || value == "" {
		return fallback
	}
	return value
}

// Ensure EncryptedStore implements the persistence ports.
var (
	_ domain.ResultLog      = (*EncryptedStore)(nil)
	_ domain.OutcomeHistory = (*EncryptedStore)(nil)
	_ domain.SecretStore    = (*EncryptedStore)(nil)
)
