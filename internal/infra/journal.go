package infra

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Ensure sqlcipher driver is registered.
	_ "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/eliteGoblin/focusd/supervisor/internal/domain"
)

// maxJournalEvents bounds the events table; older rows are pruned on insert.
const maxJournalEvents = 5000

// EncryptedJournal implements domain.Journal and domain.DaemonRegistry
// using a SQLCipher encrypted SQLite database.
type EncryptedJournal struct {
	db     *sql.DB
	dbPath string
}

// NewEncryptedJournal opens (or creates) the journal at dbPath.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewEncryptedJournal(dbPath string, key []byte) (*EncryptedJournal, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096&_busy_timeout=5000",
		dbPath, hex.EncodeToString(key))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}

	// A wrong key only surfaces on first read.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	j := &EncryptedJournal{db: db, dbPath: dbPath}
	if err := j.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return j, nil
}

// OpenJournal ensures a key exists in provider and opens the journal with it.
func OpenJournal(dbPath string, provider domain.KeyProvider) (*EncryptedJournal, error) {
	key, err := EnsureKey(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to get journal key: %w", err)
	}
	return NewEncryptedJournal(dbPath, key)
}

func (j *EncryptedJournal) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS daemon_state (
		role TEXT PRIMARY KEY,
		pid INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		last_heartbeat INTEGER NOT NULL,
		app_version TEXT DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		at INTEGER NOT NULL,
		kind TEXT NOT NULL,
		item TEXT NOT NULL DEFAULT '',
		detail TEXT NOT NULL DEFAULT ''
	);
	`
	_, err := j.db.Exec(schema)
	return err
}

// --- domain.DaemonRegistry implementation ---

// Register saves the daemon's PID and version.
func (j *EncryptedJournal) Register(daemon domain.Daemon) error {
	now := time.Now().Unix()
	started := daemon.StartedAt.Unix()
	if daemon.StartedAt.IsZero() {
		started = now
	}
	_, err := j.db.Exec(`
		INSERT OR REPLACE INTO daemon_state (role, pid, started_at, last_heartbeat, app_version)
		VALUES (?, ?, ?, ?, ?)`,
		string(daemon.Role), daemon.PID, started, now, daemon.AppVersion,
	)
	return err
}

// UpdateHeartbeat updates the timestamp shown by the status command.
func (j *EncryptedJournal) UpdateHeartbeat(role domain.DaemonRole) error {
	result, err := j.db.Exec(`UPDATE daemon_state SET last_heartbeat = ? WHERE role = ?`,
		time.Now().Unix(), string(role))
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("daemon %s not registered", role)
	}
	return nil
}

// GetAll returns every registered daemon ordered by role.
func (j *EncryptedJournal) GetAll() ([]domain.DaemonState, error) {
	rows, err := j.db.Query(`SELECT role, pid, last_heartbeat, app_version FROM daemon_state ORDER BY role`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DaemonState
	for rows.Next() {
		var (
			role      string
			st        domain.DaemonState
			heartbeat int64
		)
		if err := rows.Scan(&role, &st.PID, &heartbeat, &st.AppVersion); err != nil {
			return nil, err
		}
		st.Role = domain.DaemonRole(role)
		st.LastHeartbeat = time.Unix(heartbeat, 0)
		out = append(out, st)
	}
	return out, rows.Err()
}

// --- domain.Journal implementation ---

// Record appends an event.
func (j *EncryptedJournal) Record(ev domain.Event) error {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	if _, err := j.db.Exec(`INSERT INTO events (at, kind, item, detail) VALUES (?, ?, ?, ?)`,
		at.UnixMilli(), string(ev.Kind), ev.Item, ev.Detail); err != nil {
		return err
	}
	_, err := j.db.Exec(`DELETE FROM events WHERE id <= (SELECT MAX(id) FROM events) - ?`, maxJournalEvents)
	return err
}

// Recent returns up to limit events, newest first.
func (j *EncryptedJournal) Recent(limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.Query(`SELECT at, kind, item, detail FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var (
			at   int64
			kind string
			ev   domain.Event
		)
		if err := rows.Scan(&at, &kind, &ev.Item, &ev.Detail); err != nil {
			return nil, err
		}
		ev.At = time.UnixMilli(at)
		ev.Kind = domain.EventKind(kind)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Path returns the database file path.
func (j *EncryptedJournal) Path() string {
	return j.dbPath
}

// Close releases the database connection.
func (j *EncryptedJournal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Ensure EncryptedJournal implements both interfaces.
var _ domain.DaemonRegistry = (*EncryptedJournal)(nil)
var _ domain.Journal = (*EncryptedJournal)(nil)
