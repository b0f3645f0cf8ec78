package storage

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"listing_poster/models"
)

// SQLiteStore is the local operational store: the operator command queue and
// a mirror of recent run outcomes for quick inspection without hitting
// Postgres.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS commands (
		id INTEGER PRIMARY KEY,
		command TEXT,
		params JSON,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		processed_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS run_mirror (
		id INTEGER PRIMARY KEY,
		pg_run_id INTEGER,
		kind TEXT,
		recorded_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		items_found INTEGER,
		items_processed INTEGER,
		items_failed INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_commands_pending ON commands(processed_at) WHERE processed_at IS NULL;
	CREATE INDEX IF NOT EXISTS idx_run_mirror_kind ON run_mirror(kind, recorded_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// EnqueueCommand queues an operator command for the daemon's poll loop.
func (s *SQLiteStore) EnqueueCommand(cmd models.CommandType, params []byte) error {
	_, err := s.db.Exec(`INSERT INTO commands (command, params) VALUES (?, ?)`, cmd, params)
	return err
}

func (s *SQLiteStore) GetPendingCommands() ([]models.Command, error) {
	rows, err := s.db.Query(`
		SELECT id, command, COALESCE(params, '{}'), created_at
		FROM commands WHERE processed_at IS NULL ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cmds []models.Command
	for rows.Next() {
		var c models.Command
		if err := rows.Scan(&c.ID, &c.Command, &c.Params, &c.CreatedAt); err != nil {
			return nil, err
		}
		cmds = append(cmds, c)
	}
	return cmds, rows.Err()
}

func (s *SQLiteStore) MarkCommandProcessed(id int64) error {
	_, err := s.db.Exec(`UPDATE commands SET processed_at = ? WHERE id = ?`, time.Now(), id)
	return err
}

// MirrorRun records a completed run's outcome locally, keyed by the
// Postgres run ID. The Postgres row is the durable record; this mirror just
// lets operators inspect recent activity without a Postgres session.
func (s *SQLiteStore) MirrorRun(pgRunID int64, kind models.RunKind, found, processed, failed int) error {
	_, err := s.db.Exec(`
		INSERT INTO run_mirror (pg_run_id, kind, items_found, items_processed, items_failed)
		VALUES (?, ?, ?, ?, ?)`,
		pgRunID, kind, found, processed, failed,
	)
	return err
}

// GetLastRunTime returns when a batch of the given kind last completed.
func (s *SQLiteStore) GetLastRunTime(kind models.RunKind) (time.Time, error) {
	var t sql.NullTime
	err := s.db.QueryRow(`SELECT MAX(recorded_at) FROM run_mirror WHERE kind = ?`, kind).Scan(&t)
	if err != nil {
		return time.Time{}, err
	}
	if !t.Valid {
		return time.Time{}, nil
	}
	return t.Time, nil
}
