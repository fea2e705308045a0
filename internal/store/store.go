// Package store caches page calibrations in a SQLite database.
//
// Entries are keyed by the SHA-256 of the page file content and by a hash of
// the parameters that shaped the estimation (binarization level, thresholds,
// pinned values). Insertion is idempotent: the first calibration stored for a
// key wins and later writes are ignored.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	_ "modernc.org/sqlite"

	"github.com/ironsheep/sheet-scale-mcp/internal/scale"
)

const schema = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;

CREATE TABLE IF NOT EXISTS calibrations (
    page_hash TEXT NOT NULL,
    params_hash TEXT NOT NULL,
    run_id TEXT NOT NULL,
    page TEXT NOT NULL,
    calibration TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (page_hash, params_hash)
);

CREATE INDEX IF NOT EXISTS idx_calibrations_run ON calibrations(run_id);
`

// Store is a calibration cache backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Entry is one cached calibration.
type Entry struct {
	PageHash    string
	ParamsHash  string
	RunID       string
	Page        string
	Calibration *scale.Calibration
}

// Open opens or creates the cache database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer; batch workers share this connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the calibration cached for the key, if any.
func (s *Store) Get(ctx context.Context, pageHash, paramsHash string) (*scale.Calibration, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		"SELECT calibration FROM calibrations WHERE page_hash = ? AND params_hash = ?",
		pageHash, paramsHash).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to query calibration: %w", err)
	}

	var cal scale.Calibration
	if err := json.Unmarshal([]byte(data), &cal); err != nil {
		return nil, false, fmt.Errorf("corrupt calibration for %s: %w", pageHash, err)
	}
	return &cal, true, nil
}

// Put stores an entry unless its key is already present.
// It reports whether a row was inserted.
func (s *Store) Put(ctx context.Context, e Entry) (bool, error) {
	if e.Calibration == nil {
		return false, errors.New("entry has no calibration")
	}
	data, err := json.Marshal(e.Calibration)
	if err != nil {
		return false, fmt.Errorf("failed to encode calibration: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO calibrations (page_hash, params_hash, run_id, page, calibration)
		VALUES (?, ?, ?, ?, ?)`,
		e.PageHash, e.ParamsHash, e.RunID, e.Page, string(data))
	if err != nil {
		return false, fmt.Errorf("failed to insert calibration: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// CountRun returns the number of entries inserted by a batch run.
func (s *Store) CountRun(ctx context.Context, runID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM calibrations WHERE run_id = ?", runID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count run entries: %w", err)
	}
	return n, nil
}

// Fingerprint returns the hex SHA-256 of the file content.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open page: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash page: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ParamsHash returns the hex SHA-256 of the estimation parameters.
func ParamsHash(level int, cfg scale.Config, pinned scale.Pinned) string {
	data, _ := json.Marshal(struct {
		Level  int          `json:"level"`
		Config scale.Config `json:"config"`
		Pinned scale.Pinned `json:"pinned"`
	}{level, cfg, pinned})
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
