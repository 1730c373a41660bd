package storage

import (
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	lastFetchKey  = "last_fetch_date"
	lastStatusKey = "last_fetch_status"
)

// Store wraps a SQLite database holding fetch state, run history, and the
// notice cache.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used by
// tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "tendersync.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		// Check if already applied.
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Fetch state ---

// LastFetchDate returns the watermark a fetch should resume from.
// ErrNotFound means no run has ever completed.
func (s *Store) LastFetchDate() (time.Time, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM fetch_state WHERE key = ?", lastFetchKey).Scan(&value)
	if err == sql.ErrNoRows {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %s: %w", lastFetchKey, err)
	}
	return t, nil
}

// SetLastFetchDate advances the fetch watermark. Callers must only do this
// after a run that saw no fetch errors.
func (s *Store) SetLastFetchDate(t time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO fetch_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		lastFetchKey, t.UTC().Format(time.RFC3339), time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// LastFetchStatus returns how the last completed run ended, or ErrNotFound
// when no run has ever completed.
func (s *Store) LastFetchStatus() (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM fetch_state WHERE key = ?", lastStatusKey).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// SetLastFetchStatus records the outcome of the last completed run. Like the
// watermark, it is only written after a run with no fetch errors.
func (s *Store) SetLastFetchStatus(status string) error {
	_, err := s.db.Exec(`
		INSERT INTO fetch_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		lastStatusKey, status, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// --- Runs ---

func (s *Store) InsertRun(r Run) error {
	_, err := s.db.Exec(`
		INSERT INTO runs (id, started_at, finished_at, status, from_date, to_date, releases, notices, error)
		VALUES (?, ?, '', ?, ?, ?, ?, ?, ?)`,
		r.ID, r.StartedAt.UTC().Format(time.RFC3339), RunRunning,
		r.From.UTC().Format(time.RFC3339), r.To.UTC().Format(time.RFC3339),
		r.Releases, r.Notices, r.Error,
	)
	return err
}

// FinishRun records the outcome of a run started with InsertRun.
func (s *Store) FinishRun(id, status string, releases, notices int, errMsg string) error {
	res, err := s.db.Exec(`
		UPDATE runs SET finished_at = ?, status = ?, releases = ?, notices = ?, error = ?
		WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), status, releases, notices, errMsg, id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// LatestRun returns the most recently started run.
func (s *Store) LatestRun() (Run, error) {
	runs, err := s.RecentRuns(1)
	if err != nil {
		return Run{}, err
	}
	if len(runs) == 0 {
		return Run{}, ErrNotFound
	}
	return runs[0], nil
}

func (s *Store) RecentRuns(limit int) ([]Run, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, finished_at, status, from_date, to_date, releases, notices, error
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Run
	for rows.Next() {
		var r Run
		var startedAt, finishedAt, fromDate, toDate string
		if err := rows.Scan(&r.ID, &startedAt, &finishedAt, &r.Status, &fromDate, &toDate, &r.Releases, &r.Notices, &r.Error); err != nil {
			return nil, err
		}
		if r.StartedAt, err = time.Parse(time.RFC3339, startedAt); err != nil {
			return nil, fmt.Errorf("parsing started_at for run %s: %w", r.ID, err)
		}
		if finishedAt != "" {
			if r.FinishedAt, err = time.Parse(time.RFC3339, finishedAt); err != nil {
				return nil, fmt.Errorf("parsing finished_at for run %s: %w", r.ID, err)
			}
		}
		if r.From, err = time.Parse(time.RFC3339, fromDate); err != nil {
			return nil, fmt.Errorf("parsing from_date for run %s: %w", r.ID, err)
		}
		if r.To, err = time.Parse(time.RFC3339, toDate); err != nil {
			return nil, fmt.Errorf("parsing to_date for run %s: %w", r.ID, err)
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// --- Notice cache ---

// UpsertNotice stores the working record for one procurement within one
// notice family, replacing any earlier snapshot.
func (s *Store) UpsertNotice(n Notice) error {
	_, err := s.db.Exec(`
		INSERT INTO notices (ocid, notice_id, notice_type, family, title, published_at, deadline, record_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ocid, family) DO UPDATE SET
			notice_id = excluded.notice_id,
			notice_type = excluded.notice_type,
			title = excluded.title,
			published_at = excluded.published_at,
			deadline = excluded.deadline,
			record_json = excluded.record_json,
			updated_at = excluded.updated_at`,
		n.OCID, n.NoticeID, n.NoticeType, n.Family, n.Title, n.PublishedAt,
		n.Deadline, n.RecordJSON, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// GetNotice returns the cached record for an OCID within a family.
func (s *Store) GetNotice(ocid, family string) (Notice, error) {
	var n Notice
	var updatedAt string
	err := s.db.QueryRow(`
		SELECT ocid, notice_id, notice_type, family, title, published_at, deadline, record_json, updated_at
		FROM notices WHERE ocid = ? AND family = ?`, ocid, family,
	).Scan(&n.OCID, &n.NoticeID, &n.NoticeType, &n.Family, &n.Title, &n.PublishedAt, &n.Deadline, &n.RecordJSON, &updatedAt)
	if err == sql.ErrNoRows {
		return Notice{}, ErrNotFound
	}
	if err != nil {
		return Notice{}, err
	}
	t, err := time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return Notice{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	n.UpdatedAt = t
	return n, nil
}

// ListNotices returns cached notices, optionally filtered by notice type code,
// most recently updated first.
func (s *Store) ListNotices(noticeType string, limit int) ([]Notice, error) {
	query := `
		SELECT ocid, notice_id, notice_type, family, title, published_at, deadline, record_json, updated_at
		FROM notices`
	args := []any{}
	if noticeType != "" {
		query += " WHERE notice_type = ?"
		args = append(args, noticeType)
	}
	query += " ORDER BY updated_at DESC LIMIT ?"
	args = append(args, limit)
	return s.queryNotices(query, args...)
}

// NoticesByFamily returns every cached notice in one family.
func (s *Store) NoticesByFamily(family string) ([]Notice, error) {
	return s.queryNotices(`
		SELECT ocid, notice_id, notice_type, family, title, published_at, deadline, record_json, updated_at
		FROM notices WHERE family = ? ORDER BY ocid ASC`, family)
}

// SearchNotices matches cached notices whose title or OCID contains the term.
func (s *Store) SearchNotices(term string, limit int) ([]Notice, error) {
	like := "%" + term + "%"
	return s.queryNotices(`
		SELECT ocid, notice_id, notice_type, family, title, published_at, deadline, record_json, updated_at
		FROM notices WHERE title LIKE ? OR ocid LIKE ?
		ORDER BY updated_at DESC LIMIT ?`, like, like, limit)
}

func (s *Store) queryNotices(query string, args ...any) ([]Notice, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Notice
	for rows.Next() {
		var n Notice
		var updatedAt string
		if err := rows.Scan(&n.OCID, &n.NoticeID, &n.NoticeType, &n.Family, &n.Title, &n.PublishedAt, &n.Deadline, &n.RecordJSON, &updatedAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, updatedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		n.UpdatedAt = t
		results = append(results, n)
	}
	return results, rows.Err()
}
