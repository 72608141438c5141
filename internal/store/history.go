package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"tempo/pkg/models"
)

// History archives completed ledger days and finalized block focus
// stats in SQLite. The live day is never stored here; rows are written
// once at day rollover (or block end) and never updated.
type History struct {
	conn *sql.DB
	path string
	mu   sync.Mutex
}

// HistoryPath returns the default history database path under dir.
func HistoryPath(dir string) string {
	return filepath.Join(dir, "history.db")
}

// OpenHistory opens (creating if needed) the history database.
// WAL mode is enabled for concurrent dashboard reads.
func OpenHistory(path string) (*History, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	h := &History{conn: conn, path: path}
	if err := h.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return h, nil
}

// Close closes the database connection.
func (h *History) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn.Close()
}

// Path returns the path to the database file.
func (h *History) Path() string {
	return h.path
}

// migrate applies all pending schema migrations.
func (h *History) migrate() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	_, err := h.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	row := h.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Days},
		{2, migrationV2BlockStats},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := h.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}

	return nil
}

const migrationV1Days = `
CREATE TABLE IF NOT EXISTS days (
	date TEXT PRIMARY KEY,
	earned_minutes REAL NOT NULL DEFAULT 0,
	used_minutes REAL NOT NULL DEFAULT 0,
	partner_requests INTEGER NOT NULL DEFAULT 0,
	archived_at TEXT NOT NULL
);
`

const migrationV2BlockStats = `
CREATE TABLE IF NOT EXISTS block_stats (
	block_id TEXT NOT NULL,
	date TEXT NOT NULL,
	block_title TEXT NOT NULL,
	kind TEXT NOT NULL,
	on_task_polls INTEGER NOT NULL DEFAULT 0,
	total_polls INTEGER NOT NULL DEFAULT 0,
	earned_minutes REAL NOT NULL DEFAULT 0,
	started_at TEXT NOT NULL,
	finalized_at TEXT,
	PRIMARY KEY (block_id, started_at)
);

CREATE INDEX IF NOT EXISTS idx_block_stats_date ON block_stats(date);
`

// ArchiveDay records a completed ledger day. Idempotent per date.
func (h *History) ArchiveDay(day *models.LedgerDay) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	_, err := h.conn.Exec(`
		INSERT OR REPLACE INTO days (date, earned_minutes, used_minutes, partner_requests, archived_at)
		VALUES (?, ?, ?, ?, ?)
	`, formatDay(day.Date), day.EarnedMinutes, day.UsedMinutes, day.PartnerRequests, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("archive day: %w", err)
	}
	return nil
}

// ArchiveBlockStats records one finalized block's focus stats.
func (h *History) ArchiveBlockStats(stats *models.BlockFocusStats) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var finalized any
	if !stats.FinalizedAt.IsZero() {
		finalized = formatTime(stats.FinalizedAt)
	}

	_, err := h.conn.Exec(`
		INSERT OR REPLACE INTO block_stats
		(block_id, date, block_title, kind, on_task_polls, total_polls, earned_minutes, started_at, finalized_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, stats.BlockID, formatDay(stats.StartedAt), stats.BlockTitle, string(stats.Kind),
		stats.OnTaskPolls, stats.TotalPolls, stats.EarnedMinutes,
		formatTime(stats.StartedAt), finalized)
	if err != nil {
		return fmt.Errorf("archive block stats: %w", err)
	}
	return nil
}

// DaysBetween returns archived days within [from, to] inclusive,
// oldest first.
func (h *History) DaysBetween(from, to time.Time) ([]models.LedgerDay, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rows, err := h.conn.Query(`
		SELECT date, earned_minutes, used_minutes, partner_requests
		FROM days WHERE date >= ? AND date <= ? ORDER BY date
	`, formatDay(from), formatDay(to))
	if err != nil {
		return nil, fmt.Errorf("query days: %w", err)
	}
	defer rows.Close()

	var out []models.LedgerDay
	for rows.Next() {
		var day models.LedgerDay
		var date string
		if err := rows.Scan(&date, &day.EarnedMinutes, &day.UsedMinutes, &day.PartnerRequests); err != nil {
			return nil, fmt.Errorf("scan day: %w", err)
		}
		day.Date, _ = time.ParseInLocation("2006-01-02", date, time.Local)
		out = append(out, day)
	}
	return out, rows.Err()
}

// BlockStatsForDay returns the finalized block stats for one date.
func (h *History) BlockStatsForDay(date time.Time) ([]models.BlockFocusStats, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rows, err := h.conn.Query(`
		SELECT block_id, block_title, kind, on_task_polls, total_polls, earned_minutes, started_at, finalized_at
		FROM block_stats WHERE date = ? ORDER BY started_at
	`, formatDay(date))
	if err != nil {
		return nil, fmt.Errorf("query block stats: %w", err)
	}
	defer rows.Close()

	var out []models.BlockFocusStats
	for rows.Next() {
		var s models.BlockFocusStats
		var kind, started string
		var finalized sql.NullString
		if err := rows.Scan(&s.BlockID, &s.BlockTitle, &kind, &s.OnTaskPolls,
			&s.TotalPolls, &s.EarnedMinutes, &started, &finalized); err != nil {
			return nil, fmt.Errorf("scan block stats: %w", err)
		}
		s.Kind = models.BlockKind(kind)
		s.StartedAt, _ = parseTime(started)
		if finalized.Valid {
			s.FinalizedAt, _ = parseTime(finalized.String)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func formatDay(t time.Time) string {
	return t.Format("2006-01-02")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
