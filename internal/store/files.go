// Package store persists tempo's daemon state: one JSON file per
// logical entity under the per-user data directory, an append-only
// JSONL assessment log, and a SQLite archive of completed days.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"tempo/pkg/models"
)

// File names under the data directory. One file per logical entity.
const (
	scheduleFile    = "schedule.json"
	ledgerFile      = "ledger.json"
	sessionsFile    = "sessions.json"
	settingsFile    = "settings.json"
	lockModeFile    = "lockmode.json"
	assessmentsFile = "assessments.jsonl"
)

// ErrNotFound is returned when a persisted entity does not exist yet.
var ErrNotFound = errors.New("store: not found")

// FileStore reads and writes the daemon's JSON state files. Writes are
// atomic (temp file + rename) and retried once on failure; in-memory
// state stays authoritative when both attempts fail.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates a store rooted at dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the store's root directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// SettingsPath returns the path of the settings file, for watchers.
func (s *FileStore) SettingsPath() string {
	return filepath.Join(s.dir, settingsFile)
}

// SaveLedger persists the day's ledger snapshot.
func (s *FileStore) SaveLedger(day *models.LedgerDay) error {
	return s.writeJSON(ledgerFile, day)
}

// LoadLedger reads the persisted ledger snapshot. Returns ErrNotFound
// when no ledger has been written yet.
func (s *FileStore) LoadLedger() (*models.LedgerDay, error) {
	day := &models.LedgerDay{}
	if err := s.readJSON(ledgerFile, day); err != nil {
		return nil, err
	}
	return day, nil
}

// SaveSchedule persists the day's block list.
func (s *FileStore) SaveSchedule(blocks []models.TimeBlock) error {
	return s.writeJSON(scheduleFile, blocks)
}

// LoadSchedule reads the persisted block list. Returns ErrNotFound
// when no schedule has been written yet.
func (s *FileStore) LoadSchedule() ([]models.TimeBlock, error) {
	var blocks []models.TimeBlock
	if err := s.readJSON(scheduleFile, &blocks); err != nil {
		return nil, err
	}
	return blocks, nil
}

// SaveSessions persists the per-platform session table.
func (s *FileStore) SaveSessions(sessions map[models.Platform]*models.SessionState) error {
	return s.writeJSON(sessionsFile, sessions)
}

// LoadSessions reads the persisted session table. Returns an empty map
// when none exists.
func (s *FileStore) LoadSessions() (map[models.Platform]*models.SessionState, error) {
	sessions := map[models.Platform]*models.SessionState{}
	err := s.readJSON(sessionsFile, &sessions)
	if errors.Is(err, ErrNotFound) {
		return sessions, nil
	}
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// LoadSettings reads the dashboard-owned settings file. Returns
// defaults when none exists.
func (s *FileStore) LoadSettings() (*models.Settings, error) {
	settings := models.DefaultSettings()
	err := s.readJSON(settingsFile, settings)
	if errors.Is(err, ErrNotFound) {
		return models.DefaultSettings(), nil
	}
	if err != nil {
		return nil, err
	}
	if settings.CostMultipliers == nil {
		settings.CostMultipliers = map[models.Platform]float64{}
	}
	return settings, nil
}

// SetLockMode persists the lock-mode flag.
func (s *FileStore) SetLockMode(locked bool) error {
	return s.writeJSON(lockModeFile, map[string]bool{"locked": locked})
}

// LockMode reads the lock-mode flag. Missing file means unlocked.
func (s *FileStore) LockMode() (bool, error) {
	var v map[string]bool
	err := s.readJSON(lockModeFile, &v)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v["locked"], nil
}

// AppendAssessment appends one record to the assessment log. The log is
// write-once-append; records are never rewritten.
func (s *FileStore) AppendAssessment(a *models.RelevanceAssessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	line, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal assessment: %w", err)
	}

	path := filepath.Join(s.dir, assessmentsFile)
	if err := appendLine(path, line); err != nil {
		// One retry, then surface.
		if err := appendLine(path, line); err != nil {
			return fmt.Errorf("append assessment: %w", err)
		}
	}
	return nil
}

// ReadAssessments returns logged assessments within [from, to], oldest
// first. Zero times mean unbounded on that side.
func (s *FileStore) ReadAssessments(from, to time.Time) ([]models.RelevanceAssessment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dir, assessmentsFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read assessment log: %w", err)
	}

	var out []models.RelevanceAssessment
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var a models.RelevanceAssessment
		if err := dec.Decode(&a); err != nil {
			// A torn final line from a crashed write is skipped, not fatal.
			break
		}
		if !from.IsZero() && a.CreatedAt.Before(from) {
			continue
		}
		if !to.IsZero() && a.CreatedAt.After(to) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *FileStore) writeJSON(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}

	path := filepath.Join(s.dir, name)
	if err := atomicWrite(path, data); err != nil {
		// One retry, then surface to the caller.
		if err := atomicWrite(path, data); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}

func (s *FileStore) readJSON(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

// atomicWrite writes data to path via a temp file and rename so a
// crashed write never leaves a torn entity file.
func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func appendLine(path string, line []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return err
	}
	return nil
}

