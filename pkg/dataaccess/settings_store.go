package dataaccess

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/finchbot/modmail/pkg/dataaccess/monitoring"
	"github.com/finchbot/modmail/pkg/entities"
	"github.com/finchbot/modmail/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
)

const settingsStoreName = "settings_store"

// ErrPersistence wraps failed settings writes. Operations that trigger a
// write must treat this as a failure of the whole operation; silently losing
// the ticket map would break the one-ticket-per-user invariant.
var ErrPersistence = errors.New("error persisting settings")

// SettingsStore owns the durable configuration and the live ticket map. All
// mutation goes through Update; callers never modify a snapshot in place.
type SettingsStore interface {
	// Snapshot returns a copy of the current settings. The copy is safe to
	// read without holding any lock, and writing to it has no effect.
	Snapshot() *entities.Settings

	// Update applies fn to the settings under the store's lock and persists
	// the result. If fn returns an error, or the write fails, the in-memory
	// state is left unchanged.
	Update(fn func(*entities.Settings) error) error
}

type fileSettingsStore struct {
	// mtx guards current and serializes writes. Discord handlers run on
	// separate goroutines, so read-modify-write must be atomic here.
	mtx sync.Mutex

	// path is the location of the settings document on disk.
	path string

	// l is the logger.
	l *slog.Logger

	// current is the in-memory copy of the persisted document.
	current *entities.Settings
}

// NewFileSettingsStore opens (or initializes) the JSON settings document at
// path. Missing keys in an existing document get defaults; a missing file is
// created with defaults.
func NewFileSettingsStore(path string, logger *slog.Logger) (SettingsStore, error) {
	s := &fileSettingsStore{
		path: path,
		l:    logger.With(slog.String(logging.KeyDal, settingsStoreName)),
	}

	loaded, err := s.load()
	if err != nil {
		return nil, err
	}
	s.current = loaded

	return s, nil
}

func (s *fileSettingsStore) load() (*entities.Settings, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.l.Info("No settings file found, initializing defaults", slog.String("path", s.path))
		defaults := entities.NewSettings()
		if err := s.write(defaults); err != nil {
			return nil, err
		}
		return defaults, nil
	} else if err != nil {
		return nil, fmt.Errorf("error reading settings file: %w", err)
	}

	loaded := new(entities.Settings)
	if err := json.Unmarshal(raw, loaded); err != nil {
		return nil, fmt.Errorf("error decoding settings file: %w", err)
	}

	// Forward-compatible defaulting: unknown keys are ignored by the decoder,
	// missing keys get defaults here.
	loaded.ApplyDefaults()
	return loaded, nil
}

func (s *fileSettingsStore) Snapshot() *entities.Settings {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.current.Clone()
}

func (s *fileSettingsStore) Update(fn func(*entities.Settings) error) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	next := s.current.Clone()
	if err := fn(next); err != nil {
		return err
	}

	if err := s.write(next); err != nil {
		return err
	}

	s.current = next
	return nil
}

// write persists the document atomically: the new content goes to a temp file
// in the same directory, which is then renamed over the target. A crash
// mid-write can never corrupt the settings file.
func (s *fileSettingsStore) write(settings *entities.Settings) error {
	t := prometheus.NewTimer(monitoring.SettingsWriteLatency)
	defer t.ObserveDuration()

	raw, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		monitoring.SettingsTotalWrites.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: encoding settings: %w", ErrPersistence, err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".modmail-settings-*")
	if err != nil {
		monitoring.SettingsTotalWrites.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: creating temp file: %w", ErrPersistence, err)
	}

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		monitoring.SettingsTotalWrites.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: writing temp file: %w", ErrPersistence, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		monitoring.SettingsTotalWrites.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: closing temp file: %w", ErrPersistence, err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		_ = os.Remove(tmp.Name())
		monitoring.SettingsTotalWrites.WithLabelValues("error").Inc()
		return fmt.Errorf("%w: replacing settings file: %w", ErrPersistence, err)
	}

	monitoring.SettingsTotalWrites.WithLabelValues("ok").Inc()
	return nil
}
