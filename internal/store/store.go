package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ardeus-ua/ha-addons/internal/models"
	"github.com/ardeus-ua/ha-addons/internal/registry"
)

// PersistenceError is returned when the snapshot file can't be written
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to persist snapshot %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Store owns the reading set; mu covers both the update and the snapshot write
type Store struct {
	mu       sync.RWMutex
	path     string
	registry *registry.Registry
	readings models.Readings
}

// Open creates a store backed by the snapshot at path
// A missing or malformed snapshot leaves every sensor unknown
func Open(path string, reg *registry.Registry) *Store {
	s := &Store{
		path:     path,
		registry: reg,
	}

	readings, err := s.load()
	if err != nil {
		log.Printf("Store: %v, starting with empty readings", err)
		s.quarantine()
		readings = reg.Unknown()
	}
	s.readings = readings

	return s
}

// load reads the snapshot, dropping unregistered keys
func (s *Store) load() (models.Readings, error) {
	readings := s.registry.Unknown()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		log.Printf("Store: no snapshot at %s, all %d sensors unknown", s.path, s.registry.Len())
		return readings, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", s.path, err)
	}

	var stored map[string]*int
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", s.path, err)
	}

	for id, v := range stored {
		if !s.registry.Has(id) {
			continue
		}
		if v != nil && (*v < models.MinSOC || *v > models.MaxSOC) {
			log.Printf("Store: snapshot value %d for sensor %s out of range, treating as unknown", *v, id)
			continue
		}
		readings[id] = v
	}

	log.Printf("Store: loaded snapshot from %s", s.path)
	return readings, nil
}

// quarantine moves an unreadable snapshot to <path>.corrupt-<unix>
func (s *Store) quarantine() {
	if _, err := os.Stat(s.path); err != nil {
		return
	}
	aside := fmt.Sprintf("%s.corrupt-%d", s.path, time.Now().Unix())
	if err := os.Rename(s.path, aside); err != nil {
		log.Printf("Store: failed to move bad snapshot aside: %v", err)
		return
	}
	log.Printf("Store: moved bad snapshot to %s", aside)
}

// Path returns the snapshot location
func (s *Store) Path() string {
	return s.path
}

// Apply overwrites registered readings and returns the accepted count
func (s *Store) Apply(updates models.Readings) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apply(updates)
}

// Persist writes the full reading set to the snapshot file
func (s *Store) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist()
}

// Update applies and persists under one lock, returning the accepted count
// and a copy of the resulting readings (nil and no write when nothing was accepted)
func (s *Store) Update(updates models.Readings) (int, models.Readings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accepted := s.apply(updates)
	if accepted == 0 {
		return 0, nil, nil
	}
	if err := s.persist(); err != nil {
		return accepted, nil, err
	}
	return accepted, s.readings.Clone(), nil
}

// Snapshot returns a copy of the current reading set
func (s *Store) Snapshot() models.Readings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readings.Clone()
}

func (s *Store) apply(updates models.Readings) int {
	accepted := 0
	for id, v := range updates {
		if !s.registry.Has(id) {
			continue
		}
		if v == nil {
			s.readings[id] = nil
		} else {
			soc := *v
			s.readings[id] = &soc
		}
		accepted++
	}
	return accepted
}

// persist writes a temp file next to the snapshot and renames it over it
func (s *Store) persist() error {
	data, err := json.Marshal(s.readings)
	if err != nil {
		return &PersistenceError{Path: s.path, Err: err}
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return &PersistenceError{Path: s.path, Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &PersistenceError{Path: s.path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &PersistenceError{Path: s.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &PersistenceError{Path: s.path, Err: err}
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return &PersistenceError{Path: s.path, Err: err}
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return &PersistenceError{Path: s.path, Err: err}
	}

	return nil
}
