package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/afero"
)

const resultExt = ".json"

// Manager writes fetched results as JSON files into an output directory and remembers which keys
// already have one
type Manager struct {
	fs        afero.Fs
	outputDir string
	saved     map[string]bool
	mu        sync.RWMutex
}

// NewManager creates the output directory if needed and indexes the results already in it
func NewManager(fs afero.Fs, outputDir string) (*Manager, error) {
	if err := fs.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	manager := &Manager{
		fs:        fs,
		outputDir: outputDir,
		saved:     make(map[string]bool),
	}

	if err := manager.scanExistingFiles(); err != nil {
		return nil, fmt.Errorf("failed to scan existing files: %w", err)
	}

	return manager, nil
}

// scanExistingFiles records every <key>.json already present
func (m *Manager) scanExistingFiles() error {
	entries, err := afero.ReadDir(m.fs, m.outputDir)
	if err != nil {
		return fmt.Errorf("failed to read directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == resultExt {
			m.saved[strings.TrimSuffix(entry.Name(), resultExt)] = true
		}
	}

	return nil
}

// Has reports whether a result for key has been saved, by this manager or a previous run
func (m *Manager) Has(key string) bool {
	m.mu.RLock()
	known := m.saved[key]
	m.mu.RUnlock()
	if known {
		return true
	}

	path, err := m.Path(key)
	if err != nil {
		return false
	}
	if ok, _ := afero.Exists(m.fs, path); ok {
		m.mu.Lock()
		m.saved[key] = true
		m.mu.Unlock()
		return true
	}

	return false
}

// Put writes v as indented JSON to <key>.json, replacing any previous file atomically
func (m *Manager) Put(key string, v interface{}) error {
	path, err := m.Path(key)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	tempFile := path + ".tmp"
	if err := afero.WriteFile(m.fs, tempFile, data, 0644); err != nil {
		_ = m.fs.Remove(tempFile)
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := m.fs.Rename(tempFile, path); err != nil {
		_ = m.fs.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	m.mu.Lock()
	m.saved[key] = true
	m.mu.Unlock()

	return nil
}

// Path returns the file a result for key is written to. Keys must be plain file names.
func (m *Manager) Path(key string) (string, error) {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return "", fmt.Errorf("invalid result key %q", key)
	}
	return filepath.Join(m.outputDir, key+resultExt), nil
}

// OutputDir returns the output directory path
func (m *Manager) OutputDir() string {
	return m.outputDir
}

// Count returns the number of saved results
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.saved)
}
