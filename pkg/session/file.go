package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/samber/mo"
	"github.com/spf13/afero"
	"igfeed/pkg/logger"
)

const snapshotVersion = 1

// Sealer encrypts a snapshot at rest
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(ciphertext []byte) ([]byte, error)
}

// Snapshot is the persisted form of a session
type Snapshot struct {
	Version  int       `json:"version"`
	Username string    `json:"username"`
	Cookies  []Cookie  `json:"cookies"`
	SavedAt  time.Time `json:"saved_at"`
}

// FileStore persists one session to a file, replacing it atomically on save
type FileStore struct {
	fs     afero.Fs
	path   string
	sealer Sealer
	logger logger.Logger
}

// FileOption customises a FileStore
type FileOption func(*FileStore)

// WithFs replaces the filesystem, e.g. with afero.NewMemMapFs in tests
func WithFs(fs afero.Fs) FileOption {
	return func(f *FileStore) { f.fs = fs }
}

// WithSealer encrypts the snapshot before it reaches the disk
func WithSealer(s Sealer) FileOption {
	return func(f *FileStore) { f.sealer = s }
}

// NewFileStore creates a store for the session file at path
func NewFileStore(path string, log logger.Logger, opts ...FileOption) *FileStore {
	if log == nil {
		log = logger.GetLogger()
	}
	f := &FileStore{fs: afero.NewOsFs(), path: path, logger: log}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Path returns the session file location
func (f *FileStore) Path() string {
	return f.path
}

// Save writes the session's cookies for the given account
func (f *FileStore) Save(s *Session, username string) error {
	snap := Snapshot{
		Version:  snapshotVersion,
		Username: username,
		Cookies:  s.All(),
		SavedAt:  time.Now(),
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if f.sealer != nil {
		if data, err = f.sealer.Seal(data); err != nil {
			return fmt.Errorf("failed to seal session: %w", err)
		}
	}

	if err := f.fs.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	tempPath := f.path + ".tmp"
	if err := afero.WriteFile(f.fs, tempPath, data, 0600); err != nil {
		_ = f.fs.Remove(tempPath)
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := f.fs.Rename(tempPath, f.path); err != nil {
		_ = f.fs.Remove(tempPath)
		return fmt.Errorf("failed to replace session file: %w", err)
	}

	f.logger.DebugWithFields("session saved", map[string]interface{}{
		"username": username,
		"cookies":  len(snap.Cookies),
		"path":     f.path,
	})
	return nil
}

// Load reads the saved session. It returns None when no session file exists.
func (f *FileStore) Load() (mo.Option[*Snapshot], error) {
	data, err := afero.ReadFile(f.fs, f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return mo.None[*Snapshot](), nil
		}
		return mo.None[*Snapshot](), fmt.Errorf("failed to read session file: %w", err)
	}

	if f.sealer != nil {
		if data, err = f.sealer.Open(data); err != nil {
			return mo.None[*Snapshot](), fmt.Errorf("failed to open sealed session: %w", err)
		}
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return mo.None[*Snapshot](), fmt.Errorf("failed to decode session: %w", err)
	}
	if snap.Version != snapshotVersion {
		return mo.None[*Snapshot](), fmt.Errorf("unsupported session file version %d", snap.Version)
	}

	return mo.Some(&snap), nil
}

// Delete removes the session file
func (f *FileStore) Delete() error {
	if err := f.fs.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Restore builds a live session from a snapshot, dropping cookies that expired since it was saved
func (snap *Snapshot) Restore() *Session {
	s := New()
	now := s.clock()
	for _, c := range snap.Cookies {
		if c.expired(now) {
			continue
		}
		s.Set(c)
	}
	return s
}
