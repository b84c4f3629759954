package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	domainauth "github.com/peopleops/hrportal/internal/domain/auth"
	"github.com/peopleops/hrportal/internal/ports"
)

// File keeps every slot of a single-user client in one JSON document.
type File struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewFile returns a file-backed store at path. The file is created on first write.
func NewFile(path string, logger *slog.Logger) *File {
	if logger == nil {
		logger = slog.Default()
	}
	return &File{path: path, logger: logger}
}

// DefaultFilePath returns $XDG_CONFIG_HOME/hrportal/credentials.json or the
// platform equivalent.
func DefaultFilePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "hrportal", "credentials.json"), nil
}

// Slot returns a TokenStore view of one slot.
func (f *File) Slot(name string) ports.TokenStore {
	return &fileSlot{file: f, name: name}
}

func (f *File) read() (map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}
	slots := map[string]string{}
	if len(data) == 0 {
		return slots, nil
	}
	if err := json.Unmarshal(data, &slots); err != nil {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}
	return slots, nil
}

// write replaces the file atomically through a temp file in the same directory.
func (f *File) write(slots map[string]string) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create credentials dir: %w", err)
	}
	data, err := json.MarshalIndent(slots, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // best effort after rename

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("replace credentials: %w", err)
	}
	return nil
}

func (f *File) update(fn func(map[string]string)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	slots, err := f.read()
	if err != nil {
		return err
	}
	fn(slots)
	return f.write(slots)
}

type fileSlot struct {
	file *File
	name string
}

func (s *fileSlot) Get(_ context.Context) (domainauth.Credential, bool) {
	if s == nil || s.file == nil {
		return "", false
	}
	s.file.mu.Lock()
	slots, err := s.file.read()
	s.file.mu.Unlock()
	if err != nil {
		s.file.logger.Warn("credential file unreadable", "path", s.file.path, "error", err)
		return "", false
	}
	cred := domainauth.Credential(slots[s.name])
	return cred, !cred.IsZero()
}

func (s *fileSlot) Set(_ context.Context, cred domainauth.Credential) error {
	if s == nil || s.file == nil {
		return nil
	}
	return s.file.update(func(m map[string]string) { m[s.name] = string(cred) })
}

func (s *fileSlot) Clear(_ context.Context) error {
	if s == nil || s.file == nil {
		return nil
	}
	return s.file.update(func(m map[string]string) { delete(m, s.name) })
}
