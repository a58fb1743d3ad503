package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"cbsent/internal/domain"
	"cbsent/internal/fsutil"
)

// FileStore keeps the ledger in a single JSON file that is rewritten whole on
// every save, through a temp file and rename.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a FileStore backed by path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the ledger file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the ledger, returning an empty one when the file does not exist.
func (s *FileStore) Load(_ context.Context) (*domain.Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.NewLedger(), nil
		}
		return nil, fmt.Errorf("reading ledger: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return domain.NewLedger(), nil
	}

	l := domain.NewLedger()
	if err := json.Unmarshal(data, l); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", s.path, domain.ErrLedgerCorrupt, err)
	}
	return l, nil
}

// Save replaces the ledger file atomically.
func (s *FileStore) Save(ctx context.Context, l *domain.Ledger) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Encode(l)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fsutil.WriteFileAtomic(s.path, data, 0o644); err != nil {
		return fmt.Errorf("saving ledger: %w", err)
	}
	return nil
}

// Encode renders the ledger as indented JSON with sorted keys.
func Encode(l *domain.Ledger) ([]byte, error) {
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding ledger: %w", err)
	}
	return append(data, '\n'), nil
}
