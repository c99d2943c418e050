package ledger

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"stock-sentiment-predictor/internal/atomicfile"
	"stock-sentiment-predictor/internal/logger"
	"stock-sentiment-predictor/internal/types"
)

// Store persists the ledger as one JSON document, rewritten whole on Save.
type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string { return s.path }

// Load reads the ledger. A missing file is an empty ledger. Older schemas are
// migrated and written back in the current schema.
func (s *Store) Load(ctx context.Context) (*Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", s.path, err)
	}

	l, from, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	if err := l.Check(); err != nil {
		logger.Warn(ctx, "Ledger invariant violated on load", "path", s.path, "detail", err.Error())
	}

	if from != CurrentVersion {
		logger.Info(ctx, "Migrating reliability ledger", "path", s.path, "from_version", from, "to_version", CurrentVersion)
		if err := atomicfile.WriteJSON(s.path, l); err != nil {
			return nil, fmt.Errorf("write migrated ledger: %w", err)
		}
	}
	return l, nil
}

func (s *Store) Save(l *Ledger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.Version = CurrentVersion
	if l.Companies == nil {
		l.Companies = map[string]types.Stats{}
	}
	return atomicfile.WriteJSON(s.path, l)
}
