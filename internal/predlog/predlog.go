// Package predlog is the append-only prediction log. Records are only ever
// appended or have their status fields updated in place.
package predlog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"stock-sentiment-predictor/internal/atomicfile"
	"stock-sentiment-predictor/internal/logger"
	"stock-sentiment-predictor/internal/types"
)

// MethodLocalModel tags predictions produced by the sentiment pipeline.
const MethodLocalModel = "local_sentiment_model"

var ErrCorrupt = errors.New("prediction log is unreadable")

type Store struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

func NewStore(path string) *Store {
	return &Store{path: path, now: time.Now}
}

func (s *Store) Path() string { return s.path }

// Load returns every record in insertion order.
func (s *Store) Load() ([]types.Prediction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() ([]types.Prediction, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []types.Prediction{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return []types.Prediction{}, nil
	}
	var out []types.Prediction
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, s.path, err)
	}
	if out == nil {
		out = []types.Prediction{}
	}
	return out, nil
}

// Update runs fn over the whole log under the store lock and writes the result
// when fn reports a change. fn sees a fixed-length slice: records can be
// modified in place but not added or removed.
func (s *Store) Update(fn func(records []types.Prediction) (changed bool, err error)) error {
	return s.UpdateThen(fn, nil)
}

// UpdateThen is Update followed by commit, still under the lock. If commit
// fails the previous log content is restored, so the log never runs ahead of
// whatever commit persists.
func (s *Store) UpdateThen(fn func(records []types.Prediction) (bool, error), commit func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous, err := os.ReadFile(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read %s: %w", s.path, err)
	}
	existed := err == nil

	records, err := s.load()
	if err != nil {
		return err
	}

	changed, err := fn(records)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	if err := atomicfile.WriteJSON(s.path, records); err != nil {
		return err
	}
	if commit == nil {
		return nil
	}

	if cerr := commit(); cerr != nil {
		var rerr error
		if existed {
			rerr = atomicfile.WriteFile(s.path, previous, 0o644)
		} else {
			rerr = os.Remove(s.path)
		}
		if rerr != nil {
			return errors.Join(cerr, fmt.Errorf("restore prediction log: %w", rerr))
		}
		return cerr
	}
	return nil
}

// Append adds a new pending prediction, filling in ID, status, method and
// creation time when unset. The stored record is returned.
func (s *Store) Append(ctx context.Context, p types.Prediction) (types.Prediction, error) {
	p.Entity = strings.ToLower(strings.TrimSpace(p.Entity))
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Status == "" {
		p.Status = types.StatusPending
	}
	if p.Method == "" {
		p.Method = MethodLocalModel
	}
	if p.CreatedAt == "" {
		p.CreatedAt = s.now().UTC().Format(time.RFC3339)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return types.Prediction{}, err
	}
	records = append(records, p)
	if err := atomicfile.WriteJSON(s.path, records); err != nil {
		return types.Prediction{}, err
	}

	logger.Prediction(ctx, p.Entity, string(p.Direction), p.DateFor, "id", p.ID, "log", s.path)
	return p, nil
}

// Pending returns the records still awaiting verification.
func (s *Store) Pending() ([]types.Prediction, error) {
	all, err := s.Load()
	if err != nil {
		return nil, err
	}
	var out []types.Prediction
	for _, p := range all {
		if p.Pending() {
			out = append(out, p)
		}
	}
	return out, nil
}
