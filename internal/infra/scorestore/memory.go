package scorestore

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/osa030/chopbox/internal/domain/score"
)

// MemoryStore keeps scores in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	rows    []score.Ranked
	commits map[string]struct{}
	seq     int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows:    make([]score.Ranked, 0),
		commits: make(map[string]struct{}),
	}
}

// Commit appends rec unless its ID was already committed.
func (s *MemoryStore) Commit(ctx context.Context, rec score.Record) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "memory commit")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID != "" {
		if _, ok := s.commits[rec.ID]; ok {
			return nil
		}
		s.commits[rec.ID] = struct{}{}
	}

	s.seq++
	s.rows = append(s.rows, score.Ranked{
		Entry: score.Entry{
			Identity:    rec.Identity,
			Score:       rec.Score,
			CommittedAt: rec.CommittedAt,
		},
		Seq: s.seq,
	})
	return nil
}

// Top returns up to n entries.
func (s *MemoryStore) Top(ctx context.Context, n int) ([]score.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "memory top")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return score.Rank(s.rows, n), nil
}

// Len returns the number of committed rows.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

// Name returns the backend type name.
func (s *MemoryStore) Name() string {
	return TypeMemory
}
