package scorestore

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	json "github.com/goccy/go-json"
	"github.com/mitchellh/mapstructure"

	"github.com/osa030/chopbox/internal/domain/score"
)

// JSONFileSettings configures the JSON file backend.
type JSONFileSettings struct {
	Path string `yaml:"path" mapstructure:"path" default:"scores.json" validate:"required"`
}

type jsonFileDoc struct {
	NextSeq int64         `json:"next_seq"`
	Scores  []jsonFileRow `json:"scores"`
}

type jsonFileRow struct {
	Seq         int64     `json:"seq"`
	CommitID    string    `json:"commit_id,omitempty"`
	SessionID   string    `json:"session_id,omitempty"`
	Identity    string    `json:"identity"`
	Score       int       `json:"score"`
	CommittedAt time.Time `json:"committed_at"`
}

// JSONFileStore keeps the score history in a single JSON document.
// The whole document is rewritten through a temp file and rename on every commit.
type JSONFileStore struct {
	mu      sync.RWMutex
	path    string
	doc     jsonFileDoc
	commits map[string]struct{}
}

// NewJSONFileStore decodes settings and opens the file backend.
func NewJSONFileStore(settings map[string]any) (*JSONFileStore, error) {
	var cfg JSONFileSettings
	if err := decodeSettings(settings, &cfg); err != nil {
		return nil, errors.Wrap(err, "invalid jsonfile settings")
	}
	return OpenJSONFile(cfg.Path)
}

// OpenJSONFile loads path, creating an empty document if the file is missing.
func OpenJSONFile(path string) (*JSONFileStore, error) {
	s := &JSONFileStore{
		path:    filepath.Clean(path),
		commits: make(map[string]struct{}),
	}

	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		s.doc = jsonFileDoc{Scores: make([]jsonFileRow, 0)}
		if err := s.writeLocked(); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, unavailable(err, "failed to read score file")
	default:
		if err := json.Unmarshal(data, &s.doc); err != nil {
			return nil, errors.Wrapf(err, "failed to parse score file %s", s.path)
		}
	}

	for _, row := range s.doc.Scores {
		if row.CommitID != "" {
			s.commits[row.CommitID] = struct{}{}
		}
		if row.Seq > s.doc.NextSeq {
			s.doc.NextSeq = row.Seq
		}
	}
	return s, nil
}

// Commit appends rec and rewrites the file.
func (s *JSONFileStore) Commit(ctx context.Context, rec score.Record) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "jsonfile commit")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID != "" {
		if _, ok := s.commits[rec.ID]; ok {
			return nil
		}
	}

	prev := s.doc
	s.doc.NextSeq++
	s.doc.Scores = append(s.doc.Scores, jsonFileRow{
		Seq:         s.doc.NextSeq,
		CommitID:    rec.ID,
		SessionID:   rec.SessionID,
		Identity:    rec.Identity,
		Score:       rec.Score,
		CommittedAt: rec.CommittedAt.UTC(),
	})

	if err := s.writeLocked(); err != nil {
		s.doc = prev
		return err
	}
	if rec.ID != "" {
		s.commits[rec.ID] = struct{}{}
	}
	return nil
}

// Top returns up to n entries.
func (s *JSONFileStore) Top(ctx context.Context, n int) ([]score.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "jsonfile top")
	}

	s.mu.RLock()
	rows := make([]score.Ranked, len(s.doc.Scores))
	for i, r := range s.doc.Scores {
		rows[i] = score.Ranked{
			Entry: score.Entry{Identity: r.Identity, Score: r.Score, CommittedAt: r.CommittedAt},
			Seq:   r.Seq,
		}
	}
	s.mu.RUnlock()

	return score.Rank(rows, n), nil
}

// Close is a no-op; every commit is already on disk.
func (s *JSONFileStore) Close() error {
	return nil
}

// Name returns the backend type name.
func (s *JSONFileStore) Name() string {
	return TypeJSONFile
}

// writeLocked must be called with s.mu held.
func (s *JSONFileStore) writeLocked() error {
	data, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode score file")
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return unavailable(err, "failed to create temp score file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return unavailable(err, "failed to write score file")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return unavailable(err, "failed to close score file")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return unavailable(err, "failed to replace score file")
	}
	return nil
}

// decodeSettings fills out from a settings map, applies defaults and validates.
func decodeSettings(settings map[string]any, out any) error {
	if err := mapstructure.Decode(settings, out); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	return applyDefaultsAndValidate(out)
}
