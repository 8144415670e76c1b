// Package scorestore provides durable score storage and top-N leaderboard queries.
//
// Every backend keeps one row per commit (history retention) and ranks rows
// by score descending, ties in arrival order. Commits are idempotent per
// Record.ID so a retried commit never produces a second row.
package scorestore

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/osa030/chopbox/internal/domain/score"
)

// ErrUnavailable marks persistence failures. Test with errors.Is.
var ErrUnavailable = errors.New("score store unavailable")

// Store is the contract the game service needs from persistence.
type Store interface {
	// Commit durably records a final score.
	Commit(ctx context.Context, rec score.Record) error
	// Top returns up to n entries, best first.
	Top(ctx context.Context, n int) ([]score.Entry, error)
	// Close releases backend resources.
	Close() error
	// Name returns the backend type name.
	Name() string
}

// unavailable wraps err and marks it as ErrUnavailable.
func unavailable(err error, msg string) error {
	return errors.Mark(errors.Wrap(err, msg), ErrUnavailable)
}

// IsUnavailable reports whether err is a persistence failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
