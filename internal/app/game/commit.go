package game

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/chopbox/internal/domain/event"
	"github.com/osa030/chopbox/internal/domain/score"
	"github.com/osa030/chopbox/internal/domain/session"
	"github.com/osa030/chopbox/internal/infra/scorestore"
)

// complete commits a finished session and emits SessionEnded followed by a
// leaderboard snapshot. It runs without any key lock held.
func (s *Service) complete(snap session.Snapshot) []event.Notification {
	rec := score.Record{
		ID:          uuid.New().String(),
		SessionID:   snap.ID,
		Identity:    snap.Identity.String(),
		Score:       snap.Score,
		CommittedAt: snap.FinishedAt,
	}

	if err := s.commit(s.ctx, rec); err != nil {
		s.pending.push(rec)
		zlog.Error().Msgf("score commit failed, queued for retry: key=%s session_id=%s commit_id=%s score=%d err=%v",
			snap.Key, snap.ID, rec.ID, rec.Score, err)
	} else {
		zlog.Info().Msgf("score committed: key=%s identity=%s score=%d", snap.Key, rec.Identity, rec.Score)
	}

	ended := s.publisher.Stamp(event.SessionEnded(snap.Key, rec.Identity, rec.Score))
	s.publisher.Deliver(ended)
	out := []event.Notification{ended}

	entries, stale, err := s.top(s.ctx, s.config.DefaultLimit)
	if err != nil {
		zlog.Warn().Msgf("leaderboard unavailable after session end: key=%s err=%v", snap.Key, err)
		return out
	}
	board := s.publisher.Stamp(event.LeaderboardSnapshot(snap.Key, entries, stale))
	s.publisher.Deliver(board)
	return append(out, board)
}

// commit writes rec with bounded exponential backoff. Only unavailable
// errors are retried.
func (s *Service) commit(ctx context.Context, rec score.Record) error {
	policy := s.config.Retry

	b := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		b.InitialInterval = policy.InitialInterval
	}
	if policy.MaxInterval > 0 {
		b.MaxInterval = policy.MaxInterval
	}
	b.MaxElapsedTime = 0

	attempt := 0
	op := func() error {
		attempt++
		err := s.store.Commit(ctx, rec)
		if err != nil && !scorestore.IsUnavailable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		zlog.Warn().Msgf("score commit attempt failed: commit_id=%s attempt=%d retry_in=%s err=%v", rec.ID, attempt, wait, err)
	}

	retries := uint64(policy.MaxAttempts - 1)
	return backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx), notify)
}

// FlushPending retries queued commits once each. It returns the number
// committed; records that still fail stay queued.
func (s *Service) FlushPending(ctx context.Context) (int, error) {
	recs := s.pending.drain()
	if len(recs) == 0 {
		return 0, nil
	}

	flushed := 0
	var lastErr error
	for i, rec := range recs {
		if err := s.store.Commit(ctx, rec); err != nil {
			lastErr = err
			s.pending.requeue(recs[i:])
			break
		}
		flushed++
	}

	zlog.Info().Msgf("pending commits flushed: flushed=%d remaining=%d", flushed, s.pending.len())
	if lastErr != nil {
		return flushed, errors.Wrap(lastErr, "failed to flush pending commits")
	}
	return flushed, nil
}

// RunRetryLoop flushes queued commits every interval until ctx is done.
func (s *Service) RunRetryLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if s.pending.len() == 0 {
				continue
			}
			if _, err := s.FlushPending(ctx); err != nil {
				zlog.Warn().Msgf("pending commit flush failed: %v", err)
			}
		}
	}
}

// pendingQueue holds records whose commit exhausted its retries.
type pendingQueue struct {
	mu   sync.Mutex
	recs []score.Record
}

func newPendingQueue() *pendingQueue {
	return &pendingQueue{}
}

func (q *pendingQueue) push(rec score.Record) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.recs = append(q.recs, rec)
}

// requeue puts recs back at the front, ahead of anything pushed meanwhile.
func (q *pendingQueue) requeue(recs []score.Record) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.recs = append(append([]score.Record{}, recs...), q.recs...)
}

func (q *pendingQueue) drain() []score.Record {
	q.mu.Lock()
	defer q.mu.Unlock()
	recs := q.recs
	q.recs = nil
	return recs
}

func (q *pendingQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.recs)
}
