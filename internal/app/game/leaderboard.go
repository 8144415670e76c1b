package game

import (
	"context"
	"strconv"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/osa030/chopbox/internal/domain/score"
	"github.com/osa030/chopbox/internal/infra/scorestore"
)

// top reads the leaderboard. Concurrent reads of the same size share one
// store query, which runs detached from any single caller's cancellation.
// When the store is unavailable the last good snapshot is served with
// stale=true.
func (s *Service) top(ctx context.Context, n int) ([]score.Entry, bool, error) {
	ch := s.lookups.DoChan(strconv.Itoa(n), func() (any, error) {
		qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.QueryTimeout)
		defer cancel()
		return s.store.Top(qctx, n)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, false, errors.Wrap(ctx.Err(), "leaderboard query abandoned")
	case res = <-ch:
	}

	if res.Err == nil {
		entries, _ := res.Val.([]score.Entry)
		s.remember(n, entries)
		return cloneEntries(entries), false, nil
	}

	if !scorestore.IsUnavailable(res.Err) {
		return nil, false, errors.Wrap(res.Err, "failed to read leaderboard")
	}

	cached, ok := s.cachedTop(n)
	if !ok {
		return nil, false, errors.Wrap(res.Err, "leaderboard unavailable and nothing cached")
	}
	zlog.Warn().Msgf("serving cached leaderboard: limit=%d err=%v", n, res.Err)
	return cached, true, nil
}

// remember keeps the latest successful snapshot per limit.
func (s *Service) remember(n int, entries []score.Entry) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cached[n] = cloneEntries(entries)
}

// cachedTop picks the snapshot read with limit n, else the smallest larger
// limit, else the largest one known.
func (s *Service) cachedTop(n int) ([]score.Entry, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()

	best := -1
	if _, ok := s.cached[n]; ok {
		best = n
	} else {
		for limit := range s.cached {
			switch {
			case best < n && limit > best:
				best = limit
			case limit > n && limit < best:
				best = limit
			}
		}
	}
	if best < 0 {
		return nil, false
	}

	entries := s.cached[best]
	if len(entries) > n {
		entries = entries[:n]
	}
	return cloneEntries(entries), true
}

func cloneEntries(entries []score.Entry) []score.Entry {
	out := make([]score.Entry, len(entries))
	copy(out, entries)
	return out
}
