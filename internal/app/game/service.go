// Package game provides the game service that drives click sessions.
package game

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/osa030/chopbox/internal/app/session/registry"
	"github.com/osa030/chopbox/internal/app/timer"
	"github.com/osa030/chopbox/internal/domain/event"
	"github.com/osa030/chopbox/internal/domain/score"
	"github.com/osa030/chopbox/internal/domain/session"
	"github.com/osa030/chopbox/internal/infra/config"
	"github.com/osa030/chopbox/internal/infra/scorestore"
)

// Publisher fans notifications out to subscribers.
type Publisher interface {
	Stamp(n event.Notification) event.Notification
	Deliver(n event.Notification)
	SubscriberCount() int
}

const defaultQueryTimeout = 5 * time.Second

// Config holds game service configuration.
type Config struct {
	Duration        time.Duration
	TimerResolution time.Duration
	DefaultLimit    int
	MaxLimit        int
	QueryTimeout    time.Duration
	Retry           RetryPolicy
	Now             func() time.Time
}

// RetryPolicy bounds commit retries.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// ConfigFrom builds the service configuration from the application config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Duration:        cfg.Duration(),
		TimerResolution: cfg.TimerResolution(),
		DefaultLimit:    cfg.Leaderboard.DefaultLimit,
		MaxLimit:        cfg.Leaderboard.MaxLimit,
		QueryTimeout:    cfg.Leaderboard.QueryTimeout(),
		Retry: RetryPolicy{
			MaxAttempts:     cfg.Store.Retry.MaxAttempts,
			InitialInterval: cfg.Store.Retry.RetryInitialInterval(),
			MaxInterval:     cfg.Store.Retry.RetryMaxInterval(),
		},
	}
}

// Status is a point-in-time view of the service.
type Status struct {
	ActiveSessions int
	ArmedTimers    int
	PendingCommits int
	Subscribers    int
	Store          string
}

// Service drives session lifecycles: it owns the registry and the timers,
// commits final scores and answers leaderboard queries.
type Service struct {
	config Config

	registry  *registry.SessionRegistry
	timers    *timer.Scheduler
	store     scorestore.Store
	publisher Publisher
	pending   *pendingQueue

	lookups singleflight.Group
	cacheMu sync.RWMutex
	cached  map[int][]score.Entry

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewService creates a new game service.
func NewService(cfg Config, store scorestore.Store, publisher Publisher) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = 10
	}
	if cfg.MaxLimit < cfg.DefaultLimit {
		cfg.MaxLimit = cfg.DefaultLimit
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = defaultQueryTimeout
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry.MaxAttempts = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		config:    cfg,
		registry:  registry.NewSessionRegistry(),
		timers:    timer.NewScheduler(timer.Config{Resolution: cfg.TimerResolution, Now: cfg.Now}),
		store:     store,
		publisher: publisher,
		pending:   newPendingQueue(),
		cached:    make(map[int][]score.Entry),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Register attaches an identity to key. The first registration wins; later
// ones leave the session unchanged.
func (s *Service) Register(ev event.RegisterIdentity) (session.Snapshot, error) {
	identity := session.NewIdentity(ev.IdentityText)

	unlock := s.registry.Lock(ev.SessionKey)
	defer unlock()

	st := s.registry.GetOrCreate(ev.SessionKey)
	if err := st.Register(identity); err != nil {
		if st.Phase() == session.PhaseUnregistered {
			s.registry.Remove(ev.SessionKey, st.ID)
		}
		return session.Snapshot{}, err
	}

	zlog.Info().Msgf("identity registered: key=%s identity=%s session_id=%s", ev.SessionKey, st.Identity(), st.ID)
	return st.Snapshot(), nil
}

// Start opens the play window and arms its expiry.
func (s *Service) Start(ev event.StartSession) []event.Notification {
	key := ev.SessionKey

	unlock := s.registry.Lock(key)
	st, err := s.registry.Get(key)
	if err != nil {
		n := s.publisher.Stamp(event.Rejected(key, event.ReasonNotRegistered))
		unlock()
		return s.deliver(n)
	}

	deadline, err := st.Begin(s.config.Now(), s.config.Duration)
	if err != nil {
		reason, known := rejectReason(err)
		n := s.publisher.Stamp(event.Rejected(key, reason))
		unlock()
		if known {
			zlog.Info().Msgf("start rejected: key=%s reason=%s", key, reason)
		} else {
			zlog.Error().Msgf("start failed: key=%s err=%v", key, err)
		}
		return s.deliver(n)
	}

	id := st.ID
	s.timers.Arm(key.String(), deadline, func() { s.expire(key, id) })
	n := s.publisher.Stamp(event.SessionStarted(key, deadline))
	unlock()

	zlog.Info().Msgf("session started: key=%s session_id=%s deadline=%s", key, id, deadline.Format(time.RFC3339Nano))
	return s.deliver(n)
}

// Click counts one press. A click past the deadline finishes the session.
func (s *Service) Click(ev event.Click) []event.Notification {
	key := ev.SessionKey
	now := ev.Timestamp
	if now.IsZero() {
		now = s.config.Now()
	}

	unlock := s.registry.Lock(key)
	st, err := s.registry.Get(key)
	if err != nil {
		n := s.publisher.Stamp(event.Rejected(key, event.ReasonNotFound))
		unlock()
		return s.deliver(n)
	}

	res := st.RecordClick(now)
	switch res.Outcome {
	case session.ClickAccepted:
		n := s.publisher.Stamp(event.ClickAcknowledged(key, res.Score))
		unlock()
		return s.deliver(n)

	case session.ClickExpired:
		if !res.Transitioned {
			unlock()
			return nil
		}
		s.timers.Cancel(key.String())
		snap := st.Snapshot()
		s.registry.Remove(key, snap.ID)
		unlock()

		zlog.Info().Msgf("session finished by late click: key=%s session_id=%s score=%d", key, snap.ID, snap.Score)
		return s.complete(snap)

	default:
		phase := st.Phase()
		unlock()
		zlog.Debug().Msgf("click ignored: key=%s phase=%s", key, phase)
		return nil
	}
}

// expire is the timer callback for one session generation.
func (s *Service) expire(key session.Key, sessionID string) {
	unlock := s.registry.Lock(key)
	st, err := s.registry.Get(key)
	if err != nil || st.ID != sessionID {
		unlock()
		return
	}

	res, err := st.Finish(s.config.Now())
	if err != nil || !res.Transitioned {
		unlock()
		return
	}
	snap := st.Snapshot()
	s.registry.Remove(key, snap.ID)
	unlock()

	zlog.Info().Msgf("session expired: key=%s session_id=%s score=%d", key, snap.ID, snap.Score)
	s.complete(snap)
}

// Leaderboard returns the top entries. The result is returned to the caller
// only; it is not broadcast.
func (s *Service) Leaderboard(ctx context.Context, q event.QueryLeaderboard) (event.Notification, error) {
	entries, stale, err := s.top(ctx, s.clampLimit(q.Limit))
	if err != nil {
		return event.Notification{}, err
	}
	return s.publisher.Stamp(event.LeaderboardSnapshot(session.Key{}, entries, stale)), nil
}

// Sessions returns snapshots of all live sessions ordered by key.
func (s *Service) Sessions() []session.Snapshot {
	snaps := s.registry.Snapshots()
	sort.Slice(snaps, func(i, j int) bool {
		if snaps[i].Key.ChatID != snaps[j].Key.ChatID {
			return snaps[i].Key.ChatID < snaps[j].Key.ChatID
		}
		return snaps[i].Key.UserID < snaps[j].Key.UserID
	})
	return snaps
}

// Status reports service counters.
func (s *Service) Status() Status {
	active := 0
	for _, snap := range s.registry.Snapshots() {
		if snap.Phase == session.PhaseActive {
			active++
		}
	}
	return Status{
		ActiveSessions: active,
		ArmedTimers:    s.timers.Pending(),
		PendingCommits: s.pending.len(),
		Subscribers:    s.publisher.SubscriberCount(),
		Store:          s.store.Name(),
	}
}

// Close stops all timers and makes a last attempt to flush queued commits.
// Sessions still active are abandoned without a commit.
func (s *Service) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		active := s.Status().ActiveSessions
		s.timers.Close()
		if active > 0 {
			zlog.Warn().Msgf("abandoning active sessions on shutdown: count=%d", active)
		}

		if s.pending.len() > 0 {
			if _, flushErr := s.FlushPending(ctx); flushErr != nil {
				err = flushErr
			}
		}
		s.cancel()
	})
	return err
}

func (s *Service) clampLimit(limit int) int {
	if limit <= 0 {
		return s.config.DefaultLimit
	}
	if limit > s.config.MaxLimit {
		return s.config.MaxLimit
	}
	return limit
}

// deliver fans out already stamped notifications and returns them.
func (s *Service) deliver(ns ...event.Notification) []event.Notification {
	for _, n := range ns {
		s.publisher.Deliver(n)
	}
	return ns
}

// rejectReason maps a Begin error to a rejection code. known is false for
// faults that are not part of the player flow.
func rejectReason(err error) (reason event.Reason, known bool) {
	switch {
	case errors.Is(err, session.ErrNotRegistered):
		return event.ReasonNotRegistered, true
	case errors.Is(err, session.ErrAlreadyPlaying):
		return event.ReasonAlreadyPlaying, true
	case errors.Is(err, session.ErrSessionFinished):
		return event.ReasonNotFound, true
	default:
		return event.ReasonInternal, false
	}
}

// Done is closed once the service is closed.
func (s *Service) Done() <-chan struct{} {
	return s.ctx.Done()
}
