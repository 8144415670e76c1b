package connect

import (
	"time"

	gamev1 "github.com/osa030/chopbox/internal/api/gamev1"
	"github.com/osa030/chopbox/internal/domain/event"
	"github.com/osa030/chopbox/internal/domain/session"
	"github.com/osa030/chopbox/internal/infra/config"
)

func toKey(k gamev1.SessionKey) session.Key {
	return session.Key{ChatID: k.ChatID, UserID: k.UserID}
}

func fromKey(k session.Key) gamev1.SessionKey {
	return gamev1.SessionKey{ChatID: k.ChatID, UserID: k.UserID}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// toNotification renders n for the wire. Rejections carry the configured
// user-facing message.
func toNotification(n event.Notification, cfg *config.Config) *gamev1.Notification {
	out := &gamev1.Notification{
		Kind:       n.Kind.String(),
		SequenceNo: n.SequenceNo,
		Key:        fromKey(n.SessionKey),
	}

	switch n.Kind {
	case event.KindSessionStarted:
		out.Deadline = formatTime(n.Deadline)
	case event.KindClickAcknowledged:
		out.CurrentScore = n.CurrentScore
	case event.KindSessionEnded:
		out.Identity = n.Identity
		out.FinalScore = n.FinalScore
	case event.KindLeaderboardSnapshot:
		out.Stale = n.Stale
		out.Entries = make([]*gamev1.LeaderboardEntry, len(n.Entries))
		for i, e := range n.Entries {
			out.Entries[i] = &gamev1.LeaderboardEntry{
				Rank:        i + 1,
				Identity:    e.Identity,
				Score:       e.Score,
				CommittedAt: formatTime(e.CommittedAt),
			}
		}
	case event.KindRejected:
		out.Reason = string(n.Reason)
		out.Message = cfg.GetMessage(string(n.Reason))
	}
	return out
}

func toNotifications(ns []event.Notification, cfg *config.Config) []*gamev1.Notification {
	out := make([]*gamev1.Notification, len(ns))
	for i, n := range ns {
		out[i] = toNotification(n, cfg)
	}
	return out
}
