package scorestore

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/valkey-io/valkey-go"

	"github.com/osa030/chopbox/internal/domain/score"
)

// ValkeySettings configures the Valkey backend.
type ValkeySettings struct {
	Addr          string `yaml:"addr" mapstructure:"addr" validate:"required"`
	Username      string `yaml:"username" mapstructure:"username"`
	Password      string `yaml:"password" mapstructure:"password"`
	DB            int    `yaml:"db" mapstructure:"db" validate:"gte=0"`
	KeyPrefix     string `yaml:"key_prefix" mapstructure:"key_prefix" default:"chopbox" validate:"required"`
	DialTimeoutMs int    `yaml:"dial_timeout_ms" mapstructure:"dial_timeout_ms" default:"3000" validate:"gte=0"`
	DisableCache  bool   `yaml:"disable_cache" mapstructure:"disable_cache"`
}

// commitScript records one score atomically. KEYS: commit guard, sequence,
// board. ARGV: commit ID (empty skips the guard), score, committed time in
// unix nanoseconds, identity. Returns 0 when the commit ID was already seen.
const commitScript = `
if ARGV[1] ~= '' and not redis.call('SET', KEYS[1], '1', 'NX') then
  return 0
end
local seq = redis.call('INCR', KEYS[2])
local member = string.format('%015d', 999999999999999 - seq) .. '|' .. ARGV[3] .. '|' .. ARGV[4]
redis.call('ZADD', KEYS[3], ARGV[2], member)
return 1
`

// ValkeyStore keeps the leaderboard in a sorted set.
//
// Members encode (inverted arrival sequence, committed time, identity) so
// that ZREVRANGE, which orders equal scores by member descending, yields
// earlier commits first. Keys share one hash tag so the commit script stays
// on a single slot.
type ValkeyStore struct {
	client    valkey.Client
	commit    *valkey.Lua
	boardKey  string
	seqKey    string
	commitKey string
}

// NewValkeyStore decodes settings and connects to Valkey.
func NewValkeyStore(ctx context.Context, settings map[string]any) (*ValkeyStore, error) {
	var cfg ValkeySettings
	if err := decodeSettings(settings, &cfg); err != nil {
		return nil, errors.Wrap(err, "invalid valkey settings")
	}

	opts := valkey.ClientOption{
		InitAddress:  []string{strings.TrimSpace(cfg.Addr)},
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: cfg.DisableCache,
	}
	if cfg.DialTimeoutMs > 0 {
		opts.Dialer.Timeout = time.Duration(cfg.DialTimeoutMs) * time.Millisecond
	}

	client, err := valkey.NewClient(opts)
	if err != nil {
		return nil, unavailable(err, "create valkey client")
	}

	store := NewValkeyStoreWithClient(client, cfg.KeyPrefix)
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, unavailable(err, "valkey ping")
	}
	return store, nil
}

// NewValkeyStoreWithClient wraps an existing client.
func NewValkeyStoreWithClient(client valkey.Client, keyPrefix string) *ValkeyStore {
	tag := "{" + keyPrefix + "}"
	return &ValkeyStore{
		client:    client,
		commit:    valkey.NewLuaScript(commitScript),
		boardKey:  tag + ":leaderboard",
		seqKey:    tag + ":leaderboard:seq",
		commitKey: tag + ":commit:",
	}
}

// Commit adds rec to the sorted set; a repeated commit ID is ignored.
// The guard, sequence and insert run as one script, so a failed call leaves
// nothing behind and a retry of an applied call is a no-op.
func (s *ValkeyStore) Commit(ctx context.Context, rec score.Record) error {
	keys := []string{s.commitKey + rec.ID, s.seqKey, s.boardKey}
	args := []string{
		rec.ID,
		strconv.Itoa(rec.Score),
		strconv.FormatInt(rec.CommittedAt.UnixNano(), 10),
		rec.Identity,
	}
	if err := s.commit.Exec(ctx, s.client, keys, args).Error(); err != nil {
		return unavailable(err, "valkey commit")
	}
	return nil
}

// Top returns up to n entries.
func (s *ValkeyStore) Top(ctx context.Context, n int) ([]score.Entry, error) {
	if n <= 0 {
		return []score.Entry{}, nil
	}

	cmd := s.client.B().Zrevrange().Key(s.boardKey).Start(0).Stop(int64(n - 1)).Withscores().Build()
	zs, err := s.client.Do(ctx, cmd).AsZScores()
	if err != nil {
		return nil, unavailable(err, "valkey zrevrange")
	}

	entries := make([]score.Entry, 0, len(zs))
	for _, z := range zs {
		at, identity, err := decodeMember(z.Member)
		if err != nil {
			return nil, errors.Wrapf(err, "malformed leaderboard member %q", z.Member)
		}
		entries = append(entries, score.Entry{
			Identity:    identity,
			Score:       int(z.Score),
			CommittedAt: at,
		})
	}
	return entries, nil
}

// Close closes the client.
func (s *ValkeyStore) Close() error {
	if s.client != nil {
		s.client.Close()
	}
	return nil
}

// Name returns the backend type name.
func (s *ValkeyStore) Name() string {
	return TypeValkey
}

func decodeMember(member string) (time.Time, string, error) {
	parts := strings.SplitN(member, "|", 3)
	if len(parts) != 3 {
		return time.Time{}, "", errors.New("expected 3 fields")
	}
	ns, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return time.Time{}, "", errors.Wrap(err, "parse committed time")
	}
	return time.Unix(0, ns).UTC(), parts[2], nil
}
