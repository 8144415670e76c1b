package scorestore

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valkey-io/valkey-go"

	"github.com/osa030/chopbox/internal/domain/score"
	"github.com/osa030/chopbox/internal/infra/config"
)

type backend struct {
	name string
	open func(t *testing.T) Store
}

func backends() []backend {
	return []backend{
		{name: TypeMemory, open: func(t *testing.T) Store { return NewMemoryStore() }},
		{name: TypeJSONFile, open: func(t *testing.T) Store {
			s, err := OpenJSONFile(filepath.Join(t.TempDir(), "scores.json"))
			require.NoError(t, err)
			return s
		}},
		{name: TypeSQLite, open: func(t *testing.T) Store {
			s, err := OpenSQLite(context.Background(), SQLiteSettings{
				Path:          filepath.Join(t.TempDir(), "scores.db"),
				BusyTimeoutMs: 5000,
			})
			require.NoError(t, err)
			return s
		}},
		{name: TypeValkey, open: func(t *testing.T) Store {
			client, _ := newMiniredisClient(t)
			return NewValkeyStoreWithClient(client, "test")
		}},
	}
}

func newMiniredisClient(t *testing.T) (valkey.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress:       []string{mr.Addr()},
		DisableCache:      true,
		ForceSingleClient: true,
	})
	require.NoError(t, err)
	return client, mr
}

func rec(id, identity string, s int) score.Record {
	return score.Record{
		ID:          id,
		SessionID:   "session-" + id,
		Identity:    identity,
		Score:       s,
		CommittedAt: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestStore_TopTieOrder(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			defer s.Close()
			ctx := context.Background()

			require.NoError(t, s.Commit(ctx, rec("1", "ten", 10)))
			require.NoError(t, s.Commit(ctx, rec("2", "thirty-first", 30)))
			require.NoError(t, s.Commit(ctx, rec("3", "twenty", 20)))
			require.NoError(t, s.Commit(ctx, rec("4", "thirty-second", 30)))

			top, err := s.Top(ctx, 3)
			require.NoError(t, err)
			require.Len(t, top, 3)

			assert.Equal(t, "thirty-first", top[0].Identity)
			assert.Equal(t, 30, top[0].Score)
			assert.Equal(t, "thirty-second", top[1].Identity)
			assert.Equal(t, 30, top[1].Score)
			assert.Equal(t, "twenty", top[2].Identity)
			assert.Equal(t, 20, top[2].Score)
		})
	}
}

func TestStore_HistoryRetention(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			defer s.Close()
			ctx := context.Background()

			require.NoError(t, s.Commit(ctx, rec("1", "Alice", 5)))
			require.NoError(t, s.Commit(ctx, rec("2", "Alice", 8)))

			top, err := s.Top(ctx, 10)
			require.NoError(t, err)
			require.Len(t, top, 2)
			assert.Equal(t, 8, top[0].Score)
			assert.Equal(t, 5, top[1].Score)
			assert.Equal(t, "Alice", top[1].Identity)
		})
	}
}

func TestStore_CommitIdempotentByID(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			defer s.Close()
			ctx := context.Background()

			for i := 0; i < 3; i++ {
				require.NoError(t, s.Commit(ctx, rec("same", "Alice", 5)))
			}

			top, err := s.Top(ctx, 10)
			require.NoError(t, err)
			assert.Len(t, top, 1)
		})
	}
}

func TestStore_TopEmptyAndNonPositive(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			defer s.Close()
			ctx := context.Background()

			top, err := s.Top(ctx, 5)
			require.NoError(t, err)
			assert.Empty(t, top)

			require.NoError(t, s.Commit(ctx, rec("1", "Alice", 5)))
			top, err = s.Top(ctx, 0)
			require.NoError(t, err)
			assert.Empty(t, top)
		})
	}
}

func TestStore_ConcurrentCommits(t *testing.T) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			defer s.Close()
			ctx := context.Background()

			const n = 40
			var wg sync.WaitGroup
			errs := make(chan error, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					errs <- s.Commit(ctx, rec(fmt.Sprintf("c%d", i), fmt.Sprintf("p%d", i), i))
				}(i)
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}

			top, err := s.Top(ctx, n+10)
			require.NoError(t, err)
			assert.Len(t, top, n)
			assert.Equal(t, n-1, top[0].Score)
		})
	}
}

func TestJSONFileStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scores.json")
	ctx := context.Background()

	s, err := OpenJSONFile(path)
	require.NoError(t, err)
	require.NoError(t, s.Commit(ctx, rec("1", "Alice", 3)))
	require.NoError(t, s.Commit(ctx, rec("2", "Bob", 3)))

	reopened, err := OpenJSONFile(path)
	require.NoError(t, err)

	// Commit IDs survive a reopen.
	require.NoError(t, reopened.Commit(ctx, rec("1", "Alice", 3)))
	require.NoError(t, reopened.Commit(ctx, rec("3", "Carol", 3)))

	top, err := reopened.Top(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, []string{"Alice", "Bob", "Carol"},
		[]string{top[0].Identity, top[1].Identity, top[2].Identity})
}

func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scores.db")
	ctx := context.Background()

	s, err := OpenSQLite(ctx, SQLiteSettings{Path: path})
	require.NoError(t, err)
	require.NoError(t, s.Commit(ctx, rec("1", "Alice", 3)))
	require.NoError(t, s.Close())

	reopened, err := OpenSQLite(ctx, SQLiteSettings{Path: path})
	require.NoError(t, err)
	defer reopened.Close()

	top, err := reopened.Top(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "Alice", top[0].Identity)
	assert.Equal(t, time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC), top[0].CommittedAt)
}

func TestValkeyStore_UnavailableWhenServerDown(t *testing.T) {
	client, mr := newMiniredisClient(t)
	s := NewValkeyStoreWithClient(client, "test")
	defer s.Close()

	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := s.Commit(ctx, rec("1", "Alice", 1))
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))

	_, err = s.Top(ctx, 3)
	require.Error(t, err)
	assert.True(t, IsUnavailable(err))
}

func TestStore_CancelledContextIsNotUnavailable(t *testing.T) {
	for _, b := range []backend{backends()[0], backends()[1]} {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			defer s.Close()

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			err := s.Commit(ctx, rec("1", "Alice", 1))
			require.Error(t, err)
			assert.True(t, errors.Is(err, context.Canceled))
			assert.False(t, IsUnavailable(err))

			_, err = s.Top(ctx, 3)
			require.Error(t, err)
			assert.False(t, IsUnavailable(err))

			top, err := s.Top(context.Background(), 3)
			require.NoError(t, err)
			assert.Empty(t, top)
		})
	}
}

func TestStore_CommittedAtPrecision(t *testing.T) {
	at := time.Date(2025, 3, 4, 5, 6, 7, 123456789, time.UTC)

	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			s := b.open(t)
			defer s.Close()
			ctx := context.Background()

			r := rec("1", "Alice", 7)
			r.CommittedAt = at
			require.NoError(t, s.Commit(ctx, r))

			top, err := s.Top(ctx, 1)
			require.NoError(t, err)
			require.Len(t, top, 1)
			assert.True(t, at.Equal(top[0].CommittedAt), "got %s", top[0].CommittedAt)
		})
	}
}

// splitClient sends the first n commands to the embedded client and the
// rest to dead, simulating a connection that drops mid-commit.
type splitClient struct {
	valkey.Client
	dead valkey.Client
	left atomic.Int32
}

func newSplitClient(live, dead valkey.Client, n int32) *splitClient {
	c := &splitClient{Client: live, dead: dead}
	c.left.Store(n)
	return c
}

func (c *splitClient) Do(ctx context.Context, cmd valkey.Completed) valkey.ValkeyResult {
	if c.left.Add(-1) >= 0 {
		return c.Client.Do(ctx, cmd)
	}
	return c.dead.Do(ctx, cmd)
}

func TestValkeyStore_CommitSurvivesDroppedConnection(t *testing.T) {
	live, _ := newMiniredisClient(t)
	defer live.Close()
	dead, deadServer := newMiniredisClient(t)
	defer dead.Close()
	deadServer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for _, n := range []int32{1, 2} {
		t.Run(fmt.Sprintf("cut after %d", n), func(t *testing.T) {
			prefix := fmt.Sprintf("cut%d", n)
			flaky := NewValkeyStoreWithClient(newSplitClient(live, dead, n), prefix)
			healthy := NewValkeyStoreWithClient(live, prefix)
			r := rec("commit-1", "Alice", 5)

			if err := flaky.Commit(ctx, r); err != nil {
				assert.True(t, IsUnavailable(err))
			}

			// The retry must land exactly one row whatever the first attempt did.
			require.NoError(t, healthy.Commit(ctx, r))
			require.NoError(t, healthy.Commit(ctx, r))

			top, err := healthy.Top(ctx, 10)
			require.NoError(t, err)
			require.Len(t, top, 1)
			assert.Equal(t, "Alice", top[0].Identity)
			assert.Equal(t, 5, top[0].Score)
		})
	}
}

func TestNewFromConfig(t *testing.T) {
	dir := t.TempDir()
	mr := miniredis.RunT(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		cfg      config.StoreConfig
		wantName string
		wantErr  string
	}{
		{
			name:     "default is memory",
			cfg:      config.StoreConfig{},
			wantName: TypeMemory,
		},
		{
			name:     "jsonfile",
			cfg:      config.StoreConfig{Type: TypeJSONFile, Settings: map[string]any{"path": filepath.Join(dir, "s.json")}},
			wantName: TypeJSONFile,
		},
		{
			name:     "sqlite",
			cfg:      config.StoreConfig{Type: TypeSQLite, Settings: map[string]any{"path": filepath.Join(dir, "s.db")}},
			wantName: TypeSQLite,
		},
		{
			name:     "valkey",
			cfg:      config.StoreConfig{Type: TypeValkey, Settings: map[string]any{"addr": mr.Addr(), "disable_cache": true}},
			wantName: TypeValkey,
		},
		{
			name:    "valkey without addr",
			cfg:     config.StoreConfig{Type: TypeValkey, Settings: map[string]any{}},
			wantErr: "Addr",
		},
		{
			name:    "unknown type",
			cfg:     config.StoreConfig{Type: "postgres"},
			wantErr: "unsupported store type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewFromConfig(ctx, tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			defer s.Close()
			assert.Equal(t, tt.wantName, s.Name())
		})
	}
}
