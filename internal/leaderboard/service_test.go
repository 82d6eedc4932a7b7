package leaderboard_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/victornm/quizdom/internal/domain"
	qerrors "github.com/victornm/quizdom/internal/errors"
	"github.com/victornm/quizdom/internal/event"
	"github.com/victornm/quizdom/internal/leaderboard"
)

func TestService_AppendQuery(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := makeService(t)

	entries := []domain.LeaderboardEntry{
		makeEntry("e1", "alice", 25, 1, domain.DifficultyEasy, 120),
		makeEntry("e2", "bob", 40, 1, domain.DifficultyMedium, 90),
		makeEntry("e3", "carol", 40, 1, domain.DifficultyMedium, 60),
		makeEntry("e4", "dave", 15, 2, domain.DifficultyEasy, 30),
	}
	for _, e := range entries {
		require.NoError(t, s.Append(ctx, e))
	}

	t.Run("orders by score desc then time asc", func(t *testing.T) {
		got, err := s.Query(ctx, leaderboard.QueryRequest{})
		require.NoError(t, err)
		require.Equal(t, []string{"carol", "bob", "alice", "dave"}, names(got))
	})

	t.Run("filters by category", func(t *testing.T) {
		got, err := s.Query(ctx, leaderboard.QueryRequest{CategoryID: 2})
		require.NoError(t, err)
		require.Equal(t, []string{"dave"}, names(got))
	})

	t.Run("filters by difficulty", func(t *testing.T) {
		got, err := s.Query(ctx, leaderboard.QueryRequest{Difficulty: "easy"})
		require.NoError(t, err)
		require.Equal(t, []string{"alice", "dave"}, names(got))
	})

	t.Run("filters by category and difficulty", func(t *testing.T) {
		got, err := s.Query(ctx, leaderboard.QueryRequest{CategoryID: 1, Difficulty: "medium"})
		require.NoError(t, err)
		require.Equal(t, []string{"carol", "bob"}, names(got))
	})

	t.Run("caps at the limit", func(t *testing.T) {
		got, err := s.Top(ctx, 2)
		require.NoError(t, err)
		require.Equal(t, []string{"carol", "bob"}, names(got))
	})

	t.Run("rejects an unknown difficulty", func(t *testing.T) {
		_, err := s.Query(ctx, leaderboard.QueryRequest{Difficulty: "impossible"})
		require.True(t, qerrors.HasCode(err, qerrors.CodeInvalidArgument), "got: %v", err)
	})
}

// Once the entry is stored, a redis failure must not fail the append.
func TestService_Append_RedisDown(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})

	s := leaderboard.NewService(leaderboard.Config{
		EventBus: event.NewBus(),
		Store:    leaderboard.NewMemory(),
		Redis:    rc,
		Prefix:   "test:leaderboard",
	})

	rs.SetError("redis is down")

	err := s.Append(ctx, makeEntry("e1", "alice", 25, 1, domain.DifficultyEasy, 120))
	require.NoError(t, err, "a notification failure must not surface to the caller")

	rs.SetError("")

	got, err := s.Query(ctx, leaderboard.QueryRequest{})
	require.NoError(t, err)
	require.Equal(t, []string{"alice"}, names(got), "the entry should be stored despite the redis outage")
}

func TestService_PublishLeaderboardUpdated(t *testing.T) {
	type (
		inputs struct {
			appended []domain.LeaderboardEntry
		}

		outputs struct {
			publishedEvents []domain.EventLeaderboardUpdated
		}
	)

	tests := map[string]struct {
		arrange func() inputs
		assert  func(t *testing.T, out outputs)
	}{
		"should publish leaderboard.updated after an append": {
			arrange: func() inputs {
				return inputs{
					appended: []domain.LeaderboardEntry{
						makeEntry("e1", "alice", 25, 1, domain.DifficultyEasy, 120),
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 1, "should receive 1 leaderboard updated event")

				l := out.publishedEvents[0].Leaderboard
				require.Equal(t, int64(1), l.CategoryID)
				require.Equal(t, domain.DifficultyEasy, l.Difficulty)
				require.Equal(t, []string{"alice"}, names(l.Entries))
			},
		},

		"should publish 2 events for appends to 2 different rankings": {
			arrange: func() inputs {
				return inputs{
					appended: []domain.LeaderboardEntry{
						makeEntry("e1", "alice", 25, 1, domain.DifficultyEasy, 120),
						makeEntry("e2", "bob", 40, 2, domain.DifficultyEasy, 90),
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 2, "should receive 2 leaderboard updated events")
			},
		},

		"should collapse appends to the same ranking within the publish interval": {
			arrange: func() inputs {
				return inputs{
					appended: []domain.LeaderboardEntry{
						makeEntry("e1", "alice", 25, 1, domain.DifficultyEasy, 120),
						makeEntry("e2", "bob", 40, 1, domain.DifficultyEasy, 90),
					},
				}
			},

			assert: func(t *testing.T, out outputs) {
				require.Len(t, out.publishedEvents, 1, "should receive 1 leaderboard updated event")
			},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			in, out := tt.arrange(), outputs{}

			eb := event.NewBus()

			var mu sync.Mutex
			eb.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
				mu.Lock()
				out.publishedEvents = append(out.publishedEvents, e.(domain.EventLeaderboardUpdated))
				mu.Unlock()
				return nil
			})

			s := makeService(t, withEventBus(eb))

			for _, e := range in.appended {
				err := s.Append(context.Background(), e)
				require.NoError(t, err)
			}

			eb.Stop()

			tt.assert(t, out)
		})
	}
}

func makeService(t *testing.T, opts ...options) *leaderboard.Service {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	rs := miniredis.RunT(t)
	rc := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: []string{rs.Addr()},
	})
	require.NoError(t, rc.Ping(ctx).Err(), "should be able to ping redis")

	c := leaderboard.Config{
		EventBus: event.NewBus(),
		Store:    leaderboard.NewMemory(),
		Redis:    rc,
		Prefix:   "test:leaderboard",
	}

	for _, opt := range opts {
		opt(&c)
	}

	return leaderboard.NewService(c)
}

type options func(c *leaderboard.Config)

func withEventBus(eb *event.Bus) options {
	return func(c *leaderboard.Config) {
		c.EventBus = eb
	}
}

func makeEntry(id, player string, score int, categoryID int64, difficulty domain.Difficulty, timeTaken int) domain.LeaderboardEntry {
	return domain.LeaderboardEntry{
		EntryID:    id,
		PlayerName: player,
		Score:      score,
		CategoryID: categoryID,
		Difficulty: difficulty,
		Accuracy:   80,
		TimeTaken:  timeTaken,
		CreatedAt:  time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func names(entries []domain.LeaderboardEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.PlayerName)
	}
	return out
}
