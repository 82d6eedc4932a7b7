package leaderboard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/quizdom/internal/domain"
	"github.com/victornm/quizdom/internal/errors"
	"github.com/victornm/quizdom/internal/event"
)

const (
	publishInterval = 200 * time.Millisecond

	// publishTop caps how many entries ride along in a leaderboard.updated
	// event.
	publishTop = 10

	defaultLimit = 50
	maxLimit     = 100
)

// Store holds the authoritative, immutable leaderboard entries.
type Store interface {
	Insert(ctx context.Context, e domain.LeaderboardEntry) error
	// List returns entries matching the filter, ordered by score descending
	// then time taken ascending, capped at filter.Limit.
	List(ctx context.Context, f Filter) ([]domain.LeaderboardEntry, error)
}

// Filter narrows a leaderboard query. Zero values match everything.
type Filter struct {
	CategoryID int64
	Difficulty domain.Difficulty
	Limit      int
}

type Config struct {
	EventBus *event.Bus
	Store    Store
	Redis    redis.UniversalClient
	Prefix   string
}

// Service accepts one entry per completed quiz session and answers ranking
// queries. After each append it publishes a leaderboard.updated event,
// debounced through redis so a burst of completions collapses into one event
// per interval and per ranking.
type Service struct {
	eb     *event.Bus
	store  Store
	redis  redis.UniversalClient
	prefix string
}

func NewService(c Config) *Service {
	return &Service{
		eb:     c.EventBus,
		store:  c.Store,
		redis:  c.Redis,
		prefix: c.Prefix,
	}
}

// Append records one completed session's result. Entries are immutable after
// this call. Notification is best-effort: once the entry is durable, a redis
// blip must not fail the append.
func (s *Service) Append(ctx context.Context, e domain.LeaderboardEntry) error {
	if err := s.store.Insert(ctx, e); err != nil {
		return fmt.Errorf("insert leaderboard entry: %w", err)
	}

	if err := s.schedulePublish(ctx, e); err != nil {
		slog.ErrorContext(ctx, "leaderboard: schedule publish failed", "error", err)
	}

	return nil
}

type QueryRequest struct {
	// CategoryID filters by category; 0 matches all categories.
	CategoryID int64
	// Difficulty filters by difficulty; empty matches all difficulties.
	Difficulty string
	// Limit caps the result; 0 means the default.
	Limit int
}

// Query returns the top entries for the filter, ordered by score descending
// then time taken ascending.
func (s *Service) Query(ctx context.Context, req QueryRequest) ([]domain.LeaderboardEntry, error) {
	difficulty := domain.DifficultyAny
	if req.Difficulty != "" {
		var ok bool
		difficulty, ok = domain.ParseDifficulty(req.Difficulty)
		if !ok {
			return nil, errors.New(errors.CodeInvalidArgument,
				errors.WithMessagef("invalid difficulty: %q", req.Difficulty))
		}
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	return s.store.List(ctx, Filter{
		CategoryID: req.CategoryID,
		Difficulty: difficulty,
		Limit:      limit,
	})
}

// Top returns the highest scores across all categories and difficulties.
func (s *Service) Top(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	return s.Query(ctx, QueryRequest{Limit: limit})
}

// schedulePublish publishes the updated ranking after a certain interval.
// A redis SetNX key per ranking suppresses further publishes within the
// interval, which also keeps multiple instances from publishing at once.
func (s *Service) schedulePublish(ctx context.Context, e domain.LeaderboardEntry) error {
	ok, err := s.redis.SetNX(ctx, s.publishKey(e), e.CreatedAt.UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok {
		return nil
	}

	return s.publish(ctx, e)
}

func (s *Service) publish(ctx context.Context, e domain.LeaderboardEntry) error {
	top, err := s.store.List(ctx, Filter{
		CategoryID: e.CategoryID,
		Difficulty: e.Difficulty,
		Limit:      publishTop,
	})
	if err != nil {
		return fmt.Errorf("list leaderboard: %w", err)
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		Leaderboard: domain.Leaderboard{
			CategoryID: e.CategoryID,
			Difficulty: e.Difficulty,
			Entries:    top,
		},
	})

	return nil
}

func (s *Service) publishKey(e domain.LeaderboardEntry) string {
	return fmt.Sprintf("%s:category:%d:%s:time", s.prefix, e.CategoryID, e.Difficulty)
}
