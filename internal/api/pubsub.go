package api

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/quizdom/internal/domain"
)

const maxConcurrent = 100

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	Leaderboard struct {
		CategoryID int64              `json:"category_id"`
		Difficulty string             `json:"difficulty"`
		Entries    []LeaderboardEntry `json:"entries"`
	}

	LeaderboardEntry struct {
		PlayerName string  `json:"player_name"`
		Score      int     `json:"score"`
		CategoryID int64   `json:"category_id"`
		Difficulty string  `json:"difficulty"`
		Accuracy   float64 `json:"accuracy"`
		TimeTaken  int     `json:"time_taken"`
		Date       string  `json:"date"`
	}
)

// PublishLeaderboardUpdated fans the updated ranking out to the pub/sub
// channels a display client may be watching: the global one, the category's
// and the difficulty's.
func (a *API) PublishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	l := e.Leaderboard

	data := Leaderboard{
		CategoryID: l.CategoryID,
		Difficulty: string(l.Difficulty),
		Entries:    leaderboardEntries(l.Entries),
	}

	channels := []string{
		fmt.Sprintf("%s:leaderboard", a.prefix),
		fmt.Sprintf("%s:leaderboard:category:%d", a.prefix, l.CategoryID),
		fmt.Sprintf("%s:leaderboard:difficulty:%s", a.prefix, l.Difficulty),
	}

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for _, ch := range channels {
		ch := ch
		eg.Go(func() error {
			return a.publishNotification(ctx, ch, e.Name(), data)
		})
	}

	return eg.Wait()
}

func (a *API) publishNotification(ctx context.Context, channel, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, channel, b).Err()
}
