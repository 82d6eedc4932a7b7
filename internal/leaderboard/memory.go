package leaderboard

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/victornm/quizdom/internal/domain"
)

// Memory is an in-memory Store for tests and DB-less runs.
type Memory struct {
	mu      sync.RWMutex
	entries []domain.LeaderboardEntry
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Insert(_ context.Context, e domain.LeaderboardEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = append(m.entries, e)
	return nil
}

func (m *Memory) List(_ context.Context, f Filter) ([]domain.LeaderboardEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.LeaderboardEntry
	for _, e := range m.entries {
		if f.CategoryID != 0 && e.CategoryID != f.CategoryID {
			continue
		}
		if f.Difficulty != domain.DifficultyAny && e.Difficulty != f.Difficulty {
			continue
		}
		out = append(out, e)
	}

	slices.SortStableFunc(out, func(a, b domain.LeaderboardEntry) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.TimeTaken, b.TimeTaken)
	})

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}

	return out, nil
}
