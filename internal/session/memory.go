package session

import (
	"context"
	"slices"
	"sync"

	"github.com/victornm/quizdom/internal/domain"
	"github.com/victornm/quizdom/internal/errors"
)

// Memory is a process-lifetime session store keyed by token. Updates are
// serialized per token through a compare-and-swap on the session version, so
// two concurrent submissions against the same token cannot both advance it.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]*domain.Session),
	}
}

func (m *Memory) Create(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[s.Token]; ok {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("session token already exists"))
	}

	m.sessions[s.Token] = clone(s)
	return nil
}

func (m *Memory) Get(_ context.Context, token string) (*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[token]
	if !ok {
		return nil, notFound(token)
	}

	return clone(s), nil
}

// Update applies s if and only if its version matches the stored one, then
// bumps the stored version. A mismatch means another update won the race.
func (m *Memory) Update(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.sessions[s.Token]
	if !ok {
		return notFound(s.Token)
	}

	if cur.Version != s.Version {
		return conflict()
	}

	next := clone(s)
	next.Version++
	m.sessions[s.Token] = next
	return nil
}

func (m *Memory) Stats(_ context.Context) (domain.SessionStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var (
		st       domain.SessionStats
		score    int64
		byCat    = make(map[int64]int64)
		topCount int64
	)

	for _, s := range m.sessions {
		st.TotalSessions++
		byCat[s.CategoryID]++
		if s.Completed {
			st.CompletedSessions++
			score += int64(s.Score)
		}
	}

	if st.CompletedSessions > 0 {
		st.AverageScore = float64(score) / float64(st.CompletedSessions)
	}

	// Ties break toward the lowest category ID so the result is stable.
	for id, n := range byCat {
		if n > topCount || (n == topCount && id < st.PopularCategoryID) {
			st.PopularCategoryID = id
			topCount = n
		}
	}

	return st, nil
}

func notFound(token string) error {
	return errors.New(errors.CodeNotFound,
		errors.WithMessagef("quiz session not found: token=%s", token))
}

func conflict() error {
	return errors.New(errors.CodeAborted,
		errors.WithMessagef("quiz session was modified concurrently"))
}

func clone(s *domain.Session) *domain.Session {
	c := *s
	c.QuestionIDs = slices.Clone(s.QuestionIDs)
	c.Answers = slices.Clone(s.Answers)
	return &c
}
