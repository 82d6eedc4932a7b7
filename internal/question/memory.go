package question

import (
	"cmp"
	"context"
	"math/rand"
	"slices"
	"sync"

	"github.com/victornm/quizdom/internal/domain"
)

// Memory is an in-memory question bank with the same contract as Postgres.
// It backs tests and DB-less runs.
type Memory struct {
	mu         sync.RWMutex
	categories map[int64]domain.Category
	questions  map[int64]domain.Question
	order      []int64 // insertion order, for stable iteration
}

func NewMemory() *Memory {
	return &Memory{
		categories: make(map[int64]domain.Category),
		questions:  make(map[int64]domain.Question),
	}
}

func (m *Memory) AddCategory(c domain.Category) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.categories[c.CategoryID] = c
}

func (m *Memory) AddQuestion(q domain.Question) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.questions[q.QuestionID]; !ok {
		m.order = append(m.order, q.QuestionID)
	}
	m.questions[q.QuestionID] = q
}

func (m *Memory) Sample(_ context.Context, categoryID int64, difficulty domain.Difficulty, count int) ([]domain.Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var pool []domain.Question
	for _, id := range m.order {
		q := m.questions[id]
		if !q.Active || q.CategoryID != categoryID {
			continue
		}
		if difficulty != domain.DifficultyAny && q.Difficulty != difficulty {
			continue
		}
		pool = append(pool, q)
	}

	if len(pool) < count {
		return nil, poolExhausted(categoryID, difficulty, count, len(pool))
	}

	rand.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})

	return pool[:count], nil
}

func (m *Memory) Get(_ context.Context, questionID int64) (domain.Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	q, ok := m.questions[questionID]
	if !ok {
		return domain.Question{}, questionNotFound(questionID)
	}

	return q, nil
}

func (m *Memory) GetCategory(_ context.Context, categoryID int64) (domain.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.categories[categoryID]
	if !ok {
		return domain.Category{}, categoryNotFound(categoryID)
	}

	return c, nil
}

func (m *Memory) CountQuestions(_ context.Context, categoryID int64) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var count int64
	for _, q := range m.questions {
		if !q.Active {
			continue
		}
		if categoryID != 0 && q.CategoryID != categoryID {
			continue
		}
		count++
	}

	return count, nil
}

func (m *Memory) ListCategories(_ context.Context) ([]domain.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	categories := make([]domain.Category, 0, len(m.categories))
	for _, c := range m.categories {
		categories = append(categories, c)
	}

	slices.SortFunc(categories, func(a, b domain.Category) int {
		return cmp.Compare(a.CategoryID, b.CategoryID)
	})

	return categories, nil
}
