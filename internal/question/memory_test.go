package question_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/victornm/quizdom/internal/domain"
	qerrors "github.com/victornm/quizdom/internal/errors"
	"github.com/victornm/quizdom/internal/question"
)

func TestMemory_Sample(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := question.NewMemory()
	seed(repo, 100, 1, domain.DifficultyEasy, 5)
	seed(repo, 200, 1, domain.DifficultyHard, 3)
	seed(repo, 300, 2, domain.DifficultyEasy, 4)

	t.Run("draws distinct questions from the right pool", func(t *testing.T) {
		qs, err := repo.Sample(ctx, 1, domain.DifficultyEasy, 5)
		require.NoError(t, err)
		require.Len(t, qs, 5)

		seen := make(map[int64]bool)
		for _, q := range qs {
			require.Equal(t, int64(1), q.CategoryID)
			require.Equal(t, domain.DifficultyEasy, q.Difficulty)
			require.False(t, seen[q.QuestionID], "duplicate question %d", q.QuestionID)
			seen[q.QuestionID] = true
		}
	})

	t.Run("any difficulty widens the pool", func(t *testing.T) {
		qs, err := repo.Sample(ctx, 1, domain.DifficultyAny, 8)
		require.NoError(t, err)
		require.Len(t, qs, 8)
	})

	t.Run("fails when the pool is too small", func(t *testing.T) {
		_, err := repo.Sample(ctx, 1, domain.DifficultyEasy, 6)
		require.True(t, qerrors.HasCode(err, qerrors.CodeResourceExhausted), "got: %v", err)
	})

	t.Run("ignores inactive questions", func(t *testing.T) {
		repo := question.NewMemory()
		repo.AddQuestion(domain.Question{QuestionID: 1, CategoryID: 1, Difficulty: domain.DifficultyEasy, Active: false})

		_, err := repo.Sample(ctx, 1, domain.DifficultyEasy, 1)
		require.True(t, qerrors.HasCode(err, qerrors.CodeResourceExhausted), "got: %v", err)
	})
}

func TestMemory_Get(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := question.NewMemory()
	seed(repo, 100, 1, domain.DifficultyEasy, 1)

	q, err := repo.Get(ctx, 100)
	require.NoError(t, err)
	require.Equal(t, int64(100), q.QuestionID)

	_, err = repo.Get(ctx, 404)
	require.True(t, qerrors.HasCode(err, qerrors.CodeNotFound), "got: %v", err)
}

func TestMemory_Categories(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := question.NewMemory()
	repo.AddCategory(domain.Category{CategoryID: 2, Name: "history", Active: true})
	repo.AddCategory(domain.Category{CategoryID: 1, Name: "science", Active: true})

	c, err := repo.GetCategory(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "science", c.Name)

	_, err = repo.GetCategory(ctx, 404)
	require.True(t, qerrors.HasCode(err, qerrors.CodeNotFound), "got: %v", err)

	categories, err := repo.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, categories, 2)
	require.Equal(t, "science", categories[0].Name, "categories should be ordered by id")
}

func seed(repo *question.Memory, base, categoryID int64, difficulty domain.Difficulty, n int) {
	for i := 0; i < n; i++ {
		id := base + int64(i)
		repo.AddQuestion(domain.Question{
			QuestionID: id,
			Text:       fmt.Sprintf("question %d", id),
			CategoryID: categoryID,
			Difficulty: difficulty,
			Options:    [4]string{"a", "b", "c", "d"},
			Active:     true,
		})
	}
}
