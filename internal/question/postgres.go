package question

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/quizdom/internal/domain"
	"github.com/victornm/quizdom/internal/errors"
)

// Postgres serves the question bank from the quiz database.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

const questionColumns = `
	question_id, question_text, category_id, difficulty,
	option_1, option_2, option_3, option_4,
	correct_option, explanation, is_active`

// Sample draws count distinct active questions uniformly at random.
// difficulty narrows the pool; domain.DifficultyAny draws across all
// difficulties.
func (p *Postgres) Sample(ctx context.Context, categoryID int64, difficulty domain.Difficulty, count int) ([]domain.Question, error) {
	stmt := `
SELECT` + questionColumns + `
FROM questions
WHERE category_id = $1 AND is_active`
	args := []any{categoryID}

	if difficulty != domain.DifficultyAny {
		stmt += ` AND difficulty = $2`
		args = append(args, string(difficulty))
	}

	stmt += fmt.Sprintf(` ORDER BY random() LIMIT $%d;`, len(args)+1)
	args = append(args, count)

	rows, err := p.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("sample questions: %w", err)
	}

	questions, err := pgx.CollectRows(rows, scanQuestion)
	if err != nil {
		return nil, fmt.Errorf("sample questions: %w", err)
	}

	if len(questions) < count {
		return nil, poolExhausted(categoryID, difficulty, count, len(questions))
	}

	return questions, nil
}

func (p *Postgres) Get(ctx context.Context, questionID int64) (domain.Question, error) {
	const stmt = `
SELECT` + questionColumns + `
FROM questions
WHERE question_id = $1;`

	rows, err := p.db.Query(ctx, stmt, questionID)
	if err != nil {
		return domain.Question{}, fmt.Errorf("select question: %w", err)
	}

	q, err := pgx.CollectOneRow(rows, scanQuestion)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return domain.Question{}, questionNotFound(questionID)
	}
	if err != nil {
		return domain.Question{}, fmt.Errorf("select question: %w", err)
	}

	return q, nil
}

func (p *Postgres) GetCategory(ctx context.Context, categoryID int64) (domain.Category, error) {
	const stmt = `
SELECT category_id, name, display_name, description, is_active
FROM categories
WHERE category_id = $1;`

	var c domain.Category
	err := p.db.QueryRow(ctx, stmt, categoryID).Scan(
		&c.CategoryID, &c.Name, &c.DisplayName, &c.Description, &c.Active,
	)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return domain.Category{}, categoryNotFound(categoryID)
	}
	if err != nil {
		return domain.Category{}, fmt.Errorf("select category: %w", err)
	}

	return c, nil
}

func (p *Postgres) CountQuestions(ctx context.Context, categoryID int64) (int64, error) {
	stmt := `
SELECT COUNT(*)
FROM questions
WHERE is_active`
	var args []any

	if categoryID != 0 {
		stmt += ` AND category_id = $1`
		args = append(args, categoryID)
	}

	var count int64
	if err := p.db.QueryRow(ctx, stmt+`;`, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count questions: %w", err)
	}

	return count, nil
}

func (p *Postgres) ListCategories(ctx context.Context) ([]domain.Category, error) {
	const stmt = `
SELECT category_id, name, display_name, description, is_active
FROM categories
ORDER BY category_id;`

	rows, err := p.db.Query(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}

	categories, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.Category, error) {
		var c domain.Category
		err := r.Scan(&c.CategoryID, &c.Name, &c.DisplayName, &c.Description, &c.Active)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}

	return categories, nil
}

func scanQuestion(r pgx.CollectableRow) (domain.Question, error) {
	var (
		q          domain.Question
		difficulty string
	)

	err := r.Scan(
		&q.QuestionID, &q.Text, &q.CategoryID, &difficulty,
		&q.Options[0], &q.Options[1], &q.Options[2], &q.Options[3],
		&q.CorrectOption, &q.Explanation, &q.Active,
	)
	if err != nil {
		return domain.Question{}, err
	}

	q.Difficulty = domain.Difficulty(difficulty)
	return q, nil
}

func poolExhausted(categoryID int64, difficulty domain.Difficulty, want, have int) error {
	return errors.New(errors.CodeResourceExhausted,
		errors.WithMessagef("question pool too small: category=%d difficulty=%q want=%d have=%d", categoryID, difficulty, want, have))
}

func questionNotFound(id int64) error {
	return errors.New(errors.CodeNotFound,
		errors.WithMessagef("question not found: id=%d", id))
}

func categoryNotFound(id int64) error {
	return errors.New(errors.CodeNotFound,
		errors.WithMessagef("category not found: id=%d", id))
}
