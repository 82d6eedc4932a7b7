package session

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/quizdom/internal/domain"
	"github.com/victornm/quizdom/internal/errors"
)

// Postgres stores sessions in a single table. The question and answer
// sequences are SQL arrays, not serialized blobs, and updates are guarded by
// a version column so concurrent submissions are serialized per token.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Create(ctx context.Context, s *domain.Session) error {
	const stmt = `
INSERT INTO quiz_sessions
	(session_token, category_id, difficulty, question_ids, answers, position, score, correct_answers, started_at, version)
VALUES
	($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);`

	_, err := p.db.Exec(ctx, stmt,
		s.Token, s.CategoryID, string(s.Difficulty),
		s.QuestionIDs, toInt32s(s.Answers),
		s.Position, s.Score, s.CorrectCount, s.StartedAt, s.Version,
	)

	var pgErr *pgconn.PgError
	const codeUniqueViolation = "23505"
	if stderrors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("session token already exists"),
			errors.WithCause(err))
	}

	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	return nil
}

func (p *Postgres) Get(ctx context.Context, token string) (*domain.Session, error) {
	const stmt = `
SELECT
	session_token, category_id, difficulty, question_ids, answers,
	position, score, correct_answers, started_at, completed_at, time_taken, completed, version
FROM quiz_sessions
WHERE session_token = $1;`

	var (
		s           domain.Session
		difficulty  string
		answers     []int32
		completedAt *time.Time
	)

	err := p.db.QueryRow(ctx, stmt, token).Scan(
		&s.Token, &s.CategoryID, &difficulty, &s.QuestionIDs, &answers,
		&s.Position, &s.Score, &s.CorrectCount, &s.StartedAt, &completedAt, &s.TimeTaken, &s.Completed, &s.Version,
	)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(token)
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}

	s.Difficulty = domain.Difficulty(difficulty)
	s.Answers = toInts(answers)
	if completedAt != nil {
		s.CompletedAt = *completedAt
	}

	return &s, nil
}

func (p *Postgres) Update(ctx context.Context, s *domain.Session) error {
	const stmt = `
UPDATE quiz_sessions
SET
	answers = $2, position = $3, score = $4, correct_answers = $5,
	completed_at = $6, time_taken = $7, completed = $8, version = version + 1
WHERE session_token = $1 AND version = $9;`

	var completedAt *time.Time
	if !s.CompletedAt.IsZero() {
		completedAt = &s.CompletedAt
	}

	tag, err := p.db.Exec(ctx, stmt,
		s.Token, toInt32s(s.Answers), s.Position, s.Score, s.CorrectCount,
		completedAt, s.TimeTaken, s.Completed, s.Version,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}

	if tag.RowsAffected() == 0 {
		// Zero rows means either a lost race or a missing token; only the
		// former is a conflict.
		var exists bool
		err := p.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM quiz_sessions WHERE session_token = $1);`,
			s.Token,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check session: %w", err)
		}
		if !exists {
			return notFound(s.Token)
		}
		return conflict()
	}

	return nil
}

func (p *Postgres) Stats(ctx context.Context) (domain.SessionStats, error) {
	const stmt = `
SELECT
	COUNT(*),
	COUNT(*) FILTER (WHERE completed),
	COALESCE(AVG(score) FILTER (WHERE completed), 0)::float8
FROM quiz_sessions;`

	var st domain.SessionStats
	err := p.db.QueryRow(ctx, stmt).Scan(
		&st.TotalSessions, &st.CompletedSessions, &st.AverageScore,
	)
	if err != nil {
		return domain.SessionStats{}, fmt.Errorf("session stats: %w", err)
	}

	const popularStmt = `
SELECT category_id
FROM quiz_sessions
GROUP BY category_id
ORDER BY COUNT(*) DESC, category_id ASC
LIMIT 1;`

	err = p.db.QueryRow(ctx, popularStmt).Scan(&st.PopularCategoryID)
	if err != nil && !stderrors.Is(err, pgx.ErrNoRows) {
		return domain.SessionStats{}, fmt.Errorf("popular category: %w", err)
	}

	return st, nil
}

func toInt32s(in []int) []int32 {
	out := make([]int32, 0, len(in))
	for _, v := range in {
		out = append(out, int32(v))
	}
	return out
}

func toInts(in []int32) []int {
	out := make([]int, 0, len(in))
	for _, v := range in {
		out = append(out, int(v))
	}
	return out
}
