package leaderboard

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/victornm/quizdom/internal/domain"
)

// Postgres is the durable Store.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Insert(ctx context.Context, e domain.LeaderboardEntry) error {
	const stmt = `
INSERT INTO leaderboard
	(entry_id, player_name, score, category_id, difficulty, accuracy, time_taken, created_at)
VALUES
	($1, $2, $3, $4, $5, $6, $7, $8);`

	_, err := p.db.Exec(ctx, stmt,
		e.EntryID, e.PlayerName, e.Score, e.CategoryID, string(e.Difficulty),
		e.Accuracy, e.TimeTaken, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}

	return nil
}

func (p *Postgres) List(ctx context.Context, f Filter) ([]domain.LeaderboardEntry, error) {
	stmt := `
SELECT entry_id, player_name, score, category_id, difficulty, accuracy, time_taken, created_at
FROM leaderboard
WHERE true`
	var args []any

	if f.CategoryID != 0 {
		args = append(args, f.CategoryID)
		stmt += fmt.Sprintf(` AND category_id = $%d`, len(args))
	}
	if f.Difficulty != domain.DifficultyAny {
		args = append(args, string(f.Difficulty))
		stmt += fmt.Sprintf(` AND difficulty = $%d`, len(args))
	}

	args = append(args, f.Limit)
	stmt += fmt.Sprintf(` ORDER BY score DESC, time_taken ASC LIMIT $%d;`, len(args))

	rows, err := p.db.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (domain.LeaderboardEntry, error) {
		var (
			e          domain.LeaderboardEntry
			difficulty string
		)
		err := r.Scan(&e.EntryID, &e.PlayerName, &e.Score, &e.CategoryID, &difficulty, &e.Accuracy, &e.TimeTaken, &e.CreatedAt)
		e.Difficulty = domain.Difficulty(difficulty)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}

	return entries, nil
}
