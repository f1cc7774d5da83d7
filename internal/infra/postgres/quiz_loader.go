package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"quiz-grading-engine/internal/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuizLoader loads quiz version JSONB from Postgres.
type QuizLoader struct {
	pool *pgxpool.Pool
}

func NewQuizLoader(pool *pgxpool.Pool) *QuizLoader {
	return &QuizLoader{pool: pool}
}

func (l *QuizLoader) LoadQuizVersion(ctx context.Context, versionID string) (domain.QuizVersion, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM quiz_versions WHERE id=$1`, versionID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QuizVersion{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.QuizVersion{}, fmt.Errorf("load quiz version: %w", err)
	}
	var version domain.QuizVersion
	if err := json.Unmarshal(raw, &version); err != nil {
		return domain.QuizVersion{}, fmt.Errorf("unmarshal quiz version: %w", err)
	}
	version.ID = versionID
	if err := domain.ValidateQuizVersion(version); err != nil {
		return domain.QuizVersion{}, err
	}
	return version, nil
}

// SaveQuizVersion upserts a version; used to seed the table from a YAML file.
func (l *QuizLoader) SaveQuizVersion(ctx context.Context, version domain.QuizVersion) error {
	if err := domain.ValidateQuizVersion(version); err != nil {
		return err
	}
	payload, err := json.Marshal(version)
	if err != nil {
		return err
	}
	_, err = l.pool.Exec(ctx, `
		INSERT INTO quiz_versions (id, quiz_id, data) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET quiz_id = EXCLUDED.quiz_id, data = EXCLUDED.data`,
		version.ID, version.QuizID, string(payload))
	if err != nil {
		return fmt.Errorf("save quiz version %s: %w", version.ID, err)
	}
	return nil
}
