package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"quiz-grading-engine/internal/domain"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

const (
	uniqueViolation = "23505"
	openIndex       = "attempts_open_uniq"
)

type attemptRow struct {
	bun.BaseModel `bun:"table:attempts,alias:a"`

	ID               string                  `bun:"id,pk"`
	ParticipantID    string                  `bun:"participant_id,notnull"`
	QuizVersionID    string                  `bun:"quiz_version_id,notnull"`
	AttemptNumber    *int                    `bun:"attempt_number"`
	StartedAt        time.Time               `bun:"started_at,notnull"`
	CompletedAt      *time.Time              `bun:"completed_at"`
	Response         map[string]domain.Value `bun:"response,type:jsonb,notnull"`
	TimeSpentSeconds int64                   `bun:"time_spent_seconds,notnull"`
	Forced           bool                    `bun:"forced,notnull"`
	Active           bool                    `bun:"active,notnull"`
	Result           *domain.GradingResult   `bun:"result,type:jsonb"`
}

// AttemptStore persists attempts with bun. Partial unique indexes on the attempts table back the
// one-open-attempt and attempt-number rules; Seal locks the row with SELECT ... FOR UPDATE.
type AttemptStore struct {
	db *bun.DB
}

func NewAttemptStore(db *bun.DB) *AttemptStore {
	return &AttemptStore{db: db}
}

// Prior reads the count, the last number and the open attempt in one statement so they come
// from the same snapshot.
func (s *AttemptStore) Prior(ctx context.Context, participantID, quizVersionID string) (domain.PriorAttempts, error) {
	var prior domain.PriorAttempts
	err := s.db.NewSelect().
		TableExpr("attempts").
		ColumnExpr("count(*) FILTER (WHERE completed_at IS NOT NULL)").
		ColumnExpr("COALESCE(MAX(attempt_number), 0)").
		ColumnExpr("COALESCE((array_agg(id ORDER BY started_at) FILTER (WHERE completed_at IS NULL AND active))[1], '')").
		Where("participant_id = ?", participantID).
		Where("quiz_version_id = ?", quizVersionID).
		Scan(ctx, &prior.Completed, &prior.LastNumber, &prior.OpenAttemptID)
	if err != nil {
		return domain.PriorAttempts{}, fmt.Errorf("read prior attempts: %w", err)
	}
	return prior, nil
}

func (s *AttemptStore) Open(ctx context.Context, attempt domain.Attempt) error {
	row := toRow(attempt)
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		if constraint, ok := uniqueConstraint(err); ok && constraint == openIndex {
			return domain.ErrAttemptAlreadyOpen
		}
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

func (s *AttemptStore) Get(ctx context.Context, attemptID string) (domain.Attempt, error) {
	row, err := selectAttempt(ctx, s.db, attemptID, false)
	if err != nil {
		return domain.Attempt{}, err
	}
	return row.toDomain(), nil
}

func (s *AttemptStore) SaveDraft(ctx context.Context, attemptID string, answers map[string]domain.Value) (domain.Attempt, error) {
	var saved domain.Attempt
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row, err := selectAttempt(ctx, tx, attemptID, true)
		if err != nil {
			return err
		}
		if !row.Active {
			return domain.ErrAttemptNotFound
		}
		if row.CompletedAt != nil {
			return domain.ErrAlreadyCompleted
		}
		if row.Response == nil {
			row.Response = make(map[string]domain.Value, len(answers))
		}
		for k, v := range answers {
			row.Response[k] = v
		}
		if _, err := tx.NewUpdate().Model(&row).Column("response").WherePK().Exec(ctx); err != nil {
			return fmt.Errorf("update draft: %w", err)
		}
		saved = row.toDomain()
		return nil
	})
	return saved, err
}

func (s *AttemptStore) Seal(ctx context.Context, attempt domain.Attempt) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		current, err := selectAttempt(ctx, tx, attempt.ID, true)
		if err != nil {
			return err
		}
		if !current.Active {
			return domain.ErrAttemptNotFound
		}
		if current.CompletedAt != nil {
			return domain.ErrAlreadyCompleted
		}

		var last int
		err = tx.NewSelect().
			TableExpr("attempts").
			ColumnExpr("COALESCE(MAX(attempt_number), 0)").
			Where("participant_id = ?", attempt.ParticipantID).
			Where("quiz_version_id = ?", attempt.QuizVersionID).
			Scan(ctx, &last)
		if err != nil {
			return fmt.Errorf("read last attempt number: %w", err)
		}
		if attempt.AttemptNumber != last+1 {
			return domain.ErrAttemptNumberConflict
		}

		row := toRow(attempt)
		if _, err := tx.NewUpdate().Model(&row).WherePK().Exec(ctx); err != nil {
			if _, ok := uniqueConstraint(err); ok {
				return domain.ErrAttemptNumberConflict
			}
			return fmt.Errorf("seal attempt: %w", err)
		}
		return nil
	})
}

func (s *AttemptStore) ListOpen(ctx context.Context) ([]domain.Attempt, error) {
	var rows []attemptRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("completed_at IS NULL AND active").
		Order("started_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open attempts: %w", err)
	}
	return toDomainList(rows), nil
}

func (s *AttemptStore) ListByParticipant(ctx context.Context, participantID, quizVersionID string) ([]domain.Attempt, error) {
	var rows []attemptRow
	err := s.db.NewSelect().
		Model(&rows).
		Where("participant_id = ?", participantID).
		Where("quiz_version_id = ?", quizVersionID).
		Where("active").
		Order("started_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return toDomainList(rows), nil
}

func (s *AttemptStore) Deactivate(ctx context.Context, attemptID string) error {
	res, err := s.db.NewUpdate().
		TableExpr("attempts").
		Set("active = false").
		Where("id = ?", attemptID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("deactivate attempt: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrAttemptNotFound
	}
	return nil
}

func selectAttempt(ctx context.Context, db bun.IDB, attemptID string, forUpdate bool) (attemptRow, error) {
	var row attemptRow
	q := db.NewSelect().Model(&row).Where("id = ?", attemptID)
	if forUpdate {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return attemptRow{}, domain.ErrAttemptNotFound
		}
		return attemptRow{}, fmt.Errorf("select attempt: %w", err)
	}
	return row, nil
}

// uniqueConstraint reports the violated index name for unique violations.
func uniqueConstraint(err error) (string, bool) {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) && pgErr.Field('C') == uniqueViolation {
		return pgErr.Field('n'), true
	}
	return "", false
}

func toRow(a domain.Attempt) attemptRow {
	row := attemptRow{
		ID:               a.ID,
		ParticipantID:    a.ParticipantID,
		QuizVersionID:    a.QuizVersionID,
		StartedAt:        a.StartedAt,
		CompletedAt:      a.CompletedAt,
		Response:         a.Response,
		TimeSpentSeconds: a.TimeSpentSeconds,
		Forced:           a.Forced,
		Active:           a.Active,
		Result:           a.Result,
	}
	if row.Response == nil {
		row.Response = map[string]domain.Value{}
	}
	if a.AttemptNumber > 0 {
		n := a.AttemptNumber
		row.AttemptNumber = &n
	}
	return row
}

func (r attemptRow) toDomain() domain.Attempt {
	a := domain.Attempt{
		ID:               r.ID,
		ParticipantID:    r.ParticipantID,
		QuizVersionID:    r.QuizVersionID,
		StartedAt:        r.StartedAt,
		CompletedAt:      r.CompletedAt,
		Response:         r.Response,
		TimeSpentSeconds: r.TimeSpentSeconds,
		Forced:           r.Forced,
		Active:           r.Active,
		Result:           r.Result,
	}
	if r.AttemptNumber != nil {
		a.AttemptNumber = *r.AttemptNumber
	}
	return a
}

func toDomainList(rows []attemptRow) []domain.Attempt {
	out := make([]domain.Attempt, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out
}
