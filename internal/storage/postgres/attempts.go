package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/victornm/eduquiz/internal/attempt"
	"github.com/victornm/eduquiz/internal/domain"
)

const attemptColumns = `attempt_id, quiz_id, user_id, started_at, finished_at, questions, answers, score, max_score, metadata`

func scanAttempt(r pgx.CollectableRow) (domain.Attempt, error) {
	var a domain.Attempt
	err := r.Scan(
		&a.ID, &a.QuizID, &a.UserID, &a.StartedAt, &a.FinishedAt, &a.Questions, &a.Answers, &a.Score, &a.MaxScore, &a.Metadata,
	)
	return a, err
}

func (s *Store) InsertAttempt(ctx context.Context, a *domain.Attempt) error {
	const stmt = `
INSERT INTO attempts (attempt_id, quiz_id, user_id, started_at, finished_at, questions, answers, score, max_score, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);`

	_, err := s.db.Exec(ctx, stmt,
		a.ID, a.QuizID, a.UserID, a.StartedAt, a.FinishedAt, snapshot(a.Questions), answers(a.Answers), a.Score, a.MaxScore, a.Metadata,
	)
	return convert(err, "insert attempt")
}

func (s *Store) GetAttempt(ctx context.Context, id string) (*domain.Attempt, error) {
	rows, err := s.db.Query(ctx, "SELECT "+attemptColumns+" FROM attempts WHERE attempt_id = $1", id)
	if err != nil {
		return nil, convert(err, "get attempt")
	}

	a, err := pgx.CollectExactlyOneRow(rows, scanAttempt)
	if err != nil {
		return nil, convert(err, "attempt %s not found", id)
	}
	return &a, nil
}

// SubmitAttempt is guarded by finished_at IS NULL so that of two racing submissions only one row update lands.
func (s *Store) SubmitAttempt(ctx context.Context, id string, r domain.AttemptResult) (bool, error) {
	const stmt = `
UPDATE attempts SET answers = $2, score = $3, max_score = $4, finished_at = $5
WHERE attempt_id = $1 AND finished_at IS NULL;`

	tag, err := s.db.Exec(ctx, stmt, id, answers(r.Answers), r.Score, r.MaxScore, r.FinishedAt)
	if err != nil {
		return false, convert(err, "submit attempt")
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}

	if _, err := s.GetAttempt(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Store) ListAttempts(ctx context.Context, f attempt.Filter) ([]domain.Attempt, error) {
	w := attemptWhere(f)

	rows, err := s.db.Query(ctx, "SELECT "+attemptColumns+" FROM attempts"+w.String()+" ORDER BY started_at DESC", w.args...)
	if err != nil {
		return nil, convert(err, "list attempts")
	}

	as, err := pgx.CollectRows(rows, scanAttempt)
	if err != nil {
		return nil, convert(err, "scan attempts")
	}
	return as, nil
}

func (s *Store) CountAttempts(ctx context.Context, f attempt.Filter) (int, error) {
	w := attemptWhere(f)

	var n int
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM attempts"+w.String(), w.args...).Scan(&n); err != nil {
		return 0, convert(err, "count attempts")
	}
	return n, nil
}

func attemptWhere(f attempt.Filter) *where {
	w := &where{}
	if f.UserID != "" {
		w.add("user_id = ?", f.UserID)
	}
	if f.QuizID != "" {
		w.add("quiz_id = ?", f.QuizID)
	}
	if f.SubmittedOnly {
		w.raw("finished_at IS NOT NULL")
	}
	return w
}

func snapshot(qs []domain.SnapshotQuestion) []domain.SnapshotQuestion {
	if qs == nil {
		return []domain.SnapshotQuestion{}
	}
	return qs
}

func answers(as []domain.Answer) []domain.Answer {
	if as == nil {
		return []domain.Answer{}
	}
	return as
}
