package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/victornm/eduquiz/internal/domain"
	"github.com/victornm/eduquiz/internal/errors"
	"github.com/victornm/eduquiz/internal/quiz"
)

const quizColumns = `quiz_id, title, description, created_by, quiz_code, status, quiz_type, settings, question_ids,
	builtin_filter, practice, created_at, updated_at`

func scanQuiz(r pgx.CollectableRow) (domain.Quiz, error) {
	var q domain.Quiz
	err := r.Scan(
		&q.ID, &q.Title, &q.Description, &q.CreatedBy, &q.Code, &q.Status, &q.Type, &q.Settings, &q.QuestionIDs,
		&q.BuiltInFilter, &q.Practice, &q.CreatedAt, &q.UpdatedAt,
	)
	return q, err
}

func (s *Store) InsertQuiz(ctx context.Context, q *domain.Quiz) error {
	const stmt = `
INSERT INTO quizzes (quiz_id, title, description, created_by, quiz_code, status, quiz_type, settings, question_ids,
	builtin_filter, practice, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13);`

	_, err := s.db.Exec(ctx, stmt,
		q.ID, q.Title, q.Description, q.CreatedBy, q.Code, q.Status, q.Type, q.Settings, tags(q.QuestionIDs),
		q.BuiltInFilter, q.Practice, q.CreatedAt, q.UpdatedAt,
	)
	return convert(err, "insert quiz")
}

func (s *Store) GetQuiz(ctx context.Context, id string) (*domain.Quiz, error) {
	return s.getQuiz(ctx, "quiz_id", id, "quiz %s not found", id)
}

func (s *Store) GetQuizByCode(ctx context.Context, code string) (*domain.Quiz, error) {
	return s.getQuiz(ctx, "quiz_code", code, "quiz with code %s not found", code)
}

func (s *Store) getQuiz(ctx context.Context, column, value, format string, args ...any) (*domain.Quiz, error) {
	rows, err := s.db.Query(ctx, "SELECT "+quizColumns+" FROM quizzes WHERE "+column+" = $1", value)
	if err != nil {
		return nil, convert(err, "get quiz")
	}

	q, err := pgx.CollectExactlyOneRow(rows, scanQuiz)
	if err != nil {
		return nil, convert(err, format, args...)
	}
	return &q, nil
}

func (s *Store) QuizCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM quizzes WHERE quiz_code = $1)`, code).Scan(&exists)
	if err != nil {
		return false, convert(err, "check quiz code")
	}
	return exists, nil
}

func (s *Store) ListQuizzes(ctx context.Context, f quiz.ListFilter) ([]domain.Quiz, error) {
	var w where
	if f.CreatedBy != "" {
		w.add("created_by = ?", f.CreatedBy)
	}
	if f.Status != "" {
		w.add("status = ?", f.Status)
	}
	if !f.IncludePractice {
		w.raw("NOT practice")
	}

	rows, err := s.db.Query(ctx, "SELECT "+quizColumns+" FROM quizzes"+w.String()+" ORDER BY created_at DESC", w.args...)
	if err != nil {
		return nil, convert(err, "list quizzes")
	}

	qs, err := pgx.CollectRows(rows, scanQuiz)
	if err != nil {
		return nil, convert(err, "scan quizzes")
	}
	return qs, nil
}

func (s *Store) UpdateQuizStatus(ctx context.Context, id string, from, to domain.QuizStatus, at time.Time) error {
	tag, err := s.db.Exec(ctx, `UPDATE quizzes SET status = $3, updated_at = $4 WHERE quiz_id = $1 AND status = $2`, id, from, to, at)
	if err != nil {
		return convert(err, "update quiz status")
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	if _, err := s.GetQuiz(ctx, id); err != nil {
		return err
	}
	return errors.AlreadyExists("quiz %s is no longer %s", id, from)
}

func (s *Store) DeleteQuiz(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM quizzes WHERE quiz_id = $1`, id)
	if err != nil {
		return convert(err, "delete quiz")
	}
	if tag.RowsAffected() == 0 {
		return convert(pgx.ErrNoRows, "quiz %s not found", id)
	}
	return nil
}
