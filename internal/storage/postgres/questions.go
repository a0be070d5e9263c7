package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/victornm/eduquiz/internal/bank"
	"github.com/victornm/eduquiz/internal/domain"
)

const questionColumns = `question_id, text, choices, correct_choice_id, difficulty, subject, tags, explanation, points,
	created_by, COALESCE(fingerprint, ''), is_active, created_at, updated_at`

func scanQuestion(r pgx.CollectableRow) (domain.Question, error) {
	var q domain.Question
	err := r.Scan(
		&q.ID, &q.Text, &q.Choices, &q.CorrectChoiceID, &q.Difficulty, &q.Subject, &q.Tags, &q.Explanation, &q.Points,
		&q.CreatedBy, &q.Fingerprint, &q.IsActive, &q.CreatedAt, &q.UpdatedAt,
	)
	return q, err
}

func (s *Store) FindQuestions(ctx context.Context, f bank.QuestionFilter) ([]domain.Question, error) {
	var w where
	if !f.IncludeInactive {
		w.raw("is_active")
	}
	if len(f.IDs) > 0 {
		w.add("question_id = ANY(?)", f.IDs)
	}
	if f.Subject != "" {
		w.add("subject = ?", f.Subject)
	}
	if f.SubjectPattern != "" {
		w.add("subject ~ ?", f.SubjectPattern)
	}
	if len(f.Subjects) > 0 {
		w.add("subject = ANY(?)", f.Subjects)
	}
	if f.Difficulty != "" {
		w.add("difficulty = ?", f.Difficulty)
	}
	if f.CreatedBy != "" {
		w.add("created_by = ?", f.CreatedBy)
	}

	rows, err := s.db.Query(ctx, "SELECT "+questionColumns+" FROM questions"+w.String()+" ORDER BY created_at, question_id", w.args...)
	if err != nil {
		return nil, convert(err, "find questions")
	}

	qs, err := pgx.CollectRows(rows, scanQuestion)
	if err != nil {
		return nil, convert(err, "scan questions")
	}
	return qs, nil
}

func (s *Store) GetQuestion(ctx context.Context, id string) (*domain.Question, error) {
	return s.getQuestion(ctx, "question_id = $1", id, "question %s not found", id)
}

func (s *Store) FindQuestionByFingerprint(ctx context.Context, fp string) (*domain.Question, error) {
	return s.getQuestion(ctx, "fingerprint = $1", fp, "question not found by fingerprint")
}

func (s *Store) FindLegacyQuestionByText(ctx context.Context, text string) (*domain.Question, error) {
	return s.getQuestion(ctx, "fingerprint IS NULL AND text = $1", text, "question not found by text")
}

func (s *Store) getQuestion(ctx context.Context, cond string, arg any, format string, args ...any) (*domain.Question, error) {
	rows, err := s.db.Query(ctx, "SELECT "+questionColumns+" FROM questions WHERE "+cond+" LIMIT 1", arg)
	if err != nil {
		return nil, convert(err, "get question")
	}

	q, err := pgx.CollectExactlyOneRow(rows, scanQuestion)
	if err != nil {
		return nil, convert(err, format, args...)
	}
	return &q, nil
}

func (s *Store) InsertQuestion(ctx context.Context, q *domain.Question) error {
	const stmt = `
INSERT INTO questions (question_id, text, choices, correct_choice_id, difficulty, subject, tags, explanation, points,
	created_by, fingerprint, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12, $13, $14);`

	_, err := s.db.Exec(ctx, stmt,
		q.ID, q.Text, q.Choices, q.CorrectChoiceID, q.Difficulty, q.Subject, tags(q.Tags), q.Explanation, q.Points,
		q.CreatedBy, q.Fingerprint, q.IsActive, q.CreatedAt, q.UpdatedAt,
	)
	return convert(err, "insert question")
}

func (s *Store) UpdateQuestion(ctx context.Context, q *domain.Question) error {
	const stmt = `
UPDATE questions SET text = $2, choices = $3, correct_choice_id = $4, difficulty = $5, subject = $6, tags = $7,
	explanation = $8, points = $9, fingerprint = NULLIF($10, ''), is_active = $11, updated_at = $12
WHERE question_id = $1;`

	tag, err := s.db.Exec(ctx, stmt,
		q.ID, q.Text, q.Choices, q.CorrectChoiceID, q.Difficulty, q.Subject, tags(q.Tags),
		q.Explanation, q.Points, q.Fingerprint, q.IsActive, q.UpdatedAt,
	)
	if err != nil {
		return convert(err, "update question")
	}
	if tag.RowsAffected() == 0 {
		return convert(pgx.ErrNoRows, "question %s not found", q.ID)
	}
	return nil
}

const builtInColumns = `question_id, source, text, choices, correct_choice_id, difficulty, subject, explanation, points,
	fingerprint, created_at`

func scanBuiltIn(r pgx.CollectableRow) (domain.BuiltInQuestion, error) {
	var q domain.BuiltInQuestion
	err := r.Scan(
		&q.ID, &q.Source, &q.Text, &q.Choices, &q.CorrectChoiceID, &q.Difficulty, &q.Subject, &q.Explanation, &q.Points,
		&q.Fingerprint, &q.CreatedAt,
	)
	return q, err
}

func (s *Store) FindBuiltIn(ctx context.Context, f bank.BuiltInFilter) ([]domain.BuiltInQuestion, error) {
	var w where
	if f.Source != "" {
		w.add("source = ?", f.Source)
	}
	if len(f.Subjects) > 0 {
		w.add("subject = ANY(?)", f.Subjects)
	}
	if f.Difficulty != "" {
		w.add("difficulty = ?", f.Difficulty)
	}

	rows, err := s.db.Query(ctx, "SELECT "+builtInColumns+" FROM builtin_questions"+w.String()+" ORDER BY created_at, question_id", w.args...)
	if err != nil {
		return nil, convert(err, "find built-in questions")
	}

	qs, err := pgx.CollectRows(rows, scanBuiltIn)
	if err != nil {
		return nil, convert(err, "scan built-in questions")
	}
	return qs, nil
}

func (s *Store) FindBuiltInByFingerprint(ctx context.Context, source domain.Source, fp string) (*domain.BuiltInQuestion, error) {
	rows, err := s.db.Query(ctx, "SELECT "+builtInColumns+" FROM builtin_questions WHERE source = $1 AND fingerprint = $2", source, fp)
	if err != nil {
		return nil, convert(err, "find built-in question")
	}

	q, err := pgx.CollectExactlyOneRow(rows, scanBuiltIn)
	if err != nil {
		return nil, convert(err, "built-in question not found by fingerprint")
	}
	return &q, nil
}

func (s *Store) InsertBuiltIn(ctx context.Context, q *domain.BuiltInQuestion) error {
	const stmt = `
INSERT INTO builtin_questions (question_id, source, text, choices, correct_choice_id, difficulty, subject, explanation,
	points, fingerprint, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);`

	_, err := s.db.Exec(ctx, stmt,
		q.ID, q.Source, q.Text, q.Choices, q.CorrectChoiceID, q.Difficulty, q.Subject, q.Explanation,
		q.Points, q.Fingerprint, q.CreatedAt,
	)
	return convert(err, "insert built-in question")
}

func tags(t []string) []string {
	if t == nil {
		return []string{}
	}
	return t
}
