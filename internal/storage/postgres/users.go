package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/victornm/eduquiz/internal/domain"
)

const userColumns = `user_id, role, total_score, total_correct_answers, total_questions_answered, created_at`

func scanUser(r pgx.CollectableRow) (domain.User, error) {
	var u domain.User
	err := r.Scan(&u.ID, &u.Role, &u.TotalScore, &u.TotalCorrectAnswers, &u.TotalQuestionsAnswered, &u.CreatedAt)
	return u, err
}

func (s *Store) EnsureUser(ctx context.Context, u domain.User) error {
	const stmt = `
INSERT INTO users (user_id, role, created_at) VALUES ($1, $2, $3)
ON CONFLICT (user_id) DO NOTHING;`

	_, err := s.db.Exec(ctx, stmt, u.ID, u.Role, u.CreatedAt)
	return convert(err, "ensure user")
}

// IncrementUserStats adds d in a single statement; concurrent submissions by one user never lose an update.
func (s *Store) IncrementUserStats(ctx context.Context, userID string, d domain.StatsDelta) error {
	const stmt = `
UPDATE users SET
	total_score = total_score + $2,
	total_correct_answers = total_correct_answers + $3,
	total_questions_answered = total_questions_answered + $4
WHERE user_id = $1;`

	tag, err := s.db.Exec(ctx, stmt, userID, d.Score, d.Correct, d.Answered)
	if err != nil {
		return convert(err, "increment user stats")
	}
	if tag.RowsAffected() == 0 {
		return convert(pgx.ErrNoRows, "user %s not found", userID)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	rows, err := s.db.Query(ctx, "SELECT "+userColumns+" FROM users WHERE user_id = $1", id)
	if err != nil {
		return nil, convert(err, "get user")
	}

	u, err := pgx.CollectExactlyOneRow(rows, scanUser)
	if err != nil {
		return nil, convert(err, "user %s not found", id)
	}
	return &u, nil
}

func (s *Store) ListTopStudents(ctx context.Context, offset, limit int) ([]domain.User, error) {
	const stmt = `
SELECT ` + userColumns + `
FROM users
WHERE role = 'student'
ORDER BY total_score DESC, created_at ASC, user_id ASC
OFFSET $1 LIMIT $2;`

	rows, err := s.db.Query(ctx, stmt, offset, limit)
	if err != nil {
		return nil, convert(err, "list top students")
	}

	us, err := pgx.CollectRows(rows, scanUser)
	if err != nil {
		return nil, convert(err, "scan users")
	}
	return us, nil
}

func (s *Store) CountStudentsAhead(ctx context.Context, u domain.User) (int, error) {
	const stmt = `
SELECT COUNT(*)
FROM users
WHERE role = 'student' AND user_id <> $1
	AND (total_score > $2 OR (total_score = $2 AND created_at < $3));`

	var n int
	if err := s.db.QueryRow(ctx, stmt, u.ID, u.TotalScore, u.CreatedAt).Scan(&n); err != nil {
		return 0, convert(err, "count students ahead")
	}
	return n, nil
}
