// Package memory is a process-local implementation of every storage port. It backs the service tests and
// the memory storage driver. Values are deep copied on the way in and out.
package memory

import (
	"context"
	"regexp"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/victornm/eduquiz/internal/attempt"
	"github.com/victornm/eduquiz/internal/bank"
	"github.com/victornm/eduquiz/internal/domain"
	"github.com/victornm/eduquiz/internal/errors"
	"github.com/victornm/eduquiz/internal/leaderboard"
	"github.com/victornm/eduquiz/internal/quiz"
)

type Store struct {
	mu sync.RWMutex

	questions []*domain.Question
	builtIn   []*domain.BuiltInQuestion
	quizzes   []*domain.Quiz
	attempts  []*domain.Attempt
	users     map[string]*domain.User
}

var (
	_ bank.Store        = (*Store)(nil)
	_ quiz.Store        = (*Store)(nil)
	_ attempt.Store     = (*Store)(nil)
	_ leaderboard.Store = (*Store)(nil)
)

func New() *Store {
	return &Store{
		users: make(map[string]*domain.User),
	}
}

// Questions

func (s *Store) FindQuestions(_ context.Context, f bank.QuestionFilter) ([]domain.Question, error) {
	var re *regexp.Regexp
	if f.SubjectPattern != "" {
		var err error
		if re, err = regexp.Compile(f.SubjectPattern); err != nil {
			return nil, errors.InvalidArgument("invalid subject pattern: %v", err)
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Question, 0)
	for _, q := range s.questions {
		switch {
		case !f.IncludeInactive && !q.IsActive:
		case len(f.IDs) > 0 && !slices.Contains(f.IDs, q.ID):
		case f.Subject != "" && q.Subject != f.Subject:
		case re != nil && !re.MatchString(q.Subject):
		case len(f.Subjects) > 0 && !slices.Contains(f.Subjects, q.Subject):
		case f.Difficulty != "" && q.Difficulty != f.Difficulty:
		case f.CreatedBy != "" && q.CreatedBy != f.CreatedBy:
		default:
			out = append(out, copyQuestion(q))
		}
	}
	return out, nil
}

func (s *Store) GetQuestion(_ context.Context, id string) (*domain.Question, error) {
	return s.findQuestion(func(q *domain.Question) bool { return q.ID == id }, "question %s not found", id)
}

func (s *Store) FindQuestionByFingerprint(_ context.Context, fp string) (*domain.Question, error) {
	return s.findQuestion(func(q *domain.Question) bool { return fp != "" && q.Fingerprint == fp }, "question not found by fingerprint")
}

func (s *Store) FindLegacyQuestionByText(_ context.Context, text string) (*domain.Question, error) {
	return s.findQuestion(func(q *domain.Question) bool { return q.Fingerprint == "" && q.Text == text }, "question not found by text")
}

func (s *Store) findQuestion(match func(*domain.Question) bool, format string, args ...any) (*domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, q := range s.questions {
		if match(q) {
			c := copyQuestion(q)
			return &c, nil
		}
	}
	return nil, errors.NotFound(format, args...)
}

func (s *Store) InsertQuestion(_ context.Context, q *domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.questions {
		if e.ID == q.ID || (q.Fingerprint != "" && e.Fingerprint == q.Fingerprint) {
			return errors.AlreadyExists("question already exists")
		}
	}

	c := copyQuestion(q)
	s.questions = append(s.questions, &c)
	return nil
}

func (s *Store) UpdateQuestion(_ context.Context, q *domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, e := range s.questions {
		if e.ID == q.ID {
			idx = i
			continue
		}
		if q.Fingerprint != "" && e.Fingerprint == q.Fingerprint {
			return errors.AlreadyExists("question already exists")
		}
	}
	if idx < 0 {
		return errors.NotFound("question %s not found", q.ID)
	}

	c := copyQuestion(q)
	s.questions[idx] = &c
	return nil
}

// Built-in pool

func (s *Store) FindBuiltIn(_ context.Context, f bank.BuiltInFilter) ([]domain.BuiltInQuestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.BuiltInQuestion, 0)
	for _, q := range s.builtIn {
		switch {
		case f.Source != "" && q.Source != f.Source:
		case len(f.Subjects) > 0 && !slices.Contains(f.Subjects, q.Subject):
		case f.Difficulty != "" && q.Difficulty != f.Difficulty:
		default:
			out = append(out, copyBuiltIn(q))
		}
	}
	return out, nil
}

func (s *Store) FindBuiltInByFingerprint(_ context.Context, source domain.Source, fp string) (*domain.BuiltInQuestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, q := range s.builtIn {
		if q.Source == source && q.Fingerprint == fp {
			c := copyBuiltIn(q)
			return &c, nil
		}
	}
	return nil, errors.NotFound("built-in question not found by fingerprint")
}

func (s *Store) InsertBuiltIn(_ context.Context, q *domain.BuiltInQuestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.builtIn {
		if e.ID == q.ID || (e.Source == q.Source && e.Fingerprint == q.Fingerprint) {
			return errors.AlreadyExists("built-in question already exists")
		}
	}

	c := copyBuiltIn(q)
	s.builtIn = append(s.builtIn, &c)
	return nil
}

// Quizzes

func (s *Store) InsertQuiz(_ context.Context, q *domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.quizzes {
		if e.ID == q.ID || e.Code == q.Code {
			return errors.AlreadyExists("quiz code %s is taken", q.Code)
		}
	}

	c := copyQuiz(q)
	s.quizzes = append(s.quizzes, &c)
	return nil
}

func (s *Store) GetQuiz(_ context.Context, id string) (*domain.Quiz, error) {
	return s.findQuiz(func(q *domain.Quiz) bool { return q.ID == id }, "quiz %s not found", id)
}

func (s *Store) GetQuizByCode(_ context.Context, code string) (*domain.Quiz, error) {
	return s.findQuiz(func(q *domain.Quiz) bool { return q.Code == code }, "quiz with code %s not found", code)
}

func (s *Store) findQuiz(match func(*domain.Quiz) bool, format string, args ...any) (*domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, q := range s.quizzes {
		if match(q) {
			c := copyQuiz(q)
			return &c, nil
		}
	}
	return nil, errors.NotFound(format, args...)
}

func (s *Store) QuizCodeExists(_ context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, q := range s.quizzes {
		if q.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListQuizzes(_ context.Context, f quiz.ListFilter) ([]domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Quiz, 0)
	for _, q := range s.quizzes {
		switch {
		case f.CreatedBy != "" && q.CreatedBy != f.CreatedBy:
		case f.Status != "" && q.Status != f.Status:
		case !f.IncludePractice && q.Practice:
		default:
			out = append(out, copyQuiz(q))
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) UpdateQuizStatus(_ context.Context, id string, from, to domain.QuizStatus, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, q := range s.quizzes {
		if q.ID != id {
			continue
		}
		if q.Status != from {
			return errors.AlreadyExists("quiz %s is no longer %s", id, from)
		}
		q.Status = to
		q.UpdatedAt = at
		return nil
	}
	return errors.NotFound("quiz %s not found", id)
}

func (s *Store) DeleteQuiz(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, q := range s.quizzes {
		if q.ID == id {
			s.quizzes = slices.Delete(s.quizzes, i, i+1)
			return nil
		}
	}
	return errors.NotFound("quiz %s not found", id)
}

// Attempts

func (s *Store) InsertAttempt(_ context.Context, a *domain.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.attempts {
		if e.ID == a.ID {
			return errors.AlreadyExists("attempt %s already exists", a.ID)
		}
	}

	c := copyAttempt(a)
	s.attempts = append(s.attempts, &c)
	return nil
}

func (s *Store) GetAttempt(_ context.Context, id string) (*domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.attempts {
		if a.ID == id {
			c := copyAttempt(a)
			return &c, nil
		}
	}
	return nil, errors.NotFound("attempt %s not found", id)
}

func (s *Store) SubmitAttempt(_ context.Context, id string, r domain.AttemptResult) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.attempts {
		if a.ID != id {
			continue
		}
		if a.FinishedAt != nil {
			return false, nil
		}

		at := r.FinishedAt
		a.FinishedAt = &at
		a.Answers = slices.Clone(r.Answers)
		a.Score = r.Score
		a.MaxScore = r.MaxScore
		return true, nil
	}
	return false, errors.NotFound("attempt %s not found", id)
}

func (s *Store) ListAttempts(_ context.Context, f attempt.Filter) ([]domain.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Attempt, 0)
	for _, a := range s.attempts {
		if matchAttempt(a, f) {
			out = append(out, copyAttempt(a))
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (s *Store) CountAttempts(_ context.Context, f attempt.Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, a := range s.attempts {
		if matchAttempt(a, f) {
			n++
		}
	}
	return n, nil
}

func matchAttempt(a *domain.Attempt, f attempt.Filter) bool {
	switch {
	case f.UserID != "" && a.UserID != f.UserID:
		return false
	case f.QuizID != "" && a.QuizID != f.QuizID:
		return false
	case f.SubmittedOnly && a.FinishedAt == nil:
		return false
	}
	return true
}

// Users

// PutUser stores u as is, replacing any user with the same id.
func (s *Store) PutUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users[u.ID] = &u
}

func (s *Store) EnsureUser(_ context.Context, u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.ID]; !ok {
		s.users[u.ID] = &u
	}
	return nil
}

func (s *Store) IncrementUserStats(_ context.Context, userID string, d domain.StatsDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return errors.NotFound("user %s not found", userID)
	}

	u.TotalScore = u.TotalScore.Add(d.Score)
	u.TotalCorrectAnswers += int64(d.Correct)
	u.TotalQuestionsAnswered += int64(d.Answered)
	return nil
}

func (s *Store) GetUser(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, errors.NotFound("user %s not found", id)
	}

	c := *u
	return &c, nil
}

func (s *Store) ListTopStudents(_ context.Context, offset, limit int) ([]domain.User, error) {
	s.mu.RLock()
	students := make([]domain.User, 0, len(s.users))
	for _, u := range s.users {
		if u.Role == domain.RoleStudent {
			students = append(students, *u)
		}
	}
	s.mu.RUnlock()

	sort.Slice(students, func(i, j int) bool {
		if students[i].RanksAbove(students[j]) {
			return true
		}
		if students[j].RanksAbove(students[i]) {
			return false
		}
		return students[i].ID < students[j].ID
	})

	if offset >= len(students) {
		return []domain.User{}, nil
	}
	end := min(offset+limit, len(students))
	return students[offset:end], nil
}

func (s *Store) CountStudentsAhead(_ context.Context, u domain.User) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, o := range s.users {
		if o.ID != u.ID && o.Role == domain.RoleStudent && o.RanksAbove(u) {
			n++
		}
	}
	return n, nil
}

func copyQuestion(q *domain.Question) domain.Question {
	c := *q
	c.Choices = slices.Clone(q.Choices)
	c.Tags = slices.Clone(q.Tags)
	return c
}

func copyBuiltIn(q *domain.BuiltInQuestion) domain.BuiltInQuestion {
	c := *q
	c.Choices = slices.Clone(q.Choices)
	return c
}

func copyQuiz(q *domain.Quiz) domain.Quiz {
	c := *q
	c.QuestionIDs = slices.Clone(q.QuestionIDs)
	c.BuiltInFilter.Subjects = slices.Clone(q.BuiltInFilter.Subjects)
	return c
}

func copyAttempt(a *domain.Attempt) domain.Attempt {
	c := *a
	c.Questions = make([]domain.SnapshotQuestion, len(a.Questions))
	for i, q := range a.Questions {
		q.Choices = slices.Clone(q.Choices)
		c.Questions[i] = q
	}
	c.Answers = slices.Clone(a.Answers)
	c.Metadata.Subjects = slices.Clone(a.Metadata.Subjects)
	if a.FinishedAt != nil {
		at := *a.FinishedAt
		c.FinishedAt = &at
	}
	return c
}
