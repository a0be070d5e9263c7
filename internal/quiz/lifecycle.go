package quiz

import (
	"context"
	"fmt"
	"strings"

	"github.com/victornm/eduquiz/internal/domain"
	"github.com/victornm/eduquiz/internal/errors"
	"github.com/victornm/eduquiz/internal/telemetry"
)

func (s *Service) GetQuiz(ctx context.Context, id string) (*domain.Quiz, error) {
	return s.store.GetQuiz(ctx, id)
}

func (s *Service) GetQuizByCode(ctx context.Context, code string) (*domain.Quiz, error) {
	return s.store.GetQuizByCode(ctx, NormalizeCode(code))
}

// Resolve looks a quiz up by id, or by join code when no id is given.
func (s *Service) Resolve(ctx context.Context, ref domain.QuizRef) (*domain.Quiz, error) {
	switch {
	case strings.TrimSpace(ref.ID) != "":
		return s.GetQuiz(ctx, strings.TrimSpace(ref.ID))
	case strings.TrimSpace(ref.Code) != "":
		return s.GetQuizByCode(ctx, ref.Code)
	}
	return nil, errors.InvalidArgument("quiz id or quiz code is required")
}

func (s *Service) ListQuizzes(ctx context.Context, f ListFilter) ([]domain.Quiz, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, errors.InvalidArgument("unknown status %q", f.Status)
	}
	return s.store.ListQuizzes(ctx, f)
}

type UpdateStatusRequest struct {
	Actor  domain.Actor
	ID     string
	Status domain.QuizStatus
}

// UpdateStatus moves a quiz along its state machine. Only the owner or an admin may do so.
func (s *Service) UpdateStatus(ctx context.Context, req UpdateStatusRequest) (*domain.Quiz, error) {
	if !req.Status.Valid() {
		return nil, errors.InvalidArgument("unknown status %q", req.Status)
	}

	q, err := s.store.GetQuiz(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	if !req.Actor.Role.CanAuthor() || !req.Actor.Owns(q.CreatedBy) {
		return nil, errors.PermissionDenied("quiz %s is not yours", q.ID)
	}
	if q.Practice {
		return nil, errors.PermissionDenied("practice quizzes have no lifecycle")
	}

	if !q.Status.CanTransitionTo(req.Status) {
		return nil, errors.AlreadyExists("quiz %s cannot move from %s to %s", q.ID, q.Status, req.Status)
	}

	at := s.now()
	if err := s.store.UpdateQuizStatus(ctx, q.ID, q.Status, req.Status, at); err != nil {
		return nil, err
	}

	q.Status = req.Status
	q.UpdatedAt = at
	return q, nil
}

// DeleteQuiz removes the quiz record. Attempts keep their own snapshot and are not touched.
func (s *Service) DeleteQuiz(ctx context.Context, actor domain.Actor, id string) error {
	q, err := s.store.GetQuiz(ctx, id)
	if err != nil {
		return err
	}

	if !actor.Role.CanAuthor() || !actor.Owns(q.CreatedBy) {
		return errors.PermissionDenied("quiz %s is not yours", q.ID)
	}

	return s.store.DeleteQuiz(ctx, q.ID)
}

// CreatePracticeQuiz records a non-joinable quiz backing a practice attempt, for reporting.
func (s *Service) CreatePracticeQuiz(ctx context.Context, actor domain.Actor, subjects []string, limit int) (*domain.Quiz, error) {
	q := &domain.Quiz{
		Title:     "Practice: " + strings.Join(subjects, ", "),
		CreatedBy: actor.UserID,
		Status:    domain.QuizStatusDraft,
		Type:      domain.QuizTypeBuiltIn,
		Settings: domain.QuizSettings{
			ShuffleQuestions:      true,
			QuestionsCount:        limit,
			AllowMultipleAttempts: true,
		},
		BuiltInFilter: domain.BuiltInFilter{
			Category: domain.SourceTechnical,
			Subjects: subjects,
		},
		Practice: true,
	}

	if err := s.insert(ctx, q); err != nil {
		return nil, fmt.Errorf("create practice quiz: %w", err)
	}

	telemetry.QuizzesCreated.WithLabelValues("practice").Inc()
	return q, nil
}

// Discard drops a practice quiz that ended up without questions.
func (s *Service) Discard(ctx context.Context, id string) error {
	return s.store.DeleteQuiz(ctx, id)
}
