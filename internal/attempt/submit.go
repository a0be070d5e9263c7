package attempt

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/victornm/eduquiz/internal/domain"
	"github.com/victornm/eduquiz/internal/errors"
	"github.com/victornm/eduquiz/internal/telemetry"
)

type SubmitRequest struct {
	Actor     domain.Actor
	AttemptID string
	Answers   []SubmittedAnswer
}

type SubmitResponse struct {
	AttemptID  string          `json:"attemptId"`
	QuizID     string          `json:"quizId"`
	Score      decimal.Decimal `json:"score"`
	MaxScore   decimal.Decimal `json:"maxScore"`
	Correct    int             `json:"correct"`
	Answered   int             `json:"answered"`
	Review     []ReviewItem    `json:"review"`
	FinishedAt time.Time       `json:"finishedAt"`
}

// Submit grades the attempt against its snapshot and records the result exactly once. Of two concurrent
// submissions one wins; the other fails with AlreadyExists and changes nothing.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	a, err := s.store.GetAttempt(ctx, req.AttemptID)
	if err != nil {
		return nil, err
	}

	if a.UserID != req.Actor.UserID {
		return nil, errors.PermissionDenied("attempt %s is not yours", a.ID)
	}
	if !a.CanSubmit() {
		return nil, errors.AlreadyExists("attempt %s was already submitted", a.ID)
	}

	questions := a.Questions
	if len(questions) == 0 {
		// Attempts written before snapshots existed carry nothing to score against.
		return nil, errors.InvalidArgument("attempt %s has no questions", a.ID)
	}

	answers, score, maxScore := Score(questions, req.Answers)
	result := domain.AttemptResult{
		Answers:    answers,
		Score:      score,
		MaxScore:   maxScore,
		FinishedAt: s.now(),
	}

	ok, err := s.store.SubmitAttempt(ctx, a.ID, result)
	if err != nil {
		return nil, fmt.Errorf("submit attempt: %w", err)
	}
	if !ok {
		telemetry.SubmitConflicts.Inc()
		return nil, errors.AlreadyExists("attempt %s was already submitted", a.ID)
	}
	telemetry.AttemptsSubmitted.Inc()

	delta := result.Stats()
	if err := s.stats.RecordAttempt(ctx, a.UserID, delta); err != nil {
		slog.ErrorContext(ctx, "attempt: record user stats failed",
			"attempt", a.ID,
			"user", a.UserID,
			"error", err,
		)
	}

	a.Answers = answers
	a.Score = score
	a.MaxScore = maxScore
	a.FinishedAt = &result.FinishedAt

	if s.eb != nil {
		s.eb.Publish(ctx, domain.EventAttemptSubmitted{Attempt: *a})
	}

	return &SubmitResponse{
		AttemptID:  a.ID,
		QuizID:     a.QuizID,
		Score:      score,
		MaxScore:   maxScore,
		Correct:    delta.Correct,
		Answered:   delta.Answered,
		Review:     Review(questions, answers),
		FinishedAt: result.FinishedAt,
	}, nil
}

// GetByID returns an attempt. Students may only read their own; faculty and admins read any. While the attempt is in progress
// the answer key is withheld.
func (s *Service) GetByID(ctx context.Context, actor domain.Actor, id string) (*domain.Attempt, error) {
	a, err := s.store.GetAttempt(ctx, id)
	if err != nil {
		return nil, err
	}

	if a.UserID != actor.UserID && !actor.Role.CanAuthor() {
		return nil, errors.PermissionDenied("attempt %s is not yours", id)
	}

	if len(a.Questions) == 0 && len(a.Answers) > 0 {
		if err := s.rebuild(ctx, a); err != nil {
			return nil, err
		}
	}

	return view(a), nil
}

// ListMine returns the actor's attempts, newest first.
func (s *Service) ListMine(ctx context.Context, actor domain.Actor) ([]domain.Attempt, error) {
	as, err := s.store.ListAttempts(ctx, Filter{UserID: actor.UserID})
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}

	out := make([]domain.Attempt, 0, len(as))
	for i := range as {
		out = append(out, *view(&as[i]))
	}
	return out, nil
}

// rebuild reconstructs a missing snapshot from the live questions that were answered. The result is marked
// degraded: the live questions may have changed since.
func (s *Service) rebuild(ctx context.Context, a *domain.Attempt) error {
	ids := make([]string, 0, len(a.Answers))
	for _, ans := range a.Answers {
		ids = append(ids, ans.QuestionID)
	}

	qs, err := s.bank.GetQuestions(ctx, ids)
	if err != nil {
		return fmt.Errorf("get answered questions: %w", err)
	}

	byID := make(map[string]domain.Question, len(qs))
	for _, q := range qs {
		byID[q.ID] = q
	}

	a.Questions = make([]domain.SnapshotQuestion, 0, len(ids))
	for _, id := range ids {
		if q, ok := byID[id]; ok {
			a.Questions = append(a.Questions, domain.CandidateFromQuestion(q).Snapshot(s.points))
		}
	}
	a.Metadata.Degraded = true

	return nil
}

func view(a *domain.Attempt) *domain.Attempt {
	if !a.CanSubmit() {
		return a
	}

	out := *a
	out.Questions = make([]domain.SnapshotQuestion, 0, len(a.Questions))
	for _, q := range a.Questions {
		q.CorrectChoiceID = ""
		q.Explanation = ""
		out.Questions = append(out.Questions, q)
	}
	return &out
}
