package bank

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/victornm/eduquiz/internal/domain"
	"github.com/victornm/eduquiz/internal/errors"
	"github.com/victornm/eduquiz/internal/fingerprint"
	"github.com/victornm/eduquiz/internal/telemetry"
)

type CreateQuestionRequest struct {
	Actor           domain.Actor
	Text            string
	Choices         []domain.Choice
	CorrectChoiceID string
	Difficulty      domain.Difficulty
	Subject         string
	Tags            []string
	Explanation     string
	Points          decimal.Decimal
}

// CreateQuestion adds a question to the custom bank. Content that is already in the bank is rejected.
func (s *Service) CreateQuestion(ctx context.Context, req CreateQuestionRequest) (*domain.Question, error) {
	if !req.Actor.Role.CanAuthor() {
		return nil, errors.PermissionDenied("role %s cannot create questions", req.Actor.Role)
	}

	q := domain.Question{
		Text:            req.Text,
		Choices:         req.Choices,
		CorrectChoiceID: req.CorrectChoiceID,
		Difficulty:      req.Difficulty,
		Subject:         strings.TrimSpace(req.Subject),
		Tags:            dedupe(req.Tags),
		Explanation:     req.Explanation,
		Points:          req.Points,
		CreatedBy:       req.Actor.UserID,
	}
	s.prepare(&q)

	if err := q.Validate(); err != nil {
		return nil, errors.InvalidArgument("invalid question: %v", err)
	}

	if _, err := s.store.FindQuestionByFingerprint(ctx, q.Fingerprint); err == nil {
		return nil, errors.AlreadyExists("question already exists")
	} else if !errors.Is(err, errors.CodeNotFound) {
		return nil, fmt.Errorf("find question by fingerprint: %w", err)
	}

	if err := s.store.InsertQuestion(ctx, &q); err != nil {
		return nil, err
	}

	return &q, nil
}

type UpdateQuestionRequest struct {
	Actor           domain.Actor
	ID              string
	Text            *string
	Choices         []domain.Choice
	CorrectChoiceID *string
	Difficulty      *domain.Difficulty
	Subject         *string
	Tags            []string
	Explanation     *string
	Points          *decimal.Decimal
}

// UpdateQuestion patches a question. Only the owner or an admin may do so.
// Existing attempts are unaffected since they score against their own snapshot.
func (s *Service) UpdateQuestion(ctx context.Context, req UpdateQuestionRequest) (*domain.Question, error) {
	q, err := s.store.GetQuestion(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	if !req.Actor.Role.CanAuthor() || !req.Actor.Owns(q.CreatedBy) {
		return nil, errors.PermissionDenied("question %s is not yours", req.ID)
	}

	if req.Text != nil {
		q.Text = strings.TrimSpace(*req.Text)
	}
	if req.Choices != nil {
		q.Choices = req.Choices
	}
	if req.CorrectChoiceID != nil {
		q.CorrectChoiceID = *req.CorrectChoiceID
	}
	if req.Difficulty != nil {
		q.Difficulty = *req.Difficulty
	}
	if req.Subject != nil {
		q.Subject = strings.TrimSpace(*req.Subject)
	}
	if req.Tags != nil {
		q.Tags = dedupe(req.Tags)
	}
	if req.Explanation != nil {
		q.Explanation = *req.Explanation
	}
	if req.Points != nil && req.Points.IsPositive() {
		q.Points = *req.Points
	}

	if err := q.Validate(); err != nil {
		return nil, errors.InvalidArgument("invalid question: %v", err)
	}

	fp := fingerprint.Compute(q.Text, q.Choices)
	if fp != q.Fingerprint {
		other, err := s.store.FindQuestionByFingerprint(ctx, fp)
		switch {
		case err == nil && other.ID != q.ID:
			return nil, errors.AlreadyExists("another question %s has the same content", other.ID)
		case err != nil && !errors.Is(err, errors.CodeNotFound):
			return nil, fmt.Errorf("find question by fingerprint: %w", err)
		}
		q.Fingerprint = fp
	}
	q.UpdatedAt = s.now()

	if err := s.store.UpdateQuestion(ctx, q); err != nil {
		return nil, err
	}

	return q, nil
}

// DeleteQuestion soft deletes a question so snapshots and reports referencing it stay resolvable.
func (s *Service) DeleteQuestion(ctx context.Context, actor domain.Actor, id string) error {
	q, err := s.store.GetQuestion(ctx, id)
	if err != nil {
		return err
	}

	if !actor.Role.CanAuthor() || !actor.Owns(q.CreatedBy) {
		return errors.PermissionDenied("question %s is not yours", id)
	}

	if !q.IsActive {
		return nil
	}

	q.IsActive = false
	q.UpdatedAt = s.now()
	return s.store.UpdateQuestion(ctx, q)
}

// ListQuestions browses the custom bank. Rows carry the answer key, so only authors may list them.
func (s *Service) ListQuestions(ctx context.Context, actor domain.Actor, f QuestionFilter) ([]domain.Question, error) {
	if !actor.Role.CanAuthor() {
		return nil, errors.PermissionDenied("role %s cannot browse the question bank", actor.Role)
	}
	return s.store.FindQuestions(ctx, f)
}

// GetQuestions returns the questions with the given ids, inactive ones included.
func (s *Service) GetQuestions(ctx context.Context, ids []string) ([]domain.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.store.FindQuestions(ctx, QuestionFilter{IDs: ids, IncludeInactive: true})
}

type ImportBuiltInRequest struct {
	Actor       domain.Actor
	Source      domain.Source
	Rows        []domain.ImportRow
	ParseErrors []domain.RowError
}

// ImportBuiltIn loads rows into the built-in pool of a source. Rows whose content already exists in that
// source are counted as reused; malformed rows are skipped and reported.
func (s *Service) ImportBuiltIn(ctx context.Context, req ImportBuiltInRequest) (*domain.ImportReport, error) {
	if req.Actor.Role != domain.RoleAdmin {
		return nil, errors.PermissionDenied("only admins can import into the built-in pool")
	}
	if !req.Source.Valid() {
		return nil, errors.InvalidArgument("unknown built-in source %q", req.Source)
	}

	report := &domain.ImportReport{Errors: append([]domain.RowError(nil), req.ParseErrors...)}

	for i, row := range req.Rows {
		n := RowNumber(row, i)

		if err := s.ValidateRow(row); err != nil {
			report.Skip(n, "invalid row: %v", err)
			telemetry.ImportRows.WithLabelValues("skipped").Inc()
			continue
		}

		q := domain.BuiltInQuestion{
			ID:              newID(),
			Source:          req.Source,
			Text:            strings.TrimSpace(row.Text),
			Choices:         row.Choices,
			CorrectChoiceID: row.CorrectChoiceID,
			Difficulty:      row.Difficulty,
			Subject:         strings.TrimSpace(row.Subject),
			Explanation:     row.Explanation,
			Points:          row.Points,
			CreatedAt:       s.now(),
		}
		if q.Difficulty == "" {
			q.Difficulty = domain.DifficultyMedium
		}
		if !q.Points.IsPositive() {
			q.Points = s.points
		}
		q.Fingerprint = fingerprint.Compute(q.Text, q.Choices)

		if _, err := s.store.FindBuiltInByFingerprint(ctx, q.Source, q.Fingerprint); err == nil {
			report.Reused++
			telemetry.ImportRows.WithLabelValues("reused").Inc()
			continue
		} else if !errors.Is(err, errors.CodeNotFound) {
			return nil, fmt.Errorf("find built-in by fingerprint: %w", err)
		}

		err := s.store.InsertBuiltIn(ctx, &q)
		switch {
		case err == nil:
			report.Imported++
			telemetry.ImportRows.WithLabelValues("imported").Inc()
		case errors.Is(err, errors.CodeAlreadyExists):
			report.Reused++
			telemetry.ImportRows.WithLabelValues("reused").Inc()
		default:
			return nil, fmt.Errorf("insert built-in question: %w", err)
		}
	}

	if report.Imported+report.Reused == 0 {
		return report, errors.InvalidArgument("no valid questions in import: %d rows skipped", report.Skipped)
	}

	return report, nil
}

// RowNumber is the spreadsheet row reported to the caller; rows without one are numbered by position.
func RowNumber(r domain.ImportRow, i int) int {
	if r.Row > 0 {
		return r.Row
	}
	return i + 1
}

func dedupe(tags []string) []string {
	if tags == nil {
		return nil
	}

	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
