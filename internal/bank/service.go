package bank

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/victornm/eduquiz/internal/domain"
	"github.com/victornm/eduquiz/internal/errors"
	"github.com/victornm/eduquiz/internal/fingerprint"
	"github.com/victornm/eduquiz/internal/telemetry"
)

// QuestionFilter selects custom bank questions. Empty fields do not filter.
type QuestionFilter struct {
	IDs []string
	// Subject matches exactly (case-sensitive). SubjectPattern is a regular expression; both may be set.
	Subject        string
	SubjectPattern string
	Subjects       []string
	Difficulty     domain.Difficulty
	CreatedBy      string
	// Inactive (soft deleted) questions are excluded unless IncludeInactive is set.
	IncludeInactive bool
}

type BuiltInFilter struct {
	Source     domain.Source
	Subjects   []string
	Difficulty domain.Difficulty
}

// Store is the persistence the bank needs. Insert methods fail with CodeAlreadyExists on a fingerprint clash.
type Store interface {
	FindQuestions(ctx context.Context, f QuestionFilter) ([]domain.Question, error)
	GetQuestion(ctx context.Context, id string) (*domain.Question, error)
	FindQuestionByFingerprint(ctx context.Context, fp string) (*domain.Question, error)
	// FindLegacyQuestionByText matches rows stored before fingerprints existed.
	FindLegacyQuestionByText(ctx context.Context, text string) (*domain.Question, error)
	InsertQuestion(ctx context.Context, q *domain.Question) error
	UpdateQuestion(ctx context.Context, q *domain.Question) error

	FindBuiltIn(ctx context.Context, f BuiltInFilter) ([]domain.BuiltInQuestion, error)
	FindBuiltInByFingerprint(ctx context.Context, source domain.Source, fp string) (*domain.BuiltInQuestion, error)
	InsertBuiltIn(ctx context.Context, q *domain.BuiltInQuestion) error
}

type Config struct {
	Store         Store
	DefaultPoints decimal.Decimal
	Now           func() time.Time
}

type Service struct {
	store    Store
	points   decimal.Decimal
	now      func() time.Time
	validate *validator.Validate
}

func NewService(c Config) *Service {
	s := &Service{
		store:    c.Store,
		points:   c.DefaultPoints,
		now:      c.Now,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}

	if !s.points.IsPositive() {
		s.points = decimal.NewFromInt(1)
	}
	if s.now == nil {
		s.now = time.Now
	}

	return s
}

// FindCustomQuestions returns questions of the custom bank matching f.
func (s *Service) FindCustomQuestions(ctx context.Context, f QuestionFilter) ([]domain.Question, error) {
	return s.store.FindQuestions(ctx, f)
}

// FindBuiltInQuestions returns entries of the built-in pool matching f.
func (s *Service) FindBuiltInQuestions(ctx context.Context, f BuiltInFilter) ([]domain.BuiltInQuestion, error) {
	return s.store.FindBuiltIn(ctx, f)
}

// FindOrCreateQuestion returns the question whose content matches candidate, inserting candidate when none does.
// A concurrent insert of the same content is resolved by re-reading the winner exactly once; if that re-read
// finds nothing the clash is reported as a conflict. The boolean reports whether candidate was inserted.
func (s *Service) FindOrCreateQuestion(ctx context.Context, candidate domain.Question) (*domain.Question, bool, error) {
	s.prepare(&candidate)

	existing, err := s.findExisting(ctx, candidate)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	err = s.store.InsertQuestion(ctx, &candidate)
	if err == nil {
		return &candidate, true, nil
	}
	if !errors.Is(err, errors.CodeAlreadyExists) {
		return nil, false, fmt.Errorf("insert question: %w", err)
	}

	telemetry.QuestionInsertRaces.Inc()
	slog.InfoContext(ctx, "bank: question insert raced, re-reading winner", "fingerprint", candidate.Fingerprint)

	winner, rerr := s.store.FindQuestionByFingerprint(ctx, candidate.Fingerprint)
	if rerr != nil {
		return nil, false, errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("question with fingerprint %s exists but could not be read back", candidate.Fingerprint),
			errors.WithCause(rerr),
		)
	}

	return winner, false, nil
}

func (s *Service) findExisting(ctx context.Context, q domain.Question) (*domain.Question, error) {
	found, err := s.store.FindQuestionByFingerprint(ctx, q.Fingerprint)
	if err == nil {
		return found, nil
	}
	if !errors.Is(err, errors.CodeNotFound) {
		return nil, fmt.Errorf("find question by fingerprint: %w", err)
	}

	found, err = s.store.FindLegacyQuestionByText(ctx, q.Text)
	if err == nil {
		return found, nil
	}
	if !errors.Is(err, errors.CodeNotFound) {
		return nil, fmt.Errorf("find question by text: %w", err)
	}

	return nil, nil
}

// prepare fills the derived and defaulted fields of a question about to be stored.
func (s *Service) prepare(q *domain.Question) {
	now := s.now()

	q.Text = strings.TrimSpace(q.Text)
	q.Fingerprint = fingerprint.Compute(q.Text, q.Choices)
	q.IsActive = true
	if q.ID == "" {
		q.ID = newID()
	}
	if q.Difficulty == "" {
		q.Difficulty = domain.DifficultyMedium
	}
	if !q.Points.IsPositive() {
		q.Points = s.points
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = now
	}
	q.UpdatedAt = now
}

// QuestionFromRow converts a validated import row into a bank question owned by createdBy.
func QuestionFromRow(r domain.ImportRow, createdBy string) domain.Question {
	return domain.Question{
		Text:            r.Text,
		Choices:         r.Choices,
		CorrectChoiceID: r.CorrectChoiceID,
		Difficulty:      r.Difficulty,
		Subject:         strings.TrimSpace(r.Subject),
		Explanation:     r.Explanation,
		Points:          r.Points,
		CreatedBy:       createdBy,
	}
}

// ValidateRow checks the minimal shape of an import row.
func (s *Service) ValidateRow(r domain.ImportRow) error {
	if err := s.validate.Struct(r); err != nil {
		return err
	}

	q := QuestionFromRow(r, "")
	return q.Validate()
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
