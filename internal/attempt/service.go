package attempt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/victornm/eduquiz/internal/bank"
	"github.com/victornm/eduquiz/internal/domain"
	"github.com/victornm/eduquiz/internal/errors"
	"github.com/victornm/eduquiz/internal/event"
	"github.com/victornm/eduquiz/internal/sampler"
	"github.com/victornm/eduquiz/internal/telemetry"
)

type Filter struct {
	UserID        string
	QuizID        string
	SubmittedOnly bool
}

// Store persists attempts. SubmitAttempt is a check-and-set: it applies the result only while the attempt
// has no finish time and reports whether it did.
type Store interface {
	InsertAttempt(ctx context.Context, a *domain.Attempt) error
	GetAttempt(ctx context.Context, id string) (*domain.Attempt, error)
	SubmitAttempt(ctx context.Context, id string, r domain.AttemptResult) (bool, error)
	ListAttempts(ctx context.Context, f Filter) ([]domain.Attempt, error)
	CountAttempts(ctx context.Context, f Filter) (int, error)
}

type Quizzes interface {
	Resolve(ctx context.Context, ref domain.QuizRef) (*domain.Quiz, error)
	CreatePracticeQuiz(ctx context.Context, actor domain.Actor, subjects []string, limit int) (*domain.Quiz, error)
	Discard(ctx context.Context, id string) error
}

type Bank interface {
	FindCustomQuestions(ctx context.Context, f bank.QuestionFilter) ([]domain.Question, error)
	FindBuiltInQuestions(ctx context.Context, f bank.BuiltInFilter) ([]domain.BuiltInQuestion, error)
	GetQuestions(ctx context.Context, ids []string) ([]domain.Question, error)
}

// Stats receives the totals of every submitted attempt.
type Stats interface {
	RecordAttempt(ctx context.Context, userID string, d domain.StatsDelta) error
}

type Config struct {
	Store                 Store
	Quizzes               Quizzes
	Bank                  Bank
	Stats                 Stats
	EventBus              *event.Bus
	Source                sampler.Source
	DefaultPoints         decimal.Decimal
	DefaultQuestionsCount int
	Now                   func() time.Time
}

type Service struct {
	store   Store
	quizzes Quizzes
	bank    Bank
	stats   Stats
	eb      *event.Bus
	src     sampler.Source
	points  decimal.Decimal
	count   int
	now     func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		store:   c.Store,
		quizzes: c.Quizzes,
		bank:    c.Bank,
		stats:   c.Stats,
		eb:      c.EventBus,
		src:     c.Source,
		points:  c.DefaultPoints,
		count:   c.DefaultQuestionsCount,
		now:     c.Now,
	}

	if s.src == nil {
		s.src = sampler.Default
	}
	if !s.points.IsPositive() {
		s.points = decimal.NewFromInt(1)
	}
	if s.count <= 0 {
		s.count = 10
	}
	if s.now == nil {
		s.now = time.Now
	}

	return s
}

type StartRequest struct {
	Actor domain.Actor
	Quiz  domain.QuizRef
}

// StartResponse is safe to hand to the student: questions carry no answer key.
type StartResponse struct {
	AttemptID string                  `json:"attemptId"`
	QuizID    string                  `json:"quizId"`
	Title     string                  `json:"title"`
	Questions []domain.ClientQuestion `json:"questions"`
	Settings  domain.QuizSettings     `json:"settings"`
	StartedAt time.Time               `json:"startedAt"`
}

// Start snapshots the quiz questions into a new attempt for the actor.
func (s *Service) Start(ctx context.Context, req StartRequest) (*StartResponse, error) {
	q, err := s.quizzes.Resolve(ctx, req.Quiz)
	if err != nil {
		return nil, err
	}

	if q.Practice || !q.Status.Joinable() {
		return nil, errors.PermissionDenied("quiz %s is not open for attempts", q.ID)
	}

	if !q.Settings.AllowMultipleAttempts {
		n, err := s.store.CountAttempts(ctx, Filter{UserID: req.Actor.UserID, QuizID: q.ID, SubmittedOnly: true})
		if err != nil {
			return nil, fmt.Errorf("count attempts: %w", err)
		}
		if n > 0 {
			return nil, errors.AlreadyExists("quiz %s allows a single attempt", q.ID)
		}
	}

	candidates, err := s.candidates(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, errors.NotFound("quiz %s has no available questions", q.ID)
	}

	a, err := s.create(ctx, req.Actor, q, candidates, domain.AttemptMetadata{})
	if err != nil {
		return nil, err
	}

	telemetry.AttemptsStarted.WithLabelValues("quiz").Inc()
	return startResponse(a, q), nil
}

func (s *Service) candidates(ctx context.Context, q *domain.Quiz) ([]domain.Candidate, error) {
	if q.Type == domain.QuizTypeBuiltIn {
		return s.builtInCandidates(ctx, q)
	}
	return s.customCandidates(ctx, q)
}

// customCandidates shuffles first (when enabled) and truncates after, so the shuffle decides which
// questions survive a questionsCount below the available count.
func (s *Service) customCandidates(ctx context.Context, q *domain.Quiz) ([]domain.Candidate, error) {
	cands, err := s.byIDs(ctx, q.QuestionIDs)
	if err != nil {
		return nil, err
	}

	if q.Settings.ShuffleQuestions {
		cands = sampler.Uniform(s.src, cands, len(cands))
	}
	if c := q.Settings.QuestionsCount; c > 0 && c < len(cands) {
		cands = sampler.Uniform(s.src, cands, c)
	}

	return cands, nil
}

// builtInCandidates draws from the built-in pool. A quiz assembled from the custom bank whose filter matches
// nothing in the pool falls back to its assembled questions.
func (s *Service) builtInCandidates(ctx context.Context, q *domain.Quiz) ([]domain.Candidate, error) {
	count := q.Settings.QuestionsCount
	if count <= 0 {
		count = s.count
	}

	pool, err := s.bank.FindBuiltInQuestions(ctx, bank.BuiltInFilter{
		Source:     q.BuiltInFilter.Category,
		Subjects:   q.BuiltInFilter.Subjects,
		Difficulty: q.BuiltInFilter.Difficulty,
	})
	if err != nil {
		return nil, fmt.Errorf("find built-in questions: %w", err)
	}

	cands := make([]domain.Candidate, 0, len(pool))
	for _, p := range pool {
		cands = append(cands, domain.CandidateFromBuiltIn(p))
	}

	if len(cands) == 0 && len(q.QuestionIDs) > 0 {
		if cands, err = s.byIDs(ctx, q.QuestionIDs); err != nil {
			return nil, err
		}
	}

	return sampler.Uniform(s.src, cands, count), nil
}

// byIDs loads active custom questions in the order of ids.
func (s *Service) byIDs(ctx context.Context, ids []string) ([]domain.Candidate, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	qs, err := s.bank.FindCustomQuestions(ctx, bank.QuestionFilter{IDs: ids})
	if err != nil {
		return nil, fmt.Errorf("find questions: %w", err)
	}

	byID := make(map[string]domain.Question, len(qs))
	for _, q := range qs {
		byID[q.ID] = q
	}

	out := make([]domain.Candidate, 0, len(qs))
	for _, id := range ids {
		if q, ok := byID[id]; ok {
			out = append(out, domain.CandidateFromQuestion(q))
		}
	}
	return out, nil
}

type PracticeRequest struct {
	Actor    domain.Actor
	Subjects []string
	Limit    int
}

// Practice starts an attempt over an equal per-subject draw from the technical built-in pool and the active
// custom bank. A non-joinable quiz is recorded for reporting and dropped again when nothing matches.
func (s *Service) Practice(ctx context.Context, req PracticeRequest) (*StartResponse, error) {
	subjects := uniqueSubjects(req.Subjects)
	if len(subjects) == 0 {
		return nil, errors.InvalidArgument("at least one subject is required")
	}

	limit := req.Limit
	if limit <= 0 {
		limit = s.count
	}

	q, err := s.quizzes.CreatePracticeQuiz(ctx, req.Actor, subjects, limit)
	if err != nil {
		return nil, err
	}

	groups, err := s.practiceGroups(ctx, subjects)
	if err != nil {
		s.discard(ctx, q.ID)
		return nil, err
	}

	picked := sampler.Stratified(s.src, groups, limit)
	if len(picked) == 0 {
		s.discard(ctx, q.ID)
		return nil, errors.NotFound("no questions found for subjects: %s", strings.Join(subjects, ", "))
	}

	a, err := s.create(ctx, req.Actor, q, picked, domain.AttemptMetadata{Practice: true, Subjects: subjects})
	if err != nil {
		s.discard(ctx, q.ID)
		return nil, err
	}

	telemetry.AttemptsStarted.WithLabelValues("practice").Inc()
	return startResponse(a, q), nil
}

func (s *Service) practiceGroups(ctx context.Context, subjects []string) ([]sampler.Group[domain.Candidate], error) {
	var (
		builtIn []domain.BuiltInQuestion
		custom  []domain.Question
	)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		builtIn, err = s.bank.FindBuiltInQuestions(ctx, bank.BuiltInFilter{Source: domain.SourceTechnical, Subjects: subjects})
		return err
	})
	eg.Go(func() (err error) {
		custom, err = s.bank.FindCustomQuestions(ctx, bank.QuestionFilter{Subjects: subjects})
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("load practice pools: %w", err)
	}

	pools := make(map[string][]domain.Candidate, len(subjects))
	for _, q := range builtIn {
		pools[q.Subject] = append(pools[q.Subject], domain.CandidateFromBuiltIn(q))
	}
	for _, q := range custom {
		pools[q.Subject] = append(pools[q.Subject], domain.CandidateFromQuestion(q))
	}

	groups := make([]sampler.Group[domain.Candidate], 0, len(subjects))
	for _, subject := range subjects {
		groups = append(groups, sampler.Group[domain.Candidate]{Key: subject, Pool: pools[subject]})
	}
	return groups, nil
}

func (s *Service) discard(ctx context.Context, quizID string) {
	if err := s.quizzes.Discard(ctx, quizID); err != nil {
		slog.ErrorContext(ctx, "attempt: discard practice quiz failed", "quiz", quizID, "error", err)
	}
}

func (s *Service) create(ctx context.Context, actor domain.Actor, q *domain.Quiz, cands []domain.Candidate, md domain.AttemptMetadata) (*domain.Attempt, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate attempt ID: %w", err)
	}

	snapshot := make([]domain.SnapshotQuestion, 0, len(cands))
	for _, c := range cands {
		snapshot = append(snapshot, c.Snapshot(s.points))
	}

	md.QuizSnapshot = domain.QuizSnapshot{Title: q.Title}

	a := &domain.Attempt{
		ID:        id.String(),
		QuizID:    q.ID,
		UserID:    actor.UserID,
		StartedAt: s.now(),
		Questions: snapshot,
		Answers:   []domain.Answer{},
		Score:     decimal.Zero,
		MaxScore:  decimal.Zero,
		Metadata:  md,
	}

	if err := s.store.InsertAttempt(ctx, a); err != nil {
		return nil, fmt.Errorf("insert attempt: %w", err)
	}

	return a, nil
}

func startResponse(a *domain.Attempt, q *domain.Quiz) *StartResponse {
	qs := make([]domain.ClientQuestion, 0, len(a.Questions))
	for _, sq := range a.Questions {
		qs = append(qs, sq.Client())
	}

	return &StartResponse{
		AttemptID: a.ID,
		QuizID:    q.ID,
		Title:     q.Title,
		Questions: qs,
		Settings:  q.Settings,
		StartedAt: a.StartedAt,
	}
}

func uniqueSubjects(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
