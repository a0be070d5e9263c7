package quiz

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/victornm/eduquiz/internal/bank"
	"github.com/victornm/eduquiz/internal/domain"
	"github.com/victornm/eduquiz/internal/errors"
	"github.com/victornm/eduquiz/internal/sampler"
	"github.com/victornm/eduquiz/internal/telemetry"
)

const defaultQuestionsCount = 10

type ListFilter struct {
	CreatedBy       string
	Status          domain.QuizStatus
	IncludePractice bool
}

// Store persists quizzes. InsertQuiz fails with CodeAlreadyExists when the join code is taken.
// UpdateQuizStatus only applies when the stored status still equals from, and fails with
// CodeAlreadyExists otherwise.
type Store interface {
	InsertQuiz(ctx context.Context, q *domain.Quiz) error
	GetQuiz(ctx context.Context, id string) (*domain.Quiz, error)
	GetQuizByCode(ctx context.Context, code string) (*domain.Quiz, error)
	QuizCodeExists(ctx context.Context, code string) (bool, error)
	ListQuizzes(ctx context.Context, f ListFilter) ([]domain.Quiz, error)
	UpdateQuizStatus(ctx context.Context, id string, from, to domain.QuizStatus, at time.Time) error
	DeleteQuiz(ctx context.Context, id string) error
}

type Bank interface {
	FindCustomQuestions(ctx context.Context, f bank.QuestionFilter) ([]domain.Question, error)
	FindOrCreateQuestion(ctx context.Context, candidate domain.Question) (*domain.Question, bool, error)
	ValidateRow(r domain.ImportRow) error
}

type Config struct {
	Store        Store
	Bank         Bank
	Source       sampler.Source
	CodeLength   int
	CodeAttempts int
	Now          func() time.Time
}

type Service struct {
	store        Store
	bank         Bank
	src          sampler.Source
	codeLength   int
	codeAttempts int
	now          func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		store:        c.Store,
		bank:         c.Bank,
		src:          c.Source,
		codeLength:   c.CodeLength,
		codeAttempts: c.CodeAttempts,
		now:          c.Now,
	}

	if s.src == nil {
		s.src = sampler.Default
	}
	if s.codeLength <= 0 {
		s.codeLength = defaultCodeLength
	}
	if s.codeAttempts <= 0 {
		s.codeAttempts = defaultCodeAttempts
	}
	if s.now == nil {
		s.now = time.Now
	}

	return s
}

// CreateQuizRequest builds a quiz from an explicit, ordered list of custom question ids.
type CreateQuizRequest struct {
	Actor       domain.Actor
	Title       string
	Description string
	QuestionIDs []string
	Settings    domain.QuizSettings
	// Status defaults to published. Only draft and published are accepted at creation.
	Status domain.QuizStatus
}

// CreateQuiz persists a manual quiz. No sampling happens here; selection is deferred to attempt start.
func (s *Service) CreateQuiz(ctx context.Context, req CreateQuizRequest) (*domain.Quiz, error) {
	if err := s.authorize(req.Actor); err != nil {
		return nil, err
	}

	title, err := requireTitle(req.Title)
	if err != nil {
		return nil, err
	}

	status, err := initialStatus(req.Status)
	if err != nil {
		return nil, err
	}

	ids := uniqueIDs(req.QuestionIDs)
	if len(ids) == 0 {
		return nil, errors.InvalidArgument("at least one question id is required")
	}

	found, err := s.bank.FindCustomQuestions(ctx, bank.QuestionFilter{IDs: ids})
	if err != nil {
		return nil, fmt.Errorf("find questions: %w", err)
	}
	if missing := missingIDs(ids, found); len(missing) > 0 {
		return nil, errors.NotFound("questions not found or inactive: %s", strings.Join(missing, ", "))
	}

	settings, err := normalizeSettings(req.Settings, len(ids))
	if err != nil {
		return nil, err
	}

	q := &domain.Quiz{
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		CreatedBy:   req.Actor.UserID,
		Status:      status,
		Type:        domain.QuizTypeCustom,
		Settings:    settings,
		QuestionIDs: ids,
	}

	if err := s.insert(ctx, q); err != nil {
		return nil, err
	}

	telemetry.QuizzesCreated.WithLabelValues("manual").Inc()
	return q, nil
}

// CreateFromExcelRequest carries rows already parsed and shape checked by the upstream spreadsheet parser,
// together with the parser's own row errors.
type CreateFromExcelRequest struct {
	Actor       domain.Actor
	Title       string
	Description string
	Settings    domain.QuizSettings
	Rows        []domain.ImportRow
	ParseErrors []domain.RowError
}

type ImportResult struct {
	Quiz   *domain.Quiz         `json:"quiz,omitempty"`
	Report *domain.ImportReport `json:"report"`
}

type indexedRow struct {
	n   int
	row domain.ImportRow
}

// CreateFromExcel turns spreadsheet rows into bank questions, deduplicated by fingerprint, and a quiz over them.
// When fewer questions than rows are requested the rows are sampled first so discarded rows are never inserted.
// Bad rows are reported, not fatal; the call only fails when no usable question remains.
func (s *Service) CreateFromExcel(ctx context.Context, req CreateFromExcelRequest) (*ImportResult, error) {
	if err := s.authorize(req.Actor); err != nil {
		return nil, err
	}

	title, err := requireTitle(req.Title)
	if err != nil {
		return nil, err
	}

	if req.Settings.QuestionsCount < 0 {
		return nil, errors.InvalidArgument("questionsCount must not be negative")
	}

	rows := make([]indexedRow, 0, len(req.Rows))
	for i, r := range req.Rows {
		rows = append(rows, indexedRow{n: bank.RowNumber(r, i), row: r})
	}
	if c := req.Settings.QuestionsCount; c > 0 && c < len(rows) {
		rows = sampler.Uniform(s.src, rows, c)
	}

	res := &ImportResult{
		Report: &domain.ImportReport{Errors: append([]domain.RowError(nil), req.ParseErrors...)},
	}

	var ids []string
	seen := make(map[string]struct{})
	for _, r := range rows {
		if err := s.bank.ValidateRow(r.row); err != nil {
			res.Report.Skip(r.n, "invalid row: %v", err)
			telemetry.ImportRows.WithLabelValues("skipped").Inc()
			continue
		}

		q, created, err := s.bank.FindOrCreateQuestion(ctx, bank.QuestionFromRow(r.row, req.Actor.UserID))
		if err != nil {
			slog.ErrorContext(ctx, "quiz: import row failed", "row", r.n, "error", err)
			res.Report.Skip(r.n, "store question: %v", errors.Convert(err).Message)
			telemetry.ImportRows.WithLabelValues("skipped").Inc()
			continue
		}

		if created {
			res.Report.Imported++
			telemetry.ImportRows.WithLabelValues("imported").Inc()
		} else {
			res.Report.Reused++
			telemetry.ImportRows.WithLabelValues("reused").Inc()
		}

		if _, ok := seen[q.ID]; ok {
			continue
		}
		seen[q.ID] = struct{}{}
		ids = append(ids, q.ID)
	}

	if len(ids) == 0 {
		return res, errors.InvalidArgument("no valid questions in upload: %d rows skipped", res.Report.Skipped)
	}

	settings := req.Settings
	settings.QuestionsCount = len(ids)

	q := &domain.Quiz{
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		CreatedBy:   req.Actor.UserID,
		Status:      domain.QuizStatusPublished,
		Type:        domain.QuizTypeCustom,
		Settings:    settings,
		QuestionIDs: ids,
	}

	if err := s.insert(ctx, q); err != nil {
		return res, err
	}

	telemetry.QuizzesCreated.WithLabelValues("excel").Inc()
	res.Quiz = q
	return res, nil
}

type CreateBuiltInQuizRequest struct {
	Actor       domain.Actor
	Title       string
	Description string
	Filter      domain.BuiltInFilter
	// Count is the number of questions to assemble, defaulting to Settings.QuestionsCount and then 10.
	Count    int
	Settings domain.QuizSettings
}

// SubjectReport tells how many questions one subject contributed to a stratified draw.
type SubjectReport struct {
	Subject   string `json:"subject"`
	Requested int    `json:"requested"`
	Selected  int    `json:"selected"`
	Reason    string `json:"reason,omitempty"`
}

type BuiltInResult struct {
	Quiz     *domain.Quiz    `json:"quiz"`
	Subjects []SubjectReport `json:"subjects,omitempty"`
}

// CreateBuiltInQuiz assembles a quiz by sampling the active custom bank. With subjects, every subject gets an
// equal share (remainder to the first subjects) and short subjects are not topped up by others.
func (s *Service) CreateBuiltInQuiz(ctx context.Context, req CreateBuiltInQuizRequest) (*BuiltInResult, error) {
	if err := s.authorize(req.Actor); err != nil {
		return nil, err
	}

	title, err := requireTitle(req.Title)
	if err != nil {
		return nil, err
	}

	if req.Filter.Category != "" && !req.Filter.Category.Valid() {
		return nil, errors.InvalidArgument("unknown category %q", req.Filter.Category)
	}
	if req.Filter.Difficulty != "" && !req.Filter.Difficulty.Valid() {
		return nil, errors.InvalidArgument("unknown difficulty %q", req.Filter.Difficulty)
	}

	count := req.Count
	if count <= 0 {
		count = req.Settings.QuestionsCount
	}
	if count <= 0 {
		count = defaultQuestionsCount
	}

	subjects := uniqueIDs(req.Filter.Subjects)

	var (
		picked  []domain.Question
		reports []SubjectReport
	)
	if len(subjects) > 0 {
		picked, reports = s.sampleBySubject(ctx, subjects, req.Filter.Difficulty, count)
	} else {
		pool, err := s.bank.FindCustomQuestions(ctx, bank.QuestionFilter{Difficulty: req.Filter.Difficulty})
		if err != nil {
			return nil, fmt.Errorf("find questions: %w", err)
		}
		picked = sampler.Uniform(s.src, pool, count)
	}

	if len(picked) == 0 {
		return nil, errors.NotFound("no questions match the built-in filter")
	}

	ids := make([]string, 0, len(picked))
	for _, q := range picked {
		ids = append(ids, q.ID)
	}

	settings := req.Settings
	settings.QuestionsCount = len(ids)

	filter := req.Filter
	filter.Subjects = subjects
	if filter.Category == "" {
		filter.Category = domain.SourceTechnical
	}

	q := &domain.Quiz{
		Title:         title,
		Description:   strings.TrimSpace(req.Description),
		CreatedBy:     req.Actor.UserID,
		Status:        domain.QuizStatusPublished,
		Type:          domain.QuizTypeBuiltIn,
		Settings:      settings,
		QuestionIDs:   ids,
		BuiltInFilter: filter,
	}

	if err := s.insert(ctx, q); err != nil {
		return nil, err
	}

	telemetry.QuizzesCreated.WithLabelValues("built-in").Inc()
	return &BuiltInResult{Quiz: q, Subjects: reports}, nil
}

func (s *Service) sampleBySubject(ctx context.Context, subjects []string, d domain.Difficulty, count int) ([]domain.Question, []SubjectReport) {
	targets := sampler.Targets(len(subjects), count)
	groups := make([]sampler.Group[domain.Question], 0, len(subjects))
	reports := make([]SubjectReport, 0, len(subjects))

	for i, subject := range subjects {
		r := SubjectReport{Subject: subject, Requested: targets[i]}

		pool, err := s.bank.FindCustomQuestions(ctx, bank.QuestionFilter{Subject: subject, Difficulty: d})
		if err != nil {
			slog.ErrorContext(ctx, "quiz: load subject pool failed", "subject", subject, "error", err)
			r.Reason = "subject pool unavailable"
		}

		r.Selected = min(targets[i], len(pool))
		if r.Reason == "" && r.Selected < r.Requested {
			r.Reason = fmt.Sprintf("only %d questions available", len(pool))
		}

		reports = append(reports, r)
		groups = append(groups, sampler.Group[domain.Question]{Key: subject, Pool: pool})
	}

	return sampler.Stratified(s.src, groups, count), reports
}

func (s *Service) authorize(a domain.Actor) error {
	if !a.Role.CanAuthor() {
		return errors.PermissionDenied("role %s cannot create quizzes", a.Role)
	}
	return nil
}

// insert assigns identity, timestamps and a fresh join code, then stores q. A code taken between the
// uniqueness check and the insert is retried with a new code a bounded number of times.
func (s *Service) insert(ctx context.Context, q *domain.Quiz) error {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate quiz ID: %w", err)
	}

	q.ID = id.String()
	q.CreatedAt = s.now()
	q.UpdatedAt = q.CreatedAt

	for range s.codeAttempts {
		code, err := s.uniqueCode(ctx)
		if err != nil {
			return err
		}
		q.Code = code

		err = s.store.InsertQuiz(ctx, q)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errors.CodeAlreadyExists) {
			return fmt.Errorf("insert quiz: %w", err)
		}

		slog.InfoContext(ctx, "quiz: join code taken on insert, retrying", "code", code)
	}

	return errors.AlreadyExists("could not allocate a unique quiz code after %d attempts", s.codeAttempts)
}

func requireTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", errors.InvalidArgument("title is required")
	}
	return title, nil
}

func initialStatus(s domain.QuizStatus) (domain.QuizStatus, error) {
	switch s {
	case "":
		return domain.QuizStatusPublished, nil
	case domain.QuizStatusDraft, domain.QuizStatusPublished:
		return s, nil
	}
	return "", errors.InvalidArgument("a quiz cannot be created as %q", s)
}

func normalizeSettings(st domain.QuizSettings, available int) (domain.QuizSettings, error) {
	if st.QuestionsCount < 0 {
		return st, errors.InvalidArgument("questionsCount must not be negative")
	}
	if st.QuestionsCount == 0 || st.QuestionsCount > available {
		st.QuestionsCount = available
	}
	return st, nil
}

// uniqueIDs trims, drops empties and keeps the first occurrence of each value, preserving order.
func uniqueIDs(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, id := range in {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func missingIDs(want []string, found []domain.Question) []string {
	have := make(map[string]struct{}, len(found))
	for _, q := range found {
		have[q.ID] = struct{}{}
	}

	var missing []string
	for _, id := range want {
		if _, ok := have[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}
