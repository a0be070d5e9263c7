package attempt_test

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/eduquiz/internal/attempt"
	"github.com/victornm/eduquiz/internal/bank"
	"github.com/victornm/eduquiz/internal/domain"
	"github.com/victornm/eduquiz/internal/errors"
	"github.com/victornm/eduquiz/internal/event"
	"github.com/victornm/eduquiz/internal/leaderboard"
	"github.com/victornm/eduquiz/internal/quiz"
	"github.com/victornm/eduquiz/internal/sampler"
	"github.com/victornm/eduquiz/internal/storage/memory"
)

var (
	faculty = domain.Actor{UserID: "f1", Role: domain.RoleFaculty}
	admin   = domain.Actor{UserID: "a1", Role: domain.RoleAdmin}
	alice   = domain.Actor{UserID: "alice", Role: domain.RoleStudent}
	bob     = domain.Actor{UserID: "bob", Role: domain.RoleStudent}
)

func TestService_Start(t *testing.T) {
	t.Run("should snapshot 3 of 5 shuffled questions and hide the answer key", func(t *testing.T) {
		t.Parallel()

		s, f := makeService(t)
		ids := f.seedQuestions(t, "Math", 5, nil)
		q := f.createQuiz(t, ids, domain.QuizSettings{ShuffleQuestions: true, QuestionsCount: 3, AllowMultipleAttempts: true})

		res, err := s.Start(context.Background(), attempt.StartRequest{Actor: alice, Quiz: domain.QuizRef{ID: q.ID}})
		require.NoError(t, err)

		require.Len(t, res.Questions, 3)
		seen := map[string]bool{}
		for _, cq := range res.Questions {
			assert.Contains(t, ids, cq.ID)
			assert.False(t, seen[cq.ID], "question %s picked twice", cq.ID)
			seen[cq.ID] = true
		}
		assert.Equal(t, q.Settings, res.Settings)

		b, err := json.Marshal(res)
		require.NoError(t, err)
		assert.NotContains(t, string(b), "correctChoiceId")

		stored, err := f.store.GetAttempt(context.Background(), res.AttemptID)
		require.NoError(t, err)
		require.Len(t, stored.Questions, 3)
		for _, sq := range stored.Questions {
			assert.Equal(t, "a", sq.CorrectChoiceID, "the stored snapshot keeps the answer key")
		}
		assert.Equal(t, domain.AttemptStateInProgress, stored.State())
		assert.Empty(t, stored.Answers)
		assert.Equal(t, q.Title, stored.Metadata.QuizSnapshot.Title)
	})

	t.Run("should keep the quiz order without shuffling", func(t *testing.T) {
		t.Parallel()

		s, f := makeService(t)
		ids := f.seedQuestions(t, "Math", 4, nil)
		q := f.createQuiz(t, ids, domain.QuizSettings{AllowMultipleAttempts: true})

		res, err := s.Start(context.Background(), attempt.StartRequest{Actor: alice, Quiz: domain.QuizRef{Code: q.Code}})
		require.NoError(t, err)

		got := make([]string, 0, len(res.Questions))
		for _, cq := range res.Questions {
			got = append(got, cq.ID)
		}
		assert.Equal(t, ids, got)
	})

	t.Run("should fail with not found for an unknown quiz", func(t *testing.T) {
		t.Parallel()

		s, _ := makeService(t)

		_, err := s.Start(context.Background(), attempt.StartRequest{Actor: alice, Quiz: domain.QuizRef{Code: "NOPE22"}})
		assert.True(t, errors.Is(err, errors.CodeNotFound), "got %v", err)
	})

	t.Run("should forbid quizzes that are not published", func(t *testing.T) {
		t.Parallel()

		s, f := makeService(t)
		q := f.createQuiz(t, f.seedQuestions(t, "Math", 2, nil), domain.QuizSettings{})

		_, err := f.quizzes.UpdateStatus(context.Background(), quiz.UpdateStatusRequest{Actor: faculty, ID: q.ID, Status: domain.QuizStatusPaused})
		require.NoError(t, err)

		_, err = s.Start(context.Background(), attempt.StartRequest{Actor: alice, Quiz: domain.QuizRef{ID: q.ID}})
		assert.True(t, errors.Is(err, errors.CodePermissionDenied), "got %v", err)
	})

	t.Run("should fail with not found when every question was deactivated", func(t *testing.T) {
		t.Parallel()

		s, f := makeService(t)
		ids := f.seedQuestions(t, "Math", 2, nil)
		q := f.createQuiz(t, ids, domain.QuizSettings{})
		for _, id := range ids {
			require.NoError(t, f.bank.DeleteQuestion(context.Background(), faculty, id))
		}

		_, err := s.Start(context.Background(), attempt.StartRequest{Actor: alice, Quiz: domain.QuizRef{ID: q.ID}})
		assert.True(t, errors.Is(err, errors.CodeNotFound), "got %v", err)
	})

	t.Run("should refuse a second attempt when only one is allowed", func(t *testing.T) {
		t.Parallel()

		s, f := makeService(t)
		q := f.createQuiz(t, f.seedQuestions(t, "Math", 2, nil), domain.QuizSettings{})

		first, err := s.Start(context.Background(), attempt.StartRequest{Actor: alice, Quiz: domain.QuizRef{ID: q.ID}})
		require.NoError(t, err)

		// An unfinished attempt does not count yet.
		_, err = s.Start(context.Background(), attempt.StartRequest{Actor: alice, Quiz: domain.QuizRef{ID: q.ID}})
		require.NoError(t, err)

		_, err = s.Submit(context.Background(), attempt.SubmitRequest{Actor: alice, AttemptID: first.AttemptID})
		require.NoError(t, err)

		_, err = s.Start(context.Background(), attempt.StartRequest{Actor: alice, Quiz: domain.QuizRef{ID: q.ID}})
		assert.True(t, errors.Is(err, errors.CodeAlreadyExists), "got %v", err)

		_, err = s.Start(context.Background(), attempt.StartRequest{Actor: bob, Quiz: domain.QuizRef{ID: q.ID}})
		assert.NoError(t, err)
	})

	t.Run("should draw a built-in quiz from the built-in pool", func(t *testing.T) {
		t.Parallel()

		s, f := makeService(t)
		f.seedQuestions(t, "Go", 3, nil)
		f.importBuiltIn(t, domain.SourceTechnical, "Go", 6)
		f.importBuiltIn(t, domain.SourceAptitude, "Go", 6)

		res, err := f.quizzes.CreateBuiltInQuiz(context.Background(), quiz.CreateBuiltInQuizRequest{
			Actor:    faculty,
			Title:    "Go basics",
			Filter:   domain.BuiltInFilter{Subjects: []string{"Go"}},
			Settings: domain.QuizSettings{QuestionsCount: 4, AllowMultipleAttempts: true},
		})
		require.NoError(t, err)
		require.Len(t, res.Quiz.QuestionIDs, 3)

		started, err := s.Start(context.Background(), attempt.StartRequest{Actor: alice, Quiz: domain.QuizRef{ID: res.Quiz.ID}})
		require.NoError(t, err)

		stored, err := f.store.GetAttempt(context.Background(), started.AttemptID)
		require.NoError(t, err)
		for _, sq := range stored.Questions {
			assert.Equal(t, domain.OriginBuiltIn, sq.Origin)
		}
	})

	t.Run("should fall back to the assembled questions when the built-in pool is empty", func(t *testing.T) {
		t.Parallel()

		s, f := makeService(t)
		ids := f.seedQuestions(t, "Math", 5, nil)

		res, err := f.quizzes.CreateBuiltInQuiz(context.Background(), quiz.CreateBuiltInQuizRequest{
			Actor:  faculty,
			Title:  "Math",
			Filter: domain.BuiltInFilter{Subjects: []string{"Math"}},
			Count:  3,
		})
		require.NoError(t, err)

		started, err := s.Start(context.Background(), attempt.StartRequest{Actor: alice, Quiz: domain.QuizRef{ID: res.Quiz.ID}})
		require.NoError(t, err)
		require.Len(t, started.Questions, 3)
		for _, cq := range started.Questions {
			assert.Contains(t, ids, cq.ID)
		}
	})
}

func TestService_Submit(t *testing.T) {
	t.Run("should score only the answered questions against the full maximum", func(t *testing.T) {
		t.Parallel()

		s, f := makeService(t)
		ids := f.seedQuestions(t, "Math", 4, []int64{1, 2, 3, 4})
		q := f.createQuiz(t, ids, domain.QuizSettings{AllowMultipleAttempts: true})

		started, err := s.Start(context.Background(), attempt.StartRequest{Actor: alice, Quiz: domain.QuizRef{ID: q.ID}})
		require.NoError(t, err)

		res, err := s.Submit(context.Background(), attempt.SubmitRequest{
			Actor:     alice,
			AttemptID: started.AttemptID,
			Answers: []attempt.SubmittedAnswer{
				{QuestionID: ids[1], ChoiceID: " a "},
				{QuestionID: ids[2], ChoiceID: "b"},
				{QuestionID: "not-in-attempt", ChoiceID: "a"},
			},
		})
		require.NoError(t, err)

		assert.True(t, decimal.NewFromInt(10).Equal(res.MaxScore), "maxScore %s", res.MaxScore)
		assert.True(t, decimal.NewFromInt(2).Equal(res.Score), "score %s", res.Score)
		assert.Equal(t, 1, res.Correct)
		assert.Equal(t, 2, res.Answered)
		require.Len(t, res.Review, 4)
		assert.Equal(t, "a", res.Review[1].SelectedChoiceID)
		assert.True(t, res.Review[1].Correct)
		assert.Empty(t, res.Review[0].SelectedChoiceID)

		stored, err := f.store.GetAttempt(context.Background(), started.AttemptID)
		require.NoError(t, err)
		assert.Len(t, stored.Answers, 2)
		assert.Equal(t, domain.AttemptStateSubmitted, stored.State())
		assert.True(t, res.Score.Equal(stored.Score))
	})

	t.Run("should score against the snapshot after the bank changed", func(t *testing.T) {
		t.Parallel()

		s, f := makeService(t)
		ids := f.seedQuestions(t, "Math", 2, nil)
		q := f.createQuiz(t, ids, domain.QuizSettings{AllowMultipleAttempts: true})

		started, err := s.Start(context.Background(), attempt.StartRequest{Actor: alice, Quiz: domain.QuizRef{ID: q.ID}})
		require.NoError(t, err)

		moved := "b"
		_, err = f.bank.UpdateQuestion(context.Background(), bank.UpdateQuestionRequest{Actor: faculty, ID: ids[0], CorrectChoiceID: &moved})
		require.NoError(t, err)
		require.NoError(t, f.bank.DeleteQuestion(context.Background(), faculty, ids[1]))

		res, err := s.Submit(context.Background(), attempt.SubmitRequest{
			Actor:     alice,
			AttemptID: started.AttemptID,
			Answers:   []attempt.SubmittedAnswer{{QuestionID: ids[0], ChoiceID: "a"}, {QuestionID: ids[1], ChoiceID: "a"}},
		})
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(2).Equal(res.Score), "score %s", res.Score)
		assert.True(t, decimal.NewFromInt(2).Equal(res.MaxScore), "maxScore %s", res.MaxScore)
	})

	t.Run("should accept a single submission", func(t *testing.T) {
		t.Parallel()

		s, f := makeService(t)
		ids := f.seedQuestions(t, "Math", 2, nil)
		q := f.createQuiz(t, ids, domain.QuizSettings{AllowMultipleAttempts: true})

		started, err := s.Start(context.Background(), attempt.StartRequest{Actor: alice, Quiz: domain.QuizRef{ID: q.ID}})
		require.NoError(t, err)

		_, err = s.Submit(context.Background(), attempt.SubmitRequest{
			Actor:     alice,
			AttemptID: started.AttemptID,
			Answers:   []attempt.SubmittedAnswer{{QuestionID: ids[0], ChoiceID: "a"}},
		})
		require.NoError(t, err)

		_, err = s.Submit(context.Background(), attempt.SubmitRequest{
			Actor:     alice,
			AttemptID: started.AttemptID,
			Answers:   []attempt.SubmittedAnswer{{QuestionID: ids[0], ChoiceID: "a"}, {QuestionID: ids[1], ChoiceID: "a"}},
		})
		assert.True(t, errors.Is(err, errors.CodeAlreadyExists), "got %v", err)

		stored, err := f.store.GetAttempt(context.Background(), started.AttemptID)
		require.NoError(t, err)
		assert.Len(t, stored.Answers, 1)
		assert.True(t, decimal.NewFromInt(1).Equal(stored.Score))
	})

	t.Run("should let exactly one of concurrent submissions win", func(t *testing.T) {
		t.Parallel()

		s, f := makeService(t)
		ids := f.seedQuestions(t, "Math", 3, nil)
		q := f.createQuiz(t, ids, domain.QuizSettings{AllowMultipleAttempts: true})

		started, err := s.Start(context.Background(), attempt.StartRequest{Actor: alice, Quiz: domain.QuizRef{ID: q.ID}})
		require.NoError(t, err)

		const n = 16
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			wins      int
			conflicts int
		)
		for range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Submit(context.Background(), attempt.SubmitRequest{
					Actor:     alice,
					AttemptID: started.AttemptID,
					Answers:   []attempt.SubmittedAnswer{{QuestionID: ids[0], ChoiceID: "a"}},
				})

				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case errors.Is(err, errors.CodeAlreadyExists):
					conflicts++
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 1, wins)
		assert.Equal(t, n-1, conflicts)

		u, err := f.store.GetUser(context.Background(), alice.UserID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), u.TotalQuestionsAnswered, "stats are recorded once")
	})

	t.Run("should forbid submitting another student's attempt", func(t *testing.T) {
		t.Parallel()

		s, f := makeService(t)
		q := f.createQuiz(t, f.seedQuestions(t, "Math", 1, nil), domain.QuizSettings{AllowMultipleAttempts: true})

		started, err := s.Start(context.Background(), attempt.StartRequest{Actor: alice, Quiz: domain.QuizRef{ID: q.ID}})
		require.NoError(t, err)

		_, err = s.Submit(context.Background(), attempt.SubmitRequest{Actor: bob, AttemptID: started.AttemptID})
		assert.True(t, errors.Is(err, errors.CodePermissionDenied), "got %v", err)

		_, err = s.Submit(context.Background(), attempt.SubmitRequest{Actor: bob, AttemptID: "missing"})
		assert.True(t, errors.Is(err, errors.CodeNotFound), "got %v", err)
	})

	t.Run("should add every submission to the user's totals", func(t *testing.T) {
		t.Parallel()

		s, f := makeService(t)
		ids := f.seedQuestions(t, "Math", 3, []int64{1, 2, 5})
		q := f.createQuiz(t, ids, domain.QuizSettings{AllowMultipleAttempts: true})

		runs := [][]attempt.SubmittedAnswer{
			{{QuestionID: ids[0], ChoiceID: "a"}, {QuestionID: ids[1], ChoiceID: "b"}},
			{{QuestionID: ids[2], ChoiceID: "a"}},
			{{QuestionID: ids[0], ChoiceID: "a"}, {QuestionID: ids[1], ChoiceID: "a"}, {QuestionID: ids[2], ChoiceID: "b"}},
			{},
		}

		wantScore, wantAnswered, wantCorrect := decimal.Zero, int64(0), int64(0)
		for _, answers := range runs {
			started, err := s.Start(context.Background(), attempt.StartRequest{Actor: alice, Quiz: domain.QuizRef{ID: q.ID}})
			require.NoError(t, err)

			res, err := s.Submit(context.Background(), attempt.SubmitRequest{Actor: alice, AttemptID: started.AttemptID, Answers: answers})
			require.NoError(t, err)

			wantScore = wantScore.Add(res.Score)
			wantAnswered += int64(res.Answered)
			wantCorrect += int64(res.Correct)
		}

		u, err := f.store.GetUser(context.Background(), alice.UserID)
		require.NoError(t, err)
		assert.True(t, decimal.NewFromInt(9).Equal(u.TotalScore), "totalScore %s", u.TotalScore)
		assert.True(t, wantScore.Equal(u.TotalScore))
		assert.Equal(t, int64(6), wantAnswered)
		assert.Equal(t, wantAnswered, u.TotalQuestionsAnswered)
		assert.Equal(t, wantCorrect, u.TotalCorrectAnswers)
	})

	t.Run("should publish attempt.submitted", func(t *testing.T) {
		t.Parallel()

		eb := event.NewBus()

		var (
			mu       sync.Mutex
			received []domain.EventAttemptSubmitted
		)
		eb.Subscribe(domain.EventNameAttemptSubmitted, func(_ context.Context, e event.Event) error {
			mu.Lock()
			received = append(received, e.(domain.EventAttemptSubmitted))
			mu.Unlock()
			return nil
		})

		s, f := makeService(t, withEventBus(eb))
		q := f.createQuiz(t, f.seedQuestions(t, "Math", 1, nil), domain.QuizSettings{})

		started, err := s.Start(context.Background(), attempt.StartRequest{Actor: alice, Quiz: domain.QuizRef{ID: q.ID}})
		require.NoError(t, err)

		_, err = s.Submit(context.Background(), attempt.SubmitRequest{Actor: alice, AttemptID: started.AttemptID})
		require.NoError(t, err)

		eb.Stop()

		require.Len(t, received, 1)
		assert.Equal(t, started.AttemptID, received[0].Attempt.ID)
		assert.NotNil(t, received[0].Attempt.FinishedAt)
	})
}

func TestService_Practice(t *testing.T) {
	t.Run("should draw evenly across subjects from both pools", func(t *testing.T) {
		t.Parallel()

		s, f := makeService(t)
		f.seedQuestions(t, "Go", 2, nil)
		f.importBuiltIn(t, domain.SourceTechnical, "Go", 3)
		f.importBuiltIn(t, domain.SourceTechnical, "SQL", 5)
		f.importBuiltIn(t, domain.SourceAptitude, "SQL", 5)

		res, err := s.Practice(context.Background(), attempt.PracticeRequest{Actor: alice, Subjects: []string{"Go", "SQL", "Go"}, Limit: 6})
		require.NoError(t, err)
		require.Len(t, res.Questions, 6)

		per := map[string]int{}
		for _, cq := range res.Questions {
			per[cq.Subject]++
		}
		assert.Equal(t, map[string]int{"Go": 3, "SQL": 3}, per)

		q, err := f.quizzes.GetQuiz(context.Background(), res.QuizID)
		require.NoError(t, err)
		assert.True(t, q.Practice)
		assert.Equal(t, domain.QuizStatusDraft, q.Status)
		assert.Equal(t, "Practice: Go, SQL", q.Title)

		stored, err := f.store.GetAttempt(context.Background(), res.AttemptID)
		require.NoError(t, err)
		assert.True(t, stored.Metadata.Practice)
		assert.Equal(t, []string{"Go", "SQL"}, stored.Metadata.Subjects)

		_, err = s.Start(context.Background(), attempt.StartRequest{Actor: bob, Quiz: domain.QuizRef{ID: q.ID}})
		assert.True(t, errors.Is(err, errors.CodePermissionDenied), "practice quizzes are not joinable, got %v", err)
	})

	t.Run("should drop the practice quiz when nothing matches", func(t *testing.T) {
		t.Parallel()

		s, f := makeService(t)
		f.seedQuestions(t, "Go", 2, nil)

		_, err := s.Practice(context.Background(), attempt.PracticeRequest{Actor: alice, Subjects: []string{"Rust"}})
		assert.True(t, errors.Is(err, errors.CodeNotFound), "got %v", err)

		all, err := f.quizzes.ListQuizzes(context.Background(), quiz.ListFilter{IncludePractice: true})
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("should drop the practice quiz when the attempt cannot be stored", func(t *testing.T) {
		t.Parallel()

		s, f := makeService(t, withFailingInserts())
		f.importBuiltIn(t, domain.SourceTechnical, "Go", 3)

		_, err := s.Practice(context.Background(), attempt.PracticeRequest{Actor: alice, Subjects: []string{"Go"}})
		assert.ErrorContains(t, err, "insert attempt")

		all, err := f.quizzes.ListQuizzes(context.Background(), quiz.ListFilter{IncludePractice: true})
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("should require a subject", func(t *testing.T) {
		t.Parallel()

		s, _ := makeService(t)

		_, err := s.Practice(context.Background(), attempt.PracticeRequest{Actor: alice, Subjects: []string{" "}})
		assert.True(t, errors.Is(err, errors.CodeInvalidArgument), "got %v", err)
	})
}

func TestService_GetByID(t *testing.T) {
	t.Run("should withhold the answer key until submitted", func(t *testing.T) {
		t.Parallel()

		s, f := makeService(t)
		ids := f.seedQuestions(t, "Math", 2, nil)
		q := f.createQuiz(t, ids, domain.QuizSettings{AllowMultipleAttempts: true})

		started, err := s.Start(context.Background(), attempt.StartRequest{Actor: alice, Quiz: domain.QuizRef{ID: q.ID}})
		require.NoError(t, err)

		a, err := s.GetByID(context.Background(), alice, started.AttemptID)
		require.NoError(t, err)
		for _, sq := range a.Questions {
			assert.Empty(t, sq.CorrectChoiceID)
		}

		_, err = s.Submit(context.Background(), attempt.SubmitRequest{Actor: alice, AttemptID: started.AttemptID})
		require.NoError(t, err)

		a, err = s.GetByID(context.Background(), alice, started.AttemptID)
		require.NoError(t, err)
		for _, sq := range a.Questions {
			assert.Equal(t, "a", sq.CorrectChoiceID)
		}
	})

	t.Run("should restrict students to their own attempts", func(t *testing.T) {
		t.Parallel()

		s, f := makeService(t)
		q := f.createQuiz(t, f.seedQuestions(t, "Math", 1, nil), domain.QuizSettings{})

		started, err := s.Start(context.Background(), attempt.StartRequest{Actor: alice, Quiz: domain.QuizRef{ID: q.ID}})
		require.NoError(t, err)

		_, err = s.GetByID(context.Background(), bob, started.AttemptID)
		assert.True(t, errors.Is(err, errors.CodePermissionDenied), "got %v", err)

		_, err = s.GetByID(context.Background(), faculty, started.AttemptID)
		assert.NoError(t, err)

		_, err = s.GetByID(context.Background(), admin, started.AttemptID)
		assert.NoError(t, err)
	})

	t.Run("should rebuild a missing snapshot from the answered questions", func(t *testing.T) {
		t.Parallel()

		s, f := makeService(t)
		ids := f.seedQuestions(t, "Math", 2, nil)

		finished := time.Now()
		legacy := &domain.Attempt{
			ID:         "legacy-1",
			QuizID:     "gone",
			UserID:     alice.UserID,
			StartedAt:  finished.Add(-time.Minute),
			FinishedAt: &finished,
			Answers:    []domain.Answer{{QuestionID: ids[1], ChoiceID: "a", Correct: true, Points: decimal.NewFromInt(1)}},
			Score:      decimal.NewFromInt(1),
			MaxScore:   decimal.NewFromInt(1),
		}
		require.NoError(t, f.store.InsertAttempt(context.Background(), legacy))

		a, err := s.GetByID(context.Background(), alice, legacy.ID)
		require.NoError(t, err)
		assert.True(t, a.Metadata.Degraded)
		require.Len(t, a.Questions, 1)
		assert.Equal(t, ids[1], a.Questions[0].QuestionID)
		assert.Equal(t, "a", a.Questions[0].CorrectChoiceID)
	})
}

func TestService_ListMine(t *testing.T) {
	t.Parallel()

	s, f := makeService(t)
	q := f.createQuiz(t, f.seedQuestions(t, "Math", 1, nil), domain.QuizSettings{AllowMultipleAttempts: true})

	for _, actor := range []domain.Actor{alice, alice, bob} {
		_, err := s.Start(context.Background(), attempt.StartRequest{Actor: actor, Quiz: domain.QuizRef{ID: q.ID}})
		require.NoError(t, err)
	}

	mine, err := s.ListMine(context.Background(), alice)
	require.NoError(t, err)
	assert.Len(t, mine, 2)
	for _, a := range mine {
		assert.Equal(t, alice.UserID, a.UserID)
	}
}

func TestScore(t *testing.T) {
	questions := []domain.SnapshotQuestion{
		{QuestionID: "q1", CorrectChoiceID: "a", Points: decimal.NewFromInt(1)},
		{QuestionID: "q2", CorrectChoiceID: "b", Points: decimal.NewFromFloat(2.5)},
		{QuestionID: "q3", CorrectChoiceID: "c", Points: decimal.NewFromInt(3)},
	}

	tests := map[string]struct {
		submitted    []attempt.SubmittedAnswer
		wantScore    string
		wantAnswered int
	}{
		"nothing answered":         {wantScore: "0", wantAnswered: 0},
		"all correct":              {submitted: answers("q1:a", "q2:b", "q3:c"), wantScore: "6.5", wantAnswered: 3},
		"last answer counts":       {submitted: answers("q2:a", "q2:b"), wantScore: "2.5", wantAnswered: 1},
		"blank choice is skipped":  {submitted: answers("q1:", "q3:c"), wantScore: "3", wantAnswered: 1},
		"unknown question ignored": {submitted: answers("q9:a", "q1:b"), wantScore: "0", wantAnswered: 1},
		"ids are trimmed":          {submitted: answers(" q1 : a "), wantScore: "1", wantAnswered: 1},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, score, maxScore := attempt.Score(questions, tt.submitted)

			assert.Len(t, got, tt.wantAnswered)
			assert.Equal(t, tt.wantScore, score.String())
			assert.Equal(t, "6.5", maxScore.String())
		})
	}
}

func answers(pairs ...string) []attempt.SubmittedAnswer {
	out := make([]attempt.SubmittedAnswer, 0, len(pairs))
	for _, p := range pairs {
		var q, c string
		for i := range p {
			if p[i] == ':' {
				q, c = p[:i], p[i+1:]
				break
			}
		}
		out = append(out, attempt.SubmittedAnswer{QuestionID: q, ChoiceID: c})
	}
	return out
}

type fixture struct {
	store   *memory.Store
	bank    *bank.Service
	quizzes *quiz.Service
	seq     int
}

// seedQuestions creates n questions in subject whose correct choice is "a". points, when given, sets each
// question's worth in order.
func (f *fixture) seedQuestions(t *testing.T, subject string, n int, points []int64) []string {
	t.Helper()

	ids := make([]string, 0, n)
	for i := range n {
		f.seq++
		req := bank.CreateQuestionRequest{
			Actor:           faculty,
			Text:            fmt.Sprintf("%s question %d", subject, f.seq),
			Choices:         []domain.Choice{{ID: "a", Text: "right"}, {ID: "b", Text: "wrong"}},
			CorrectChoiceID: "a",
			Subject:         subject,
		}
		if i < len(points) {
			req.Points = decimal.NewFromInt(points[i])
		}

		q, err := f.bank.CreateQuestion(context.Background(), req)
		require.NoError(t, err)
		ids = append(ids, q.ID)
	}
	return ids
}

func (f *fixture) importBuiltIn(t *testing.T, source domain.Source, subject string, n int) {
	t.Helper()

	rows := make([]domain.ImportRow, 0, n)
	for i := range n {
		rows = append(rows, domain.ImportRow{
			Text:            fmt.Sprintf("%s %s built-in %d", source, subject, i),
			Choices:         []domain.Choice{{ID: "a", Text: "right"}, {ID: "b", Text: "wrong"}},
			CorrectChoiceID: "a",
			Subject:         subject,
		})
	}

	_, err := f.bank.ImportBuiltIn(context.Background(), bank.ImportBuiltInRequest{Actor: admin, Source: source, Rows: rows})
	require.NoError(t, err)
}

func (f *fixture) createQuiz(t *testing.T, ids []string, settings domain.QuizSettings) *domain.Quiz {
	t.Helper()

	q, err := f.quizzes.CreateQuiz(context.Background(), quiz.CreateQuizRequest{
		Actor:       faculty,
		Title:       "Quiz",
		QuestionIDs: ids,
		Settings:    settings,
	})
	require.NoError(t, err)
	return q
}

func makeService(t *testing.T, opts ...options) (*attempt.Service, *fixture) {
	t.Helper()

	store := memory.New()
	for _, a := range []domain.Actor{alice, bob} {
		store.PutUser(domain.User{ID: a.UserID, Role: a.Role, CreatedAt: time.Now()})
	}

	bs := bank.NewService(bank.Config{Store: store})
	f := &fixture{
		store:   store,
		bank:    bs,
		quizzes: quiz.NewService(quiz.Config{Store: store, Bank: bs}),
	}

	c := attempt.Config{
		Store:    store,
		Quizzes:  f.quizzes,
		Bank:     bs,
		Stats:    leaderboard.NewService(leaderboard.Config{Store: store}),
		EventBus: event.NewBus(),
		Source:   &lockedSource{src: sampler.Seeded(7)},
	}

	for _, opt := range opts {
		opt(&c)
	}

	return attempt.NewService(c), f
}

type options func(c *attempt.Config)

func withEventBus(eb *event.Bus) options {
	return func(c *attempt.Config) {
		c.EventBus = eb
	}
}

func withFailingInserts() options {
	return func(c *attempt.Config) {
		c.Store = failingInserts{Store: c.Store.(*memory.Store)}
	}
}

type failingInserts struct {
	*memory.Store
}

func (failingInserts) InsertAttempt(context.Context, *domain.Attempt) error {
	return stderrors.New("connection reset")
}

// lockedSource makes a seeded source safe for the concurrent submissions above.
type lockedSource struct {
	mu  sync.Mutex
	src sampler.Source
}

func (s *lockedSource) IntN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src.IntN(n)
}
