package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type AttemptState string

const (
	AttemptStateInProgress AttemptState = "in-progress"
	AttemptStateSubmitted  AttemptState = "submitted"
)

// SnapshotQuestion is the copy of a question taken when an attempt starts. Scoring only ever reads it.
type SnapshotQuestion struct {
	QuestionID      string          `json:"questionId"`
	Origin          Origin          `json:"origin,omitempty"`
	Text            string          `json:"text"`
	Choices         []Choice        `json:"choices"`
	CorrectChoiceID string          `json:"correctChoiceId"`
	Points          decimal.Decimal `json:"points"`
	Subject         string          `json:"subject,omitempty"`
	Difficulty      Difficulty      `json:"difficulty,omitempty"`
	Explanation     string          `json:"explanation,omitempty"`
}

// ClientQuestion is what a student sees while the attempt is in progress: no answer key.
type ClientQuestion struct {
	ID         string     `json:"id"`
	Text       string     `json:"text"`
	Choices    []Choice   `json:"choices"`
	Difficulty Difficulty `json:"difficulty,omitempty"`
	Subject    string     `json:"subject,omitempty"`
}

func (q SnapshotQuestion) Client() ClientQuestion {
	return ClientQuestion{
		ID:         q.QuestionID,
		Text:       q.Text,
		Choices:    append([]Choice(nil), q.Choices...),
		Difficulty: q.Difficulty,
		Subject:    q.Subject,
	}
}

type Answer struct {
	QuestionID string          `json:"questionId"`
	ChoiceID   string          `json:"choiceId"`
	Correct    bool            `json:"correct"`
	Points     decimal.Decimal `json:"points"`
}

type QuizSnapshot struct {
	Title string `json:"title"`
}

type AttemptMetadata struct {
	QuizSnapshot QuizSnapshot `json:"quizSnapshot"`
	Practice     bool         `json:"practice,omitempty"`
	Subjects     []string     `json:"subjects,omitempty"`
	// Degraded is set on read when the snapshot had to be rebuilt from live questions.
	Degraded bool `json:"degraded,omitempty"`
}

type Attempt struct {
	ID         string             `json:"id"`
	QuizID     string             `json:"quizId"`
	UserID     string             `json:"userId"`
	StartedAt  time.Time          `json:"startedAt"`
	FinishedAt *time.Time         `json:"finishedAt"`
	Questions  []SnapshotQuestion `json:"questions"`
	Answers    []Answer           `json:"answers"`
	Score      decimal.Decimal    `json:"score"`
	MaxScore   decimal.Decimal    `json:"maxScore"`
	Metadata   AttemptMetadata    `json:"metadata"`
}

func (a *Attempt) State() AttemptState {
	if a.FinishedAt != nil {
		return AttemptStateSubmitted
	}
	return AttemptStateInProgress
}

// CanSubmit reports whether the attempt may still take a submission. Submission is one-shot.
func (a *Attempt) CanSubmit() bool {
	return a.State() == AttemptStateInProgress
}

// AttemptResult is the single mutation an attempt ever receives.
type AttemptResult struct {
	Answers    []Answer
	Score      decimal.Decimal
	MaxScore   decimal.Decimal
	FinishedAt time.Time
}

// Stats returns the leaderboard delta this attempt contributes.
func (r AttemptResult) Stats() StatsDelta {
	correct := 0
	for _, a := range r.Answers {
		if a.Correct {
			correct++
		}
	}

	return StatsDelta{
		Score:    r.Score,
		Correct:  correct,
		Answered: len(r.Answers),
	}
}
