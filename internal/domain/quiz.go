package domain

import (
	"time"
)

type QuizStatus string

const (
	QuizStatusDraft     QuizStatus = "draft"
	QuizStatusPublished QuizStatus = "published"
	QuizStatusPaused    QuizStatus = "paused"
	QuizStatusArchived  QuizStatus = "archived"
)

// quizTransitions lists, per status, the statuses an owner or admin may move a quiz to.
var quizTransitions = map[QuizStatus][]QuizStatus{
	QuizStatusDraft:     {QuizStatusPublished},
	QuizStatusPublished: {QuizStatusPaused},
	QuizStatusPaused:    {QuizStatusPublished, QuizStatusArchived},
}

func (s QuizStatus) Valid() bool {
	switch s {
	case QuizStatusDraft, QuizStatusPublished, QuizStatusPaused, QuizStatusArchived:
		return true
	}
	return false
}

func (s QuizStatus) CanTransitionTo(to QuizStatus) bool {
	for _, next := range quizTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Joinable reports whether students may start attempts on a quiz in this status.
func (s QuizStatus) Joinable() bool {
	return s == QuizStatusPublished
}

type QuizType string

const (
	QuizTypeCustom  QuizType = "custom"
	QuizTypeBuiltIn QuizType = "built-in"
)

type QuizSettings struct {
	ShuffleQuestions      bool `json:"shuffleQuestions"`
	QuestionsCount        int  `json:"questionsCount"`
	AllowMultipleAttempts bool `json:"allowMultipleAttempts"`
}

type BuiltInFilter struct {
	Category   Source     `json:"category"`
	Difficulty Difficulty `json:"difficulty,omitempty"`
	Subjects   []string   `json:"subjects,omitempty"`
}

type Quiz struct {
	ID            string        `json:"id"`
	Title         string        `json:"title"`
	Description   string        `json:"description,omitempty"`
	CreatedBy     string        `json:"createdBy"`
	Code          string        `json:"quizCode"`
	Status        QuizStatus    `json:"status"`
	Type          QuizType      `json:"type"`
	Settings      QuizSettings  `json:"settings"`
	QuestionIDs   []string      `json:"questionIds"`
	BuiltInFilter BuiltInFilter `json:"builtInFilter"`
	Practice      bool          `json:"practice,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// QuizRef identifies a quiz either by id or by its join code.
type QuizRef struct {
	ID   string `json:"quizId,omitempty"`
	Code string `json:"quizCode,omitempty"`
}
