package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// Source partitions the built-in pool.
type Source string

const (
	SourceAptitude  Source = "aptitude"
	SourceTechnical Source = "technical"
)

func (s Source) Valid() bool {
	return s == SourceAptitude || s == SourceTechnical
}

type Choice struct {
	ID   string `json:"id" validate:"required"`
	Text string `json:"text" validate:"required"`
}

// Question is an entry of the custom (faculty curated) question bank.
type Question struct {
	ID              string          `json:"id"`
	Text            string          `json:"text"`
	Choices         []Choice        `json:"choices"`
	CorrectChoiceID string          `json:"correctChoiceId"`
	Difficulty      Difficulty      `json:"difficulty"`
	Subject         string          `json:"subject,omitempty"`
	Tags            []string        `json:"tags,omitempty"`
	Explanation     string          `json:"explanation,omitempty"`
	Points          decimal.Decimal `json:"points"`
	CreatedBy       string          `json:"createdBy"`
	Fingerprint     string          `json:"fingerprint,omitempty"`
	IsActive        bool            `json:"isActive"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// Validate checks the structural invariants shared by every question shape.
func (q Question) Validate() error {
	return validateShape(q.Text, q.Choices, q.CorrectChoiceID, q.Difficulty)
}

// BuiltInQuestion is a system provided pool entry, independent of the custom bank.
type BuiltInQuestion struct {
	ID              string          `json:"id"`
	Source          Source          `json:"source"`
	Text            string          `json:"text"`
	Choices         []Choice        `json:"choices"`
	CorrectChoiceID string          `json:"correctChoiceId"`
	Difficulty      Difficulty      `json:"difficulty"`
	Subject         string          `json:"subject,omitempty"`
	Explanation     string          `json:"explanation,omitempty"`
	Points          decimal.Decimal `json:"points"`
	Fingerprint     string          `json:"fingerprint,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

func (q BuiltInQuestion) Validate() error {
	if !q.Source.Valid() {
		return fmt.Errorf("unknown source %q", q.Source)
	}
	return validateShape(q.Text, q.Choices, q.CorrectChoiceID, q.Difficulty)
}

func validateShape(text string, choices []Choice, correct string, d Difficulty) error {
	if text == "" {
		return fmt.Errorf("text is required")
	}
	if len(choices) < 2 {
		return fmt.Errorf("at least 2 choices are required, got %d", len(choices))
	}

	found := false
	seen := make(map[string]struct{}, len(choices))
	for _, c := range choices {
		if c.ID == "" {
			return fmt.Errorf("choice id is required")
		}
		if _, ok := seen[c.ID]; ok {
			return fmt.Errorf("duplicate choice id %q", c.ID)
		}
		seen[c.ID] = struct{}{}
		if c.ID == correct {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("correct choice %q is not one of the choices", correct)
	}

	if d != "" && !d.Valid() {
		return fmt.Errorf("unknown difficulty %q", d)
	}
	return nil
}

type Origin string

const (
	OriginCustom  Origin = "custom"
	OriginBuiltIn Origin = "built-in"
)

// Candidate is the common sampleable shape both pools are normalized into before sampling.
type Candidate struct {
	ID              string
	Origin          Origin
	Text            string
	Choices         []Choice
	CorrectChoiceID string
	Subject         string
	Difficulty      Difficulty
	Explanation     string
	Points          decimal.Decimal
}

func CandidateFromQuestion(q Question) Candidate {
	return Candidate{
		ID:              q.ID,
		Origin:          OriginCustom,
		Text:            q.Text,
		Choices:         q.Choices,
		CorrectChoiceID: q.CorrectChoiceID,
		Subject:         q.Subject,
		Difficulty:      q.Difficulty,
		Explanation:     q.Explanation,
		Points:          q.Points,
	}
}

func CandidateFromBuiltIn(q BuiltInQuestion) Candidate {
	return Candidate{
		ID:              q.ID,
		Origin:          OriginBuiltIn,
		Text:            q.Text,
		Choices:         q.Choices,
		CorrectChoiceID: q.CorrectChoiceID,
		Subject:         q.Subject,
		Difficulty:      q.Difficulty,
		Explanation:     q.Explanation,
		Points:          q.Points,
	}
}

// Snapshot copies the candidate into an attempt snapshot entry. Points default to def when unset.
func (c Candidate) Snapshot(def decimal.Decimal) SnapshotQuestion {
	points := c.Points
	if !points.IsPositive() {
		points = def
	}

	return SnapshotQuestion{
		QuestionID:      c.ID,
		Origin:          c.Origin,
		Text:            c.Text,
		Choices:         append([]Choice(nil), c.Choices...),
		CorrectChoiceID: c.CorrectChoiceID,
		Points:          points,
		Subject:         c.Subject,
		Difficulty:      c.Difficulty,
		Explanation:     c.Explanation,
	}
}

// ImportRow is a spreadsheet row as normalized by the upstream parser.
type ImportRow struct {
	Row             int             `json:"row"`
	Text            string          `json:"text" validate:"required"`
	Choices         []Choice        `json:"choices" validate:"min=2,dive"`
	CorrectChoiceID string          `json:"correctChoiceId" validate:"required"`
	Difficulty      Difficulty      `json:"difficulty,omitempty" validate:"omitempty,oneof=easy medium hard"`
	Subject         string          `json:"subject,omitempty"`
	Explanation     string          `json:"explanation,omitempty"`
	Points          decimal.Decimal `json:"points"`
}

type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// ImportReport accumulates the outcome of a bulk import. Row failures never abort the import.
type ImportReport struct {
	Imported int        `json:"imported"`
	Reused   int        `json:"reused"`
	Skipped  int        `json:"skipped"`
	Errors   []RowError `json:"errors"`
}

func (r *ImportReport) Skip(row int, format string, args ...any) {
	r.Skipped++
	r.Errors = append(r.Errors, RowError{Row: row, Reason: fmt.Sprintf(format, args...)})
}
