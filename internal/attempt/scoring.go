package attempt

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/victornm/eduquiz/internal/domain"
)

type SubmittedAnswer struct {
	QuestionID string `json:"questionId"`
	ChoiceID   string `json:"choiceId"`
}

type ReviewItem struct {
	QuestionID       string          `json:"questionId"`
	Text             string          `json:"text"`
	Choices          []domain.Choice `json:"choices"`
	CorrectChoiceID  string          `json:"correctChoiceId"`
	SelectedChoiceID string          `json:"selectedChoiceId,omitempty"`
	Correct          bool            `json:"correct"`
	Points           decimal.Decimal `json:"points"`
	MaxPoints        decimal.Decimal `json:"maxPoints"`
	Explanation      string          `json:"explanation,omitempty"`
}

// Score grades submitted answers against an attempt snapshot. Every snapshot question counts towards the
// maximum; only answered ones are recorded. Answers to questions outside the snapshot are ignored, and when a
// question is answered more than once the last answer counts.
func Score(questions []domain.SnapshotQuestion, submitted []SubmittedAnswer) (answers []domain.Answer, score, maxScore decimal.Decimal) {
	chosen := make(map[string]string, len(submitted))
	for _, a := range submitted {
		id, choice := normalize(a.QuestionID), normalize(a.ChoiceID)
		if id == "" || choice == "" {
			continue
		}
		chosen[id] = choice
	}

	answers = make([]domain.Answer, 0, len(chosen))
	score, maxScore = decimal.Zero, decimal.Zero

	for _, q := range questions {
		maxScore = maxScore.Add(q.Points)

		choice, ok := chosen[normalize(q.QuestionID)]
		if !ok {
			continue
		}

		a := domain.Answer{
			QuestionID: q.QuestionID,
			ChoiceID:   choice,
			Correct:    choice == normalize(q.CorrectChoiceID),
			Points:     decimal.Zero,
		}
		if a.Correct {
			a.Points = q.Points
			score = score.Add(q.Points)
		}
		answers = append(answers, a)
	}

	return answers, score, maxScore
}

// Review pairs each snapshot question with the answer recorded for it.
func Review(questions []domain.SnapshotQuestion, answers []domain.Answer) []ReviewItem {
	byID := make(map[string]domain.Answer, len(answers))
	for _, a := range answers {
		byID[a.QuestionID] = a
	}

	out := make([]ReviewItem, 0, len(questions))
	for _, q := range questions {
		a := byID[q.QuestionID]
		out = append(out, ReviewItem{
			QuestionID:       q.QuestionID,
			Text:             q.Text,
			Choices:          q.Choices,
			CorrectChoiceID:  q.CorrectChoiceID,
			SelectedChoiceID: a.ChoiceID,
			Correct:          a.Correct,
			Points:           a.Points,
			MaxPoints:        q.Points,
			Explanation:      q.Explanation,
		})
	}
	return out
}

func normalize(s string) string {
	return strings.TrimSpace(s)
}
