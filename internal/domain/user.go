package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleStudent Role = "student"
	RoleFaculty Role = "faculty"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleFaculty, RoleAdmin:
		return true
	}
	return false
}

// CanAuthor reports whether the role may create questions and quizzes.
func (r Role) CanAuthor() bool {
	return r == RoleFaculty || r == RoleAdmin
}

// Actor is the already authenticated caller, as handed over by the transport layer.
type Actor struct {
	UserID string
	Role   Role
}

// Owns reports whether the actor may mutate a resource created by owner.
func (a Actor) Owns(owner string) bool {
	return a.Role == RoleAdmin || a.UserID == owner
}

type User struct {
	ID                     string          `json:"id"`
	Role                   Role            `json:"role"`
	TotalScore             decimal.Decimal `json:"totalScore"`
	TotalCorrectAnswers    int64           `json:"totalCorrectAnswers"`
	TotalQuestionsAnswered int64           `json:"totalQuestionsAnswered"`
	CreatedAt              time.Time       `json:"createdAt"`
}

var hundred = decimal.NewFromInt(100)

// Accuracy is the percentage of correct answers rounded to 2 decimals, nil when nothing was answered.
func (u User) Accuracy() *decimal.Decimal {
	if u.TotalQuestionsAnswered == 0 {
		return nil
	}

	a := decimal.NewFromInt(u.TotalCorrectAnswers).
		Mul(hundred).
		DivRound(decimal.NewFromInt(u.TotalQuestionsAnswered), 2)
	return &a
}

// RanksAbove reports whether u is ordered before o on the leaderboard.
func (u User) RanksAbove(o User) bool {
	if c := u.TotalScore.Cmp(o.TotalScore); c != 0 {
		return c > 0
	}
	return u.CreatedAt.Before(o.CreatedAt)
}

// StatsDelta is added atomically to a user's running totals once per submitted attempt.
type StatsDelta struct {
	Score    decimal.Decimal
	Correct  int
	Answered int
}

type LeaderboardEntry struct {
	Rank                   int              `json:"rank"`
	UserID                 string           `json:"userId"`
	TotalScore             decimal.Decimal  `json:"totalScore"`
	TotalCorrectAnswers    int64            `json:"totalCorrectAnswers"`
	TotalQuestionsAnswered int64            `json:"totalQuestionsAnswered"`
	Accuracy               *decimal.Decimal `json:"accuracy"`
}

// Leaderboard is one page of students sorted by total score descending, earlier registration first on ties.
type Leaderboard struct {
	Page    int                `json:"page"`
	Limit   int                `json:"limit"`
	Entries []LeaderboardEntry `json:"entries"`
}

type Profile struct {
	LeaderboardEntry
	Role Role `json:"role"`
}

func EntryOf(u User, rank int) LeaderboardEntry {
	return LeaderboardEntry{
		Rank:                   rank,
		UserID:                 u.ID,
		TotalScore:             u.TotalScore,
		TotalCorrectAnswers:    u.TotalCorrectAnswers,
		TotalQuestionsAnswered: u.TotalQuestionsAnswered,
		Accuracy:               u.Accuracy(),
	}
}
