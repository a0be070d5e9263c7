package api

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/victornm/eduquiz/internal/domain"
)

const maxConcurrent = 100

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	AttemptSubmitted struct {
		AttemptID string `json:"attemptId"`
		QuizID    string `json:"quizId"`
		Score     string `json:"score"`
		MaxScore  string `json:"maxScore"`
	}
)

// PublishLeaderboardUpdated pushes the refreshed first page to every student listed on it.
func (a *API) PublishLeaderboardUpdated(ctx context.Context, e domain.EventLeaderboardUpdated) error {
	l := e.Leaderboard

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for _, entry := range l.Entries {
		eg.Go(func() error {
			return a.publishNotification(ctx, entry.UserID, e.Name(), l)
		})
	}

	return eg.Wait()
}

// PublishAttemptSubmitted tells the attempt owner about the graded result.
func (a *API) PublishAttemptSubmitted(ctx context.Context, e domain.EventAttemptSubmitted) error {
	at := e.Attempt

	return a.publishNotification(ctx, at.UserID, e.Name(), AttemptSubmitted{
		AttemptID: at.ID,
		QuizID:    at.QuizID,
		Score:     at.Score.String(),
		MaxScore:  at.MaxScore.String(),
	})
}

func (a *API) publishNotification(ctx context.Context, user, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, Channel(a.prefix, user), b).Err()
}

// Channel is the pub/sub channel a user listens on.
func Channel(prefix, user string) string {
	return fmt.Sprintf("%s:user:%s", prefix, user)
}
