package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"github.com/victornm/eduquiz/internal/attempt"
	"github.com/victornm/eduquiz/internal/bank"
	"github.com/victornm/eduquiz/internal/domain"
	"github.com/victornm/eduquiz/internal/errors"
	"github.com/victornm/eduquiz/internal/event"
	"github.com/victornm/eduquiz/internal/leaderboard"
	"github.com/victornm/eduquiz/internal/quiz"
)

const (
	headerUserID   = "X-User-ID"
	headerUserRole = "X-User-Role"

	actorKey = "actor"
)

type Config struct {
	HTTP         gin.IRouter
	GRPC         *grpc.Server
	EventBus     *event.Bus
	Bank         *bank.Service
	Quiz         *quiz.Service
	Attempt      *attempt.Service
	Leaderboard  *leaderboard.Service
	Redis        Redis
	PubsubPrefix string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	bs *bank.Service
	qs *quiz.Service
	as *attempt.Service
	ls *leaderboard.Service

	// known holds the user ids already ensured in storage by this process.
	known sync.Map

	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		bs:     c.Bank,
		qs:     c.Quiz,
		as:     c.Attempt,
		ls:     c.Leaderboard,
		redis:  c.Redis,
		prefix: c.PubsubPrefix,
	}

	// HTTP APIs
	if c.HTTP != nil {
		a.routes(c.HTTP)
	}

	// gRPC APIs
	if c.GRPC != nil {
		c.GRPC.RegisterService(&quizServiceDesc, a)
	}

	// Register event handlers
	if c.EventBus != nil && c.Redis != nil {
		c.EventBus.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
			return a.PublishLeaderboardUpdated(ctx, e.(domain.EventLeaderboardUpdated))
		})
		c.EventBus.Subscribe(domain.EventNameAttemptSubmitted, func(ctx context.Context, e event.Event) error {
			return a.PublishAttemptSubmitted(ctx, e.(domain.EventAttemptSubmitted))
		})
	}

	return a
}

func (a *API) routes(r gin.IRouter) {
	v1 := r.Group("/v1", a.identify)

	v1.POST("/questions", a.createQuestion)
	v1.GET("/questions", a.listQuestions)
	v1.PATCH("/questions/:id", a.updateQuestion)
	v1.DELETE("/questions/:id", a.deleteQuestion)
	v1.POST("/builtin/:source/import", a.importBuiltIn)

	v1.POST("/quizzes", a.createQuiz)
	v1.POST("/quizzes/import", a.importQuiz)
	v1.POST("/quizzes/builtin", a.createBuiltInQuiz)
	v1.GET("/quizzes", a.listQuizzes)
	v1.GET("/quizzes/:id", a.getQuiz)
	v1.GET("/quizzes/code/:code", a.getQuizByCode)
	v1.PATCH("/quizzes/:id/status", a.updateQuizStatus)
	v1.DELETE("/quizzes/:id", a.deleteQuiz)

	v1.POST("/attempts", a.startAttempt)
	v1.POST("/attempts/practice", a.startPractice)
	v1.POST("/attempts/:id/submit", a.submitAttempt)
	v1.GET("/attempts/:id", a.getAttempt)
	v1.GET("/attempts", a.listAttempts)

	v1.GET("/leaderboard", a.getLeaderboard)
	v1.GET("/leaderboard/users/:id", a.getProfile)
}

// identify reads the caller set by the upstream gateway and makes sure the user exists.
func (a *API) identify(c *gin.Context) {
	actor := domain.Actor{
		UserID: strings.TrimSpace(c.GetHeader(headerUserID)),
		Role:   domain.Role(strings.ToLower(strings.TrimSpace(c.GetHeader(headerUserRole)))),
	}

	if err := a.ensureUser(c.Request.Context(), actor); err != nil {
		a.abort(c, err)
		return
	}

	c.Set(actorKey, actor)
	c.Next()
}

func (a *API) ensureUser(ctx context.Context, actor domain.Actor) error {
	if actor.UserID == "" || !actor.Role.Valid() {
		return errors.New(errors.CodeUnauthenticated, errors.WithMessagef("missing or invalid caller identity"))
	}

	if _, ok := a.known.Load(actor.UserID); ok {
		return nil
	}

	if err := a.ls.EnsureUser(ctx, actor); err != nil {
		return err
	}

	a.known.Store(actor.UserID, struct{}{})
	return nil
}

func actorOf(c *gin.Context) domain.Actor {
	v, _ := c.Get(actorKey)
	actor, _ := v.(domain.Actor)
	return actor
}

func (a *API) abort(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		slog.ErrorContext(c.Request.Context(), "api: request failed", "path", c.FullPath(), "error", err)
	}

	c.AbortWithStatusJSON(e.HTTPStatusCode(), gin.H{"error": e})
}

func (a *API) bind(c *gin.Context, body any) bool {
	if err := c.ShouldBindJSON(body); err != nil {
		a.abort(c, errors.InvalidArgument("invalid request body: %v", err))
		return false
	}
	return true
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
