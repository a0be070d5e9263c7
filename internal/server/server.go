package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/victornm/eduquiz/internal/api"
	"github.com/victornm/eduquiz/internal/attempt"
	"github.com/victornm/eduquiz/internal/bank"
	"github.com/victornm/eduquiz/internal/event"
	"github.com/victornm/eduquiz/internal/leaderboard"
	"github.com/victornm/eduquiz/internal/quiz"
	"github.com/victornm/eduquiz/internal/storage/memory"
	"github.com/victornm/eduquiz/internal/storage/postgres"
	"github.com/victornm/eduquiz/internal/telemetry"
)

const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	GRPC struct {
		Port int32
	}

	Storage struct {
		Driver string
	}

	Postgres struct {
		Addr string
		User string
		Pass string
		Name string
	}

	// Redis is optional. Without addresses the leaderboard is not cached and no notifications are pushed.
	Redis struct {
		Addrs  []string
		Pass   string
		Prefix string
	}

	Pubsub struct {
		Prefix string
	}

	Quiz struct {
		CodeLength   int `mapstructure:"code_length"`
		CodeAttempts int `mapstructure:"code_attempts"`
	}

	Attempt struct {
		DefaultQuestionsCount int     `mapstructure:"default_questions_count"`
		DefaultPoints         float64 `mapstructure:"default_points"`
	}

	Leaderboard struct {
		CacheTTL time.Duration `mapstructure:"cache_ttl"`
		MaxLimit int           `mapstructure:"max_limit"`
	}
}

// DefaultConfig returns the values used for keys missing from the config file and the environment.
func DefaultConfig() Config {
	var c Config
	c.HTTP.Port = 8080
	c.GRPC.Port = 8081
	c.Storage.Driver = DriverPostgres
	c.Redis.Prefix = "eduquiz"
	c.Pubsub.Prefix = "eduquiz:pubsub"
	c.Quiz.CodeLength = 6
	c.Quiz.CodeAttempts = 5
	c.Attempt.DefaultQuestionsCount = 10
	c.Attempt.DefaultPoints = 1
	c.Leaderboard.CacheTTL = 30 * time.Second
	c.Leaderboard.MaxLimit = 100
	return c
}

// store is what every service needs from persistence. Both drivers provide all of it.
type store interface {
	bank.Store
	quiz.Store
	attempt.Store
	leaderboard.Store
}

type Server struct {
	c Config

	eb *event.Bus

	infra struct {
		redis    redis.UniversalClient
		postgres *pgxpool.Pool
		store    store
	}

	service struct {
		bank        *bank.Service
		quiz        *quiz.Service
		attempt     *attempt.Service
		leaderboard *leaderboard.Service
	}

	http *http.Server
	grpc *grpc.Server
}

func Init(c Config) (*Server, error) {
	s := &Server{c: c}

	s.eb = event.NewBus()

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	s.initService()
	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initStorage(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	if len(s.c.Redis.Addrs) == 0 {
		slog.Warn("server: redis not configured, leaderboard cache and notifications are disabled")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    s.c.Redis.Addrs,
		Password: s.c.Redis.Pass,
	})

	if err := telemetry.MonitorRedis(r); err != nil {
		return err
	}

	if err := r.Ping(ctx).Err(); err != nil {
		return err
	}

	s.infra.redis = r
	return nil
}

func (s *Server) initStorage() error {
	switch s.c.Storage.Driver {
	case DriverMemory:
		slog.Warn("server: using in-memory storage, data is lost on shutdown")
		s.infra.store = memory.New()
		return nil

	case DriverPostgres, "":
		db, err := s.connectPostgres()
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		s.infra.postgres = db

		ps := postgres.New(db)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := ps.Migrate(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		s.infra.store = ps
		return nil

	default:
		return fmt.Errorf("unknown driver %q", s.c.Storage.Driver)
	}
}

func (s *Server) connectPostgres() (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p := s.c.Postgres
	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", p.User, p.Pass, p.Addr, p.Name))
	if err != nil {
		return nil, err
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func (s *Server) initService() {
	points := decimal.NewFromFloat(s.c.Attempt.DefaultPoints)

	s.service.bank = bank.NewService(bank.Config{
		Store:         s.infra.store,
		DefaultPoints: points,
	})

	s.service.quiz = quiz.NewService(quiz.Config{
		Store:        s.infra.store,
		Bank:         s.service.bank,
		CodeLength:   s.c.Quiz.CodeLength,
		CodeAttempts: s.c.Quiz.CodeAttempts,
	})

	s.service.leaderboard = leaderboard.NewService(leaderboard.Config{
		Store:    s.infra.store,
		EventBus: s.eb,
		Redis:    s.infra.redis,
		Prefix:   s.c.Redis.Prefix,
		CacheTTL: s.c.Leaderboard.CacheTTL,
		MaxLimit: s.c.Leaderboard.MaxLimit,
	})

	s.service.attempt = attempt.NewService(attempt.Config{
		Store:                 s.infra.store,
		Quizzes:               s.service.quiz,
		Bank:                  s.service.bank,
		Stats:                 s.service.leaderboard,
		EventBus:              s.eb,
		DefaultPoints:         points,
		DefaultQuestionsCount: s.c.Attempt.DefaultQuestionsCount,
	})
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	s.grpc = grpc.NewServer(telemetry.GRPCServerInterceptor())

	c := api.Config{
		HTTP:         e,
		GRPC:         s.grpc,
		EventBus:     s.eb,
		Bank:         s.service.bank,
		Quiz:         s.service.quiz,
		Attempt:      s.service.attempt,
		Leaderboard:  s.service.leaderboard,
		PubsubPrefix: s.c.Pubsub.Prefix,
	}
	if s.infra.redis != nil {
		c.Redis = s.infra.redis
	}
	api.New(c)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

func (s *Server) Start() {
	ctx := context.TODO()

	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.c.GRPC.Port))
	if err != nil {
		slog.ErrorContext(ctx, "grpc server: listen failed", "error", err)
		panic(err)
	}

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: gRPC listening on port %d", s.c.GRPC.Port))
		return s.grpc.Serve(lis)
	})

	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	err = eg.Wait()
	if err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.grpc.GracefulStop()
	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	s.eb.Stop()

	if s.infra.redis != nil {
		if err := s.infra.redis.Close(); err != nil {
			slog.ErrorContext(ctx, "server: close redis failed", "error", err)
		}
	}
	if s.infra.postgres != nil {
		s.infra.postgres.Close()
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
