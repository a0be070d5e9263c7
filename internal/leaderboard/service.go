package leaderboard

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/eduquiz/internal/domain"
	"github.com/victornm/eduquiz/internal/errors"
	"github.com/victornm/eduquiz/internal/event"
	"github.com/victornm/eduquiz/internal/telemetry"
)

const (
	publishInterval = 200 * time.Millisecond

	defaultLimit    = 10
	defaultMaxLimit = 100
	defaultCacheTTL = 30 * time.Second
)

// Store keeps the per-user running totals. IncrementUserStats must be a single atomic update and fails with
// CodeNotFound for an unknown user.
type Store interface {
	EnsureUser(ctx context.Context, u domain.User) error
	IncrementUserStats(ctx context.Context, userID string, d domain.StatsDelta) error
	GetUser(ctx context.Context, id string) (*domain.User, error)
	ListTopStudents(ctx context.Context, offset, limit int) ([]domain.User, error)
	// CountStudentsAhead counts students with a higher score, or an equal score and an earlier registration.
	CountStudentsAhead(ctx context.Context, u domain.User) (int, error)
}

type Config struct {
	Store    Store
	EventBus *event.Bus
	Redis    redis.UniversalClient
	Prefix   string
	CacheTTL time.Duration
	MaxLimit int
	Now      func() time.Time
}

type Service struct {
	store    Store
	eb       *event.Bus
	redis    redis.UniversalClient
	prefix   string
	ttl      time.Duration
	maxLimit int
	now      func() time.Time
}

func NewService(c Config) *Service {
	s := &Service{
		store:    c.Store,
		eb:       c.EventBus,
		redis:    c.Redis,
		prefix:   c.Prefix,
		ttl:      c.CacheTTL,
		maxLimit: c.MaxLimit,
		now:      c.Now,
	}

	if s.ttl <= 0 {
		s.ttl = defaultCacheTTL
	}
	if s.maxLimit <= 0 {
		s.maxLimit = defaultMaxLimit
	}
	if s.now == nil {
		s.now = time.Now
	}

	return s
}

// EnsureUser registers a user with zero totals. Existing users are left untouched.
func (s *Service) EnsureUser(ctx context.Context, actor domain.Actor) error {
	if actor.UserID == "" || !actor.Role.Valid() {
		return errors.InvalidArgument("invalid user %q with role %q", actor.UserID, actor.Role)
	}

	return s.store.EnsureUser(ctx, domain.User{
		ID:        actor.UserID,
		Role:      actor.Role,
		CreatedAt: s.now(),
	})
}

// RecordAttempt adds a submitted attempt to the user's totals, drops cached pages and schedules a
// leaderboard.updated event.
func (s *Service) RecordAttempt(ctx context.Context, userID string, d domain.StatsDelta) error {
	if err := s.store.IncrementUserStats(ctx, userID, d); err != nil {
		return err
	}

	if s.redis == nil {
		return nil
	}

	if err := s.redis.Incr(ctx, s.versionKey()).Err(); err != nil {
		slog.ErrorContext(ctx, "leaderboard: invalidate cache failed", "error", err)
	}

	if err := s.schedulePublish(ctx); err != nil {
		slog.ErrorContext(ctx, "leaderboard: publish failed", "error", err)
	}

	return nil
}

type GetTopRequest struct {
	Page  int
	Limit int
}

// GetTop returns a page of students ordered by total score, earlier registration first on ties.
func (s *Service) GetTop(ctx context.Context, req GetTopRequest) (*domain.Leaderboard, error) {
	page, limit := req.Page, req.Limit
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}

	// Version is pinned before reading the page; an increment in between leaves the stored page unreachable.
	key := s.cacheKey(ctx, page, limit)
	if l, ok := s.cached(ctx, key); ok {
		telemetry.LeaderboardCache.WithLabelValues("hit").Inc()
		return l, nil
	}
	telemetry.LeaderboardCache.WithLabelValues("miss").Inc()

	offset := (page - 1) * limit
	users, err := s.store.ListTopStudents(ctx, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list top students: %w", err)
	}

	l := &domain.Leaderboard{
		Page:    page,
		Limit:   limit,
		Entries: make([]domain.LeaderboardEntry, 0, len(users)),
	}
	for i, u := range users {
		l.Entries = append(l.Entries, domain.EntryOf(u, offset+i+1))
	}

	s.cache(ctx, key, l)

	return l, nil
}

// GetProfile returns the user's totals and rank without materializing the ranking.
func (s *Service) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	ahead, err := s.store.CountStudentsAhead(ctx, *u)
	if err != nil {
		return nil, fmt.Errorf("count students ahead: %w", err)
	}

	return &domain.Profile{
		LeaderboardEntry: domain.EntryOf(*u, ahead+1),
		Role:             u.Role,
	}, nil
}

// cacheKey returns the page key under the current version, or "" when pages are not cached.
func (s *Service) cacheKey(ctx context.Context, page, limit int) string {
	if s.redis == nil {
		return ""
	}

	key, err := s.pageKey(ctx, page, limit)
	if err != nil {
		slog.WarnContext(ctx, "leaderboard: read cache version failed", "error", err)
		return ""
	}
	return key
}

func (s *Service) cached(ctx context.Context, key string) (*domain.Leaderboard, bool) {
	if key == "" {
		return nil, false
	}

	b, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !stderrors.Is(err, redis.Nil) {
			slog.WarnContext(ctx, "leaderboard: read cache failed", "error", err)
		}
		return nil, false
	}

	var l domain.Leaderboard
	if err := json.Unmarshal(b, &l); err != nil {
		slog.WarnContext(ctx, "leaderboard: decode cached page failed", "error", err)
		return nil, false
	}

	return &l, true
}

func (s *Service) cache(ctx context.Context, key string, l *domain.Leaderboard) {
	if key == "" {
		return
	}

	b, err := json.Marshal(l)
	if err != nil {
		return
	}

	if err := s.redis.Set(ctx, key, b, s.ttl).Err(); err != nil {
		slog.WarnContext(ctx, "leaderboard: write cache failed", "error", err)
	}
}

// schedulePublish publishes at most one leaderboard.updated event per interval across all instances: only
// the instance that wins the SETNX publishes.
func (s *Service) schedulePublish(ctx context.Context) error {
	ok, err := s.redis.SetNX(ctx, s.publishKey(), s.now().UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}

	if !ok || s.eb == nil {
		return nil
	}

	l, err := s.GetTop(ctx, GetTopRequest{Page: 1, Limit: defaultLimit})
	if err != nil {
		return err
	}

	s.eb.Publish(ctx, domain.EventLeaderboardUpdated{Leaderboard: *l})

	return nil
}

func (s *Service) pageKey(ctx context.Context, page, limit int) (string, error) {
	v, err := s.redis.Get(ctx, s.versionKey()).Int64()
	if err != nil && !stderrors.Is(err, redis.Nil) {
		return "", err
	}

	return fmt.Sprintf("%s:leaderboard:v%d:%d:%d", s.prefix, v, page, limit), nil
}

func (s *Service) versionKey() string {
	return fmt.Sprintf("%s:leaderboard:version", s.prefix)
}

func (s *Service) publishKey() string {
	return fmt.Sprintf("%s:leaderboard:time", s.prefix)
}
