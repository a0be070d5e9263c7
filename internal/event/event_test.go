package event_test

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/victornm/eduquiz/internal/domain"
	"github.com/victornm/eduquiz/internal/event"
)

func TestBus_Routing(t *testing.T) {
	var (
		submitted = domain.EventAttemptSubmitted{Attempt: domain.Attempt{ID: "a1", UserID: "alice", Score: decimal.NewFromInt(3)}}
		updated   = domain.EventLeaderboardUpdated{Leaderboard: domain.Leaderboard{Page: 1, Limit: 10, Entries: []domain.LeaderboardEntry{{UserID: "alice", Rank: 1}}}}
	)

	tests := map[string]struct {
		published  []event.Event
		subscribed map[string][]string
		want       map[string][]event.Event
	}{
		"submissions reach only attempt handlers": {
			published: []event.Event{submitted},
			subscribed: map[string][]string{
				"notifier":  {domain.EventNameAttemptSubmitted},
				"broadcast": {domain.EventNameLeaderboardUpdated},
			},
			want: map[string][]event.Event{
				"notifier": {submitted},
			},
		},
		"every handler of a name receives each event": {
			published: []event.Event{updated, updated},
			subscribed: map[string][]string{
				"broadcast": {domain.EventNameLeaderboardUpdated},
				"audit":     {domain.EventNameLeaderboardUpdated},
			},
			want: map[string][]event.Event{
				"broadcast": {updated, updated},
				"audit":     {updated, updated},
			},
		},
		"a handler may follow several names": {
			published: []event.Event{submitted, updated, submitted},
			subscribed: map[string][]string{
				"audit": {domain.EventNameAttemptSubmitted, domain.EventNameLeaderboardUpdated},
			},
			want: map[string][]event.Event{
				"audit": {submitted, submitted, updated},
			},
		},
		"events nobody follows are dropped": {
			published:  []event.Event{submitted, updated},
			subscribed: map[string][]string{},
			want:       map[string][]event.Event{},
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var (
				mu       sync.Mutex
				received = make(map[string][]event.Event)
			)

			b := event.NewBus()
			for sub, names := range tt.subscribed {
				for _, n := range names {
					b.Subscribe(n, func(_ context.Context, e event.Event) error {
						mu.Lock()
						received[sub] = append(received[sub], e)
						mu.Unlock()
						return nil
					})
				}
			}

			for _, e := range tt.published {
				b.Publish(context.Background(), e)
			}
			b.Stop()

			require.Len(t, received, len(tt.want))
			for sub, want := range tt.want {
				assert.ElementsMatch(t, want, received[sub], sub)
			}
		})
	}
}

func TestBus_HandlerFailuresAreIsolated(t *testing.T) {
	t.Parallel()

	var (
		mu       sync.Mutex
		received []string
	)

	b := event.NewBus(event.WithPoolSize(1), event.WithTimeout(time.Second))
	b.Subscribe(domain.EventNameAttemptSubmitted, func(context.Context, event.Event) error {
		panic("boom")
	})
	b.Subscribe(domain.EventNameAttemptSubmitted, func(context.Context, event.Event) error {
		return stderrors.New("failed")
	})
	b.Subscribe(domain.EventNameAttemptSubmitted, func(_ context.Context, e event.Event) error {
		mu.Lock()
		received = append(received, e.(domain.EventAttemptSubmitted).Attempt.ID)
		mu.Unlock()
		return nil
	})

	b.Publish(context.Background(), domain.EventAttemptSubmitted{Attempt: domain.Attempt{ID: "a1"}})
	b.Publish(context.Background(), domain.EventAttemptSubmitted{Attempt: domain.Attempt{ID: "a2"}})
	b.Stop()

	assert.Equal(t, []string{"a1", "a2"}, received)
}

func TestBus_HandlerContext(t *testing.T) {
	t.Run("should outlive the publisher's cancellation", func(t *testing.T) {
		t.Parallel()

		var live atomic.Value
		release := make(chan struct{})

		b := event.NewBus()
		b.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, _ event.Event) error {
			<-release
			live.Store(ctx.Err() == nil)
			return nil
		})

		ctx, cancel := context.WithCancel(context.Background())
		b.Publish(ctx, domain.EventLeaderboardUpdated{})
		cancel()
		close(release)
		b.Stop()

		assert.Equal(t, true, live.Load())
	})

	t.Run("should be bounded by the handler timeout", func(t *testing.T) {
		t.Parallel()

		var timedOut atomic.Bool

		b := event.NewBus(event.WithTimeout(10 * time.Millisecond))
		b.Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, _ event.Event) error {
			<-ctx.Done()
			timedOut.Store(stderrors.Is(ctx.Err(), context.DeadlineExceeded))
			return ctx.Err()
		})

		b.Publish(context.Background(), domain.EventLeaderboardUpdated{})
		b.Stop()

		assert.True(t, timedOut.Load())
	})
}

func TestBus_PoolSize(t *testing.T) {
	t.Parallel()

	const size = 2

	var running, peak atomic.Int32

	b := event.NewBus(event.WithPoolSize(size))
	b.Subscribe(domain.EventNameAttemptSubmitted, func(context.Context, event.Event) error {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		return nil
	})

	for range 10 {
		b.Publish(context.Background(), domain.EventAttemptSubmitted{})
	}
	b.Stop()

	assert.LessOrEqual(t, peak.Load(), int32(size))
	assert.Positive(t, peak.Load())
}
