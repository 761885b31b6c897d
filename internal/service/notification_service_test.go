package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/campusforge/grading-api/internal/dto"
)

func TestNotifierFansOutToLocalSubscribers(t *testing.T) {
	notifier := NewGradingNotifier(nil, "grading", nil, testLogger())

	participationFeed, cancelParticipation := notifier.SubscribeParticipation(10)
	defer cancelParticipation()
	exerciseFeed, cancelExercise := notifier.SubscribeExercise(1)
	defer cancelExercise()

	notifier.PublishResult(context.Background(), 1, 10, dto.ResultResponse{ID: 30, Score: 80})

	select {
	case event := <-participationFeed:
		require.Equal(t, dto.EventNewResult, event.Kind)
		require.NotNil(t, event.Result)
		require.Equal(t, uint(30), event.Result.ID)
	case <-time.After(time.Second):
		t.Fatal("participation subscriber did not receive the event")
	}

	select {
	case event := <-exerciseFeed:
		require.Equal(t, dto.EventNewResult, event.Kind)
	case <-time.After(time.Second):
		t.Fatal("exercise subscriber did not receive the event")
	}
}

func TestNotifierOnlyReachesMatchingTopics(t *testing.T) {
	notifier := NewGradingNotifier(nil, "grading", nil, testLogger())

	otherFeed, cancel := notifier.SubscribeParticipation(99)
	defer cancel()

	notifier.NotifyGradingConfigChanged(context.Background(), 1)

	select {
	case <-otherFeed:
		t.Fatal("received an event for an unrelated participation")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNotifierRelaysEventsBetweenNodesOverRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	clientA := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	clientB := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = clientA.Close()
		_ = clientB.Close()
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	nodeA := NewGradingNotifier(clientA, "grading", nil, testLogger())
	nodeB := NewGradingNotifier(clientB, "grading", nil, testLogger())
	nodeA.Start(ctx)
	nodeB.Start(ctx)

	feed, cancelFeed := nodeB.SubscribeExercise(1)
	defer cancelFeed()

	received := make(chan dto.GradingEventResponse, 1)
	go func() {
		for event := range feed {
			select {
			case received <- event:
			default:
			}
			return
		}
	}()

	// The remote subscription attaches asynchronously after Start, so keep
	// publishing until the relayed copy arrives.
	deadline := time.After(5 * time.Second)
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case event := <-received:
			require.Equal(t, dto.EventDuplicateTestCase, event.Kind)
			require.Equal(t, []string{"testA", "testB"}, event.TestNames)
			return
		case <-deadline:
			t.Fatal("event was not relayed between notifier nodes")
		case <-ticker.C:
			nodeA.NotifyDuplicateTestCase(ctx, 1, []string{"testA", "testB"})
		}
	}
}
