package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/campusforge/grading-api/internal/dto"
	"github.com/campusforge/grading-api/internal/observability"
)

const eventBufferSize = 16

// GradingNotifier fans grading events out to live feed subscribers on every
// node. Events travel through redis pub/sub and a NATS subject so websocket
// clients connected to other instances see them too.
type GradingNotifier interface {
	Start(ctx context.Context)
	PublishResult(ctx context.Context, exerciseID, participationID uint, result dto.ResultResponse)
	NotifyDuplicateTestCase(ctx context.Context, exerciseID uint, testNames []string)
	NotifyGradingConfigChanged(ctx context.Context, exerciseID uint)
	SubscribeParticipation(participationID uint) (<-chan dto.GradingEventResponse, func())
	SubscribeExercise(exerciseID uint) (<-chan dto.GradingEventResponse, func())
}

type gradingNotifier struct {
	redis        *redis.Client
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	logger       zerolog.Logger
	sanitizer    *bluemonday.Policy
	broker       *eventBroker
	nodeID       string
}

type gradingEventEnvelope struct {
	Source string                   `json:"source"`
	Event  dto.GradingEventResponse `json:"event"`
	SentAt time.Time                `json:"sent_at"`
}

type eventBroker struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan dto.GradingEventResponse]struct{}
}

// NewGradingNotifier constructs the notifier. Redis and NATS are both
// optional; without them events only reach subscribers on this node.
func NewGradingNotifier(redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) GradingNotifier {
	channel := ""
	subject := ""
	if channelBase != "" {
		channel = channelBase + ":grading-events"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".grading-events"
	}

	return &gradingNotifier{
		redis:        redisClient,
		redisChannel: channel,
		nats:         natsConn,
		natsSubject:  subject,
		logger:       logger.With().Str("component", "grading_notifier").Logger(),
		sanitizer:    bluemonday.StrictPolicy(),
		broker: &eventBroker{
			subscribers: make(map[string]map[chan dto.GradingEventResponse]struct{}),
		},
		nodeID: uuid.NewString(),
	}
}

func (s *gradingNotifier) Start(ctx context.Context) {
	if s.redis != nil && s.redisChannel != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		go s.consumeNATS(ctx)
	}
}

func (s *gradingNotifier) PublishResult(ctx context.Context, exerciseID, participationID uint, result dto.ResultResponse) {
	s.emit(ctx, dto.GradingEventResponse{
		Kind:            dto.EventNewResult,
		ExerciseID:      exerciseID,
		ParticipationID: participationID,
		Result:          &result,
	})
}

func (s *gradingNotifier) NotifyDuplicateTestCase(ctx context.Context, exerciseID uint, testNames []string) {
	message := s.sanitizer.Sanitize(
		"Configuration error: duplicate test case output detected for " + strings.Join(testNames, ", "),
	)
	s.emit(ctx, dto.GradingEventResponse{
		Kind:       dto.EventDuplicateTestCase,
		ExerciseID: exerciseID,
		Message:    message,
		TestNames:  testNames,
	})
}

func (s *gradingNotifier) NotifyGradingConfigChanged(ctx context.Context, exerciseID uint) {
	s.emit(ctx, dto.GradingEventResponse{
		Kind:       dto.EventGradingConfigChanged,
		ExerciseID: exerciseID,
	})
}

func (s *gradingNotifier) SubscribeParticipation(participationID uint) (<-chan dto.GradingEventResponse, func()) {
	return s.subscribe(participationTopic(participationID))
}

func (s *gradingNotifier) SubscribeExercise(exerciseID uint) (<-chan dto.GradingEventResponse, func()) {
	return s.subscribe(exerciseTopic(exerciseID))
}

func (s *gradingNotifier) subscribe(topic string) (<-chan dto.GradingEventResponse, func()) {
	channel := make(chan dto.GradingEventResponse, eventBufferSize)

	s.broker.subscribe(topic, channel)
	observability.ResultFeedClientsActive().Inc()

	cleanup := func() {
		s.broker.unsubscribe(topic, channel)
		observability.ResultFeedClientsActive().Dec()
	}

	return channel, cleanup
}

func (s *gradingNotifier) emit(ctx context.Context, event dto.GradingEventResponse) {
	s.broadcast(event)
	observability.GradingEventsPublishedTotal().WithLabelValues(event.Kind).Inc()

	if err := s.publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("kind", event.Kind).Msg("failed to publish grading event to broker")
	}
}

func (s *gradingNotifier) broadcast(event dto.GradingEventResponse) {
	s.broker.broadcast(exerciseTopic(event.ExerciseID), event)
	if event.ParticipationID != 0 {
		s.broker.broadcast(participationTopic(event.ParticipationID), event)
	}
}

func (s *gradingNotifier) publish(ctx context.Context, event dto.GradingEventResponse) error {
	envelope := gradingEventEnvelope{
		Source: s.nodeID,
		Event:  event,
		SentAt: time.Now().UTC(),
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	if s.redis != nil && s.redisChannel != "" {
		if err := s.redis.Publish(ctx, s.redisChannel, payload).Err(); err != nil {
			return err
		}
	}

	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			return err
		}
	}

	return nil
}

func (s *gradingNotifier) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisChannel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error().Err(err).Msg("grading event redis subscription closed")
			return
		}
		s.handleEnvelope([]byte(msg.Payload))
	}
}

func (s *gradingNotifier) consumeNATS(ctx context.Context) {
	sub, err := s.nats.QueueSubscribe(s.natsSubject, "grading-events", func(msg *nats.Msg) {
		s.handleEnvelope(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats grading events subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain grading event nats subscription")
		}
	}()
}

func (s *gradingNotifier) handleEnvelope(payload []byte) {
	var envelope gradingEventEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		s.logger.Warn().Err(err).Msg("invalid grading event payload")
		return
	}

	if envelope.Source == s.nodeID {
		return
	}

	observability.GradingEventsPublishedTotal().WithLabelValues(envelope.Event.Kind).Inc()
	s.broadcast(envelope.Event)
}

func participationTopic(id uint) string {
	return fmt.Sprintf("participation:%d", id)
}

func exerciseTopic(id uint) string {
	return fmt.Sprintf("exercise:%d", id)
}

func (b *eventBroker) subscribe(topic string, ch chan dto.GradingEventResponse) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[topic]; !exists {
		b.subscribers[topic] = make(map[chan dto.GradingEventResponse]struct{})
	}
	b.subscribers[topic][ch] = struct{}{}
}

func (b *eventBroker) unsubscribe(topic string, ch chan dto.GradingEventResponse) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subscribers, ok := b.subscribers[topic]; ok {
		delete(subscribers, ch)
		close(ch)
		if len(subscribers) == 0 {
			delete(b.subscribers, topic)
		}
	}
}

func (b *eventBroker) broadcast(topic string, event dto.GradingEventResponse) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subscribers := b.subscribers[topic]
	for ch := range subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}
