// Package bus fans session events out to subscribers over watermill's
// in-process pub/sub. Each session has its own topic; publishing blocks only
// until every subscriber has buffered the event, so events from one
// publisher reach each subscriber in publish order.
package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	json "github.com/goccy/go-json"

	"github.com/okian/attune/internal/domain/model"
	"github.com/okian/attune/pkg/logger"
	"github.com/okian/attune/pkg/metrics"
)

const (
	topicPrefix             = "session."
	defaultSubscriberBuffer = 64

	metaSessionID = "session_id"
	metaEventType = "event_type"
)

// envelope is the wire form of model.Event.
type envelope struct {
	Type      model.EventType `json:"type"`
	SessionID string          `json:"sessionId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Bus publishes session events.
type Bus struct {
	pubsub           *gochannel.GoChannel
	subscriberBuffer int
	wmLogger         watermill.LoggerAdapter
	log              logger.Logger

	mu        sync.Mutex
	closed    bool
	nextID    uint64
	bySession map[string]map[uint64]*Subscription
}

// New creates a bus.
func New(opts ...Option) *Bus {
	b := &Bus{
		subscriberBuffer: defaultSubscriberBuffer,
		log:              logger.Named("bus"),
		bySession:        make(map[string]map[uint64]*Subscription),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.wmLogger == nil {
		b.wmLogger = NewWatermillLogger(b.log)
	}
	b.pubsub = gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            int64(b.subscriberBuffer),
		BlockPublishUntilSubscriberAck: true,
	}, b.wmLogger)
	return b
}

// Topic returns the topic carrying a session's events.
func Topic(sessionID string) string {
	return topicPrefix + sessionID
}

// Publish encodes ev and delivers it to the session's subscribers.
func (b *Bus) Publish(_ context.Context, ev model.Event) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}

	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncode, err)
	}
	data, err := json.Marshal(envelope{
		Type:      ev.Type,
		SessionID: ev.SessionID,
		Timestamp: ev.Timestamp,
		Payload:   payload,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncode, err)
	}

	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set(metaSessionID, ev.SessionID)
	msg.Metadata.Set(metaEventType, string(ev.Type))
	if err := b.pubsub.Publish(Topic(ev.SessionID), msg); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	metrics.RecordBusPublished(string(ev.Type))
	return nil
}

// Subscription receives one session's events on C until it is closed.
type Subscription struct {
	C         <-chan model.Event
	SessionID string

	id     uint64
	bus    *Bus
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Subscribe starts receiving sessionID's events. The subscription ends when
// ctx is done, Close is called or the session is closed on the bus.
func (b *Bus) Subscribe(ctx context.Context, sessionID string) (*Subscription, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.nextID++
	id := b.nextID
	b.mu.Unlock()

	subCtx, cancel := context.WithCancel(ctx)
	messages, err := b.pubsub.Subscribe(subCtx, Topic(sessionID))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe %s: %w", sessionID, err)
	}

	out := make(chan model.Event, b.subscriberBuffer)
	sub := &Subscription{
		C:         out,
		SessionID: sessionID,
		id:        id,
		bus:       b,
		cancel:    cancel,
		done:      make(chan struct{}),
	}

	b.mu.Lock()
	set, ok := b.bySession[sessionID]
	if !ok {
		set = make(map[uint64]*Subscription)
		b.bySession[sessionID] = set
	}
	set[id] = sub
	b.updateGaugeLocked()
	b.mu.Unlock()

	go sub.pump(subCtx, messages, out)
	return sub, nil
}

// pump acks every message immediately and hands it to the subscriber's
// buffer, dropping it when the subscriber is too far behind.
func (s *Subscription) pump(ctx context.Context, messages <-chan *message.Message, out chan<- model.Event) {
	defer close(s.done)
	defer s.bus.remove(s)
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			msg.Ack()
			var env envelope
			if err := json.Unmarshal(msg.Payload, &env); err != nil {
				s.bus.log.Warn(ctx, "drop undecodable event", logger.String("session_id", s.SessionID), logger.Error(err))
				continue
			}
			ev := model.Event{Type: env.Type, SessionID: env.SessionID, Timestamp: env.Timestamp, Payload: env.Payload}
			select {
			case out <- ev:
			default:
				metrics.RecordBusDropped()
			}
		}
	}
}

// Close ends the subscription and waits for its goroutine to exit.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}

// Done is closed once the subscription has stopped delivering.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set, ok := b.bySession[s.SessionID]; ok {
		delete(set, s.id)
		if len(set) == 0 {
			delete(b.bySession, s.SessionID)
		}
	}
	b.updateGaugeLocked()
}

// CloseSession ends every subscription on sessionID and returns once they
// have stopped.
func (b *Bus) CloseSession(sessionID string) int {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.bySession[sessionID]))
	for _, s := range b.bySession[sessionID] {
		subs = append(subs, s)
	}
	b.mu.Unlock()
	for _, s := range subs {
		s.Close()
	}
	return len(subs)
}

// Subscribers returns the number of open subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.countLocked()
}

func (b *Bus) countLocked() int {
	n := 0
	for _, set := range b.bySession {
		n += len(set)
	}
	return n
}

func (b *Bus) updateGaugeLocked() {
	metrics.UpdateBusSubscribers(b.countLocked())
}

// Close ends all subscriptions and shuts the pub/sub down.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	var subs []*Subscription
	for _, set := range b.bySession {
		for _, s := range set {
			subs = append(subs, s)
		}
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
	return b.pubsub.Close()
}
