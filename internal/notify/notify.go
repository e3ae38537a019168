// Package notify is a minimal in-memory pub/sub bus used to fan out fraud
// alerts to in-process subscribers (pagers, webhooks, audit hooks are
// registered by the embedding service).
package notify

import (
	"context"
	"sync"

	"fraudshield/pkg/fraud"
)

// TopicFraudAlert carries verdicts whose risk level reached high/critical.
const TopicFraudAlert = "fraud.alert"

// Event is a generic cross-component message.
type Event struct {
	Type    string
	Source  string
	Payload any
}

// Alert is the payload published on TopicFraudAlert.
type Alert struct {
	TransactionID string          `json:"transaction_id"`
	AnalysisID    string          `json:"analysis_id"`
	RiskLevel     fraud.RiskLevel `json:"risk_level"`
	FraudScore    float64         `json:"fraud_score"`
	Reasons       []string        `json:"reasons,omitempty"`
}

// Publisher publishes events.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Subscriber receives events of certain types.
type Subscriber interface {
	Handle(ctx context.Context, evt Event)
	Topics() []string
}

// Bus is an in-memory pub/sub bus.
type Bus struct {
	mu    sync.RWMutex
	subs  map[string][]Subscriber
	queue chan Event
	stop  chan struct{}
	once  sync.Once
}

// NewBus constructs a Bus with the given queue depth.
func NewBus(buffer int) *Bus {
	b := &Bus{
		subs:  make(map[string][]Subscriber),
		queue: make(chan Event, buffer),
		stop:  make(chan struct{}),
	}
	go b.loop()
	return b
}

func (b *Bus) loop() {
	for {
		select {
		case evt := <-b.queue:
			b.dispatch(evt)
		case <-b.stop:
			return
		}
	}
}

// Close stops the bus.
func (b *Bus) Close() { b.once.Do(func() { close(b.stop) }) }

// Register adds a subscriber for its declared topics.
func (b *Bus) Register(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range sub.Topics() {
		b.subs[t] = append(b.subs[t], sub)
	}
}

// Publish enqueues an event.
func (b *Bus) Publish(ctx context.Context, evt Event) error {
	select {
	case b.queue <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *Bus) dispatch(evt Event) {
	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subs[evt.Type]...)
	b.mu.RUnlock()
	for _, s := range subs {
		go s.Handle(context.Background(), evt)
	}
}
