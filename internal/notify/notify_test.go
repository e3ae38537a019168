package notify

import (
	"context"
	"testing"
	"time"

	"fraudshield/pkg/fraud"
)

type captureSub struct {
	topics []string
	got    chan Event
}

func (c *captureSub) Topics() []string                  { return c.topics }
func (c *captureSub) Handle(_ context.Context, e Event) { c.got <- e }

func TestBusDeliversToMatchingSubscribers(t *testing.T) {
	bus := NewBus(16)
	defer bus.Close()

	alerts := &captureSub{topics: []string{TopicFraudAlert}, got: make(chan Event, 1)}
	other := &captureSub{topics: []string{"unrelated.topic"}, got: make(chan Event, 1)}
	bus.Register(alerts)
	bus.Register(other)

	payload := Alert{TransactionID: "tx-9", RiskLevel: fraud.RiskHigh, FraudScore: 0.82}
	if err := bus.Publish(context.Background(), Event{Type: TopicFraudAlert, Source: "test", Payload: payload}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case evt := <-alerts.got:
		got, ok := evt.Payload.(Alert)
		if !ok || got.TransactionID != "tx-9" {
			t.Fatalf("unexpected payload: %+v", evt.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber never received the alert")
	}

	select {
	case evt := <-other.got:
		t.Fatalf("unrelated subscriber received %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusPublishHonorsContext(t *testing.T) {
	bus := NewBus(0) // unbuffered queue
	bus.Close() // dispatch loop gone, nothing will drain the queue
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := bus.Publish(ctx, Event{Type: "noop"}); err != context.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
