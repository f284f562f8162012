package notification

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/bayarin/bayarin/internal/logging"
)

func TestRedisPublisherDeliversJSON(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	sub := client.Subscribe(ctx, "transaction_events")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	pub := NewRedisPublisher(client, "transaction_events")
	event := Event{Kind: KindTransactionCompleted, TransactionID: "tx-1", Status: "success", Amount: 500, OccurredAt: time.Now().UTC()}
	if err := pub.Publish(ctx, event); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case msg := <-sub.Channel():
		var got Event
		if err := json.Unmarshal([]byte(msg.Payload), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Kind != event.Kind || got.TransactionID != "tx-1" || got.Amount != 500 {
			t.Fatalf("unexpected event %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for event")
	}
}

func TestEventKey(t *testing.T) {
	if k := (Event{TransactionID: "tx", WalletID: "w"}).Key(); k != "tx" {
		t.Fatalf("expected transaction key, got %q", k)
	}
	if k := (Event{WalletID: "w"}).Key(); k != "w" {
		t.Fatalf("expected wallet key, got %q", k)
	}
}

func TestLoggerPublisherAndRecorder(t *testing.T) {
	ctx := context.Background()
	if err := NewLoggerPublisher(logging.Discard()).Publish(ctx, Event{Kind: KindWalletStatusChanged}); err != nil {
		t.Fatalf("logger publish: %v", err)
	}

	rec := NewRecorder(1)
	_ = rec.Publish(ctx, Event{Kind: KindTransactionCompleted})
	_ = rec.Publish(ctx, Event{Kind: KindTransactionFailed})
	events := rec.Events()
	if len(events) != 1 || events[0].Kind != KindTransactionCompleted {
		t.Fatalf("unexpected recorded events %+v", events)
	}
}
