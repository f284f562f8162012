// Package notification publishes post-commit events to downstream systems.
// Publishing is best effort: a committed transaction is never rolled back
// because an event could not be delivered.
package notification

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

const (
	// KindTransactionCompleted is published when a transaction reaches success.
	KindTransactionCompleted = "transaction.completed"
	// KindTransactionFailed is published when a transaction is marked failed.
	KindTransactionFailed = "transaction.failed"
	// KindTransactionReversed is published when a reversal moves its original to reversed.
	KindTransactionReversed = "transaction.reversed"
	// KindWalletStatusChanged is published after a freeze or unfreeze.
	KindWalletStatusChanged = "wallet.status_changed"
)

// Event describes something that already happened.
type Event struct {
	Kind          string    `json:"kind"`
	TransactionID string    `json:"transaction_id,omitempty"`
	Type          string    `json:"type,omitempty"`
	Status        string    `json:"status"`
	Amount        int64     `json:"amount,omitempty"`
	FromWalletID  string    `json:"from_wallet_id,omitempty"`
	ToWalletID    string    `json:"to_wallet_id,omitempty"`
	WalletID      string    `json:"wallet_id,omitempty"`
	ActorID       string    `json:"actor_id,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// Key partitions events so that all events of one transaction, or of one
// wallet, stay ordered.
func (e Event) Key() string {
	if e.TransactionID != "" {
		return e.TransactionID
	}
	return e.WalletID
}

func (e Event) encode() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher delivers events to downstream systems.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// LoggerPublisher writes events to the structured logger.
type LoggerPublisher struct {
	logger *slog.Logger
}

// NewLoggerPublisher constructs a logging publisher.
func NewLoggerPublisher(logger *slog.Logger) *LoggerPublisher {
	return &LoggerPublisher{logger: logger}
}

// Publish writes the event to the structured logger.
func (p *LoggerPublisher) Publish(_ context.Context, event Event) error {
	if p == nil || p.logger == nil {
		return nil
	}
	p.logger.Info("event",
		"kind", event.Kind,
		"transaction_id", event.TransactionID,
		"wallet_id", event.WalletID,
		"status", event.Status,
		"amount", event.Amount,
	)
	return nil
}

// Recorder keeps published events in memory. Tests use it to assert on
// what was emitted.
type Recorder struct {
	events chan Event
}

// NewRecorder builds a Recorder buffering up to size events.
func NewRecorder(size int) *Recorder {
	return &Recorder{events: make(chan Event, size)}
}

// Publish stores the event, dropping it when the buffer is full.
func (r *Recorder) Publish(_ context.Context, event Event) error {
	select {
	case r.events <- event:
	default:
	}
	return nil
}

// Events drains the buffered events.
func (r *Recorder) Events() []Event {
	var out []Event
	for {
		select {
		case e := <-r.events:
			out = append(out, e)
		default:
			return out
		}
	}
}
