package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"fintrack/internal/core"
)

// TransactionEventMessage is the wire form of a ledger change. It carries
// identifiers only; consumers load the record through the owner-scoped store.
type TransactionEventMessage struct {
	Type          string    `json:"type"`
	TransactionID string    `json:"transactionId"`
	OwnerID       string    `json:"ownerId"`
	Source        string    `json:"source"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewTransactionEventMessage(evt core.TransactionEvent) *TransactionEventMessage {
	ts := evt.OccurredAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &TransactionEventMessage{
		Type:          string(evt.Type),
		TransactionID: evt.TransactionID,
		OwnerID:       evt.OwnerID,
		Source:        evt.Source,
		Timestamp:     ts,
	}
}

// Event converts the message back to its domain form.
func (m *TransactionEventMessage) Event() core.TransactionEvent {
	return core.TransactionEvent{
		Type:          core.EventType(m.Type),
		TransactionID: m.TransactionID,
		OwnerID:       m.OwnerID,
		Source:        m.Source,
		OccurredAt:    m.Timestamp,
	}
}

func (m *TransactionEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransactionEventMessageFromJSON decodes and sanity-checks a message body.
func TransactionEventMessageFromJSON(data []byte) (*TransactionEventMessage, error) {
	var msg TransactionEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.TransactionID == "" || msg.OwnerID == "" {
		return nil, fmt.Errorf("message missing transaction or owner id")
	}
	return &msg, nil
}
