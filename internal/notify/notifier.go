// Package notify delivers outbound messages to end users through a sink
// (Kafka or the bridge websocket hub) and aggregates per-recipient results.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrDeliveryFailure marks a failed delivery to one recipient. It is counted,
// never propagated to the operation that triggered the fan-out.
var ErrDeliveryFailure = errors.New("delivery failed")

// Kind tags a message so bridges can render it.
type Kind string

const (
	KindReply      Kind = "reply"
	KindAssignment Kind = "assignment"
	KindGift       Kind = "gift"
	KindClosing    Kind = "closing"
	KindInvite     Kind = "invite"
)

// Message is one Notify(userId, text, mediaRef?) event.
type Message struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	Kind     Kind   `json:"kind"`
	Text     string `json:"text"`
	MediaRef string `json:"media_ref,omitempty"`
}

func NewMessage(userID string, kind Kind, text string) Message {
	return Message{ID: uuid.NewString(), UserID: userID, Kind: kind, Text: text}
}

func (m Message) WithMedia(ref string) Message {
	m.MediaRef = ref
	return m
}

// Notifier is a delivery sink.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, msg Message) error

func (f NotifierFunc) Notify(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Failure records why one recipient was not reached.
type Failure struct {
	UserID string `json:"user_id"`
	Error  string `json:"error"`
}

// Result summarizes a fan-out.
type Result struct {
	Attempted int       `json:"attempted"`
	Delivered int       `json:"delivered"`
	Failed    int       `json:"failed"`
	Failures  []Failure `json:"failures,omitempty"`
}

func (r Result) Summary() string {
	return fmt.Sprintf("delivered %d of %d", r.Delivered, r.Attempted)
}

// Merge adds other's counts to r.
func (r *Result) Merge(other Result) {
	r.Attempted += other.Attempted
	r.Delivered += other.Delivered
	r.Failed += other.Failed
	r.Failures = append(r.Failures, other.Failures...)
}
