package network

import (
	"context"

	"arenasync/logging"
)

const (
	// EventAckAdvanced is emitted when a peer acknowledges a newer tick.
	EventAckAdvanced logging.EventType = "network.ack_advanced"
	// EventAckRegression is emitted when a peer acknowledges a tick older than its baseline.
	EventAckRegression logging.EventType = "network.ack_regression"
	// EventFrameDropped is emitted when an inbound frame is discarded.
	EventFrameDropped logging.EventType = "network.frame_dropped"
	// EventSequenceGap is emitted when buffered frames skip over lost sequence numbers.
	EventSequenceGap logging.EventType = "network.sequence_gap"
	// EventResyncScheduled is emitted when a session falls back to a full snapshot.
	EventResyncScheduled logging.EventType = "network.resync_scheduled"
	// EventStateChanged is emitted on every session state transition.
	EventStateChanged logging.EventType = "network.state_changed"
	// EventSessionOpened is emitted when the host registers a peer session.
	EventSessionOpened logging.EventType = "network.session_opened"
	// EventSessionClosed is emitted when a peer session is torn down.
	EventSessionClosed logging.EventType = "network.session_closed"
)

// AckPayload captures acknowledgement progression details.
type AckPayload struct {
	Previous uint64 `json:"previous"`
	Ack      uint64 `json:"ack"`
}

// DropPayload explains why a frame was discarded.
type DropPayload struct {
	Sequence uint64 `json:"sequence"`
	Kind     string `json:"kind,omitempty"`
	Reason   string `json:"reason"`
	Error    string `json:"error,omitempty"`
}

// GapPayload describes sequence numbers declared lost.
type GapPayload struct {
	Expected uint64 `json:"expected"`
	Resumed  uint64 `json:"resumed"`
}

// ResyncPayload describes why a full snapshot is being forced.
type ResyncPayload struct {
	Reason   string `json:"reason"`
	Pending  int    `json:"pending,omitempty"`
	Baseline uint64 `json:"baseline,omitempty"`
}

// StatePayload records a state transition.
type StatePayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// SessionPayload describes a session lifecycle change.
type SessionPayload struct {
	Role   string `json:"role"`
	Reason string `json:"reason,omitempty"`
}

func publish(ctx context.Context, pub logging.Publisher, eventType logging.EventType, severity logging.Severity, tick uint64, actor logging.EntityRef, payload any, extra map[string]any) {
	if pub == nil {
		return
	}
	pub.Publish(ctx, logging.Event{
		Type:     eventType,
		Tick:     tick,
		Actor:    actor,
		Severity: severity,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
	})
}

// AckAdvanced publishes a debug event when a peer acknowledgement advances.
func AckAdvanced(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload AckPayload, extra map[string]any) {
	publish(ctx, pub, EventAckAdvanced, logging.SeverityDebug, tick, actor, payload, extra)
}

// AckRegression publishes a warning when a peer acknowledgement regresses.
func AckRegression(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload AckPayload, extra map[string]any) {
	publish(ctx, pub, EventAckRegression, logging.SeverityWarn, tick, actor, payload, extra)
}

// FrameDropped publishes a warning for a discarded inbound frame.
func FrameDropped(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload DropPayload, extra map[string]any) {
	publish(ctx, pub, EventFrameDropped, logging.SeverityWarn, tick, actor, payload, extra)
}

// SequenceGap publishes a warning when lost sequence numbers are skipped.
func SequenceGap(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload GapPayload, extra map[string]any) {
	publish(ctx, pub, EventSequenceGap, logging.SeverityWarn, tick, actor, payload, extra)
}

// ResyncScheduled publishes a warning when a full resync is forced.
func ResyncScheduled(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload ResyncPayload, extra map[string]any) {
	publish(ctx, pub, EventResyncScheduled, logging.SeverityWarn, tick, actor, payload, extra)
}

// StateChanged publishes an info event for a session state transition.
func StateChanged(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload StatePayload, extra map[string]any) {
	publish(ctx, pub, EventStateChanged, logging.SeverityInfo, tick, actor, payload, extra)
}

// SessionOpened publishes an info event when a peer session starts.
func SessionOpened(ctx context.Context, pub logging.Publisher, actor logging.EntityRef, payload SessionPayload, extra map[string]any) {
	publish(ctx, pub, EventSessionOpened, logging.SeverityInfo, 0, actor, payload, extra)
}

// SessionClosed publishes an info event when a peer session ends.
func SessionClosed(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload SessionPayload, extra map[string]any) {
	publish(ctx, pub, EventSessionClosed, logging.SeverityInfo, tick, actor, payload, extra)
}
