package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidebook/booking-engine/pkg/logging"
)

// EffectPayload is the outbox payload recorded by the lifecycle engine for
// each side effect.
type EffectPayload struct {
	Event       string `json:"event"`
	State       string `json:"state"`
	ServiceName string `json:"service_name,omitempty"`
	ServiceDate string `json:"service_date,omitempty"`
	StartTime   string `json:"start_time,omitempty"`
	Recipient   string `json:"recipient,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// EffectNotifier delivers recorded side effects. Effects with a recipient go
// out as email; the rest are logged, which keeps delivery observable when no
// address is known.
type EffectNotifier struct {
	sender EmailSender
	logger *logging.Logger
}

// NewEffectNotifier creates a notifier. A nil sender downgrades every effect
// to a log line.
func NewEffectNotifier(sender EmailSender, logger *logging.Logger) *EffectNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &EffectNotifier{sender: sender, logger: logger}
}

// Handle delivers one outbox entry.
func (n *EffectNotifier) Handle(ctx context.Context, entry OutboxEntry) error {
	var payload EffectPayload
	if len(entry.Payload) > 0 {
		if err := json.Unmarshal(entry.Payload, &payload); err != nil {
			return fmt.Errorf("notify: decode payload: %w", err)
		}
	}

	if n.sender == nil || payload.Recipient == "" {
		n.logger.Info("side effect",
			"effect", entry.Effect,
			"booking_id", entry.BookingID,
			"event", payload.Event,
			"state", payload.State,
		)
		return nil
	}

	subject := fmt.Sprintf("%s: booking %s", entry.Effect, entry.BookingID)
	body := fmt.Sprintf("Booking %s is now %s.", entry.BookingID, payload.State)
	if payload.ServiceName != "" {
		body = fmt.Sprintf("Booking %s (%s on %s at %s) is now %s.",
			entry.BookingID, payload.ServiceName, payload.ServiceDate, payload.StartTime, payload.State)
	}
	return n.sender.Send(ctx, EmailMessage{
		To:      payload.Recipient,
		Subject: subject,
		Body:    body,
	})
}

var _ DeliveryHandler = (*EffectNotifier)(nil)
