package notify

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingSender struct {
	sent []EmailMessage
}

func (s *capturingSender) Send(ctx context.Context, msg EmailMessage) error {
	s.sent = append(s.sent, msg)
	return nil
}

func entryWith(t *testing.T, effect string, payload EffectPayload) OutboxEntry {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return OutboxEntry{
		ID:        uuid.New(),
		BookingID: uuid.New(),
		Effect:    effect,
		Payload:   data,
	}
}

func TestEffectNotifierSendsEmail(t *testing.T) {
	sender := &capturingSender{}
	notifier := NewEffectNotifier(sender, nil)

	entry := entryWith(t, "Customer notified", EffectPayload{
		Event:       "PROVIDER_ACCEPT",
		State:       "CONFIRMED",
		ServiceName: "Deep Tissue Massage",
		ServiceDate: "2026-09-07",
		StartTime:   "14:00",
		Recipient:   "customer@example.com",
	})
	require.NoError(t, notifier.Handle(context.Background(), entry))
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "customer@example.com", sender.sent[0].To)
	assert.Contains(t, sender.sent[0].Body, "CONFIRMED")
	assert.Contains(t, sender.sent[0].Body, "Deep Tissue Massage")
}

func TestEffectNotifierNoRecipientLogsOnly(t *testing.T) {
	sender := &capturingSender{}
	notifier := NewEffectNotifier(sender, nil)

	entry := entryWith(t, "Provider payout scheduled", EffectPayload{Event: "MARK_COMPLETE", State: "COMPLETED"})
	require.NoError(t, notifier.Handle(context.Background(), entry))
	assert.Empty(t, sender.sent)
}

func TestEffectNotifierStubSenderDelivers(t *testing.T) {
	notifier := NewEffectNotifier(NewStubEmailSender(nil), nil)

	entry := entryWith(t, "Customer notified", EffectPayload{
		Event:     "TIMEOUT_EXPIRED",
		State:     "EXPIRED",
		Recipient: "customer@example.com",
	})
	assert.NoError(t, notifier.Handle(context.Background(), entry))
}

func TestEffectNotifierNilSender(t *testing.T) {
	notifier := NewEffectNotifier(nil, nil)

	entry := entryWith(t, "Admin notified", EffectPayload{Recipient: "ops@example.com"})
	assert.NoError(t, notifier.Handle(context.Background(), entry))
}

func TestEffectNotifierBadPayload(t *testing.T) {
	notifier := NewEffectNotifier(nil, nil)

	entry := OutboxEntry{ID: uuid.New(), Effect: "Customer notified", Payload: []byte("{not json")}
	assert.Error(t, notifier.Handle(context.Background(), entry))
}
