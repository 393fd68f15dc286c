package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/kilnpay/internal/payments"
	"github.com/angelmondragon/kilnpay/pkg/logger"
	"github.com/angelmondragon/kilnpay/pkg/outbox"
)

const payloadVersion = 1

var errRecipientMissing = errors.New("notification recipient email missing")

type eventSink interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.Event) (bool, error)
}

// Emitter queues e-mail notifications in the notification_events outbox.
// Delivery is handled by the notifier worker.
type Emitter struct {
	events eventSink
	logg   *logger.Logger
	now    func() time.Time
}

func NewEmitter(events eventSink, logg *logger.Logger) (*Emitter, error) {
	if events == nil {
		return nil, errors.New("event sink required")
	}
	return &Emitter{events: events, logg: logg, now: time.Now}, nil
}

// Notify implements payments.Notifier.
func (e *Emitter) Notify(ctx context.Context, tx *gorm.DB, n payments.Notification) error {
	if n.Record == nil {
		return errors.New("notification record required")
	}
	if n.Record.CustomerEmail == "" {
		return errRecipientMissing
	}
	dedupe := n.DedupeKey
	if dedupe == "" {
		dedupe = fmt.Sprintf("%s:%s", n.Kind, n.Record.ID)
	}
	_, err := e.events.Emit(ctx, tx, outbox.Event{
		Kind:       n.Kind,
		RecordKind: n.Record.Kind,
		RecordID:   n.Record.ID,
		DedupeKey:  dedupe,
		Recipient:  outbox.Recipient{Name: n.Record.CustomerName, Email: n.Record.CustomerEmail},
		Data:       eventDataFor(n),
		Version:    payloadVersion,
		OccurredAt: e.now().UTC(),
	})
	return err
}

// EventData is the version 1 payload of every notification kind.
type EventData struct {
	RecordKind        string            `json:"recordKind"`
	RecordID          string            `json:"recordId"`
	CustomerName      string            `json:"customerName,omitempty"`
	Description       string            `json:"description,omitempty"`
	Amount            string            `json:"amount"`
	Status            string            `json:"status,omitempty"`
	ProviderOrderID   string            `json:"providerOrderId,omitempty"`
	ProviderPaymentID string            `json:"providerPaymentId,omitempty"`
	PaidAt            *time.Time        `json:"paidAt,omitempty"`
	Details           map[string]string `json:"details,omitempty"`
}

func eventDataFor(n payments.Notification) EventData {
	rec := n.Record
	data := EventData{
		RecordKind:   string(rec.Kind),
		RecordID:     rec.ID.String(),
		CustomerName: rec.CustomerName,
		Description:  rec.Description,
		Amount:       rec.Amount.StringFixed(2),
		Status:       rec.Status,
		Details:      n.Details,
	}
	if n.Provider != nil {
		data.ProviderOrderID = n.Provider.OrderID
		data.ProviderPaymentID = n.Provider.PaymentID
		paidAt := n.Provider.PaidAt.UTC()
		data.PaidAt = &paidAt
	}
	return data
}
