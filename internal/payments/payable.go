package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/kilnpay/pkg/enums"
	"github.com/angelmondragon/kilnpay/pkg/razorpay"
)

// Payable is the kind-agnostic view of a local record that can be paid for.
type Payable struct {
	Kind             enums.PayableKind
	ID               uuid.UUID
	OwnerID          *uuid.UUID
	Amount           decimal.Decimal
	PaymentStatus    enums.PaymentStatus
	Status           string
	PaymentCompleted bool
	ProviderOrderID  *string
	CustomerName     string
	CustomerEmail    string
	Description      string
}

// Bound reports whether a provider order has been opened for the record.
func (p *Payable) Bound() bool {
	return p.ProviderOrderID != nil && *p.ProviderOrderID != ""
}

// Paid reports whether the record must not be paid again.
func (p *Payable) Paid() bool {
	return p.PaymentStatus == enums.PaymentStatusPaid || p.PaymentCompleted
}

// OwnedBy is false for records with no owner.
func (p *Payable) OwnedBy(userID uuid.UUID) bool {
	return p.OwnerID != nil && *p.OwnerID == userID
}

// ProviderRef is the provider correlation stored on a record once it is paid.
type ProviderRef struct {
	OrderID   string
	PaymentID string
	PaidAt    time.Time
}

// Store loads and mutates one kind of payable record.
type Store interface {
	Kind() enums.PayableKind
	// RecordField is the request field that carries the record id.
	RecordField() string
	UserScoped() bool
	ConfirmationKind() enums.NotificationKind
	Load(ctx context.Context, id uuid.UUID) (*Payable, error)
	// CheckPayable refuses records whose lifecycle state forbids a payment.
	CheckPayable(p *Payable) error
	// BindProviderOrder replaces the record's provider order, provided the
	// record still costs amount and is unpaid.
	BindProviderOrder(ctx context.Context, id uuid.UUID, providerOrderID string, amount decimal.Decimal) error
	// MarkPaid is a compare-and-swap on payment_status and the bound provider
	// order. False means the row is already paid or now bound elsewhere.
	MarkPaid(ctx context.Context, tx *gorm.DB, id uuid.UUID, ref ProviderRef) (bool, error)
}

// Notification is handed to the Notifier after a successful transition.
type Notification struct {
	Kind     enums.NotificationKind
	Record   *Payable
	Provider *ProviderRef
	Details  map[string]string

	// DedupeKey defaults to kind and record id.
	DedupeKey string
}

// Notifier records a notification. It runs inside the payment transaction and
// must not leave the transaction unusable when it fails.
type Notifier interface {
	Notify(ctx context.Context, tx *gorm.DB, n Notification) error
}

// Provider creates orders with the payment gateway.
type Provider interface {
	CreateOrder(ctx context.Context, req razorpay.OrderRequest) (*razorpay.Order, error)
	KeyID() string
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

func indexStores(stores []Store) map[enums.PayableKind]Store {
	out := make(map[enums.PayableKind]Store, len(stores))
	for _, s := range stores {
		if s == nil {
			continue
		}
		out[s.Kind()] = s
	}
	return out
}
