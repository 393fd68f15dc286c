package customorders

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/kilnpay/internal/payments"
	"github.com/angelmondragon/kilnpay/pkg/db"
	"github.com/angelmondragon/kilnpay/pkg/db/models"
	"github.com/angelmondragon/kilnpay/pkg/enums"
	pkgerrors "github.com/angelmondragon/kilnpay/pkg/errors"
)

const paymentIDConstraint = "ux_custom_orders_razorpay_payment_id"

// Store adapts custom orders to the payment pipeline. Knowing the id is the
// only credential, so nothing is user scoped and the price always comes from
// the studio's estimate.
type Store struct {
	repo Repository
}

func NewStore(repo Repository) *Store {
	return &Store{repo: repo}
}

func (s *Store) Kind() enums.PayableKind { return enums.PayableKindCustomOrder }

func (s *Store) RecordField() string { return "customOrderId" }

func (s *Store) UserScoped() bool { return false }

func (s *Store) ConfirmationKind() enums.NotificationKind {
	return enums.NotificationKindCustomPaymentConfirmed
}

func (s *Store) Load(ctx context.Context, id uuid.UUID) (*payments.Payable, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLookupError(err)
	}
	return toPayable(order), nil
}

func (s *Store) CheckPayable(p *payments.Payable) error {
	status := enums.CustomOrderStatus(p.Status)
	switch {
	case status == enums.CustomOrderStatusRequested:
		return pkgerrors.New(pkgerrors.CodeStateConflict, "custom order has not been priced yet")
	case status != enums.CustomOrderStatusPaymentPending:
		return pkgerrors.New(pkgerrors.CodeStateConflict, "custom order is not awaiting payment")
	case !p.Amount.IsPositive():
		return pkgerrors.New(pkgerrors.CodeValidation, "custom order has no valid price estimate")
	}
	return nil
}

func (s *Store) BindProviderOrder(ctx context.Context, id uuid.UUID, providerOrderID string, amount decimal.Decimal) error {
	ok, err := s.repo.BindRazorpayOrder(ctx, id, providerOrderID, amount)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "bind razorpay order")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "custom order changed while opening payment")
	}
	return nil
}

func (s *Store) MarkPaid(ctx context.Context, tx *gorm.DB, id uuid.UUID, ref payments.ProviderRef) (bool, error) {
	ok, err := s.repo.WithTx(tx).MarkPaid(ctx, id, ref.OrderID, ref.PaymentID, ref.PaidAt)
	if db.IsUniqueViolation(err, paymentIDConstraint) {
		return false, pkgerrors.New(pkgerrors.CodeConflict, "payment already applied to another custom order")
	}
	return ok, err
}

func mapLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "custom order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load custom order")
}

func toPayable(order *models.CustomOrder) *payments.Payable {
	p := &payments.Payable{
		Kind:             enums.PayableKindCustomOrder,
		ID:               order.ID,
		OwnerID:          order.UserID,
		PaymentStatus:    order.PaymentStatus,
		Status:           string(order.Status),
		PaymentCompleted: order.Status.PaymentCompleted(),
		ProviderOrderID:  order.RazorpayOrderID,
		CustomerName:     order.CustomerName,
		CustomerEmail:    order.CustomerEmail,
		Description:      order.Description,
	}
	if order.EstimatedPrice.Valid {
		p.Amount = order.EstimatedPrice.Decimal
	}
	return p
}
