package bookings

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/kilnpay/internal/payments"
	"github.com/angelmondragon/kilnpay/pkg/db"
	"github.com/angelmondragon/kilnpay/pkg/db/models"
	"github.com/angelmondragon/kilnpay/pkg/enums"
	pkgerrors "github.com/angelmondragon/kilnpay/pkg/errors"
)

const paymentIDConstraint = "ux_experience_bookings_razorpay_payment_id"

type Store struct {
	repo Repository
}

func NewStore(repo Repository) *Store {
	return &Store{repo: repo}
}

func (s *Store) Kind() enums.PayableKind { return enums.PayableKindExperienceBooking }

func (s *Store) RecordField() string { return "booking_id" }

func (s *Store) UserScoped() bool { return true }

func (s *Store) ConfirmationKind() enums.NotificationKind {
	return enums.NotificationKindExperienceConfirmed
}

func (s *Store) Load(ctx context.Context, id uuid.UUID) (*payments.Payable, error) {
	booking, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load booking")
	}
	return toPayable(booking), nil
}

// CheckPayable only lets pending bookings be paid.
func (s *Store) CheckPayable(p *payments.Payable) error {
	if status := enums.BookingStatus(p.Status); status != enums.BookingStatusPending {
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("booking is %s", status))
	}
	return nil
}

func (s *Store) BindProviderOrder(ctx context.Context, id uuid.UUID, providerOrderID string, amount decimal.Decimal) error {
	ok, err := s.repo.BindRazorpayOrder(ctx, id, providerOrderID, amount)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "bind razorpay order")
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "booking changed while opening payment")
	}
	return nil
}

func (s *Store) MarkPaid(ctx context.Context, tx *gorm.DB, id uuid.UUID, ref payments.ProviderRef) (bool, error) {
	ok, err := s.repo.WithTx(tx).MarkPaid(ctx, id, ref.OrderID, ref.PaymentID, ref.PaidAt)
	if db.IsUniqueViolation(err, paymentIDConstraint) {
		return false, pkgerrors.New(pkgerrors.CodeConflict, "payment already applied to another booking")
	}
	return ok, err
}

func toPayable(b *models.ExperienceBooking) *payments.Payable {
	owner := b.UserID
	description := b.ExperienceTitle
	if b.SessionAt != nil {
		description = fmt.Sprintf("%s (%s)", b.ExperienceTitle, b.SessionAt.Format("2 Jan 2006, 15:04"))
	}
	return &payments.Payable{
		Kind:            enums.PayableKindExperienceBooking,
		ID:              b.ID,
		OwnerID:         &owner,
		Amount:          b.TotalPrice,
		PaymentStatus:   b.PaymentStatus,
		Status:          string(b.Status),
		ProviderOrderID: b.RazorpayOrderID,
		CustomerName:    b.CustomerName,
		CustomerEmail:   b.CustomerEmail,
		Description:     description,
	}
}
