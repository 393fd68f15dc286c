package bookings

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/kilnpay/pkg/db/models"
	"github.com/angelmondragon/kilnpay/pkg/enums"
)

// Repository exposes persistence for workshop bookings.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, booking *models.ExperienceBooking) (*models.ExperienceBooking, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.ExperienceBooking, error)
	BindRazorpayOrder(ctx context.Context, id uuid.UUID, razorpayOrderID string, price decimal.Decimal) (bool, error)
	MarkPaid(ctx context.Context, id uuid.UUID, razorpayOrderID, razorpayPaymentID string, paidAt time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, booking *models.ExperienceBooking) (*models.ExperienceBooking, error) {
	if err := r.db.WithContext(ctx).Create(booking).Error; err != nil {
		return nil, err
	}
	return booking, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ExperienceBooking, error) {
	var booking models.ExperienceBooking
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&booking).Error; err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *repository) BindRazorpayOrder(ctx context.Context, id uuid.UUID, razorpayOrderID string, price decimal.Decimal) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ExperienceBooking{}).
		Where("id = ? AND payment_status <> ? AND status = ?", id, enums.PaymentStatusPaid, enums.BookingStatusPending).
		Where("total_price = ?", price).
		Updates(map[string]any{
			"razorpay_order_id": razorpayOrderID,
			"payment_status":    enums.PaymentStatusPending,
		})
	return res.RowsAffected == 1, res.Error
}

func (r *repository) MarkPaid(ctx context.Context, id uuid.UUID, razorpayOrderID, razorpayPaymentID string, paidAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ExperienceBooking{}).
		Where("id = ? AND payment_status <> ? AND status = ?", id, enums.PaymentStatusPaid, enums.BookingStatusPending).
		Where("razorpay_order_id = ?", razorpayOrderID).
		Updates(map[string]any{
			"payment_status":      enums.PaymentStatusPaid,
			"status":              enums.BookingStatusConfirmed,
			"razorpay_order_id":   razorpayOrderID,
			"razorpay_payment_id": razorpayPaymentID,
			"paid_at":             paidAt,
		})
	return res.RowsAffected == 1, res.Error
}
