package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/kilnpay/pkg/db/models"
)

// Repository exposes persistence for storefront orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) (*models.Order, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	BindRazorpayOrder(ctx context.Context, id uuid.UUID, razorpayOrderID string, amount decimal.Decimal) (bool, error)
	MarkPaid(ctx context.Context, id uuid.UUID, razorpayOrderID, razorpayPaymentID string, paidAt time.Time) (bool, error)
}
