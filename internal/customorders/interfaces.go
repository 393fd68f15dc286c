package customorders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/kilnpay/pkg/db/models"
	"github.com/angelmondragon/kilnpay/pkg/enums"
)

// Repository exposes persistence for commissioned pieces.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.CustomOrder) (*models.CustomOrder, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.CustomOrder, error)
	SetEstimate(ctx context.Context, id uuid.UUID, price decimal.Decimal) (bool, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.CustomOrderStatus) (bool, error)
	BindRazorpayOrder(ctx context.Context, id uuid.UUID, razorpayOrderID string, price decimal.Decimal) (bool, error)
	MarkPaid(ctx context.Context, id uuid.UUID, razorpayOrderID, razorpayPaymentID string, paidAt time.Time) (bool, error)
}
