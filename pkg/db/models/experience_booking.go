package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/kilnpay/pkg/enums"
)

// ExperienceBooking reserves seats in a studio workshop session.
type ExperienceBooking struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID            uuid.UUID           `gorm:"column:user_id;type:uuid;not null"`
	ExperienceTitle   string              `gorm:"column:experience_title;not null"`
	SessionAt         *time.Time          `gorm:"column:session_at"`
	Participants      int                 `gorm:"column:participants;not null;default:1"`
	TotalPrice        decimal.Decimal     `gorm:"column:total_price;type:numeric(12,2);not null"`
	Status            enums.BookingStatus `gorm:"column:status;not null;default:'pending'"`
	PaymentStatus     enums.PaymentStatus `gorm:"column:payment_status;not null;default:'unpaid'"`
	CustomerName      string              `gorm:"column:customer_name;not null"`
	CustomerEmail     string              `gorm:"column:customer_email;not null"`
	RazorpayOrderID   *string             `gorm:"column:razorpay_order_id"`
	RazorpayPaymentID *string             `gorm:"column:razorpay_payment_id"`
	PaidAt            *time.Time          `gorm:"column:paid_at"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (ExperienceBooking) TableName() string { return "experience_bookings" }
