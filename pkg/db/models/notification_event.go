package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/kilnpay/pkg/enums"
)

// NotificationEvent is an outbox row drained by the notifier worker.
// DispatchedAt and FailedAt are mutually exclusive terminal markers.
// NextAttemptAt holds a failed row back until its retry is due.
type NotificationEvent struct {
	ID            uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	EventKind     enums.NotificationKind `gorm:"column:event_kind;not null"`
	RecordKind    enums.PayableKind      `gorm:"column:record_kind;not null"`
	RecordID      uuid.UUID              `gorm:"column:record_id;type:uuid;not null"`
	DedupeKey     string                 `gorm:"column:dedupe_key;not null"`
	Payload       json.RawMessage        `gorm:"column:payload;type:jsonb;not null"`
	CreatedAt     time.Time              `gorm:"column:created_at;autoCreateTime"`
	DispatchedAt  *time.Time             `gorm:"column:dispatched_at"`
	FailedAt      *time.Time             `gorm:"column:failed_at"`
	AttemptCount  int                    `gorm:"column:attempt_count;not null;default:0"`
	NextAttemptAt *time.Time             `gorm:"column:next_attempt_at"`
	LastError     *string                `gorm:"column:last_error"`
}

func (NotificationEvent) TableName() string { return "notification_events" }
