package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/kilnpay/pkg/db"
	"github.com/angelmondragon/kilnpay/pkg/db/models"
	"github.com/angelmondragon/kilnpay/pkg/enums"
	"github.com/angelmondragon/kilnpay/pkg/logger"
)

const (
	dedupeConstraint = "ux_notification_events_dedupe"
	emitSavepoint    = "notification_event"
)

type Event struct {
	Kind       enums.NotificationKind
	RecordKind enums.PayableKind
	RecordID   uuid.UUID
	DedupeKey  string
	Recipient  Recipient
	Data       any
	Version    int
	OccurredAt time.Time
}

type Service struct {
	repo *Repository
	logg *logger.Logger
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg}
}

// Emit queues event on the caller's transaction inside a savepoint, so a
// failed insert leaves the surrounding transaction usable. An event whose
// dedupe key is already queued is skipped and reported as not queued.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event Event) (bool, error) {
	if tx == nil {
		return false, errors.New("transaction required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if event.DedupeKey == "" {
		return false, errors.New("dedupe key required")
	}
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return false, err
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if event.Version == 0 {
		event.Version = 1
	}
	eventID := uuid.New()
	envelope := PayloadEnvelope{
		Version:    event.Version,
		EventID:    eventID.String(),
		OccurredAt: event.OccurredAt,
		Recipient:  event.Recipient,
		Data:       payload,
	}
	payloadJSON, err := json.Marshal(envelope)
	if err != nil {
		return false, err
	}
	row := &models.NotificationEvent{
		ID:         eventID,
		EventKind:  event.Kind,
		RecordKind: event.RecordKind,
		RecordID:   event.RecordID,
		DedupeKey:  event.DedupeKey,
		Payload:    json.RawMessage(payloadJSON),
	}

	err = dbpkg.WithSavepoint(tx, emitSavepoint, func(tx *gorm.DB) error {
		return s.repo.InsertTx(tx, row)
	})
	if dbpkg.IsUniqueViolation(err, dedupeConstraint) {
		s.logg.Info(s.logg.WithField(ctx, "dedupe_key", event.DedupeKey), "notification already queued")
		return false, nil
	}
	if err != nil {
		return false, err
	}

	fields := map[string]any{
		"event_id":    envelope.EventID,
		"event_kind":  event.Kind,
		"record_kind": event.RecordKind,
		"record_id":   event.RecordID.String(),
	}
	s.logg.Info(s.logg.WithFields(ctx, fields), "notification event queued")
	return true, nil
}
