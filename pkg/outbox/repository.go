package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/kilnpay/pkg/db/models"
)

const maxErrorLength = 1024

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) InsertTx(tx *gorm.DB, event *models.NotificationEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Create(event).Error
}

// FetchPendingForDispatch locks a batch of undelivered rows that are due at
// now. Rows locked by another notifier instance are skipped.
func (r *Repository) FetchPendingForDispatch(tx *gorm.DB, limit, maxAttempts int, now time.Time) ([]models.NotificationEvent, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	var rows []models.NotificationEvent
	query := tx.Where("dispatched_at IS NULL AND failed_at IS NULL").
		Where("next_attempt_at IS NULL OR next_attempt_at <= ?", now.UTC())
	if maxAttempts > 0 {
		query = query.Where("attempt_count < ?", maxAttempts)
	}
	if tx.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: clause.LockingStrengthUpdate, Options: clause.LockingOptionsSkipLocked})
	}
	err := query.
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *Repository) MarkDispatchedTx(tx *gorm.DB, id uuid.UUID) error {
	return tx.Model(&models.NotificationEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"dispatched_at": time.Now().UTC(),
			"attempt_count": gorm.Expr("attempt_count + 1"),
			"last_error":    nil,
		}).Error
}

// MarkFailedTx records a failed send and keeps the row out of dispatch until
// retryAt.
func (r *Repository) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error, retryAt time.Time) error {
	return tx.Model(&models.NotificationEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":      truncateError(err),
			"attempt_count":   gorm.Expr("attempt_count + 1"),
			"next_attempt_at": retryAt.UTC(),
		}).Error
}

// MarkTerminalTx stops retrying the row.
func (r *Repository) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error) error {
	return tx.Model(&models.NotificationEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":    truncateError(err),
			"attempt_count": gorm.Expr("attempt_count + 1"),
			"failed_at":     time.Now().UTC(),
		}).Error
}

// DeleteSettledBefore removes delivered or abandoned rows older than cutoff.
func (r *Repository) DeleteSettledBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("(dispatched_at IS NOT NULL AND dispatched_at < ?) OR (failed_at IS NOT NULL AND failed_at < ?)", cutoff, cutoff).
		Delete(&models.NotificationEvent{})
	return res.RowsAffected, res.Error
}

// CountTerminal counts rows the notifier gave up on.
func (r *Repository) CountTerminal(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.NotificationEvent{}).
		Where("failed_at IS NOT NULL").
		Count(&count).Error
	return count, err
}

func truncateError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > maxErrorLength {
		msg = msg[:maxErrorLength]
	}
	return msg
}
