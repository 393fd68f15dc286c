package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/kilnpay/pkg/logger"
	"github.com/angelmondragon/kilnpay/pkg/metrics"
)

const defaultNotificationRetentionDays = 30

type notificationRetentionRepo interface {
	DeleteSettledBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CountTerminal(ctx context.Context) (int64, error)
}

type NotificationRetentionJobParams struct {
	Logger     *logger.Logger
	Repository notificationRetentionRepo
	Days       int
	Metrics    *metrics.CronJobMetrics
}

// NewNotificationRetentionJob prunes delivered and abandoned notification
// events and reports how many abandoned rows remain.
func NewNotificationRetentionJob(params NotificationRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("notification repository required")
	}
	days := params.Days
	if days <= 0 {
		days = defaultNotificationRetentionDays
	}
	return &notificationRetentionJob{
		logg:    params.Logger,
		repo:    params.Repository,
		days:    days,
		metrics: params.Metrics,
		now:     time.Now,
	}, nil
}

type notificationRetentionJob struct {
	logg    *logger.Logger
	repo    notificationRetentionRepo
	days    int
	metrics *metrics.CronJobMetrics
	now     func() time.Time
}

func (j *notificationRetentionJob) Name() string { return "notification-retention" }

func (j *notificationRetentionJob) Run(ctx context.Context) error {
	return multierr.Combine(j.prune(ctx), j.reportDead(ctx))
}

func (j *notificationRetentionJob) prune(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-time.Duration(j.days) * 24 * time.Hour)
	deleted, err := j.repo.DeleteSettledBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("delete settled notifications: %w", err)
	}
	j.metrics.AddNotificationsPruned(deleted)
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.days,
		"rows_deleted":   deleted,
	}), "notification retention cleanup complete")
	return nil
}

func (j *notificationRetentionJob) reportDead(ctx context.Context) error {
	dead, err := j.repo.CountTerminal(ctx)
	if err != nil {
		return fmt.Errorf("count dead notifications: %w", err)
	}
	j.metrics.SetDeadNotifications(dead)
	if dead > 0 {
		j.logg.Warn(j.logg.WithField(ctx, "dead_notifications", dead), "notifications awaiting manual resend")
	}
	return nil
}
