package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/kilnpay/internal/notifications"
	"github.com/angelmondragon/kilnpay/pkg/config"
	"github.com/angelmondragon/kilnpay/pkg/db/models"
	"github.com/angelmondragon/kilnpay/pkg/logger"
	"github.com/angelmondragon/kilnpay/pkg/metrics"
	"github.com/angelmondragon/kilnpay/pkg/sendgrid"
)

const (
	consumerName       = "notifier"
	defaultBatchSize   = 25
	defaultPollMs      = 1000
	defaultSendTimeout = 15 * time.Second
	defaultMaxAttempts = 8
	defaultRetryBase   = 30 * time.Second
	defaultRetryMax    = 30 * time.Minute
	maxBackoff         = 10 * time.Second
	jitterWindow       = 250 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type eventRepository interface {
	FetchPendingForDispatch(tx *gorm.DB, limit, maxAttempts int, now time.Time) ([]models.NotificationEvent, error)
	MarkDispatchedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error, retryAt time.Time) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error) error
}

type emailRenderer interface {
	Render(models.NotificationEvent) (*notifications.Email, error)
}

type mailer interface {
	Send(ctx context.Context, msg sendgrid.Message) error
}

// sendGuard remembers events whose e-mail left the process, so a batch that
// rolls back after sending does not deliver twice.
type sendGuard interface {
	CheckAndMark(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type ServiceParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         dbClient
	Repository eventRepository
	Renderer   emailRenderer
	Mailer     mailer
	Guard      sendGuard
	Metrics    *metrics.NotifierMetrics
}

type Service struct {
	logg         *logger.Logger
	db           dbClient
	repo         eventRepository
	renderer     emailRenderer
	mailer       mailer
	guard        sendGuard
	metrics      *metrics.NotifierMetrics
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
	retryBase    time.Duration
	retryMax     time.Duration
	now          func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Repository == nil {
		return nil, errors.New("notification repository is required")
	}
	if params.Renderer == nil {
		return nil, errors.New("renderer is required")
	}
	if params.Mailer == nil {
		return nil, errors.New("mailer is required")
	}

	batch := params.Config.Notifier.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	pollMs := params.Config.Notifier.PollIntervalMS
	if pollMs <= 0 {
		pollMs = defaultPollMs
	}
	maxAttempts := params.Config.Notifier.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	retryBase := time.Duration(params.Config.Notifier.RetryBaseMS) * time.Millisecond
	if retryBase <= 0 {
		retryBase = defaultRetryBase
	}
	retryMax := time.Duration(params.Config.Notifier.RetryMaxMS) * time.Millisecond
	if retryMax <= 0 {
		retryMax = defaultRetryMax
	}
	if retryMax < retryBase {
		retryMax = retryBase
	}

	return &Service{
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repository,
		renderer:     params.Renderer,
		mailer:       params.Mailer,
		guard:        params.Guard,
		metrics:      params.Metrics,
		batchSize:    batch,
		maxAttempts:  maxAttempts,
		pollInterval: time.Duration(pollMs) * time.Millisecond,
		retryBase:    retryBase,
		retryMax:     retryMax,
		now:          time.Now,
	}, nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := pingDependency(ctx, s.logg, "database", s.db.Ping); err != nil {
		return err
	}

	interval := s.pollInterval
	backoff := interval

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "notifier context canceled")
			return ctx.Err()
		default:
		}

		processed, err := s.processBatch(ctx)
		if err != nil {
			s.logg.Error(ctx, "notifier batch error", err)
			backoff = nextBackoff(backoff, interval, maxBackoff)
			if err := s.sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}

		backoff = interval

		if processed {
			continue
		}

		if err := s.sleep(ctx, withJitter(interval)); err != nil {
			return err
		}
	}
}

func (s *Service) processBatch(ctx context.Context) (bool, error) {
	processed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchPendingForDispatch(tx, s.batchSize, s.maxAttempts, s.now())
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		processed = true
		for _, event := range events {
			if err := s.dispatch(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	return processed, err
}

// dispatch delivers one event and records the outcome on its row. Only errors
// from the row updates are returned.
func (s *Service) dispatch(ctx context.Context, tx *gorm.DB, event models.NotificationEvent) error {
	fields := s.eventFields(event)
	kind := string(event.EventKind)

	email, err := s.renderer.Render(event)
	if err != nil {
		return s.handleTerminal(ctx, tx, event, fmt.Errorf("render: %w", err), fields)
	}

	if s.guard != nil {
		sent, guardErr := s.guard.CheckAndMark(ctx, consumerName, event.ID)
		if guardErr != nil {
			s.logg.Warn(s.logg.WithField(s.logg.WithFields(ctx, fields), "error", guardErr.Error()), "send guard unavailable")
		} else if sent {
			s.logg.Info(s.logg.WithFields(ctx, fields), "notification already sent")
			s.metrics.IncDelivery(kind, "duplicate")
			return s.markDispatched(tx, event.ID)
		}
	}

	start := time.Now()
	sendErr := s.send(ctx, email)
	s.metrics.ObserveSend(kind, time.Since(start))
	if sendErr == nil {
		if err := s.markDispatched(tx, event.ID); err != nil {
			return err
		}
		s.metrics.IncDelivery(kind, "sent")
		s.logg.Info(s.logg.WithFields(ctx, fields), "notification sent")
		return nil
	}

	s.release(ctx, event.ID, fields)
	if sendgrid.IsPermanent(sendErr) {
		fields["terminal_reason"] = "rejected"
		return s.handleTerminal(ctx, tx, event, sendErr, fields)
	}

	nextAttempt := event.AttemptCount + 1
	fields["attempt_count"] = nextAttempt
	if nextAttempt >= s.maxAttempts {
		fields["terminal_reason"] = "max_attempts"
		return s.handleTerminal(ctx, tx, event, fmt.Errorf("max send attempts reached: %w", sendErr), fields)
	}

	retryAt := s.now().Add(s.retryDelay(nextAttempt))
	fields["next_attempt_at"] = retryAt.UTC().Format(time.RFC3339)
	ctxWithFields := s.logg.WithField(s.logg.WithFields(ctx, fields), "error", sendErr.Error())
	s.logg.Warn(ctxWithFields, "notification send failed")
	s.metrics.IncDelivery(kind, "retry")
	if err := s.repo.MarkFailedTx(tx, event.ID, sendErr, retryAt); err != nil {
		return fmt.Errorf("mark failure %s: %w", event.ID, err)
	}
	return nil
}

func (s *Service) send(ctx context.Context, email *notifications.Email) error {
	sendCtx, cancel := context.WithTimeout(ctx, defaultSendTimeout)
	defer cancel()
	return s.mailer.Send(sendCtx, sendgrid.Message{
		ToName:    email.ToName,
		ToEmail:   email.ToEmail,
		Subject:   email.Subject,
		PlainText: email.PlainText,
		HTML:      email.HTML,
	})
}

func (s *Service) markDispatched(tx *gorm.DB, id uuid.UUID) error {
	if err := s.repo.MarkDispatchedTx(tx, id); err != nil {
		return fmt.Errorf("mark dispatched %s: %w", id, err)
	}
	return nil
}

func (s *Service) release(ctx context.Context, id uuid.UUID, fields map[string]any) {
	if s.guard == nil {
		return
	}
	if err := s.guard.Release(ctx, consumerName, id); err != nil {
		s.logg.Warn(s.logg.WithField(s.logg.WithFields(ctx, fields), "error", err.Error()), "send guard release failed")
	}
}

func (s *Service) handleTerminal(ctx context.Context, tx *gorm.DB, event models.NotificationEvent, err error, fields map[string]any) error {
	ctxWithFields := s.logg.WithField(s.logg.WithFields(ctx, fields), "error", err.Error())
	s.logg.Warn(ctxWithFields, "notification will not be retried")
	s.metrics.IncDelivery(string(event.EventKind), "dead")
	if markErr := s.repo.MarkTerminalTx(tx, event.ID, err); markErr != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, markErr)
	}
	return nil
}

func (s *Service) eventFields(event models.NotificationEvent) map[string]any {
	fields := map[string]any{
		"event_id":      event.ID.String(),
		"event_kind":    event.EventKind,
		"record_kind":   event.RecordKind,
		"record_id":     event.RecordID.String(),
		"batch_size":    s.batchSize,
		"attempt_count": event.AttemptCount,
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

// retryDelay is the wait before the given attempt: retryBase doubled for every
// earlier failure, capped at retryMax, plus up to a fifth of that as jitter.
func (s *Service) retryDelay(attempt int) time.Duration {
	delay := s.retryBase
	for i := 1; i < attempt && delay < s.retryMax; i++ {
		delay = nextBackoff(delay, s.retryBase, s.retryMax)
	}
	if spread := int64(delay / 5); spread > 0 {
		delay += time.Duration(jitterSource.Int63n(spread))
	}
	return delay
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	jitter := time.Duration(jitterSource.Int63n(int64(jitterWindow)))
	return d + jitter
}
