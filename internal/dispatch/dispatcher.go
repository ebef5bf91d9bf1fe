// Package dispatch рассылает SOS-тревоги доверенным контактам.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shenikar/safesteps/internal/apperr"
	"github.com/shenikar/safesteps/internal/metrics"
	"github.com/shenikar/safesteps/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	reasonDeadline    = "dispatch deadline exceeded"
	reasonInterrupted = "dispatch interrupted"
	reasonBadPhone    = "invalid phone number"
)

type Config struct {
	MaxConcurrentSends int
	AttemptTimeout     time.Duration
	RetryDelays        []time.Duration
	DispatchDeadline   time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxConcurrentSends: 5,
		AttemptTimeout:     10 * time.Second,
		RetryDelays:        []time.Duration{time.Second, 3 * time.Second},
		DispatchDeadline:   30 * time.Second,
	}
}

type ContactResolver interface {
	ListTrustedContacts(ctx context.Context, ownerID string) ([]models.TrustedContact, error)
}

type AlertStore interface {
	CreateAlert(ctx context.Context, alert *models.SOSAlert) error
	UpdateDelivery(ctx context.Context, alertID string, index int, rec models.DeliveryRecord) error
	FinalizeAlert(ctx context.Context, alert *models.SOSAlert) error
	ListOpenAlerts(ctx context.Context) ([]*models.SOSAlert, error)
}

// Gateway отправляет одно сообщение. Ошибки с apperr.KindPermanentDependency не повторяются.
type Gateway interface {
	Send(ctx context.Context, msg models.SMSMessage) error
}

// Notifier получает финализированные тревоги
type Notifier interface {
	Publish(ctx context.Context, alert *models.SOSAlert) error
}

type Dispatcher struct {
	cfg      Config
	contacts ContactResolver
	store    AlertStore
	gateway  Gateway
	notifier Notifier
	validate *validator.Validate
	logger   *logrus.Logger
	metrics  *metrics.Metrics
	now      func() time.Time

	wg sync.WaitGroup
}

type Option func(*Dispatcher)

func WithNotifier(n Notifier) Option {
	return func(d *Dispatcher) { d.notifier = n }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

func New(cfg Config, contacts ContactResolver, store AlertStore, gateway Gateway, logger *logrus.Logger, opts ...Option) *Dispatcher {
	def := DefaultConfig()
	if cfg.MaxConcurrentSends <= 0 {
		cfg.MaxConcurrentSends = def.MaxConcurrentSends
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = def.AttemptTimeout
	}
	if cfg.DispatchDeadline <= 0 {
		cfg.DispatchDeadline = def.DispatchDeadline
	}
	d := &Dispatcher{
		cfg:      cfg,
		contacts: contacts,
		store:    store,
		gateway:  gateway,
		validate: validator.New(),
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Trigger создает тревогу и рассылает ее всем доверенным контактам владельца.
// Возвращает итог, когда у каждого контакта есть результат или истек общий срок рассылки.
// Отправки не прерываются при отмене ctx вызывающей стороной.
func (d *Dispatcher) Trigger(ctx context.Context, ownerID string, coord *models.Coordinate, status models.LocationStatus) (*models.DispatchResult, error) {
	log := d.logger.WithFields(logrus.Fields{
		"service": "Dispatcher",
		"method":  "Trigger",
		"owner":   ownerID,
	})

	if ownerID == "" {
		return nil, apperr.InvalidInput("owner id is required")
	}

	contacts, err := d.contacts.ListTrustedContacts(ctx, ownerID)
	if err != nil {
		log.WithError(err).Error("Failed to resolve trusted contacts")
		return nil, fmt.Errorf("dispatch: resolve contacts: %w", err)
	}
	if len(contacts) == 0 {
		log.Warn("SOS triggered without trusted contacts")
		d.metrics.IncDispatchOutcome("no_contacts")
		return nil, apperr.ErrNoContactsConfigured
	}

	now := d.now()
	alert := &models.SOSAlert{
		ID:             uuid.NewString(),
		OwnerID:        ownerID,
		Coordinate:     coord,
		LocationStatus: status,
		CreatedAt:      now,
		Deliveries:     make([]models.DeliveryRecord, len(contacts)),
	}
	for i, c := range contacts {
		alert.Deliveries[i] = models.DeliveryRecord{
			Name:      c.Name,
			Phone:     c.Phone,
			Status:    models.DeliveryPending,
			UpdatedAt: now,
		}
	}

	// запись создается до первой отправки, чтобы тревогу можно было восстановить после сбоя
	if err := d.store.CreateAlert(ctx, alert); err != nil {
		log.WithError(err).Error("Failed to persist alert")
		return nil, fmt.Errorf("dispatch: create alert: %w", err)
	}

	log.WithFields(logrus.Fields{
		"alert_id": alert.ID,
		"contacts": len(contacts),
	}).Info("SOS alert created, dispatching")

	return d.execute(context.WithoutCancel(ctx), newTracker(alert), d.cfg.DispatchDeadline), nil
}

// Recover доводит до конца тревоги, оставшиеся незавершенными после перезапуска
func (d *Dispatcher) Recover(ctx context.Context) error {
	alerts, err := d.store.ListOpenAlerts(ctx)
	if err != nil {
		return fmt.Errorf("dispatch: list open alerts: %w", err)
	}

	for _, alert := range alerts {
		remaining := d.cfg.DispatchDeadline - d.now().Sub(alert.CreatedAt)
		t := newTracker(alert)
		log := d.logger.WithFields(logrus.Fields{
			"service":  "Dispatcher",
			"method":   "Recover",
			"alert_id": alert.ID,
		})

		if remaining <= 0 {
			log.Warn("Open alert past its deadline, finalizing")
			d.finish(context.WithoutCancel(ctx), t, reasonInterrupted)
			continue
		}

		log.WithField("remaining", remaining).Info("Resuming open alert")
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.execute(context.WithoutCancel(ctx), t, remaining)
		}()
	}
	return nil
}

// Wait ждет завершения фоновых отправок (поздних попыток и восстановленных тревог)
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) execute(ctx context.Context, t *tracker, deadline time.Duration) *models.DispatchResult {
	dctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	pending := t.pending()
	done := make(chan struct{})

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer close(done)

		g := new(errgroup.Group)
		g.SetLimit(d.cfg.MaxConcurrentSends)
		for _, i := range pending {
			g.Go(func() error {
				d.deliver(ctx, dctx, t, i)
				return nil
			})
		}
		_ = g.Wait()
	}()

	select {
	case <-done:
	case <-dctx.Done():
	}

	alert := d.finish(ctx, t, reasonDeadline)
	delivered, failed := alert.Counts()
	return &models.DispatchResult{Alert: alert, Delivered: delivered, Failed: failed}
}

func (d *Dispatcher) finish(ctx context.Context, t *tracker, reason string) *models.SOSAlert {
	t.persistMu.Lock()
	alert := t.finalize(d.now(), reason)
	err := d.store.FinalizeAlert(ctx, alert)
	t.persistMu.Unlock()

	log := d.logger.WithFields(logrus.Fields{
		"service":  "Dispatcher",
		"method":   "finish",
		"alert_id": alert.ID,
	})
	if err != nil {
		log.WithError(err).Error("Failed to persist finalized alert")
	}

	delivered, failed := alert.Counts()
	outcome := "partial"
	switch {
	case failed == 0:
		outcome = "delivered"
	case delivered == 0:
		outcome = "failed"
	}
	d.metrics.IncDispatchOutcome(outcome)
	log.WithFields(logrus.Fields{
		"delivered": delivered,
		"failed":    failed,
	}).Info("SOS alert finalized")

	if d.notifier != nil {
		if err := d.notifier.Publish(ctx, alert); err != nil {
			log.WithError(err).Warn("Failed to publish alert outcome")
		}
	}
	return alert
}

// deliver отправляет сообщение одному контакту с повторами по расписанию.
// Каждая попытка ограничена AttemptTimeout и не зависит от общего срока рассылки.
func (d *Dispatcher) deliver(ctx, dctx context.Context, t *tracker, i int) {
	rec := t.contact(i)
	log := d.logger.WithFields(logrus.Fields{
		"service":  "Dispatcher",
		"method":   "deliver",
		"alert_id": t.alert.ID,
		"contact":  rec.Name,
	})

	// очередь до контакта дошла после срока: результат уже зафиксирован как failed
	if dctx.Err() != nil {
		return
	}
	if err := d.validate.Var(rec.Phone, "required,e164"); err != nil {
		log.Warn("Contact phone is not in E.164 format, skipping")
		d.record(ctx, t, i, models.DeliveryFailed, 0, reasonBadPhone)
		return
	}

	msg := models.SMSMessage{
		Reference: fmt.Sprintf("%s-%d", t.alert.ID, i),
		To:        rec.Phone,
		Body:      messageFor(&t.alert, rec.Name),
	}

	attempts := 0
	operation := func() error {
		attempts++
		actx, cancel := context.WithTimeout(ctx, d.cfg.AttemptTimeout)
		defer cancel()

		start := time.Now()
		err := d.gateway.Send(actx, msg)
		switch {
		case err == nil:
			d.metrics.ObserveDelivery("delivered", time.Since(start))
			return nil
		case apperr.IsPermanent(err) || apperr.IsInvalidInput(err):
			d.metrics.ObserveDelivery("permanent", time.Since(start))
			return backoff.Permanent(err)
		default:
			d.metrics.ObserveDelivery("transient", time.Since(start))
			return err
		}
	}
	notify := func(err error, next time.Duration) {
		log.WithError(err).WithFields(logrus.Fields{
			"attempt": attempts,
			"retry":   next,
		}).Warn("SMS send failed, retrying")
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(newSchedule(d.cfg.RetryDelays), dctx), notify)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && dctx.Err() != nil {
			err = errors.New(reasonDeadline)
		}
		log.WithError(err).WithField("attempts", attempts).Error("SMS delivery failed")
		d.record(ctx, t, i, models.DeliveryFailed, attempts, err.Error())
		return
	}
	d.record(ctx, t, i, models.DeliveryDelivered, attempts, "")
}

func (d *Dispatcher) record(ctx context.Context, t *tracker, i int, status models.DeliveryStatus, attempts int, errMsg string) {
	rec, late := t.complete(i, status, attempts, errMsg, d.now())

	t.persistMu.Lock()
	defer t.persistMu.Unlock()
	if err := d.store.UpdateDelivery(ctx, t.alert.ID, i, rec); err != nil {
		d.logger.WithFields(logrus.Fields{
			"service":  "Dispatcher",
			"method":   "record",
			"alert_id": t.alert.ID,
			"late":     late,
		}).WithError(err).Error("Failed to persist delivery outcome")
	}
}

func messageFor(alert *models.SOSAlert, name string) string {
	greeting := "SOS"
	if name != "" {
		greeting = fmt.Sprintf("SOS for %s", name)
	}
	if alert.Coordinate == nil {
		return fmt.Sprintf("%s: someone who listed you as a trusted contact needs help. Location is not available.", greeting)
	}
	return fmt.Sprintf("%s: someone who listed you as a trusted contact needs help. Location: https://maps.google.com/?q=%.6f,%.6f",
		greeting, alert.Coordinate.Latitude, alert.Coordinate.Longitude)
}
