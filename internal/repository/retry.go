package repository

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/shenikar/safesteps/internal/apperr"
	"github.com/shenikar/safesteps/internal/metrics"
	"github.com/shenikar/safesteps/internal/models"
	"github.com/sirupsen/logrus"
)

type RetryConfig struct {
	Attempts  int
	BaseDelay time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{Attempts: 3, BaseDelay: 200 * time.Millisecond}
}

// Retrying повторяет временные ошибки хранилища с экспоненциальной паузой.
// После исчерпания попыток возвращается apperr.ErrStoreUnavailable с последней причиной.
type Retrying struct {
	next    Store
	cfg     RetryConfig
	logger  *logrus.Logger
	metrics *metrics.Metrics
}

var _ Store = (*Retrying)(nil)

func NewRetrying(next Store, cfg RetryConfig, logger *logrus.Logger, m *metrics.Metrics) *Retrying {
	if cfg.Attempts <= 0 {
		cfg.Attempts = DefaultRetryConfig().Attempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultRetryConfig().BaseDelay
	}
	return &Retrying{next: next, cfg: cfg, logger: logger, metrics: m}
}

func (r *Retrying) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.cfg.Attempts-1)), ctx)
}

func (r *Retrying) do(ctx context.Context, op string, fn func() error) error {
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		err := fn()
		if err == nil || apperr.IsTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}, r.policy(ctx), func(err error, next time.Duration) {
		r.metrics.IncStoreRetry(op)
		r.logger.WithFields(logrus.Fields{
			"component": "store",
			"op":        op,
			"attempt":   attempt,
			"retry_in":  next,
		}).WithError(err).Warn("Transient store failure, retrying")
	})
	if err == nil || !apperr.IsTransient(err) && ctx.Err() == nil {
		return err
	}

	r.logger.WithFields(logrus.Fields{
		"component": "store",
		"op":        op,
		"attempts":  attempt,
	}).WithError(err).Error("Store unavailable after retries")
	return apperr.StoreUnavailable(op, err)
}

func (r *Retrying) AppendReport(ctx context.Context, report *models.IncidentReport) error {
	return r.do(ctx, "reports.append", func() error {
		return r.next.AppendReport(ctx, report)
	})
}

func (r *Retrying) GetReport(ctx context.Context, id string) (*models.IncidentReport, error) {
	var out *models.IncidentReport
	err := r.do(ctx, "reports.get", func() (err error) {
		out, err = r.next.GetReport(ctx, id)
		return err
	})
	return out, err
}

func (r *Retrying) QueryByCell(ctx context.Context, cell models.CellID, since time.Time) ([]*models.IncidentReport, error) {
	var out []*models.IncidentReport
	err := r.do(ctx, "reports.query_by_cell", func() (err error) {
		out, err = r.next.QueryByCell(ctx, cell, since)
		return err
	})
	return out, err
}

func (r *Retrying) QuerySince(ctx context.Context, since time.Time) ([]*models.IncidentReport, error) {
	var out []*models.IncidentReport
	err := r.do(ctx, "reports.query_since", func() (err error) {
		out, err = r.next.QuerySince(ctx, since)
		return err
	})
	return out, err
}

func (r *Retrying) SetVerification(ctx context.Context, id string, v models.Verification) (*models.IncidentReport, error) {
	var out *models.IncidentReport
	err := r.do(ctx, "reports.set_verification", func() (err error) {
		out, err = r.next.SetVerification(ctx, id, v)
		return err
	})
	return out, err
}

// WatchReports не повторяется здесь: переподключение ленты делает ее потребитель
func (r *Retrying) WatchReports(ctx context.Context, since time.Time, fn func(*models.IncidentReport)) error {
	return r.next.WatchReports(ctx, since, fn)
}

func (r *Retrying) CreateAlert(ctx context.Context, alert *models.SOSAlert) error {
	return r.do(ctx, "alerts.create", func() error {
		return r.next.CreateAlert(ctx, alert)
	})
}

func (r *Retrying) GetAlert(ctx context.Context, id string) (*models.SOSAlert, error) {
	var out *models.SOSAlert
	err := r.do(ctx, "alerts.get", func() (err error) {
		out, err = r.next.GetAlert(ctx, id)
		return err
	})
	return out, err
}

func (r *Retrying) UpdateDelivery(ctx context.Context, alertID string, index int, rec models.DeliveryRecord) error {
	return r.do(ctx, "alerts.update_delivery", func() error {
		return r.next.UpdateDelivery(ctx, alertID, index, rec)
	})
}

func (r *Retrying) FinalizeAlert(ctx context.Context, alert *models.SOSAlert) error {
	return r.do(ctx, "alerts.finalize", func() error {
		return r.next.FinalizeAlert(ctx, alert)
	})
}

func (r *Retrying) ListOpenAlerts(ctx context.Context) ([]*models.SOSAlert, error) {
	var out []*models.SOSAlert
	err := r.do(ctx, "alerts.list_open", func() (err error) {
		out, err = r.next.ListOpenAlerts(ctx)
		return err
	})
	return out, err
}

func (r *Retrying) ListTrustedContacts(ctx context.Context, ownerID string) ([]models.TrustedContact, error) {
	var out []models.TrustedContact
	err := r.do(ctx, "contacts.list", func() (err error) {
		out, err = r.next.ListTrustedContacts(ctx, ownerID)
		return err
	})
	return out, err
}

func (r *Retrying) ReplaceTrustedContacts(ctx context.Context, ownerID string, contacts []models.TrustedContact) error {
	return r.do(ctx, "contacts.replace", func() error {
		return r.next.ReplaceTrustedContacts(ctx, ownerID, contacts)
	})
}
