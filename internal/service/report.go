package service

//go:generate mockgen -source=report.go -destination=mocks/report_mocks.go -package=mocks

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/shenikar/safesteps/internal/apperr"
	"github.com/shenikar/safesteps/internal/geogrid"
	"github.com/shenikar/safesteps/internal/metrics"
	"github.com/shenikar/safesteps/internal/models"
	"github.com/sirupsen/logrus"
)

const maxDescriptionLen = 2000

// feedOverlap - запас при возобновлении ленты: покрывает расхождение часов узлов и коммиты,
// завершившиеся позже изменений с большим updated_at
const feedOverlap = 5 * time.Second

// ReportRepository определяет контракт хранилища отчетов
type ReportRepository interface {
	AppendReport(ctx context.Context, report *models.IncidentReport) error
	GetReport(ctx context.Context, id string) (*models.IncidentReport, error)
	QueryByCell(ctx context.Context, cell models.CellID, since time.Time) ([]*models.IncidentReport, error)
	QuerySince(ctx context.Context, since time.Time) ([]*models.IncidentReport, error)
	SetVerification(ctx context.Context, id string, v models.Verification) (*models.IncidentReport, error)
	WatchReports(ctx context.Context, since time.Time, fn func(*models.IncidentReport)) error
}

// RiskAggregator определяет контракт агрегатора риска по ячейкам
type RiskAggregator interface {
	OnReportChanged(report *models.IncidentReport) (models.CellDelta, bool, error)
	Surface(ids []models.CellID) map[models.CellID]models.RiskCell
	CellAt(coord models.Coordinate) (models.RiskCell, error)
	Epoch() string
}

// ReportService определяет бизнес-логику приема и модерации отчетов
type ReportService interface {
	SubmitReport(ctx context.Context, report *models.IncidentReport) error
	GetReport(ctx context.Context, id string) (*models.IncidentReport, error)
	ListCellReports(ctx context.Context, cell models.CellID, since time.Time) ([]*models.IncidentReport, error)
	SetVerification(ctx context.Context, id string, v models.Verification) (*models.IncidentReport, error)
	Warmup(ctx context.Context, window time.Duration) (int, error)
	RunChangeFeed(ctx context.Context)
}

type reportService struct {
	repo       ReportRepository
	aggregator RiskAggregator
	grid       *geogrid.Grid
	logger     *logrus.Logger
	metrics    *metrics.Metrics
	now        func() time.Time
	feedRetry  time.Duration

	mu       sync.Mutex
	feedFrom time.Time // момент, с которого ленте нужно догнать изменения после прогрева
}

func NewReportService(repo ReportRepository, aggregator RiskAggregator, grid *geogrid.Grid, logger *logrus.Logger, m *metrics.Metrics) ReportService {
	return &reportService{
		repo:       repo,
		aggregator: aggregator,
		grid:       grid,
		logger:     logger,
		metrics:    m,
		now:        time.Now,
		feedRetry:  time.Second,
	}
}

// SubmitReport проверяет и сохраняет отчет, затем пересчитывает риск его ячейки
func (s *reportService) SubmitReport(ctx context.Context, report *models.IncidentReport) error {
	log := s.logger.WithFields(logrus.Fields{
		"service":  "report",
		"method":   "SubmitReport",
		"category": report.Category,
		"severity": report.Severity,
	})

	if err := s.prepare(report); err != nil {
		log.WithError(err).Warn("Rejected invalid report")
		return err
	}

	if err := s.repo.AppendReport(ctx, report); err != nil {
		log.WithError(err).Error("Failed to append report")
		return fmt.Errorf("service: could not submit report: %w", err)
	}
	s.metrics.IncReport(string(report.Category), string(report.Severity))

	// отчет уже сохранен; сбой пересчета догонит лента изменений
	if _, _, err := s.aggregator.OnReportChanged(report); err != nil {
		log.WithError(err).Error("Failed to apply report to risk surface")
	}

	log.WithField("report_id", report.ID).Info("Report submitted successfully")
	return nil
}

func (s *reportService) prepare(r *models.IncidentReport) error {
	r.Description = strings.TrimSpace(r.Description)
	if !r.Category.Valid() {
		return apperr.InvalidInput("unknown category %q", r.Category)
	}
	if r.Description == "" {
		return apperr.InvalidInput("description is required")
	}
	if len(r.Description) > maxDescriptionLen {
		return apperr.InvalidInput("description is longer than %d characters", maxDescriptionLen)
	}
	if !r.Severity.Valid() {
		return apperr.InvalidInput("unknown severity %q", r.Severity)
	}

	r.CellID = nil
	if r.Coordinate != nil {
		id, err := s.grid.CellOf(*r.Coordinate)
		if err != nil {
			return err
		}
		r.CellID = &id
	}
	if r.Anonymous {
		r.ReporterID = ""
	}

	now := s.now().UTC()
	r.ID = uuid.NewString()
	r.Verification = models.VerificationPending
	r.Version = 1
	r.CreatedAt = now
	r.UpdatedAt = now
	return nil
}

// GetReport получает отчет по ID
func (s *reportService) GetReport(ctx context.Context, id string) (*models.IncidentReport, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":   "report",
		"method":    "GetReport",
		"report_id": id,
	})

	report, err := s.repo.GetReport(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Failed to get report")
		return nil, fmt.Errorf("service: could not get report: %w", err)
	}
	return report, nil
}

// ListCellReports возвращает отчеты ячейки, созданные не раньше since
func (s *reportService) ListCellReports(ctx context.Context, cell models.CellID, since time.Time) ([]*models.IncidentReport, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "report",
		"method":  "ListCellReports",
		"cell":    cell.String(),
	})

	reports, err := s.repo.QueryByCell(ctx, cell, since)
	if err != nil {
		log.WithError(err).Error("Failed to query reports by cell")
		return nil, fmt.Errorf("service: could not list cell reports: %w", err)
	}
	log.WithField("count", len(reports)).Debug("Cell reports listed")
	return reports, nil
}

// SetVerification применяет решение модератора и пересчитывает ячейку
func (s *reportService) SetVerification(ctx context.Context, id string, v models.Verification) (*models.IncidentReport, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":      "report",
		"method":       "SetVerification",
		"report_id":    id,
		"verification": v,
	})

	if !v.Valid() {
		return nil, apperr.InvalidInput("unknown verification status %q", v)
	}

	report, err := s.repo.SetVerification(ctx, id, v)
	if err != nil {
		log.WithError(err).Warn("Failed to set verification")
		return nil, fmt.Errorf("service: could not set verification: %w", err)
	}
	if _, _, err := s.aggregator.OnReportChanged(report); err != nil {
		log.WithError(err).Error("Failed to apply verification to risk surface")
	}

	log.WithField("version", report.Version).Info("Report verification updated")
	return report, nil
}

// Warmup восстанавливает поверхность риска из отчетов за окно window
func (s *reportService) Warmup(ctx context.Context, window time.Duration) (int, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "report",
		"method":  "Warmup",
		"window":  window,
	})

	started := s.now()
	reports, err := s.repo.QuerySince(ctx, started.Add(-window))
	if err != nil {
		log.WithError(err).Error("Failed to load reports for warmup")
		return 0, fmt.Errorf("service: could not warm up risk surface: %w", err)
	}

	applied := 0
	for _, r := range reports {
		if _, ok, err := s.aggregator.OnReportChanged(r); err != nil {
			log.WithError(err).WithField("report_id", r.ID).Warn("Skipping report during warmup")
		} else if ok {
			applied++
		}
	}
	s.mu.Lock()
	s.feedFrom = started
	s.mu.Unlock()

	log.WithField("applied", applied).Info("Risk surface warmed up")
	return applied, nil
}

// RunChangeFeed передает изменения отчетов из хранилища в агрегатор до отмены ctx.
// Каждое переподключение догоняет изменения с последнего увиденного updated_at (минус feedOverlap).
// Доставка по ленте at-least-once, повторы отсекает агрегатор по (reportID, version).
func (s *reportService) RunChangeFeed(ctx context.Context) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "report",
		"method":  "RunChangeFeed",
	})

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.feedRetry
	b.MaxInterval = time.Minute
	b.MaxElapsedTime = 0

	s.mu.Lock()
	cursor := s.feedFrom
	s.mu.Unlock()
	if cursor.IsZero() {
		cursor = s.now()
	}

	for {
		err := s.repo.WatchReports(ctx, cursor.Add(-feedOverlap), func(r *models.IncidentReport) {
			b.Reset()
			if r.UpdatedAt.After(cursor) {
				cursor = r.UpdatedAt
			}
			if _, _, err := s.aggregator.OnReportChanged(r); err != nil {
				log.WithError(err).WithField("report_id", r.ID).Warn("Failed to apply report change")
			}
		})
		if ctx.Err() != nil {
			log.Info("Report change feed stopped")
			return
		}

		wait := b.NextBackOff()
		log.WithError(err).WithFields(logrus.Fields{
			"retry_in": wait,
			"resume":   cursor,
		}).Warn("Report change feed interrupted, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}
