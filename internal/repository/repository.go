// Package repository - адаптеры хранилища отчетов, тревог и доверенных контактов.
package repository

import (
	"context"
	"time"

	"github.com/shenikar/safesteps/internal/models"
)

// Store - полный набор операций хранилища; реализуется Postgres, Firestore и памятью
type Store interface {
	AppendReport(ctx context.Context, report *models.IncidentReport) error
	GetReport(ctx context.Context, id string) (*models.IncidentReport, error)
	QueryByCell(ctx context.Context, cell models.CellID, since time.Time) ([]*models.IncidentReport, error)
	QuerySince(ctx context.Context, since time.Time) ([]*models.IncidentReport, error)
	SetVerification(ctx context.Context, id string, v models.Verification) (*models.IncidentReport, error)
	// WatchReports передает в fn отчеты, измененные не раньше since, затем живые изменения до отмены ctx
	WatchReports(ctx context.Context, since time.Time, fn func(*models.IncidentReport)) error

	CreateAlert(ctx context.Context, alert *models.SOSAlert) error
	GetAlert(ctx context.Context, id string) (*models.SOSAlert, error)
	UpdateDelivery(ctx context.Context, alertID string, index int, rec models.DeliveryRecord) error
	FinalizeAlert(ctx context.Context, alert *models.SOSAlert) error
	ListOpenAlerts(ctx context.Context) ([]*models.SOSAlert, error)

	ListTrustedContacts(ctx context.Context, ownerID string) ([]models.TrustedContact, error)
	ReplaceTrustedContacts(ctx context.Context, ownerID string, contacts []models.TrustedContact) error
}

func cloneReport(r *models.IncidentReport) *models.IncidentReport {
	out := *r
	if r.Coordinate != nil {
		c := *r.Coordinate
		out.Coordinate = &c
	}
	if r.CellID != nil {
		id := *r.CellID
		out.CellID = &id
	}
	return &out
}

func cloneAlert(a *models.SOSAlert) *models.SOSAlert {
	out := *a
	out.Deliveries = append([]models.DeliveryRecord(nil), a.Deliveries...)
	if a.Coordinate != nil {
		c := *a.Coordinate
		out.Coordinate = &c
	}
	if a.FinalizedAt != nil {
		f := *a.FinalizedAt
		out.FinalizedAt = &f
	}
	return &out
}
