package models

import (
	"time"
)

type Category string

const (
	CategoryHarassment         Category = "harassment"
	CategoryStalking           Category = "stalking"
	CategoryTheft              Category = "theft"
	CategoryUnsafeArea         Category = "unsafe_area"
	CategoryPoorLighting       Category = "poor_lighting"
	CategorySuspiciousActivity Category = "suspicious_activity"
	CategoryOther              Category = "other"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryHarassment, CategoryStalking, CategoryTheft, CategoryUnsafeArea,
		CategoryPoorLighting, CategorySuspiciousActivity, CategoryOther:
		return true
	}
	return false
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// Weight - вес серьезности в сумме риска ячейки
func (s Severity) Weight() float64 {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 4
	case SeverityCritical:
		return 8
	}
	return 0
}

type Verification string

const (
	VerificationPending  Verification = "pending"
	VerificationVerified Verification = "verified"
	VerificationRejected Verification = "rejected"
)

func (v Verification) Valid() bool {
	switch v {
	case VerificationPending, VerificationVerified, VerificationRejected:
		return true
	}
	return false
}

// Factor - множитель вклада отчета: отклоненные не учитываются, непроверенные идут с половинным весом
func (v Verification) Factor() float64 {
	switch v {
	case VerificationVerified:
		return 1
	case VerificationPending:
		return 0.5
	}
	return 0
}

// IncidentReport - отчет пользователя об инциденте безопасности
type IncidentReport struct {
	ID           string       `json:"id"`
	Category     Category     `json:"category"`
	Description  string       `json:"description"`
	Severity     Severity     `json:"severity"`
	Coordinate   *Coordinate  `json:"coordinate,omitempty"`
	CellID       *CellID      `json:"cell_id,omitempty"`
	ImageRef     string       `json:"image_ref,omitempty"`
	ReporterID   string       `json:"reporter_id,omitempty"`
	Anonymous    bool         `json:"anonymous"`
	Verification Verification `json:"verification"`
	Version      int64        `json:"version"` // увеличивается хранилищем при каждой смене статуса проверки
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// ReportNotice - краткая информация об отчете, вызвавшем пересчет ячейки
type ReportNotice struct {
	ReportID     string       `json:"report_id"`
	Category     Category     `json:"category"`
	Severity     Severity     `json:"severity"`
	Verification Verification `json:"verification"`
	Version      int64        `json:"version"`
	CreatedAt    time.Time    `json:"created_at"`
}

func (r *IncidentReport) Notice() *ReportNotice {
	return &ReportNotice{
		ReportID:     r.ID,
		Category:     r.Category,
		Severity:     r.Severity,
		Verification: r.Verification,
		Version:      r.Version,
		CreatedAt:    r.CreatedAt,
	}
}
