package models

import "time"

type CellState string

const (
	CellCold CellState = "cold"
	CellWarm CellState = "warm"
)

// RiskCell - агрегированный риск одной ячейки сетки
type RiskCell struct {
	CellID      CellID    `json:"cell_id"`
	Score       float64   `json:"score"`
	ReportCount int       `json:"report_count"`
	Version     int64     `json:"version"`
	State       CellState `json:"state"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CellDelta - изменение счета ячейки, рассылаемое подписчикам
type CellDelta struct {
	Epoch       string        `json:"epoch"`
	CellID      CellID        `json:"cell_id"`
	Score       float64       `json:"score"`
	Version     int64         `json:"version"`
	State       CellState     `json:"state"`
	ReportCount int           `json:"report_count"`
	UpdatedAt   time.Time     `json:"updated_at"`
	Report      *ReportNotice `json:"report,omitempty"`
}

func (d CellDelta) Cell() RiskCell {
	return RiskCell{
		CellID:      d.CellID,
		Score:       d.Score,
		ReportCount: d.ReportCount,
		Version:     d.Version,
		State:       d.State,
		UpdatedAt:   d.UpdatedAt,
	}
}
