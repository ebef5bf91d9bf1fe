package models

// Region задает область поверхности риска. Используется ровно один вариант.
type Region struct {
	Cells  []CellID
	Box    *BoundingBox
	Center *Coordinate
	Radius float64 // метры, только вместе с Center
}

type BoundingBox struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

// RiskLevel - грубая оценка опасности точки для клиента
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskElevated RiskLevel = "elevated"
	RiskHigh     RiskLevel = "high"
)

// LocationRisk - риск в точке и в соседних теплых ячейках
type LocationRisk struct {
	Cell   RiskCell   `json:"cell"`
	Level  RiskLevel  `json:"level"`
	Nearby []RiskCell `json:"nearby"`
}

// SOSRequest - параметры тревоги от клиента
type SOSRequest struct {
	Coordinate     *Coordinate
	IdempotencyKey string
}
