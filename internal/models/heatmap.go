package models

// HeatmapIntensity - яркость точки отчета на тепловой карте клиента
func (s Severity) HeatmapIntensity() float64 {
	switch s {
	case SeverityHigh, SeverityCritical:
		return 1.0
	case SeverityMedium:
		return 0.7
	}
	return 0.4
}
