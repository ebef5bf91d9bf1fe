// Package geogrid - пространственный индекс фиксированного разрешения: отображает координаты
// в идентификаторы ячеек и строит наборы ячеек для запросов по области. Состояния не имеет.
package geogrid

import (
	"fmt"
	"math"

	"github.com/shenikar/safesteps/internal/apperr"
	"github.com/shenikar/safesteps/internal/models"
)

const (
	// DefaultCellMeters - размер ячейки по умолчанию
	DefaultCellMeters = 150.0

	// DefaultMaxRegionCells - предел числа ячеек в одном запросе области
	DefaultMaxRegionCells = 10000

	metersPerDegree = 111320.0
)

// ErrInvalidCoordinate - координата вне диапазона или NaN
var ErrInvalidCoordinate = &apperr.Error{Kind: apperr.KindInvalidInput, Msg: "invalid coordinate"}

// Grid - равноугольная сетка с шагом cellMeters/111320 градуса по обеим осям
type Grid struct {
	cellMeters     float64
	step           float64
	rows           int32
	cols           int32
	maxRegionCells int
	maxRadius      int // наибольший радиус, квадрат которого помещается в maxRegionCells
}

// New создает сетку с заданным размером ячейки в метрах
func New(cellMeters float64, maxRegionCells int) (*Grid, error) {
	if cellMeters <= 0 || math.IsNaN(cellMeters) || math.IsInf(cellMeters, 0) {
		return nil, fmt.Errorf("geogrid: cell size must be positive, got %v", cellMeters)
	}
	if maxRegionCells <= 0 {
		maxRegionCells = DefaultMaxRegionCells
	}
	step := cellMeters / metersPerDegree
	return &Grid{
		cellMeters:     cellMeters,
		step:           step,
		rows:           int32(math.Ceil(180 / step)),
		cols:           int32(math.Ceil(360 / step)),
		maxRegionCells: maxRegionCells,
		maxRadius:      (isqrt(maxRegionCells) - 1) / 2,
	}, nil
}

// Default возвращает сетку со 150-метровыми ячейками
func Default() *Grid {
	g, _ := New(DefaultCellMeters, DefaultMaxRegionCells)
	return g
}

func (g *Grid) MaxRegionCells() int {
	return g.maxRegionCells
}

func (g *Grid) CellMeters() float64 {
	return g.cellMeters
}

// Validate проверяет координату
func Validate(c models.Coordinate) error {
	lat, lon := c.Latitude, c.Longitude
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return fmt.Errorf("%w: lat=%v lon=%v", ErrInvalidCoordinate, lat, lon)
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return fmt.Errorf("%w: lat=%v lon=%v", ErrInvalidCoordinate, lat, lon)
	}
	if c.Accuracy != nil && (math.IsNaN(*c.Accuracy) || *c.Accuracy < 0) {
		return fmt.Errorf("%w: accuracy=%v", ErrInvalidCoordinate, *c.Accuracy)
	}
	return nil
}

// CellOf возвращает ячейку, содержащую координату
func (g *Grid) CellOf(c models.Coordinate) (models.CellID, error) {
	if err := Validate(c); err != nil {
		return models.CellID{}, err
	}
	lon := c.Longitude
	if lon == 180 {
		lon = -180
	}
	row := int32(math.Floor((c.Latitude + 90) / g.step))
	col := int32(math.Floor((lon + 180) / g.step))
	// северный полюс попадает в последнюю строку
	if row >= g.rows {
		row = g.rows - 1
	}
	if col >= g.cols {
		col = 0
	}
	return models.CellID{Row: row, Col: col}, nil
}

// Center возвращает центр ячейки
func (g *Grid) Center(id models.CellID) models.Coordinate {
	return models.Coordinate{
		Latitude:  math.Min(90, float64(id.Row)*g.step-90+g.step/2),
		Longitude: math.Min(180, float64(id.Col)*g.step-180+g.step/2),
	}
}

// Neighbors возвращает все ячейки в квадрате радиуса radius вокруг id, включая саму ячейку.
// По широте область обрезается у полюсов, по долготе переходит через антимеридиан.
func (g *Grid) Neighbors(id models.CellID, radius int) ([]models.CellID, error) {
	if radius < 0 {
		return nil, apperr.InvalidInput("negative neighbor radius %d", radius)
	}
	if radius > g.maxRadius {
		return nil, apperr.InvalidInput("region of radius %d exceeds %d cells", radius, g.maxRegionCells)
	}
	side := 2*radius + 1

	cells := make([]models.CellID, 0, side*side)
	seen := make(map[models.CellID]struct{}, side*side)
	r := int32(radius)
	for dr := -r; dr <= r; dr++ {
		row := id.Row + dr
		if row < 0 || row >= g.rows {
			continue
		}
		for dc := -r; dc <= r; dc++ {
			cell := models.CellID{Row: row, Col: g.wrapCol(id.Col + dc)}
			if _, ok := seen[cell]; ok {
				continue
			}
			seen[cell] = struct{}{}
			cells = append(cells, cell)
		}
	}
	return cells, nil
}

// Around возвращает ячейки, покрывающие окрестность точки радиусом meters
func (g *Grid) Around(c models.Coordinate, meters float64) ([]models.CellID, error) {
	if meters < 0 || math.IsNaN(meters) || math.IsInf(meters, 0) {
		return nil, apperr.InvalidInput("invalid radius %v", meters)
	}
	center, err := g.CellOf(c)
	if err != nil {
		return nil, err
	}
	radius := math.Ceil(meters / g.cellMeters)
	if radius > float64(g.maxRadius) {
		return nil, apperr.InvalidInput("radius %vm exceeds %d cells", meters, g.maxRegionCells)
	}
	return g.Neighbors(center, int(radius))
}

// Box возвращает ячейки прямоугольной области. Если minLon > maxLon, область пересекает антимеридиан.
func (g *Grid) Box(minLat, minLon, maxLat, maxLon float64) ([]models.CellID, error) {
	sw, err := g.CellOf(models.Coordinate{Latitude: minLat, Longitude: minLon})
	if err != nil {
		return nil, err
	}
	ne, err := g.CellOf(models.Coordinate{Latitude: maxLat, Longitude: maxLon})
	if err != nil {
		return nil, err
	}
	if sw.Row > ne.Row {
		return nil, apperr.InvalidInput("min latitude %v is above max latitude %v", minLat, maxLat)
	}

	width := ne.Col - sw.Col + 1
	if width <= 0 {
		width += g.cols
	}
	height := ne.Row - sw.Row + 1
	if int64(width)*int64(height) > int64(g.maxRegionCells) {
		return nil, apperr.InvalidInput("region of %dx%d cells exceeds %d cells", height, width, g.maxRegionCells)
	}

	cells := make([]models.CellID, 0, int(width)*int(height))
	for row := sw.Row; row <= ne.Row; row++ {
		for i := int32(0); i < width; i++ {
			cells = append(cells, models.CellID{Row: row, Col: g.wrapCol(sw.Col + i)})
		}
	}
	return cells, nil
}

func (g *Grid) wrapCol(col int32) int32 {
	col %= g.cols
	if col < 0 {
		col += g.cols
	}
	return col
}

// isqrt - целая часть квадратного корня из n >= 0
func isqrt(n int) int {
	r := int(math.Sqrt(float64(n)))
	for r > 0 && r > n/r {
		r--
	}
	for r+1 <= n/(r+1) {
		r++
	}
	return r
}
