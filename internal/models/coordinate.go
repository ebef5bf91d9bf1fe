package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Coordinate - географическая точка в градусах WGS84
type Coordinate struct {
	Latitude  float64  `json:"latitude" firestore:"latitude"`
	Longitude float64  `json:"longitude" firestore:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty" firestore:"accuracy,omitempty"` // точность в метрах, если известна
}

// CellID - идентификатор ячейки геосетки (квантованные широта и долгота)
type CellID struct {
	Row int32
	Col int32
}

func (c CellID) String() string {
	return fmt.Sprintf("%d:%d", c.Row, c.Col)
}

// MarshalText позволяет использовать CellID как ключ JSON-объекта
func (c CellID) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *CellID) UnmarshalText(text []byte) error {
	id, err := ParseCellID(string(text))
	if err != nil {
		return err
	}
	*c = id
	return nil
}

// ParseCellID разбирает строку вида "<row>:<col>"
func ParseCellID(s string) (CellID, error) {
	rowStr, colStr, ok := strings.Cut(s, ":")
	if !ok {
		return CellID{}, fmt.Errorf("invalid cell id %q", s)
	}
	row, err := strconv.ParseInt(rowStr, 10, 32)
	if err != nil {
		return CellID{}, fmt.Errorf("invalid cell row in %q: %w", s, err)
	}
	col, err := strconv.ParseInt(colStr, 10, 32)
	if err != nil {
		return CellID{}, fmt.Errorf("invalid cell column in %q: %w", s, err)
	}
	return CellID{Row: int32(row), Col: int32(col)}, nil
}
