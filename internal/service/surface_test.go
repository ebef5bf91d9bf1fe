package service

import (
	"bytes"
	"context"
	"testing"

	"github.com/shenikar/safesteps/internal/apperr"
	"github.com/shenikar/safesteps/internal/fanout"
	"github.com/shenikar/safesteps/internal/geogrid"
	"github.com/shenikar/safesteps/internal/models"
	"github.com/shenikar/safesteps/internal/service/mocks"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// newTestSurfaceService создает сервис поверхности риска с моками агрегатора и хаба
func newTestSurfaceService(t *testing.T) (*surfaceService, *mocks.MockRiskAggregator, *mocks.MockSubscriptionHub) {
	ctrl := gomock.NewController(t)
	aggMock := mocks.NewMockRiskAggregator(ctrl)
	hubMock := mocks.NewMockSubscriptionHub(ctrl)

	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{}) // Отключаем вывод логов в тестах

	grid, err := geogrid.New(geogrid.DefaultCellMeters, 100)
	require.NoError(t, err)

	service := NewSurfaceService(aggMock, hubMock, grid, logger)
	return service.(*surfaceService), aggMock, hubMock
}

func TestSurface_ByCellsReturnsKnownCellsInRequestOrder(t *testing.T) {
	// Подготовка
	service, aggMock, _ := newTestSurfaceService(t)
	ctx := context.Background()
	a := models.CellID{Row: 1, Col: 1}
	b := models.CellID{Row: 1, Col: 2}
	c := models.CellID{Row: 1, Col: 3}
	known := map[models.CellID]models.RiskCell{
		c: {CellID: c, Score: 2, Version: 3, State: models.CellWarm},
		a: {CellID: a, Score: 1, Version: 1, State: models.CellWarm},
	}

	// Ожидания
	aggMock.EXPECT().Surface([]models.CellID{a, b, c}).Return(known).Times(1)
	aggMock.EXPECT().Epoch().Return("epoch-1").Times(1)

	// Действие
	cells, epoch, err := service.Surface(ctx, models.Region{Cells: []models.CellID{a, b, c}})

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, "epoch-1", epoch)
	require.Len(t, cells, 2)
	assert.Equal(t, a, cells[0].CellID)
	assert.Equal(t, c, cells[1].CellID)
}

func TestSurface_ByCenterAndRadius(t *testing.T) {
	// Подготовка
	service, aggMock, _ := newTestSurfaceService(t)
	center := models.Coordinate{Latitude: 55.75, Longitude: 37.61}
	expectedIDs, err := service.grid.Around(center, 300)
	require.NoError(t, err)

	// Ожидания
	aggMock.EXPECT().Surface(expectedIDs).Return(map[models.CellID]models.RiskCell{}).Times(1)
	aggMock.EXPECT().Epoch().Return("epoch-1").Times(1)

	// Действие
	cells, _, err := service.Surface(context.Background(), models.Region{Center: &center, Radius: 300})

	// Проверки
	require.NoError(t, err)
	assert.Empty(t, cells)
}

func TestSurface_InvalidRegion(t *testing.T) {
	center := models.Coordinate{Latitude: 55.75, Longitude: 37.61}
	tests := []struct {
		name   string
		region models.Region
	}{
		{name: "empty", region: models.Region{}},
		{
			name: "two variants",
			region: models.Region{
				Cells:  []models.CellID{{Row: 1, Col: 1}},
				Center: &center,
				Radius: 100,
			},
		},
		{name: "zero radius", region: models.Region{Center: &center}},
		{
			name:   "box too large",
			region: models.Region{Box: &models.BoundingBox{MinLat: 55, MinLon: 37, MaxLat: 56, MaxLon: 38}},
		},
		{
			name:   "too many cells",
			region: models.Region{Cells: make([]models.CellID, 101)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Подготовка
			service, _, _ := newTestSurfaceService(t)

			// Действие
			_, _, err := service.Surface(context.Background(), tt.region)

			// Проверки
			require.Error(t, err)
			assert.True(t, apperr.IsInvalidInput(err))
		})
	}
}

func TestCheckLocation_High(t *testing.T) {
	// Подготовка
	service, aggMock, _ := newTestSurfaceService(t)
	ctx := context.Background()
	coord := models.Coordinate{Latitude: 55.75, Longitude: 37.61}
	id, err := service.grid.CellOf(coord)
	require.NoError(t, err)
	neighbor := models.CellID{Row: id.Row + 1, Col: id.Col}
	here := models.RiskCell{CellID: id, Score: 5, Version: 2, State: models.CellWarm}

	// Ожидания
	// 1. Риск в самой ячейке
	aggMock.EXPECT().CellAt(coord).Return(here, nil).Times(1)

	// 2. Соседние ячейки: одна теплая, одна холодная
	aggMock.EXPECT().
		Surface(gomock.Any()).
		DoAndReturn(func(ids []models.CellID) map[models.CellID]models.RiskCell {
			assert.Len(t, ids, 9)
			return map[models.CellID]models.RiskCell{
				id:       here,
				neighbor: {CellID: neighbor, Score: 1, State: models.CellWarm},
				{Row: id.Row - 1, Col: id.Col}: {Score: 0.01, State: models.CellCold},
			}
		}).Times(1)

	// Действие
	risk, err := service.CheckLocation(ctx, coord)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, models.RiskHigh, risk.Level)
	assert.Equal(t, here, risk.Cell)
	require.Len(t, risk.Nearby, 1)
	assert.Equal(t, neighbor, risk.Nearby[0].CellID)
}

func TestCheckLocation_ColdCellIsLow(t *testing.T) {
	// Подготовка
	service, aggMock, _ := newTestSurfaceService(t)
	coord := models.Coordinate{Latitude: 10, Longitude: 10}
	id, err := service.grid.CellOf(coord)
	require.NoError(t, err)

	// Ожидания
	aggMock.EXPECT().CellAt(coord).Return(models.RiskCell{CellID: id, State: models.CellCold}, nil).Times(1)
	aggMock.EXPECT().Surface(gomock.Any()).Return(map[models.CellID]models.RiskCell{}).Times(1)

	// Действие
	risk, err := service.CheckLocation(context.Background(), coord)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, models.RiskLow, risk.Level)
	assert.Empty(t, risk.Nearby)
}

func TestCheckLocation_InvalidCoordinate(t *testing.T) {
	// Подготовка
	service, aggMock, _ := newTestSurfaceService(t)
	coord := models.Coordinate{Latitude: 100, Longitude: 0}

	// Ожидания
	aggMock.EXPECT().CellAt(coord).Return(models.RiskCell{}, geogrid.ErrInvalidCoordinate).Times(1)

	// Действие
	_, err := service.CheckLocation(context.Background(), coord)

	// Проверки
	require.Error(t, err)
	assert.True(t, apperr.IsInvalidInput(err))
}

func TestSubscribe_PassesResumeStateToHub(t *testing.T) {
	// Подготовка
	service, _, hubMock := newTestSurfaceService(t)
	cells := []models.CellID{{Row: 5, Col: 5}}
	lastSeen := map[models.CellID]int64{{Row: 5, Col: 5}: 7}
	sub := &fanout.Subscription{ID: "sub-1"}
	initial := []fanout.Event{{Type: fanout.EventDelta}}

	// Ожидания
	hubMock.EXPECT().
		Subscribe(fanout.SubscribeRequest{Cells: cells, Epoch: "epoch-1", LastSeen: lastSeen}).
		Return(sub, initial, nil).
		Times(1)

	// Действие
	gotSub, gotInitial, err := service.Subscribe(context.Background(), models.Region{Cells: cells}, "epoch-1", lastSeen)

	// Проверки
	require.NoError(t, err)
	assert.Same(t, sub, gotSub)
	assert.Equal(t, initial, gotInitial)
}

func TestUnsubscribe(t *testing.T) {
	// Подготовка
	service, _, hubMock := newTestSurfaceService(t)

	// Ожидания
	hubMock.EXPECT().Unsubscribe("sub-1").Times(1)

	// Действие
	service.Unsubscribe("sub-1")
}
