package service

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shenikar/safesteps/internal/apperr"
	"github.com/shenikar/safesteps/internal/geogrid"
	"github.com/shenikar/safesteps/internal/models"
	"github.com/shenikar/safesteps/internal/service/mocks"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// newTestReportService создает сервис отчетов с моками хранилища и агрегатора
func newTestReportService(t *testing.T) (*reportService, *mocks.MockReportRepository, *mocks.MockRiskAggregator) {
	ctrl := gomock.NewController(t)
	repoMock := mocks.NewMockReportRepository(ctrl)
	aggMock := mocks.NewMockRiskAggregator(ctrl)

	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{}) // Отключаем вывод логов в тестах

	service := NewReportService(repoMock, aggMock, geogrid.Default(), logger, nil).(*reportService)
	service.now = func() time.Time { return testNow }
	service.feedRetry = 10 * time.Millisecond
	return service, repoMock, aggMock
}

func TestSubmitReport_Success(t *testing.T) {
	// Подготовка
	service, repoMock, aggMock := newTestReportService(t)
	ctx := context.Background()
	coord := &models.Coordinate{Latitude: 55.75, Longitude: 37.61}
	report := &models.IncidentReport{
		Category:    models.CategoryHarassment,
		Description: "  преследование у метро  ",
		Severity:    models.SeverityHigh,
		Coordinate:  coord,
		ReporterID:  "user-1",
		Anonymous:   true,
	}
	expectedCell, err := geogrid.Default().CellOf(*coord)
	require.NoError(t, err)

	// Ожидания
	// 1. Сохранение отчета
	repoMock.EXPECT().
		AppendReport(ctx, report).
		Do(func(_ context.Context, r *models.IncidentReport) {
			assert.NotEmpty(t, r.ID)
			assert.Equal(t, int64(1), r.Version)
			assert.Equal(t, models.VerificationPending, r.Verification)
			assert.Equal(t, testNow, r.CreatedAt)
		}).Return(nil).Times(1)

	// 2. Пересчет ячейки
	aggMock.EXPECT().
		OnReportChanged(report).
		Return(models.CellDelta{}, true, nil).
		Times(1)

	// Действие
	err = service.SubmitReport(ctx, report)

	// Проверки
	require.NoError(t, err)
	require.NotNil(t, report.CellID)
	assert.Equal(t, expectedCell, *report.CellID)
	assert.Equal(t, "преследование у метро", report.Description)
	assert.Empty(t, report.ReporterID, "reporter must be dropped for anonymous reports")
}

func TestSubmitReport_WithoutCoordinate(t *testing.T) {
	// Подготовка
	service, repoMock, aggMock := newTestReportService(t)
	ctx := context.Background()
	report := &models.IncidentReport{
		Category:    models.CategoryPoorLighting,
		Description: "темный двор",
		Severity:    models.SeverityLow,
	}

	// Ожидания
	repoMock.EXPECT().AppendReport(ctx, report).Return(nil).Times(1)
	aggMock.EXPECT().OnReportChanged(report).Return(models.CellDelta{}, false, nil).Times(1)

	// Действие
	err := service.SubmitReport(ctx, report)

	// Проверки
	require.NoError(t, err)
	assert.Nil(t, report.CellID)
}

func TestSubmitReport_InvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		report models.IncidentReport
	}{
		{
			name:   "unknown category",
			report: models.IncidentReport{Category: "fire", Description: "x", Severity: models.SeverityLow},
		},
		{
			name:   "empty description",
			report: models.IncidentReport{Category: models.CategoryTheft, Description: "   ", Severity: models.SeverityLow},
		},
		{
			name:   "unknown severity",
			report: models.IncidentReport{Category: models.CategoryTheft, Description: "x", Severity: "extreme"},
		},
		{
			name: "invalid coordinate",
			report: models.IncidentReport{
				Category:    models.CategoryTheft,
				Description: "x",
				Severity:    models.SeverityLow,
				Coordinate:  &models.Coordinate{Latitude: 91, Longitude: 0},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Подготовка
			service, _, _ := newTestReportService(t)
			report := tt.report

			// Действие
			err := service.SubmitReport(context.Background(), &report)

			// Проверки
			require.Error(t, err)
			assert.True(t, apperr.IsInvalidInput(err))
		})
	}
}

func TestSubmitReport_StoreUnavailable(t *testing.T) {
	// Подготовка
	service, repoMock, _ := newTestReportService(t)
	ctx := context.Background()
	report := &models.IncidentReport{
		Category:    models.CategoryTheft,
		Description: "украли телефон",
		Severity:    models.SeverityMedium,
	}
	storeErr := apperr.StoreUnavailable("store.append_report", errors.New("connection refused"))

	// Ожидания
	repoMock.EXPECT().AppendReport(ctx, report).Return(storeErr).Times(1)

	// Действие
	err := service.SubmitReport(ctx, report)

	// Проверки
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrStoreUnavailable)
}

func TestSubmitReport_AggregatorFailureDoesNotFailSubmission(t *testing.T) {
	// Подготовка
	service, repoMock, aggMock := newTestReportService(t)
	ctx := context.Background()
	report := &models.IncidentReport{
		Category:    models.CategoryStalking,
		Description: "шел следом",
		Severity:    models.SeverityCritical,
	}

	// Ожидания
	repoMock.EXPECT().AppendReport(ctx, report).Return(nil).Times(1)
	aggMock.EXPECT().OnReportChanged(report).Return(models.CellDelta{}, false, errors.New("boom")).Times(1)

	// Действие
	err := service.SubmitReport(ctx, report)

	// Проверки
	require.NoError(t, err)
}

func TestGetReport_NotFound(t *testing.T) {
	// Подготовка
	service, repoMock, _ := newTestReportService(t)
	ctx := context.Background()

	// Ожидания
	repoMock.EXPECT().
		GetReport(ctx, "missing").
		Return(nil, apperr.NotFound("report missing not found")).
		Times(1)

	// Действие
	report, err := service.GetReport(ctx, "missing")

	// Проверки
	require.Error(t, err)
	assert.Nil(t, report)
	assert.True(t, apperr.IsNotFound(err))
}

func TestListCellReports_Success(t *testing.T) {
	// Подготовка
	service, repoMock, _ := newTestReportService(t)
	ctx := context.Background()
	cell := models.CellID{Row: 10, Col: 20}
	since := testNow.Add(-time.Hour)
	expected := []*models.IncidentReport{{ID: "r1"}, {ID: "r2"}}

	// Ожидания
	repoMock.EXPECT().QueryByCell(ctx, cell, since).Return(expected, nil).Times(1)

	// Действие
	reports, err := service.ListCellReports(ctx, cell, since)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, expected, reports)
}

func TestSetVerification_Success(t *testing.T) {
	// Подготовка
	service, repoMock, aggMock := newTestReportService(t)
	ctx := context.Background()
	updated := &models.IncidentReport{ID: "r1", Verification: models.VerificationRejected, Version: 2}

	// Ожидания
	repoMock.EXPECT().
		SetVerification(ctx, "r1", models.VerificationRejected).
		Return(updated, nil).
		Times(1)
	aggMock.EXPECT().OnReportChanged(updated).Return(models.CellDelta{}, true, nil).Times(1)

	// Действие
	report, err := service.SetVerification(ctx, "r1", models.VerificationRejected)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, updated, report)
}

func TestSetVerification_UnknownStatus(t *testing.T) {
	// Подготовка
	service, _, _ := newTestReportService(t)

	// Действие
	_, err := service.SetVerification(context.Background(), "r1", "approved")

	// Проверки
	require.Error(t, err)
	assert.True(t, apperr.IsInvalidInput(err))
}

func TestWarmup_AppliesReportsFromWindow(t *testing.T) {
	// Подготовка
	service, repoMock, aggMock := newTestReportService(t)
	ctx := context.Background()
	reports := []*models.IncidentReport{{ID: "r1"}, {ID: "r2"}, {ID: "r3"}}

	// Ожидания
	repoMock.EXPECT().QuerySince(ctx, testNow.Add(-48*time.Hour)).Return(reports, nil).Times(1)
	aggMock.EXPECT().OnReportChanged(reports[0]).Return(models.CellDelta{}, true, nil)
	aggMock.EXPECT().OnReportChanged(reports[1]).Return(models.CellDelta{}, false, nil)
	aggMock.EXPECT().OnReportChanged(reports[2]).Return(models.CellDelta{}, false, errors.New("bad"))

	// Действие
	applied, err := service.Warmup(ctx, 48*time.Hour)

	// Проверки
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
}

func TestRunChangeFeed_ForwardsChangesAndReconnects(t *testing.T) {
	// Подготовка
	service, repoMock, aggMock := newTestReportService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first := &models.IncidentReport{ID: "r1", Version: 1}
	second := &models.IncidentReport{ID: "r1", Version: 2}

	// Ожидания
	// 1. Первое подключение обрывается после одного изменения
	repoMock.EXPECT().
		WatchReports(ctx, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ time.Time, fn func(*models.IncidentReport)) error {
			fn(first)
			return errors.New("connection reset")
		}).Times(1)

	// 2. Второе подключение работает до отмены
	repoMock.EXPECT().
		WatchReports(ctx, gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ time.Time, fn func(*models.IncidentReport)) error {
			fn(second)
			cancel()
			<-ctx.Done()
			return ctx.Err()
		}).Times(1)

	gomock.InOrder(
		aggMock.EXPECT().OnReportChanged(first).Return(models.CellDelta{}, true, nil),
		aggMock.EXPECT().OnReportChanged(second).Return(models.CellDelta{}, true, nil),
	)

	// Действие
	done := make(chan struct{})
	go func() {
		service.RunChangeFeed(ctx)
		close(done)
	}()

	// Проверки
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("change feed did not stop after cancel")
	}
}

func TestRunChangeFeed_CatchesUpChangesMissedDuringOutage(t *testing.T) {
	// Подготовка
	service, repoMock, aggMock := newTestReportService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repoMock.EXPECT().QuerySince(ctx, testNow.Add(-48*time.Hour)).Return(nil, nil)
	_, err := service.Warmup(ctx, 48*time.Hour)
	require.NoError(t, err)

	seen := &models.IncidentReport{ID: "r1", Version: 1, UpdatedAt: testNow.Add(time.Minute)}
	// отчет отклонили, пока лента была отключена
	missed := &models.IncidentReport{
		ID:           "r2",
		Version:      2,
		Verification: models.VerificationRejected,
		UpdatedAt:    testNow.Add(2 * time.Minute),
	}

	// Ожидания
	// 1. Лента начинается с момента прогрева
	repoMock.EXPECT().
		WatchReports(ctx, testNow.Add(-feedOverlap), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ time.Time, fn func(*models.IncidentReport)) error {
			fn(seen)
			return errors.New("connection reset")
		}).Times(1)

	// 2. Переподключение запрашивает изменения с последнего увиденного updated_at
	repoMock.EXPECT().
		WatchReports(ctx, seen.UpdatedAt.Add(-feedOverlap), gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ time.Time, fn func(*models.IncidentReport)) error {
			fn(seen)
			fn(missed)
			cancel()
			<-ctx.Done()
			return ctx.Err()
		}).Times(1)

	gomock.InOrder(
		aggMock.EXPECT().OnReportChanged(seen).Return(models.CellDelta{}, true, nil),
		aggMock.EXPECT().OnReportChanged(seen).Return(models.CellDelta{}, false, nil),
		aggMock.EXPECT().OnReportChanged(missed).Return(models.CellDelta{}, true, nil),
	)

	// Действие
	done := make(chan struct{})
	go func() {
		service.RunChangeFeed(ctx)
		close(done)
	}()

	// Проверки
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("change feed did not stop after cancel")
	}
}
