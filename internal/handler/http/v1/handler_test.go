package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/shenikar/safesteps/internal/apperr"
	"github.com/shenikar/safesteps/internal/config"
	"github.com/shenikar/safesteps/internal/fanout"
	"github.com/shenikar/safesteps/internal/geogrid"
	"github.com/shenikar/safesteps/internal/models"
	"github.com/shenikar/safesteps/internal/service/mocks"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const (
	testSecret = "test-secret"
	testAPIKey = "test-api-key"

	reportID = "6f1c2d3e-4b5a-4c6d-8e7f-901a2b3c4d5e"
	alertID  = "0b9a8c7d-6e5f-4a3b-9c2d-1e0f2a3b4c5d"
)

type serviceMocks struct {
	reports *mocks.MockReportService
	surface *mocks.MockSurfaceService
	sos     *mocks.MockSOSService
}

// newTestHandler создает новый экземпляр Handler с мокированными сервисами
func newTestHandler(t *testing.T) (*Handler, serviceMocks, *gin.Engine) {
	ctrl := gomock.NewController(t)
	m := serviceMocks{
		reports: mocks.NewMockReportService(ctrl),
		surface: mocks.NewMockSurfaceService(ctrl),
		sos:     mocks.NewMockSOSService(ctrl),
	}

	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{}) // Отключаем вывод логов в тестах

	cfg := &config.Config{
		APIKeys:   []string{testAPIKey},
		JWTSecret: testSecret,
	}

	handler := NewHandler(m.reports, m.surface, m.sos, geogrid.Default(), logger, cfg)

	// Настройка Gin роутера для тестов
	gin.SetMode(gin.TestMode)
	router := gin.New()
	api := router.Group("/api/v1")
	handler.RegisterRoutes(api)

	return handler, m, router
}

// makeRequest - вспомогательная функция для выполнения HTTP-запросов
func makeRequest(router *gin.Engine, method, url string, body io.Reader, headers ...map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, url, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, h := range headers {
		for key, value := range h {
			req.Header.Set(key, value)
		}
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func jsonBody(t *testing.T, v any) io.Reader {
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(data)
}

func signToken(t *testing.T, userID string, expiresIn time.Duration) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func bearer(t *testing.T, userID string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + signToken(t, userID, time.Hour)}
}

func ptr(f float64) *float64 { return &f }

func TestSubmitReport_Anonymous(t *testing.T) {
	_, m, router := newTestHandler(t)
	reqBody := SubmitReportRequest{
		Category:    "harassment",
		Description: "кричали вслед",
		Severity:    "high",
		Latitude:    ptr(55.75),
		Longitude:   ptr(37.61),
	}
	cell := models.CellID{Row: 100, Col: 200}

	m.reports.EXPECT().
		SubmitReport(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, r *models.IncidentReport) error {
			assert.True(t, r.Anonymous)
			assert.Empty(t, r.ReporterID)
			require.NotNil(t, r.Coordinate)
			assert.Equal(t, 55.75, r.Coordinate.Latitude)
			r.ID = "report-1"
			r.CellID = &cell
			r.Verification = models.VerificationPending
			r.Version = 1
			return nil
		}).Times(1)

	w := makeRequest(router, "POST", "/api/v1/reports", jsonBody(t, reqBody))

	assert.Equal(t, http.StatusCreated, w.Code)
	var resp ReportResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "report-1", resp.ID)
	assert.Equal(t, "100:200", resp.CellID)
	assert.Equal(t, "pending", resp.Verification)
	assert.Equal(t, 1.0, resp.HeatmapIntensity)
}

func TestSubmitReport_WithUserToken(t *testing.T) {
	_, m, router := newTestHandler(t)
	reqBody := SubmitReportRequest{Category: "theft", Description: "украли сумку", Severity: "medium"}

	m.reports.EXPECT().
		SubmitReport(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, r *models.IncidentReport) error {
			assert.Equal(t, "user-1", r.ReporterID)
			assert.False(t, r.Anonymous)
			assert.Nil(t, r.Coordinate)
			return nil
		}).Times(1)

	w := makeRequest(router, "POST", "/api/v1/reports", jsonBody(t, reqBody), bearer(t, "user-1"))

	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestSubmitReport_InvalidJSON(t *testing.T) {
	_, m, router := newTestHandler(t)

	m.reports.EXPECT().SubmitReport(gomock.Any(), gomock.Any()).Times(0) // Сервис не должен вызываться

	w := makeRequest(router, "POST", "/api/v1/reports", bytes.NewBufferString(`{"category": "theft"`))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid request body")
}

func TestSubmitReport_ValidationError(t *testing.T) {
	_, m, router := newTestHandler(t)
	reqBody := SubmitReportRequest{Category: "fire", Description: "x", Severity: "low"}

	m.reports.EXPECT().SubmitReport(gomock.Any(), gomock.Any()).Times(0) // Сервис не должен вызываться

	w := makeRequest(router, "POST", "/api/v1/reports", jsonBody(t, reqBody))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Error:Field validation for 'Category' failed on the 'oneof' tag")
}

func TestSubmitReport_HalfCoordinate(t *testing.T) {
	_, m, router := newTestHandler(t)
	reqBody := SubmitReportRequest{Category: "theft", Description: "x", Severity: "low", Latitude: ptr(10)}

	m.reports.EXPECT().SubmitReport(gomock.Any(), gomock.Any()).Times(0)

	w := makeRequest(router, "POST", "/api/v1/reports", jsonBody(t, reqBody))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "latitude and longitude must be provided together")
}

func TestSubmitReport_InvalidToken(t *testing.T) {
	_, m, router := newTestHandler(t)
	reqBody := SubmitReportRequest{Category: "theft", Description: "x", Severity: "low"}

	m.reports.EXPECT().SubmitReport(gomock.Any(), gomock.Any()).Times(0)

	w := makeRequest(router, "POST", "/api/v1/reports", jsonBody(t, reqBody), map[string]string{"Authorization": "Bearer garbage"})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestSubmitReport_StoreUnavailable(t *testing.T) {
	_, m, router := newTestHandler(t)
	reqBody := SubmitReportRequest{Category: "theft", Description: "x", Severity: "low"}
	serviceError := fmt.Errorf("service: could not submit report: %w",
		apperr.StoreUnavailable("store.append_report", errors.New("dial tcp: refused")))

	m.reports.EXPECT().SubmitReport(gomock.Any(), gomock.Any()).Return(serviceError).Times(1)

	w := makeRequest(router, "POST", "/api/v1/reports", jsonBody(t, reqBody))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "service temporarily unavailable")
}

func TestGetReport_NotFound(t *testing.T) {
	_, m, router := newTestHandler(t)

	m.reports.EXPECT().GetReport(gomock.Any(), reportID).Return(nil, apperr.NotFound("report not found")).Times(1)

	w := makeRequest(router, "GET", "/api/v1/reports/"+reportID, nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetReport_InvalidID(t *testing.T) {
	_, m, router := newTestHandler(t)

	m.reports.EXPECT().GetReport(gomock.Any(), gomock.Any()).Times(0)

	w := makeRequest(router, "GET", "/api/v1/reports/not-a-uuid", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid id")
}

func TestListCellReports_Success(t *testing.T) {
	_, m, router := newTestHandler(t)
	since := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	reports := []*models.IncidentReport{
		{ID: "r1", Category: models.CategoryTheft, Severity: models.SeverityLow},
		{ID: "r2", Category: models.CategoryStalking, Severity: models.SeverityMedium},
	}

	m.reports.EXPECT().
		ListCellReports(gomock.Any(), models.CellID{Row: 12, Col: -3}, since).
		Return(reports, nil).
		Times(1)

	w := makeRequest(router, "GET", "/api/v1/cells/12:-3/reports?since=2025-03-01T00:00:00Z", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp []ReportResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 2)
	assert.Equal(t, 0.4, resp[0].HeatmapIntensity)
	assert.Equal(t, 0.7, resp[1].HeatmapIntensity)
}

func TestListCellReports_InvalidCell(t *testing.T) {
	_, m, router := newTestHandler(t)

	m.reports.EXPECT().ListCellReports(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	w := makeRequest(router, "GET", "/api/v1/cells/abc/reports", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid cell ID")
}

func TestSetVerification_Success(t *testing.T) {
	_, m, router := newTestHandler(t)
	updated := &models.IncidentReport{ID: reportID, Verification: models.VerificationVerified, Version: 2}

	m.reports.EXPECT().SetVerification(gomock.Any(), reportID, models.VerificationVerified).Return(updated, nil).Times(1)

	w := makeRequest(router, "PATCH", "/api/v1/moderation/reports/"+reportID,
		jsonBody(t, SetVerificationRequest{Verification: "verified"}), map[string]string{"X-API-Key": testAPIKey})

	assert.Equal(t, http.StatusOK, w.Code)
	var resp ReportResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(2), resp.Version)
}

func TestSetVerification_InvalidID(t *testing.T) {
	_, m, router := newTestHandler(t)

	m.reports.EXPECT().SetVerification(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	w := makeRequest(router, "PATCH", "/api/v1/moderation/reports/r1",
		jsonBody(t, SetVerificationRequest{Verification: "verified"}), map[string]string{"X-API-Key": testAPIKey})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetVerification_Unauthorized(t *testing.T) {
	_, m, router := newTestHandler(t)

	m.reports.EXPECT().SetVerification(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	w := makeRequest(router, "PATCH", "/api/v1/moderation/reports/r1", jsonBody(t, SetVerificationRequest{Verification: "verified"}))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = makeRequest(router, "PATCH", "/api/v1/moderation/reports/r1",
		jsonBody(t, SetVerificationRequest{Verification: "verified"}), map[string]string{"X-API-Key": "wrong-key"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid API key")
}

func TestCurrentSurface_ByCells(t *testing.T) {
	_, m, router := newTestHandler(t)
	a := models.CellID{Row: 1, Col: 2}
	b := models.CellID{Row: 3, Col: 4}

	m.surface.EXPECT().
		Surface(gomock.Any(), models.Region{Cells: []models.CellID{a, b}}).
		Return([]models.RiskCell{{CellID: a, Score: 1.5, Version: 4, State: models.CellWarm}}, "epoch-1", nil).
		Times(1)

	w := makeRequest(router, "GET", "/api/v1/risk/surface?cells=1:2,3:4", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp SurfaceResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "epoch-1", resp.Epoch)
	require.Len(t, resp.Cells, 1)
	assert.Equal(t, "1:2", resp.Cells[0].CellID)
	assert.Equal(t, int64(4), resp.Cells[0].Version)
}

func TestCurrentSurface_ByCenter(t *testing.T) {
	_, m, router := newTestHandler(t)

	m.surface.EXPECT().
		Surface(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, region models.Region) ([]models.RiskCell, string, error) {
			require.NotNil(t, region.Center)
			assert.Equal(t, 55.75, region.Center.Latitude)
			assert.Equal(t, 500.0, region.Radius)
			return nil, "epoch-1", nil
		}).Times(1)

	w := makeRequest(router, "GET", "/api/v1/risk/surface?lat=55.75&lon=37.61&radius=500", nil)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCurrentSurface_RadiusAboveLimit(t *testing.T) {
	_, m, router := newTestHandler(t)

	m.surface.EXPECT().Surface(gomock.Any(), gomock.Any()).Times(0)

	w := makeRequest(router, "GET", "/api/v1/risk/surface?lat=55.75&lon=37.61&radius=1e15", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCurrentSurface_RegionTooLarge(t *testing.T) {
	_, m, router := newTestHandler(t)

	m.surface.EXPECT().
		Surface(gomock.Any(), gomock.Any()).
		Return(nil, "", apperr.InvalidInput("region of 900x900 cells exceeds 2500 cells")).
		Times(1)

	w := makeRequest(router, "GET", "/api/v1/risk/surface?min_lat=55&min_lon=37&max_lat=56&max_lon=38", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "exceeds 2500 cells")
}

func TestCheckLocation_Success(t *testing.T) {
	_, m, router := newTestHandler(t)
	cell := models.RiskCell{CellID: models.CellID{Row: 1, Col: 1}, Score: 5, State: models.CellWarm}

	m.surface.EXPECT().
		CheckLocation(gomock.Any(), models.Coordinate{Latitude: 0, Longitude: 37.61}).
		Return(&models.LocationRisk{Cell: cell, Level: models.RiskHigh}, nil).
		Times(1)

	w := makeRequest(router, "POST", "/api/v1/location/check",
		jsonBody(t, LocationCheckRequest{Latitude: ptr(0), Longitude: ptr(37.61)}))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp LocationCheckResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "high", resp.Level)
	assert.Equal(t, "1:1", resp.Cell.CellID)
}

func TestCheckLocation_ValidationError(t *testing.T) {
	_, m, router := newTestHandler(t)

	m.surface.EXPECT().CheckLocation(gomock.Any(), gomock.Any()).Times(0)

	w := makeRequest(router, "POST", "/api/v1/location/check", bytes.NewBufferString(`{"latitude": 95, "longitude": 10}`))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "'latitude' tag")
}

func TestTriggerSOS_PartialFailureIsOK(t *testing.T) {
	_, m, router := newTestHandler(t)
	alert := &models.SOSAlert{
		ID:             "alert-1",
		OwnerID:        "user-1",
		LocationStatus: models.LocationProvided,
		Coordinate:     &models.Coordinate{Latitude: 55.75, Longitude: 37.61},
		Deliveries: []models.DeliveryRecord{
			{Name: "A", Phone: "+15550000001", Status: models.DeliveryDelivered, Attempts: 1},
			{Name: "B", Phone: "+15550000002", Status: models.DeliveryFailed, Attempts: 1, Error: "invalid phone number"},
		},
	}

	m.sos.EXPECT().
		TriggerSOS(gomock.Any(), "user-1", models.SOSRequest{
			Coordinate:     &models.Coordinate{Latitude: 55.75, Longitude: 37.61},
			IdempotencyKey: "key-1",
		}).
		Return(&models.DispatchResult{Alert: alert, Delivered: 1, Failed: 1}, nil).
		Times(1)

	headers := bearer(t, "user-1")
	headers["Idempotency-Key"] = "key-1"
	w := makeRequest(router, "POST", "/api/v1/sos",
		jsonBody(t, TriggerSOSRequest{Latitude: ptr(55.75), Longitude: ptr(37.61)}), headers)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp AlertResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Delivered)
	assert.Equal(t, 1, resp.Failed)
	require.Len(t, resp.Deliveries, 2)
	assert.Equal(t, "failed", resp.Deliveries[1].Status)
	assert.Equal(t, "invalid phone number", resp.Deliveries[1].Error)
}

func TestTriggerSOS_EmptyBodyUsesLastKnownLocation(t *testing.T) {
	_, m, router := newTestHandler(t)
	alert := &models.SOSAlert{ID: "alert-1", LocationStatus: models.LocationLastKnown}

	m.sos.EXPECT().
		TriggerSOS(gomock.Any(), "user-1", models.SOSRequest{}).
		Return(&models.DispatchResult{Alert: alert}, nil).
		Times(1)

	w := makeRequest(router, "POST", "/api/v1/sos", nil, bearer(t, "user-1"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"location_status":"last_known"`)
}

func TestTriggerSOS_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "no contacts", err: apperr.ErrNoContactsConfigured, status: http.StatusUnprocessableEntity},
		{name: "in progress", err: apperr.Conflict("sos with this idempotency key is already in progress"), status: http.StatusConflict},
		{name: "store down", err: apperr.StoreUnavailable("store.create_alert", errors.New("timeout")), status: http.StatusServiceUnavailable},
		{name: "permanent", err: apperr.Permanent("store.create_alert", errors.New("check violation")), status: http.StatusFailedDependency},
		{name: "unknown", err: errors.New("boom"), status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, m, router := newTestHandler(t)

			m.sos.EXPECT().
				TriggerSOS(gomock.Any(), "user-1", gomock.Any()).
				Return(nil, fmt.Errorf("service: could not trigger sos: %w", tt.err)).
				Times(1)

			w := makeRequest(router, "POST", "/api/v1/sos", nil, bearer(t, "user-1"))

			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestTriggerSOS_RequiresToken(t *testing.T) {
	_, m, router := newTestHandler(t)

	m.sos.EXPECT().TriggerSOS(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	w := makeRequest(router, "POST", "/api/v1/sos", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	expired := map[string]string{"Authorization": "Bearer " + signToken(t, "user-1", -time.Minute)}
	w = makeRequest(router, "POST", "/api/v1/sos", nil, expired)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "token has expired")
}

func TestGetAlert_Success(t *testing.T) {
	_, m, router := newTestHandler(t)
	finalized := time.Now().UTC()
	alert := &models.SOSAlert{
		ID:          alertID,
		OwnerID:     "user-1",
		FinalizedAt: &finalized,
		Deliveries: []models.DeliveryRecord{
			{Name: "A", Phone: "+15550000001", Status: models.DeliveryDelivered, Late: true},
		},
	}

	m.sos.EXPECT().GetAlert(gomock.Any(), "user-1", alertID).Return(alert, nil).Times(1)

	w := makeRequest(router, "GET", "/api/v1/sos/"+alertID, nil, bearer(t, "user-1"))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp AlertResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Delivered)
	assert.True(t, resp.Deliveries[0].Late)
}

func TestGetAlert_InvalidID(t *testing.T) {
	_, m, router := newTestHandler(t)

	m.sos.EXPECT().GetAlert(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	w := makeRequest(router, "GET", "/api/v1/sos/alert-1", nil, bearer(t, "user-1"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReplaceContacts_Success(t *testing.T) {
	_, m, router := newTestHandler(t)
	reqBody := ReplaceContactsRequest{Contacts: []ContactDTO{
		{Name: "Мама", Phone: "+79991234567"},
	}}

	m.sos.EXPECT().
		ReplaceContacts(gomock.Any(), "user-1", []models.TrustedContact{{Name: "Мама", Phone: "+79991234567"}}).
		Return(nil).
		Times(1)

	w := makeRequest(router, "PUT", "/api/v1/me/contacts", jsonBody(t, reqBody), bearer(t, "user-1"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "+79991234567")
}

func TestReplaceContacts_InvalidPhone(t *testing.T) {
	_, m, router := newTestHandler(t)
	reqBody := ReplaceContactsRequest{Contacts: []ContactDTO{{Name: "Мама", Phone: "89991234567"}}}

	m.sos.EXPECT().ReplaceContacts(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	w := makeRequest(router, "PUT", "/api/v1/me/contacts", jsonBody(t, reqBody), bearer(t, "user-1"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "'e164' tag")
}

func TestGetContacts_Success(t *testing.T) {
	_, m, router := newTestHandler(t)

	m.sos.EXPECT().
		GetContacts(gomock.Any(), "user-1").
		Return([]models.TrustedContact{{OwnerID: "user-1", Name: "Брат", Phone: "+14155550100"}}, nil).
		Times(1)

	w := makeRequest(router, "GET", "/api/v1/me/contacts", nil, bearer(t, "user-1"))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp ContactsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Contacts, 1)
	assert.Equal(t, "Брат", resp.Contacts[0].Name)
}

func TestUpdateLocation_Denied(t *testing.T) {
	_, m, router := newTestHandler(t)

	m.sos.EXPECT().
		UpdateLocation(gomock.Any(), models.LocationFix{UserID: "user-1", Permission: models.PermissionDenied}).
		Return(nil).
		Times(1)

	w := makeRequest(router, "POST", "/api/v1/me/location",
		jsonBody(t, LocationUpdateRequest{Permission: "denied"}), bearer(t, "user-1"))

	assert.Equal(t, http.StatusNoContent, w.Code)
}

type staticSurface struct {
	cells map[models.CellID]models.RiskCell
}

func (s staticSurface) Surface(ids []models.CellID) map[models.CellID]models.RiskCell {
	out := make(map[models.CellID]models.RiskCell)
	for _, id := range ids {
		if c, ok := s.cells[id]; ok {
			out[id] = c
		}
	}
	return out
}

func (s staticSurface) Epoch() string { return "epoch-1" }

func TestSubscribeRiskSurface_StreamsSnapshotThenDeltas(t *testing.T) {
	_, m, router := newTestHandler(t)
	cell := models.CellID{Row: 7, Col: 8}
	surface := staticSurface{cells: map[models.CellID]models.RiskCell{
		cell: {CellID: cell, Score: 2, Version: 1, State: models.CellWarm},
	}}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	hub := fanout.NewHub(fanout.Config{}, surface, logger, nil)

	m.surface.EXPECT().
		Subscribe(gomock.Any(), models.Region{Cells: []models.CellID{cell}}, "", gomock.Nil()).
		DoAndReturn(func(_ context.Context, region models.Region, epoch string, lastSeen map[models.CellID]int64) (*fanout.Subscription, []fanout.Event, error) {
			return hub.Subscribe(fanout.SubscribeRequest{Cells: region.Cells, Epoch: epoch, LastSeen: lastSeen})
		}).Times(1)
	unsubscribed := make(chan struct{})
	m.surface.EXPECT().
		Unsubscribe(gomock.Any()).
		Do(func(id string) {
			hub.Unsubscribe(id)
			close(unsubscribed)
		}).Times(1)

	server := httptest.NewServer(router)
	defer server.Close()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/risk/subscribe"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(SubscribeMessage{RegionQuery: RegionQuery{Cells: []string{"7:8"}}}))

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var snapshot fanout.Event
	require.NoError(t, conn.ReadJSON(&snapshot))
	assert.Equal(t, fanout.EventSnapshot, snapshot.Type)
	assert.Equal(t, int64(1), snapshot.Version)

	hub.Publish(models.CellDelta{Epoch: "epoch-1", CellID: cell, Score: 3, Version: 2, State: models.CellWarm})

	var delta fanout.Event
	require.NoError(t, conn.ReadJSON(&delta))
	assert.Equal(t, fanout.EventDelta, delta.Type)
	assert.Equal(t, int64(2), delta.Version)
	assert.Equal(t, 3.0, delta.Score)

	require.NoError(t, conn.Close())
	select {
	case <-unsubscribed:
	case <-time.After(5 * time.Second):
		t.Fatal("subscription was not released after the client disconnected")
	}
	assert.Equal(t, 0, hub.Subscribers())
}

func TestHealthCheck(t *testing.T) {
	_, _, router := newTestHandler(t)

	w := makeRequest(router, "GET", "/api/v1/system/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}
