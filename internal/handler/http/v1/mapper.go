package v1

import (
	"strings"

	"github.com/shenikar/safesteps/internal/apperr"
	"github.com/shenikar/safesteps/internal/geogrid"
	"github.com/shenikar/safesteps/internal/models"
)

// toCoordinate собирает координату из необязательных полей DTO
func toCoordinate(lat, lon, accuracy *float64) (*models.Coordinate, error) {
	if lat == nil && lon == nil {
		return nil, nil
	}
	if lat == nil || lon == nil {
		return nil, apperr.InvalidInput("latitude and longitude must be provided together")
	}
	return &models.Coordinate{Latitude: *lat, Longitude: *lon, Accuracy: accuracy}, nil
}

// DTOToReportModel преобразует запрос на отправку отчета в доменную модель
func DTOToReportModel(dto SubmitReportRequest, reporterID string) (*models.IncidentReport, error) {
	coord, err := toCoordinate(dto.Latitude, dto.Longitude, dto.Accuracy)
	if err != nil {
		return nil, err
	}
	return &models.IncidentReport{
		Category:    models.Category(dto.Category),
		Description: dto.Description,
		Severity:    models.Severity(dto.Severity),
		Coordinate:  coord,
		ImageRef:    dto.ImageRef,
		ReporterID:  reporterID,
		Anonymous:   dto.Anonymous || reporterID == "",
	}, nil
}

// ModelToReportResponse преобразует отчет в DTO для ответа
func ModelToReportResponse(r *models.IncidentReport) *ReportResponse {
	resp := &ReportResponse{
		ID:               r.ID,
		Category:         string(r.Category),
		Description:      r.Description,
		Severity:         string(r.Severity),
		ImageRef:         r.ImageRef,
		Anonymous:        r.Anonymous,
		Verification:     string(r.Verification),
		Version:          r.Version,
		HeatmapIntensity: r.Severity.HeatmapIntensity(),
		CreatedAt:        r.CreatedAt,
	}
	if r.Coordinate != nil {
		resp.Latitude = &r.Coordinate.Latitude
		resp.Longitude = &r.Coordinate.Longitude
	}
	if r.CellID != nil {
		resp.CellID = r.CellID.String()
	}
	return resp
}

func ModelsToReportResponses(reports []*models.IncidentReport) []*ReportResponse {
	responses := make([]*ReportResponse, len(reports))
	for i, r := range reports {
		responses[i] = ModelToReportResponse(r)
	}
	return responses
}

// ModelToRiskCellResponse преобразует ячейку в DTO; координаты указывают на центр ячейки
func ModelToRiskCellResponse(grid *geogrid.Grid, c models.RiskCell) RiskCellResponse {
	center := grid.Center(c.CellID)
	return RiskCellResponse{
		CellID:      c.CellID.String(),
		Latitude:    center.Latitude,
		Longitude:   center.Longitude,
		Score:       c.Score,
		ReportCount: c.ReportCount,
		Version:     c.Version,
		State:       string(c.State),
		UpdatedAt:   c.UpdatedAt,
	}
}

func ModelsToRiskCellResponses(grid *geogrid.Grid, cells []models.RiskCell) []RiskCellResponse {
	responses := make([]RiskCellResponse, len(cells))
	for i, c := range cells {
		responses[i] = ModelToRiskCellResponse(grid, c)
	}
	return responses
}

// QueryToRegion преобразует параметры области в доменную модель.
// Ячейки можно передать повторяющимся параметром или через запятую.
func QueryToRegion(q RegionQuery) (models.Region, error) {
	var region models.Region
	for _, raw := range q.Cells {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := models.ParseCellID(part)
			if err != nil {
				return models.Region{}, apperr.InvalidInput("%v", err)
			}
			region.Cells = append(region.Cells, id)
		}
	}

	bboxSet := q.MinLat != nil || q.MinLon != nil || q.MaxLat != nil || q.MaxLon != nil
	if bboxSet {
		if q.MinLat == nil || q.MinLon == nil || q.MaxLat == nil || q.MaxLon == nil {
			return models.Region{}, apperr.InvalidInput("bbox requires min_lat, min_lon, max_lat and max_lon")
		}
		region.Box = &models.BoundingBox{MinLat: *q.MinLat, MinLon: *q.MinLon, MaxLat: *q.MaxLat, MaxLon: *q.MaxLon}
	}

	center, err := toCoordinate(q.Lat, q.Lon, nil)
	if err != nil {
		return models.Region{}, err
	}
	region.Center = center
	region.Radius = q.Radius
	return region, nil
}

// LastSeenToModel разбирает версии, которые клиент уже получил до переподключения
func LastSeenToModel(lastSeen map[string]int64) (map[models.CellID]int64, error) {
	if len(lastSeen) == 0 {
		return nil, nil
	}
	out := make(map[models.CellID]int64, len(lastSeen))
	for raw, version := range lastSeen {
		id, err := models.ParseCellID(raw)
		if err != nil {
			return nil, apperr.InvalidInput("%v", err)
		}
		out[id] = version
	}
	return out, nil
}

// ModelToAlertResponse преобразует тревогу в DTO с разбивкой по контактам
func ModelToAlertResponse(a *models.SOSAlert) *AlertResponse {
	delivered, failed := a.Counts()
	resp := &AlertResponse{
		ID:             a.ID,
		LocationStatus: string(a.LocationStatus),
		Delivered:      delivered,
		Failed:         failed,
		Deliveries:     make([]DeliveryResponse, len(a.Deliveries)),
		CreatedAt:      a.CreatedAt,
		FinalizedAt:    a.FinalizedAt,
	}
	if a.Coordinate != nil {
		resp.Latitude = &a.Coordinate.Latitude
		resp.Longitude = &a.Coordinate.Longitude
	}
	for i, d := range a.Deliveries {
		resp.Deliveries[i] = DeliveryResponse{
			Name:     d.Name,
			Phone:    d.Phone,
			Status:   string(d.Status),
			Attempts: d.Attempts,
			Error:    d.Error,
			Late:     d.Late,
			At:       d.UpdatedAt,
		}
	}
	return resp
}

// ModelToDispatchResponse возвращает итог рассылки в том виде, в каком его увидел вызывающий
func ModelToDispatchResponse(r *models.DispatchResult) *AlertResponse {
	resp := ModelToAlertResponse(r.Alert)
	resp.Delivered = r.Delivered
	resp.Failed = r.Failed
	return resp
}

func DTOToContacts(dto []ContactDTO) []models.TrustedContact {
	contacts := make([]models.TrustedContact, len(dto))
	for i, c := range dto {
		contacts[i] = models.TrustedContact{Name: c.Name, Phone: c.Phone}
	}
	return contacts
}

func ContactsToDTO(contacts []models.TrustedContact) []ContactDTO {
	dto := make([]ContactDTO, len(contacts))
	for i, c := range contacts {
		dto[i] = ContactDTO{Name: c.Name, Phone: c.Phone}
	}
	return dto
}

// DTOToLocationFix преобразует запрос клиента в фикс местоположения
func DTOToLocationFix(dto LocationUpdateRequest, userID string) (models.LocationFix, error) {
	coord, err := toCoordinate(dto.Latitude, dto.Longitude, dto.Accuracy)
	if err != nil {
		return models.LocationFix{}, err
	}
	return models.LocationFix{
		UserID:     userID,
		Coordinate: coord,
		Permission: models.LocationPermission(dto.Permission),
	}, nil
}
