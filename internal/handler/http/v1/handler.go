package v1

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shenikar/safesteps/internal/apperr"
	"github.com/shenikar/safesteps/internal/config"
	"github.com/shenikar/safesteps/internal/geogrid"
	"github.com/shenikar/safesteps/internal/models"
	"github.com/shenikar/safesteps/internal/service"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	reportService  service.ReportService
	surfaceService service.SurfaceService
	sosService     service.SOSService
	grid           *geogrid.Grid
	logger         *logrus.Logger
	validate       *validator.Validate
	cfg            *config.Config
}

func NewHandler(
	reportService service.ReportService,
	surfaceService service.SurfaceService,
	sosService service.SOSService,
	grid *geogrid.Grid,
	logger *logrus.Logger,
	cfg *config.Config,
) *Handler {
	return &Handler{
		reportService:  reportService,
		surfaceService: surfaceService,
		sosService:     sosService,
		grid:           grid,
		logger:         logger,
		validate:       validator.New(),
		cfg:            cfg,
	}
}

// writeError переводит класс ошибки в HTTP-статус
func (h *Handler) writeError(c *gin.Context, log *logrus.Entry, err error) {
	status := http.StatusInternalServerError
	msg := "internal server error"

	var appErr *apperr.Error
	switch apperr.KindOf(err) {
	case apperr.KindInvalidInput:
		status = http.StatusBadRequest
		msg = "invalid input"
		if errors.As(err, &appErr) && appErr.Msg != "" {
			msg = appErr.Msg
		}
	case apperr.KindNotFound:
		status, msg = http.StatusNotFound, "not found"
	case apperr.KindConflict:
		status, msg = http.StatusConflict, "request is already in progress"
	case apperr.KindNoContacts:
		status, msg = http.StatusUnprocessableEntity, "no trusted contacts configured"
	case apperr.KindPermanentDependency:
		status, msg = http.StatusFailedDependency, "dependency rejected the request"
	case apperr.KindTransientDependency:
		status, msg = http.StatusServiceUnavailable, "service temporarily unavailable"
	}

	if status >= http.StatusInternalServerError {
		log.WithError(err).Error("Request failed")
	} else {
		log.WithError(err).Warn("Request rejected")
	}
	c.JSON(status, gin.H{"error": msg})
}

// pathID читает UUID из пути. При ok == false ответ 400 уже записан.
func (h *Handler) pathID(c *gin.Context, log *logrus.Entry) (string, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.writeError(c, log, apperr.InvalidInput("invalid id %q", c.Param("id")))
		return "", false
	}
	return id.String(), true
}

// @Summary Submit an incident report
// @Description Submit a crowd-sourced safety report. Anonymous unless a bearer token is given.
// @Tags Reports
// @Accept json
// @Produce json
// @Param report body SubmitReportRequest true "Incident report"
// @Success 201 {object} ReportResponse
// @Failure 400 {object} map[string]string "Invalid request body or validation error"
// @Failure 401 {object} map[string]string "Invalid token"
// @Failure 503 {object} map[string]string "Store unavailable"
// @Router /reports [post]
func (h *Handler) submitReport(c *gin.Context) {
	var input SubmitReportRequest
	log := h.logger.WithField("method", "submitReport")

	if err := c.ShouldBindJSON(&input); err != nil {
		log.WithError(err).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.validate.Struct(input); err != nil {
		log.WithError(err).Warn("Validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	model, err := DTOToReportModel(input, userID(c))
	if err != nil {
		h.writeError(c, log, err)
		return
	}
	if err := h.reportService.SubmitReport(c.Request.Context(), model); err != nil {
		h.writeError(c, log, err)
		return
	}
	c.JSON(http.StatusCreated, ModelToReportResponse(model))
}

// @Summary Get report by ID
// @Description Get a single incident report by its ID
// @Tags Reports
// @Produce json
// @Param id path string true "Report ID"
// @Success 200 {object} ReportResponse
// @Failure 400 {object} map[string]string "Invalid report ID"
// @Failure 404 {object} map[string]string "Report not found"
// @Failure 503 {object} map[string]string "Store unavailable"
// @Router /reports/{id} [get]
func (h *Handler) getReport(c *gin.Context) {
	log := h.logger.WithField("method", "getReport").WithField("id", c.Param("id"))
	id, ok := h.pathID(c, log)
	if !ok {
		return
	}

	report, err := h.reportService.GetReport(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelToReportResponse(report))
}

// @Summary List reports of a cell
// @Description List reports located in a grid cell, oldest first
// @Tags Reports
// @Produce json
// @Param cell path string true "Cell ID in row:col form"
// @Param since query string false "RFC3339 lower bound of report time" default(24h ago)
// @Success 200 {array} ReportResponse
// @Failure 400 {object} map[string]string "Invalid cell ID or since"
// @Failure 503 {object} map[string]string "Store unavailable"
// @Router /cells/{cell}/reports [get]
func (h *Handler) listCellReports(c *gin.Context) {
	log := h.logger.WithField("method", "listCellReports").WithField("cell", c.Param("cell"))

	cell, err := models.ParseCellID(c.Param("cell"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cell ID"})
		return
	}

	since := time.Now().Add(-24 * time.Hour)
	if raw := c.Query("since"); raw != "" {
		since, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since, expected RFC3339"})
			return
		}
	}

	reports, err := h.reportService.ListCellReports(c.Request.Context(), cell, since)
	if err != nil {
		h.writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelsToReportResponses(reports))
}

// @Summary Set report verification
// @Description Moderator decision on a report. Changes the report weight in the risk surface. Requires API key.
// @Tags Moderation
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Report ID"
// @Param verification body SetVerificationRequest true "Verification decision"
// @Success 200 {object} ReportResponse
// @Failure 400 {object} map[string]string "Invalid request body or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Report not found"
// @Router /moderation/reports/{id} [patch]
func (h *Handler) setVerification(c *gin.Context) {
	log := h.logger.WithField("method", "setVerification").WithField("id", c.Param("id"))
	id, ok := h.pathID(c, log)
	if !ok {
		return
	}

	var input SetVerificationRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		log.WithError(err).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.validate.Struct(input); err != nil {
		log.WithError(err).Warn("Validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := h.reportService.SetVerification(c.Request.Context(), id, models.Verification(input.Verification))
	if err != nil {
		h.writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelToReportResponse(report))
}

// @Summary Get current risk surface
// @Description Risk cells of a region given by cells, a bounding box, or a center with radius. Cells without reports are omitted.
// @Tags Risk
// @Produce json
// @Param cells query []string false "Cell IDs in row:col form" collectionFormat(csv)
// @Param min_lat query number false "Bounding box south edge"
// @Param min_lon query number false "Bounding box west edge"
// @Param max_lat query number false "Bounding box north edge"
// @Param max_lon query number false "Bounding box east edge"
// @Param lat query number false "Center latitude"
// @Param lon query number false "Center longitude"
// @Param radius query number false "Radius in meters" maximum(100000)
// @Success 200 {object} SurfaceResponse
// @Failure 400 {object} map[string]string "Invalid region"
// @Router /risk/surface [get]
func (h *Handler) currentSurface(c *gin.Context) {
	log := h.logger.WithField("method", "currentSurface")

	var query RegionQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		log.WithError(err).Warn("Failed to bind query")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query parameters"})
		return
	}
	if err := h.validate.Struct(query); err != nil {
		log.WithError(err).Warn("Validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	region, err := QueryToRegion(query)
	if err != nil {
		h.writeError(c, log, err)
		return
	}

	cells, epoch, err := h.surfaceService.Surface(c.Request.Context(), region)
	if err != nil {
		h.writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, SurfaceResponse{Epoch: epoch, Cells: ModelsToRiskCellResponses(h.grid, cells)})
}

// @Summary Check risk at location
// @Description Risk level of the cell containing the point, plus warm neighbor cells
// @Tags Location
// @Accept json
// @Produce json
// @Param location body LocationCheckRequest true "Location check request"
// @Success 200 {object} LocationCheckResponse
// @Failure 400 {object} map[string]string "Invalid request body or validation error"
// @Router /location/check [post]
func (h *Handler) checkLocation(c *gin.Context) {
	var input LocationCheckRequest
	log := h.logger.WithField("method", "checkLocation")

	if err := c.ShouldBindJSON(&input); err != nil {
		log.WithError(err).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.validate.Struct(input); err != nil {
		log.WithError(err).Warn("Validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	risk, err := h.surfaceService.CheckLocation(c.Request.Context(), models.Coordinate{
		Latitude:  *input.Latitude,
		Longitude: *input.Longitude,
	})
	if err != nil {
		h.writeError(c, log, err)
		return
	}

	c.JSON(http.StatusOK, LocationCheckResponse{
		Level:  string(risk.Level),
		Cell:   ModelToRiskCellResponse(h.grid, risk.Cell),
		Nearby: ModelsToRiskCellResponses(h.grid, risk.Nearby),
	})
}

// @Summary Trigger SOS
// @Description Send an emergency alert to every trusted contact. Responds when each contact has an outcome or the dispatch deadline passes. A partial failure still returns 200 with a per-contact breakdown.
// @Tags SOS
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string false "Repeated requests with the same key return the first alert"
// @Param sos body TriggerSOSRequest false "Current location, if known"
// @Success 200 {object} AlertResponse
// @Failure 400 {object} map[string]string "Invalid request body or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 409 {object} map[string]string "Same idempotency key is in progress"
// @Failure 422 {object} map[string]string "No trusted contacts configured"
// @Failure 503 {object} map[string]string "Store unavailable"
// @Router /sos [post]
func (h *Handler) triggerSOS(c *gin.Context) {
	owner := userID(c)
	log := h.logger.WithField("method", "triggerSOS").WithField("user_id", owner)

	var input TriggerSOSRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&input); err != nil {
			log.WithError(err).Warn("Failed to bind JSON")
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	if err := h.validate.Struct(input); err != nil {
		log.WithError(err).Warn("Validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	coord, err := toCoordinate(input.Latitude, input.Longitude, input.Accuracy)
	if err != nil {
		h.writeError(c, log, err)
		return
	}

	result, err := h.sosService.TriggerSOS(c.Request.Context(), owner, models.SOSRequest{
		Coordinate:     coord,
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
	})
	if err != nil {
		h.writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelToDispatchResponse(result))
}

// @Summary Get SOS alert
// @Description Current state of an alert, including deliveries that finished after the dispatch deadline
// @Tags SOS
// @Produce json
// @Security BearerAuth
// @Param id path string true "Alert ID"
// @Success 200 {object} AlertResponse
// @Failure 400 {object} map[string]string "Invalid alert ID"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 404 {object} map[string]string "Alert not found"
// @Router /sos/{id} [get]
func (h *Handler) getAlert(c *gin.Context) {
	log := h.logger.WithField("method", "getAlert").WithField("id", c.Param("id"))
	id, ok := h.pathID(c, log)
	if !ok {
		return
	}

	alert, err := h.sosService.GetAlert(c.Request.Context(), userID(c), id)
	if err != nil {
		h.writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelToAlertResponse(alert))
}

// @Summary List trusted contacts
// @Tags Me
// @Produce json
// @Security BearerAuth
// @Success 200 {object} ContactsResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Router /me/contacts [get]
func (h *Handler) getContacts(c *gin.Context) {
	log := h.logger.WithField("method", "getContacts")

	contacts, err := h.sosService.GetContacts(c.Request.Context(), userID(c))
	if err != nil {
		h.writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ContactsResponse{Contacts: ContactsToDTO(contacts)})
}

// @Summary Replace trusted contacts
// @Description Replace the whole list of trusted contacts. Phones must be in E.164 form.
// @Tags Me
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param contacts body ReplaceContactsRequest true "New contact list"
// @Success 200 {object} ContactsResponse
// @Failure 400 {object} map[string]string "Invalid request body or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Router /me/contacts [put]
func (h *Handler) replaceContacts(c *gin.Context) {
	log := h.logger.WithField("method", "replaceContacts")

	var input ReplaceContactsRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		log.WithError(err).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.validate.Struct(input); err != nil {
		log.WithError(err).Warn("Validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	contacts := DTOToContacts(input.Contacts)
	if err := h.sosService.ReplaceContacts(c.Request.Context(), userID(c), contacts); err != nil {
		h.writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ContactsResponse{Contacts: ContactsToDTO(contacts)})
}

// @Summary Update current location
// @Description Latest location fix or a revoked location permission, used when an SOS carries no coordinate
// @Tags Me
// @Accept json
// @Security BearerAuth
// @Param location body LocationUpdateRequest true "Location fix"
// @Success 204 "No Content"
// @Failure 400 {object} map[string]string "Invalid request body or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Router /me/location [post]
func (h *Handler) updateLocation(c *gin.Context) {
	log := h.logger.WithField("method", "updateLocation")

	var input LocationUpdateRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		log.WithError(err).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.validate.Struct(input); err != nil {
		log.WithError(err).Warn("Validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fix, err := DTOToLocationFix(input, userID(c))
	if err != nil {
		h.writeError(c, log, err)
		return
	}
	if err := h.sosService.UpdateLocation(c.Request.Context(), fix); err != nil {
		h.writeError(c, log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary Get application health status
// @Description Get health status of the application
// @Tags System
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string "Status OK"
// @Router /system/health [get]
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
