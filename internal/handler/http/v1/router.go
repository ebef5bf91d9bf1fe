package v1

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes регистрирует все маршруты API v1
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	optionalUser := JWTAuthMiddleware(h.cfg.JWTSecret, h.logger, false)
	requiredUser := JWTAuthMiddleware(h.cfg.JWTSecret, h.logger, true)

	// Отчеты об инцидентах: анонимно или от имени пользователя
	reports := api.Group("/reports")
	{
		reports.POST("", optionalUser, h.submitReport)
		reports.GET("/:id", h.getReport)
	}
	api.GET("/cells/:cell/reports", h.listCellReports)

	// Модерация по API-ключу
	moderation := api.Group("/moderation", APIKeyAuthMiddleware(h.cfg, h.logger))
	{
		moderation.PATCH("/reports/:id", h.setVerification)
	}

	// Поверхность риска
	risk := api.Group("/risk")
	{
		risk.GET("/surface", h.currentSurface)
		risk.GET("/subscribe", optionalUser, h.subscribeRiskSurface)
	}
	api.POST("/location/check", h.checkLocation)

	// SOS-тревоги
	sos := api.Group("/sos", requiredUser)
	{
		sos.POST("", h.triggerSOS)
		sos.GET("/:id", h.getAlert)
	}

	// Данные текущего пользователя
	me := api.Group("/me", requiredUser)
	{
		me.GET("/contacts", h.getContacts)
		me.PUT("/contacts", h.replaceContacts)
		me.POST("/location", h.updateLocation)
	}

	// Маршрут Health-check
	api.GET("/system/health", h.healthCheck)
}
