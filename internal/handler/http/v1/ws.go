package v1

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/shenikar/safesteps/internal/fanout"
)

const subscribeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// мобильный клиент не присылает Origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

// @Summary Subscribe to risk surface
// @Description WebSocket stream of cell deltas. The first client frame is a SubscribeMessage; a reconnecting client sends the epoch and the last versions it saw and receives only newer deltas, or a snapshot when they cannot be replayed. Slow clients are disconnected with close code 1013.
// @Tags Risk
// @Param token query string false "Bearer token for clients that cannot set headers"
// @Success 101 "Switching Protocols"
// @Router /risk/subscribe [get]
func (h *Handler) subscribeRiskSurface(c *gin.Context) {
	log := h.logger.WithField("method", "subscribeRiskSurface")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("Failed to upgrade connection")
		return
	}

	var msg SubscribeMessage
	_ = conn.SetReadDeadline(time.Now().Add(subscribeWait))
	if err := conn.ReadJSON(&msg); err != nil {
		log.WithError(err).Warn("Failed to read subscribe message")
		closeWithError(conn, websocket.CloseUnsupportedData, "invalid subscribe message")
		return
	}
	if err := h.validate.Struct(msg); err != nil {
		log.WithError(err).Warn("Validation failed")
		closeWithError(conn, websocket.ClosePolicyViolation, err.Error())
		return
	}

	region, err := QueryToRegion(msg.RegionQuery)
	if err != nil {
		closeWithError(conn, websocket.ClosePolicyViolation, err.Error())
		return
	}
	lastSeen, err := LastSeenToModel(msg.LastSeen)
	if err != nil {
		closeWithError(conn, websocket.ClosePolicyViolation, err.Error())
		return
	}

	sub, initial, err := h.surfaceService.Subscribe(c.Request.Context(), region, msg.Epoch, lastSeen)
	if err != nil {
		log.WithError(err).Warn("Subscription rejected")
		closeWithError(conn, websocket.ClosePolicyViolation, err.Error())
		return
	}
	defer h.surfaceService.Unsubscribe(sub.ID)

	log.WithField("subscription_id", sub.ID).Info("Risk subscriber connected")
	fanout.NewClient(conn, sub, initial, h.logger).Run()
}

func closeWithError(conn *websocket.Conn, code int, reason string) {
	// длина причины в close-фрейме ограничена 123 байтами
	if len(reason) > 120 {
		reason = reason[:120]
	}
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
	_ = conn.Close()
}
