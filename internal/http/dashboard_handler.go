package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"sentio/internal/feed"
	"sentio/internal/service"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
)

// DashboardHandler sirve la vista compartida de los ultimos eventos.
type DashboardHandler struct {
	logger    *zap.Logger
	dashboard *service.DashboardService
	live      feed.Feed
	upgrader  websocket.Upgrader
}

func NewDashboardHandler(logger *zap.Logger, dashboard *service.DashboardService, live feed.Feed) *DashboardHandler {
	return &DashboardHandler{
		logger:    logger,
		dashboard: dashboard,
		live:      live,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Snapshot maneja GET /dashboard.
func (h *DashboardHandler) Snapshot(c *gin.Context) {
	snap, err := h.dashboard.Snapshot(c.Request.Context())
	if err != nil {
		h.logger.Error("dashboard snapshot failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not build dashboard"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Live maneja GET /dashboard/ws: manda la vista al conectar y despues de cada evento nuevo.
func (h *DashboardHandler) Live(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	events, err := h.live.Subscribe(ctx)
	if err != nil {
		h.logger.Error("feed subscribe failed", zap.Error(err))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "feed unavailable"))
		return
	}

	// El cliente no manda nada; leer detecta el cierre y procesa los pongs.
	go func() {
		defer cancel()
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := h.push(ctx, conn); err != nil {
		return
	}

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-events:
			if !ok {
				return
			}
			if err := h.push(ctx, conn); err != nil {
				h.logger.Debug("dashboard push failed", zap.Error(err))
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *DashboardHandler) push(ctx context.Context, conn *websocket.Conn) error {
	snap, err := h.dashboard.Snapshot(ctx)
	if err != nil {
		h.logger.Warn("dashboard snapshot failed", zap.Error(err))
		return nil
	}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(snap)
}
