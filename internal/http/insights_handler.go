package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sentio/internal/domain"
	"sentio/internal/repository"
	"sentio/internal/service"
)

// InsightsHandler sirve recomendaciones y el historial de eventos del usuario.
type InsightsHandler struct {
	logger  *zap.Logger
	catalog *service.RecommendationCatalog
	recs    *service.RecommendationTracker
	events  repository.EventRepository
}

func NewInsightsHandler(
	logger *zap.Logger,
	catalog *service.RecommendationCatalog,
	recs *service.RecommendationTracker,
	events repository.EventRepository,
) *InsightsHandler {
	return &InsightsHandler{logger: logger, catalog: catalog, recs: recs, events: events}
}

// Recommend maneja POST /recommend.
func (h *InsightsHandler) Recommend(c *gin.Context) {
	var req struct {
		Mood string `json:"mood" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	c.JSON(http.StatusOK, h.catalog.ForMood(req.Mood))
}

// CurrentRecommendation maneja GET /recommendations/current.
func (h *InsightsHandler) CurrentRecommendation(c *gin.Context) {
	rec, ok := h.recs.Current(CurrentUserID(c))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no emotion detected yet"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// ListEvents maneja GET /events?modality=&limit=.
func (h *InsightsHandler) ListEvents(c *gin.Context) {
	var modality domain.Modality
	if raw := c.Query("modality"); raw != "" {
		switch m := domain.Modality(raw); m {
		case domain.ModalityFace, domain.ModalityVoice, domain.ModalityChat:
			modality = m
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid modality"})
			return
		}
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	userID := CurrentUserID(c)
	events, err := h.events.ListByUser(c.Request.Context(), userID, modality, limit)
	if err != nil {
		h.logger.Error("list events failed", zap.Error(err), zap.String("user_id", userID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list events"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
