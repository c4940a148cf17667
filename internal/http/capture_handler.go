package http

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sentio/internal/capture"
	"sentio/internal/domain"
)

const maxUploadBytes = 10 << 20

// CaptureHandler expone el ciclo de vida de las sesiones de captura.
type CaptureHandler struct {
	logger  *zap.Logger
	manager *capture.Manager
	frames  *capture.PushDevice
}

// NewCaptureHandler crea el handler; frames puede ser nil si el dispositivo no recibe uploads.
func NewCaptureHandler(logger *zap.Logger, manager *capture.Manager, frames *capture.PushDevice) *CaptureHandler {
	return &CaptureHandler{logger: logger, manager: manager, frames: frames}
}

func (h *CaptureHandler) modality(c *gin.Context) (domain.Modality, bool) {
	m, ok := domain.ParseCaptureModality(c.Param("modality"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unsupported modality"})
	}
	return m, ok
}

// Start maneja POST /capture/:modality/start.
func (h *CaptureHandler) Start(c *gin.Context) {
	modality, ok := h.modality(c)
	if !ok {
		return
	}
	var req struct {
		IntervalMS int64 `json:"interval_ms"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.logger.Warn("invalid start capture request", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
	}

	userID := CurrentUserID(c)
	st, err := h.manager.Start(c.Request.Context(), userID, modality, time.Duration(req.IntervalMS)*time.Millisecond)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, gin.H{"session": st})
	case errors.Is(err, capture.ErrAlreadyActive):
		c.JSON(http.StatusConflict, gin.H{"error": "capture already active", "session": st})
	case errors.Is(err, capture.ErrPermissionDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": st.Banner, "session": st})
	default:
		h.logger.Error("start capture failed", zap.Error(err), zap.String("user_id", userID))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not start capture", "session": st})
	}
}

// Stop maneja POST /capture/:modality/stop.
func (h *CaptureHandler) Stop(c *gin.Context) {
	modality, ok := h.modality(c)
	if !ok {
		return
	}
	st, err := h.manager.Stop(CurrentUserID(c), modality)
	if err != nil {
		h.writeLookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": st})
}

// Status maneja GET /capture/:modality/status.
func (h *CaptureHandler) Status(c *gin.Context) {
	modality, ok := h.modality(c)
	if !ok {
		return
	}
	st, err := h.manager.Status(CurrentUserID(c), modality)
	if err != nil {
		h.writeLookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": st})
}

// Discard maneja POST /capture/:modality/discard.
func (h *CaptureHandler) Discard(c *gin.Context) {
	modality, ok := h.modality(c)
	if !ok {
		return
	}
	st, err := h.manager.Discard(CurrentUserID(c), modality)
	if err != nil {
		h.writeLookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": st})
}

// Frame maneja POST /capture/:modality/frame con multipart "image" o "audio".
func (h *CaptureHandler) Frame(c *gin.Context) {
	modality, ok := h.modality(c)
	if !ok {
		return
	}
	if h.frames == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "device does not accept uploads"})
		return
	}

	field := "image"
	if modality == domain.ModalityVoice {
		field = "audio"
	}
	fh, err := c.FormFile(field)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing " + field + " file"})
		return
	}
	if fh.Size > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}
	defer f.Close()
	payload, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}

	err = h.frames.Push(CurrentUserID(c), modality, payload, fh.Header.Get("Content-Type"))
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
	case errors.Is(err, capture.ErrEmptyPayload):
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty file"})
	case errors.Is(err, capture.ErrNoActiveStream), errors.Is(err, capture.ErrStreamClosed):
		c.JSON(http.StatusConflict, gin.H{"error": "no active capture"})
	default:
		h.logger.Error("push frame failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not queue frame"})
	}
}

func (h *CaptureHandler) writeLookupError(c *gin.Context, err error) {
	if errors.Is(err, capture.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "capture session not found"})
		return
	}
	h.logger.Error("capture lookup failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
