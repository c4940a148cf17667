package classifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"go.uber.org/zap"

	"sentio/internal/domain"
)

var (
	// ErrNoSubjectDetected indica que el modelo no encontro sujeto (HTTP 400 de /analyze_face).
	ErrNoSubjectDetected = errors.New("no subject detected")
	// ErrTransport cubre fallas de red y timeouts; se reintenta en el proximo tick.
	ErrTransport = errors.New("classifier transport error")
	// ErrService cubre 5xx, status inesperados y payloads invalidos.
	ErrService = errors.New("classifier service error")
)

// Client habla con el servicio de inferencia externo. Nunca reintenta.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewClient construye un cliente HTTP apuntando al servicio de inferencia.
func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = "http://127.0.0.1:5000"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Classify envia la muestra al endpoint que corresponde a su modalidad.
func (c *Client) Classify(ctx context.Context, sample domain.Sample) ([]domain.EmotionScore, error) {
	if sample.NoSubject || len(sample.Payload) == 0 {
		return nil, ErrNoSubjectDetected
	}
	switch sample.Modality {
	case domain.ModalityVoice:
		return c.AnalyzeVoice(ctx, sample.Payload, sample.ContentType)
	case domain.ModalityFace:
		res, err := c.AnalyzeFace(ctx, sample.Payload, sample.ContentType)
		if err != nil {
			return nil, err
		}
		return res.Scores, nil
	default:
		return nil, fmt.Errorf("%w: unsupported modality %q", ErrService, sample.Modality)
	}
}

// AnalyzeVoice maneja POST /analyze_voice con el clip en el campo "audio".
func (c *Client) AnalyzeVoice(ctx context.Context, audio []byte, contentType string) ([]domain.EmotionScore, error) {
	if contentType == "" {
		contentType = "audio/wav"
	}
	body, err := c.postMultipart(ctx, "/analyze_voice", "audio", "recording.wav", contentType, audio)
	if err != nil {
		return nil, err
	}

	scores, err := decodeVoiceScores(body)
	if err != nil {
		return nil, fmt.Errorf("%w: decode voice response: %v", ErrService, err)
	}
	if len(scores) == 0 {
		return nil, fmt.Errorf("%w: analysis returned an empty result", ErrService)
	}
	return scores, nil
}

// FaceResult es la respuesta de /analyze_face con puntajes normalizados a [0,1].
type FaceResult struct {
	DominantEmotion string
	Scores          []domain.EmotionScore
}

// AnalyzeFace maneja POST /analyze_face con el frame en el campo "image".
func (c *Client) AnalyzeFace(ctx context.Context, image []byte, contentType string) (FaceResult, error) {
	if contentType == "" {
		contentType = "image/jpeg"
	}
	body, err := c.postMultipart(ctx, "/analyze_face", "image", "capture.jpg", contentType, image)
	if err != nil {
		return FaceResult{}, err
	}

	res, err := decodeFaceResult(body)
	if err != nil {
		return FaceResult{}, fmt.Errorf("%w: decode face response: %v", ErrService, err)
	}
	if len(res.Scores) == 0 {
		return FaceResult{}, fmt.Errorf("%w: face analysis returned no scores", ErrService)
	}
	return res, nil
}

func (c *Client) postMultipart(ctx context.Context, path, field, filename, contentType string, payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("create multipart: %w", err)
	}
	if _, err := part.Write(payload); err != nil {
		return nil, fmt.Errorf("write multipart: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrTransport, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(path, resp.StatusCode, respBody)
	}
	return respBody, nil
}

func (c *Client) statusError(path string, status int, body []byte) error {
	msg := errorMessage(body)
	if status == http.StatusBadRequest && path == "/analyze_face" {
		return fmt.Errorf("%w: %s", ErrNoSubjectDetected, msg)
	}
	c.logger.Warn("classifier error status",
		zap.String("path", path),
		zap.Int("status", status),
		zap.String("error", msg),
	)
	return fmt.Errorf("%w: %s status=%d: %s", ErrService, path, status, msg)
}
