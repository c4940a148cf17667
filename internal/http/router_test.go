package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"sentio/internal/capture"
	"sentio/internal/classifier"
	"sentio/internal/domain"
	"sentio/internal/feed"
	"sentio/internal/repository"
	"sentio/internal/service"
)

type stubClassifier struct{}

func (stubClassifier) Classify(context.Context, domain.Sample) ([]domain.EmotionScore, error) {
	return []domain.EmotionScore{{Label: "neutral", Score: 0.9}}, nil
}

type stubChatClient struct {
	err error
}

func (s stubChatClient) Chat(_ context.Context, _ classifier.ChatRequest, onDelta func(string)) (classifier.ChatReply, error) {
	if s.err != nil {
		return classifier.ChatReply{}, s.err
	}
	onDelta("That is ")
	onDelta("great!")
	return classifier.ChatReply{Text: "That is great!", DetectedEmotion: "joy"}, nil
}

type testEnv struct {
	router  *gin.Engine
	repo    *repository.MemoryEventRepository
	pub     *service.Publisher
	manager *capture.Manager
}

func newTestEnv(t *testing.T, chat service.ChatClient) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	repo := repository.NewMemoryEventRepository()
	live := feed.NewMemoryFeed()
	catalog, err := service.LoadRecommendationCatalog("")
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	recs := service.NewRecommendationTracker(catalog)
	tones := service.NewToneTracker()
	pub := service.NewPublisher(repo, live, logger, time.Second, recs, tones)

	device := capture.NewPushDevice()
	manager := capture.NewManager(device, stubClassifier{}, pub, nil, logger)
	t.Cleanup(manager.Shutdown)

	router := NewRouter(
		logger,
		IdentityMiddleware(nil),
		NewCaptureHandler(logger, manager, device),
		NewChatHandler(logger, service.NewChatService(chat, pub, tones, nil, logger)),
		NewInsightsHandler(logger, catalog, recs, repo),
		NewDashboardHandler(logger, service.NewDashboardService(repo, 50), live),
		nil,
	)
	return &testEnv{router: router, repo: repo, pub: pub, manager: manager}
}

func (e *testEnv) do(method, path string, body []byte, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("X-User-ID", "u1")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) capture.Status {
	t.Helper()
	var out struct {
		Session capture.Status `json:"session"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v (%s)", err, rec.Body.String())
	}
	return out.Session
}

func imageForm(t *testing.T, field string) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, "frame.jpg")
	if err != nil {
		t.Fatalf("form: %v", err)
	}
	_, _ = part.Write([]byte("jpeg-bytes"))
	_ = w.Close()
	return buf.Bytes(), w.FormDataContentType()
}

func TestCaptureLifecycle(t *testing.T) {
	env := newTestEnv(t, stubChatClient{})

	rec := env.do(http.MethodPost, "/capture/face/start", []byte(`{"interval_ms":1000}`), "application/json")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	st := decodeSession(t, rec)
	if st.State != capture.StateStreaming || st.IntervalMS != 1000 || st.Tracks != 1 {
		t.Fatalf("unexpected session %+v", st)
	}

	if rec := env.do(http.MethodPost, "/capture/face/start", nil, ""); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}

	body, ct := imageForm(t, "image")
	if rec := env.do(http.MethodPost, "/capture/face/frame", body, ct); rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	if rec := env.do(http.MethodGet, "/capture/face/status", nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = env.do(http.MethodPost, "/capture/face/stop", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	st = decodeSession(t, rec)
	if st.State != capture.StateStopped || st.Tracks != 0 {
		t.Fatalf("unexpected stopped session %+v", st)
	}

	if rec := env.do(http.MethodPost, "/capture/face/frame", body, ct); rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 after stop, got %d", rec.Code)
	}
}

func TestCaptureErrors(t *testing.T) {
	env := newTestEnv(t, stubChatClient{})

	if rec := env.do(http.MethodPost, "/capture/chat/start", nil, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unsupported modality, got %d", rec.Code)
	}
	if rec := env.do(http.MethodPost, "/capture/voice/stop", nil, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", rec.Code)
	}
	if rec := env.do(http.MethodPost, "/capture/voice/start", []byte(`{"interval_ms":"x"}`), "application/json"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/capture/face/status", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without identity, got %d", rec.Code)
	}
}

func TestChatAndRecommendations(t *testing.T) {
	env := newTestEnv(t, stubChatClient{})

	if rec := env.do(http.MethodGet, "/recommendations/current", nil, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 before any emotion, got %d", rec.Code)
	}

	rec := env.do(http.MethodPost, "/chat", []byte(`{"message":"I passed my exam"}`), "application/json")
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var res service.ChatResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.BotMessage.Text != "That is great!" || res.BotMessage.Emoji != "😊" {
		t.Fatalf("unexpected bot message %+v", res.BotMessage)
	}

	rec = env.do(http.MethodGet, "/chat/"+res.SessionID, nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "How are you feeling today?") {
		t.Fatalf("unexpected transcript %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(http.MethodGet, "/recommendations/current", nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"mood":"happy"`) {
		t.Fatalf("unexpected recommendation %d: %s", rec.Code, rec.Body.String())
	}

	rec = env.do(http.MethodPost, "/recommend", []byte(`{"mood":"sadness"}`), "application/json")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"mood":"sad"`) {
		t.Fatalf("unexpected recommend %d: %s", rec.Code, rec.Body.String())
	}

	env.pub.Wait()
	rec = env.do(http.MethodGet, "/events?modality=chat", nil, "")
	var events struct {
		Events []domain.EmotionEvent `json:"events"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &events)
	if len(events.Events) != 1 || events.Events[0].BotResponse != "That is great!" {
		t.Fatalf("unexpected events %s", rec.Body.String())
	}
	if rec := env.do(http.MethodGet, "/events?modality=smell", nil, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad modality, got %d", rec.Code)
	}
}

func TestChatStreamAndFallback(t *testing.T) {
	env := newTestEnv(t, stubChatClient{})
	rec := env.do(http.MethodPost, "/chat?stream=true", []byte(`{"message":"hi"}`), "application/json")
	body := rec.Body.String()
	if !strings.Contains(body, "event:delta") || !strings.Contains(body, "event:done") {
		t.Fatalf("expected SSE events, got %q", body)
	}
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/event-stream") {
		t.Fatalf("unexpected content type %q", rec.Header().Get("Content-Type"))
	}

	down := newTestEnv(t, stubChatClient{err: errors.New("connection refused")})
	rec = down.do(http.MethodPost, "/chat", []byte(`{"message":"hi"}`), "application/json")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "trouble connecting") {
		t.Fatalf("expected fallback text, got %s", rec.Body.String())
	}
	if rec := down.do(http.MethodPost, "/chat", []byte(`{}`), "application/json"); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestDashboardSnapshotAndLive(t *testing.T) {
	env := newTestEnv(t, stubChatClient{})

	rec := env.do(http.MethodGet, "/dashboard", nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"mood":"N/A"`) {
		t.Fatalf("unexpected empty dashboard %d: %s", rec.Code, rec.Body.String())
	}

	srv := httptest.NewServer(env.router)
	defer srv.Close()
	header := http.Header{}
	header.Set("X-User-ID", "u1")
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/dashboard/ws", header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var snap service.DashboardSnapshot
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("read initial snapshot: %v", err)
	}
	if snap.Total != 0 {
		t.Fatalf("expected empty snapshot, got %+v", snap)
	}

	scores := []domain.EmotionScore{{Label: "sad", Score: 0.8}}
	r, _ := service.DefaultEmotionReducer.Reduce(scores)
	env.pub.Publish(context.Background(), service.NewEmotionEvent("u2", domain.ModalityFace, scores, r, time.Now()), nil)

	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("read live snapshot: %v", err)
	}
	if snap.Total != 1 || snap.DominantMood.Mood != domain.EmotionSad {
		t.Fatalf("unexpected live snapshot %+v", snap)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, stubChatClient{})
	if rec := env.do(http.MethodGet, "/healthz", nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec := env.do(http.MethodGet, "/metrics", nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "sentio_http_requests_total") {
		t.Fatalf("expected metrics output, got %d", rec.Code)
	}
}
