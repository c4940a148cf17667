package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"sentio/internal/classifier"
	"sentio/internal/domain"
	"sentio/internal/metrics"
	"sentio/internal/service"
)

// State es el estado de una sesion de captura por modalidad.
type State string

const (
	StateIdle                 State = "idle"
	StateRequestingPermission State = "requesting_permission"
	StateStreaming            State = "streaming"
	StateSampling             State = "sampling"
	StateClassifying          State = "classifying"
	StateStopped              State = "stopped"
)

// Textos de estado visibles para el usuario.
const (
	StatusSearching   = "searching…"
	StatusStreaming   = "streaming"
	StatusStopped     = "capture stopped"
	StatusRetrying    = "connection problem, retrying on next capture"
	StatusServiceFail = "analysis failed, retrying on next capture"
)

var ErrSessionStopped = errors.New("capture session stopped")

// Classifier clasifica una muestra. No debe reintentar por su cuenta.
type Classifier interface {
	Classify(ctx context.Context, sample domain.Sample) ([]domain.EmotionScore, error)
}

// Publisher reparte un resultado reducido.
type Publisher interface {
	Publish(ctx context.Context, event domain.EmotionEvent, ui service.StateSink)
}

// Status es la foto del estado visible de una sesion.
type Status struct {
	SessionID  string               `json:"session_id"`
	UserID     string               `json:"user_id"`
	Modality   domain.Modality      `json:"modality"`
	State      State                `json:"state"`
	StatusText string               `json:"status"`
	Banner     string               `json:"banner,omitempty"`
	IntervalMS int64                `json:"interval_ms"`
	Tracks     int                  `json:"tracks"`
	LastEvent  *domain.EmotionEvent `json:"last_event,omitempty"`
	StartedAt  time.Time            `json:"started_at"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

// Session ejecuta el loop Capture-Classify-Publish de un usuario y una modalidad.
// Solo la goroutine del loop escribe el resultado; los lectores reciben copias.
type Session struct {
	id         string
	userID     string
	modality   domain.Modality
	sampler    Sampler
	device     Device
	classifier Classifier
	publisher  Publisher
	reducer    service.EmotionReducer
	logger     *zap.Logger
	now        func() time.Time

	mu      sync.RWMutex
	status  Status
	stream  Stream
	active  bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}

	stopOnce sync.Once
	doneOnce sync.Once
}

type classifyResult struct {
	sample domain.Sample
	scores []domain.EmotionScore
	err    error
}

func newSession(id, userID string, modality domain.Modality, sampler Sampler, device Device, c Classifier, p Publisher, logger *zap.Logger) *Session {
	now := time.Now().UTC()
	return &Session{
		id:         id,
		userID:     userID,
		modality:   modality,
		sampler:    sampler,
		device:     device,
		classifier: c,
		publisher:  p,
		reducer:    service.DefaultEmotionReducer,
		logger:     logger,
		now:        time.Now,
		done:       make(chan struct{}),
		status: Status{
			SessionID:  id,
			UserID:     userID,
			Modality:   modality,
			State:      StateIdle,
			IntervalMS: sampler.Interval().Milliseconds(),
			StartedAt:  now,
			UpdatedAt:  now,
		},
	}
}

// Start pide el dispositivo y arranca el loop. Un permiso denegado deja la sesion
// detenida con un banner persistente.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		s.closeDone()
		return ErrSessionStopped
	}
	s.setStateLocked(StateRequestingPermission, "requesting device permission")
	s.mu.Unlock()

	stream, err := s.device.Open(ctx, s.userID, s.modality)
	if err != nil {
		s.mu.Lock()
		s.stopped = true
		s.status.Banner = permissionBanner(s.modality, err)
		s.setStateLocked(StateStopped, StatusStopped)
		s.mu.Unlock()
		s.closeDone()
		s.logger.Warn("capture device open failed",
			zap.Error(err),
			zap.String("user_id", s.userID),
			zap.String("modality", string(s.modality)),
		)
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if s.stopped {
		// Stop llego mientras se pedia el permiso.
		s.mu.Unlock()
		cancel()
		_ = stream.Close()
		s.closeDone()
		return ErrSessionStopped
	}
	s.stream = stream
	s.active = true
	s.cancel = cancel
	s.setStateLocked(StateStreaming, StatusStreaming)
	s.mu.Unlock()

	metrics.ActiveCaptures.WithLabelValues(string(s.modality)).Inc()
	ticks, stopTicker := s.sampler.Ticks()
	go s.run(loopCtx, stream, ticks, stopTicker)
	return nil
}

func (s *Session) run(ctx context.Context, stream Stream, ticks <-chan time.Time, stopTicker func()) {
	defer s.closeDone()
	defer stopTicker()

	// Buffer de 1: con un solo pedido pendiente el envio nunca bloquea,
	// aunque el loop ya haya terminado.
	results := make(chan classifyResult, 1)
	pending := false
	modality := string(s.modality)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			if pending {
				metrics.SamplerTicks.WithLabelValues(modality, metrics.OutcomeSkipped).Inc()
				continue
			}
			s.setState(StateSampling, "")
			sample, err := s.sampler.Sample(ctx, stream, s.modality)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				metrics.SamplerTicks.WithLabelValues(modality, metrics.OutcomeError).Inc()
				s.logger.Warn("capture failed", zap.Error(err), zap.String("session_id", s.id))
				s.setState(StateStreaming, "capture failed, retrying on next tick")
				continue
			}
			if sample.NoSubject {
				metrics.SamplerTicks.WithLabelValues(modality, metrics.OutcomeNoSubject).Inc()
				s.applyNoSubject()
				continue
			}
			pending = true
			s.setState(StateClassifying, "")
			go s.classify(ctx, sample, results)
		case res := <-results:
			pending = false
			s.handleResult(ctx, res)
		}
	}
}

func (s *Session) classify(ctx context.Context, sample domain.Sample, results chan<- classifyResult) {
	start := time.Now()
	scores, err := s.classifier.Classify(ctx, sample)
	metrics.ClassifyLatency.WithLabelValues(string(s.modality)).Observe(time.Since(start).Seconds())
	results <- classifyResult{sample: sample, scores: scores, err: err}
}

func (s *Session) handleResult(ctx context.Context, res classifyResult) {
	if ctx.Err() != nil || !s.IsActive() {
		return
	}
	modality := string(s.modality)

	if res.err != nil {
		switch {
		case errors.Is(res.err, classifier.ErrNoSubjectDetected):
			metrics.SamplerTicks.WithLabelValues(modality, metrics.OutcomeNoSubject).Inc()
			s.applyNoSubject()
		case errors.Is(res.err, classifier.ErrTransport):
			metrics.SamplerTicks.WithLabelValues(modality, metrics.OutcomeError).Inc()
			s.logger.Warn("classifier transport error", zap.Error(res.err), zap.String("session_id", s.id))
			s.setState(StateStreaming, StatusRetrying)
		default:
			metrics.SamplerTicks.WithLabelValues(modality, metrics.OutcomeError).Inc()
			s.logger.Warn("classifier error", zap.Error(res.err), zap.String("session_id", s.id))
			s.setState(StateStreaming, StatusServiceFail)
		}
		return
	}

	reduction, err := s.reducer.Reduce(res.scores)
	if err != nil {
		metrics.SamplerTicks.WithLabelValues(modality, metrics.OutcomeError).Inc()
		s.setState(StateStreaming, StatusServiceFail)
		return
	}
	metrics.SamplerTicks.WithLabelValues(modality, metrics.OutcomeClassified).Inc()

	event := service.NewEmotionEvent(s.userID, s.modality, res.scores, reduction, s.now())
	s.publisher.Publish(ctx, event, s)
}

// Apply implementa service.StateSink. Un resultado que llega despues de Stop se
// rechaza y el publisher no lo persiste.
func (s *Session) Apply(event domain.EmotionEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return false
	}
	ev := event
	s.status.LastEvent = &ev
	s.status.Banner = ""
	s.setStateLocked(StateStreaming, event.Interpretation.Message)
	return true
}

func (s *Session) applyNoSubject() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	s.status.LastEvent = nil
	s.setStateLocked(StateStreaming, StatusSearching)
}

// Discard oculta el ultimo resultado localmente; el log persistido no cambia.
func (s *Session) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.LastEvent = nil
	s.status.UpdatedAt = s.now().UTC()
}

// Stop es alcanzable desde cualquier estado. Libera el stream antes de devolver.
func (s *Session) Stop() Status {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		wasActive := s.active
		s.active = false
		s.stopped = true
		stream := s.stream
		cancel := s.cancel
		s.setStateLocked(StateStopped, StatusStopped)
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if stream != nil {
			if err := stream.Close(); err != nil {
				s.logger.Warn("stream close failed", zap.Error(err), zap.String("session_id", s.id))
			}
		}
		if wasActive {
			metrics.ActiveCaptures.WithLabelValues(string(s.modality)).Dec()
		}
	})
	return s.Status()
}

// Wait espera a que termine la goroutine del loop, o a que Start haya
// terminado sin lanzarla.
func (s *Session) Wait() {
	<-s.done
}

func (s *Session) closeDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *Session) IsActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Status devuelve una copia del estado visible.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.status
	if st.LastEvent != nil {
		ev := *st.LastEvent
		st.LastEvent = &ev
	}
	if s.stream != nil {
		st.Tracks = s.stream.Tracks()
	}
	return st
}

func (s *Session) setState(state State, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return
	}
	s.setStateLocked(state, text)
}

func (s *Session) setStateLocked(state State, text string) {
	s.status.State = state
	if text != "" {
		s.status.StatusText = text
	}
	s.status.UpdatedAt = s.now().UTC()
}

func permissionBanner(modality domain.Modality, err error) string {
	device := "camera"
	if modality == domain.ModalityVoice {
		device = "microphone"
	}
	if errors.Is(err, ErrPermissionDenied) {
		return fmt.Sprintf("Could not access the %s. Please check your permissions.", device)
	}
	return fmt.Sprintf("Could not start the %s: %v", device, err)
}
