package capture

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sentio/internal/domain"
)

var (
	ErrAlreadyActive      = errors.New("capture already active")
	ErrSessionNotFound    = errors.New("capture session not found")
	ErrUnsupportedCapture = errors.New("modality does not support capture")
)

// Manager lleva como maximo una sesion activa por usuario y modalidad.
type Manager struct {
	device     Device
	classifier Classifier
	publisher  Publisher
	intervals  map[domain.Modality]time.Duration
	logger     *zap.Logger

	// solo para tests
	newTicker tickerFunc

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(device Device, c Classifier, p Publisher, intervals map[domain.Modality]time.Duration, logger *zap.Logger) *Manager {
	clamped := make(map[domain.Modality]time.Duration, len(intervals))
	for m, d := range intervals {
		clamped[m] = ClampInterval(d)
	}
	return &Manager{
		device:     device,
		classifier: c,
		publisher:  p,
		intervals:  clamped,
		logger:     logger,
		sessions:   make(map[string]*Session),
	}
}

func sessionKey(userID string, modality domain.Modality) string {
	return userID + "|" + string(modality)
}

func (m *Manager) sampler(modality domain.Modality, interval time.Duration) Sampler {
	if interval <= 0 {
		interval = m.intervals[modality]
	}
	s := NewSampler(interval)
	if m.newTicker != nil {
		s.newTicker = m.newTicker
	}
	return s
}

// Start arranca la captura. Un intervalo cero usa el configurado para la modalidad.
// Una sesion detenida se reemplaza por una nueva.
func (m *Manager) Start(ctx context.Context, userID string, modality domain.Modality, interval time.Duration) (Status, error) {
	if modality != domain.ModalityFace && modality != domain.ModalityVoice {
		return Status{}, ErrUnsupportedCapture
	}

	key := sessionKey(userID, modality)
	m.mu.Lock()
	if cur, ok := m.sessions[key]; ok && cur.Status().State != StateStopped {
		m.mu.Unlock()
		return cur.Status(), ErrAlreadyActive
	}
	sess := newSession(uuid.NewString(), userID, modality, m.sampler(modality, interval), m.device, m.classifier, m.publisher, m.logger)
	m.sessions[key] = sess
	m.mu.Unlock()

	if err := sess.Start(ctx); err != nil {
		return sess.Status(), err
	}
	m.logger.Info("capture started",
		zap.String("session_id", sess.id),
		zap.String("user_id", userID),
		zap.String("modality", string(modality)),
	)
	return sess.Status(), nil
}

// Stop detiene la sesion y espera al loop. Devuelve el estado final.
func (m *Manager) Stop(userID string, modality domain.Modality) (Status, error) {
	sess, ok := m.lookup(userID, modality)
	if !ok {
		return Status{}, ErrSessionNotFound
	}
	st := sess.Stop()
	sess.Wait()
	m.logger.Info("capture stopped",
		zap.String("session_id", sess.id),
		zap.String("user_id", userID),
		zap.String("modality", string(modality)),
	)
	return st, nil
}

func (m *Manager) Status(userID string, modality domain.Modality) (Status, error) {
	sess, ok := m.lookup(userID, modality)
	if !ok {
		return Status{}, ErrSessionNotFound
	}
	return sess.Status(), nil
}

func (m *Manager) Discard(userID string, modality domain.Modality) (Status, error) {
	sess, ok := m.lookup(userID, modality)
	if !ok {
		return Status{}, ErrSessionNotFound
	}
	sess.Discard()
	return sess.Status(), nil
}

// Shutdown detiene todas las sesiones abiertas.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.Stop()
		s.Wait()
	}
}

func (m *Manager) lookup(userID string, modality domain.Modality) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionKey(userID, modality)]
	return s, ok
}
