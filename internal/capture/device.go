package capture

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"sentio/internal/domain"
)

var (
	ErrPermissionDenied = errors.New("device permission denied")
	ErrStreamClosed     = errors.New("stream closed")
	ErrNoActiveStream   = errors.New("no active stream")
	ErrEmptyPayload     = errors.New("empty payload")
)

// Device abre el stream de captura; equivale al pedido de permiso del dispositivo.
type Device interface {
	Open(ctx context.Context, userID string, modality domain.Modality) (Stream, error)
}

// Stream es el stream vivo de un dispositivo. Close libera todas las pistas y es idempotente.
type Stream interface {
	// Capture extrae una muestra. Si no hay sujeto devuelve una muestra con NoSubject.
	Capture(ctx context.Context) (domain.Sample, error)
	Tracks() int
	Close() error
}

func noSubjectSample(modality domain.Modality, now time.Time) domain.Sample {
	return domain.Sample{
		ID:         uuid.NewString(),
		Modality:   modality,
		CapturedAt: now.UTC(),
		NoSubject:  true,
	}
}

// PushDevice recibe frames o clips subidos por el cliente. Cada tick toma el
// ultimo upload una sola vez.
type PushDevice struct {
	mu      sync.Mutex
	streams map[string]*pushStream
}

func NewPushDevice() *PushDevice {
	return &PushDevice{streams: make(map[string]*pushStream)}
}

func pushKey(userID string, modality domain.Modality) string {
	return userID + "|" + string(modality)
}

func (d *PushDevice) Open(_ context.Context, userID string, modality domain.Modality) (Stream, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: missing user", ErrPermissionDenied)
	}
	s := &pushStream{device: d, key: pushKey(userID, modality), modality: modality}

	d.mu.Lock()
	defer d.mu.Unlock()
	if prev, ok := d.streams[s.key]; ok {
		prev.release()
	}
	d.streams[s.key] = s
	return s, nil
}

// Push deja disponible el ultimo frame o clip del usuario para el proximo tick.
func (d *PushDevice) Push(userID string, modality domain.Modality, payload []byte, contentType string) error {
	if len(payload) == 0 {
		return ErrEmptyPayload
	}
	d.mu.Lock()
	s, ok := d.streams[pushKey(userID, modality)]
	d.mu.Unlock()
	if !ok {
		return ErrNoActiveStream
	}
	return s.put(domain.Sample{
		ID:          uuid.NewString(),
		Modality:    modality,
		Payload:     payload,
		ContentType: contentType,
		CapturedAt:  time.Now().UTC(),
	})
}

func (d *PushDevice) remove(s *pushStream) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.streams[s.key]; ok && cur == s {
		delete(d.streams, s.key)
	}
}

type pushStream struct {
	device   *PushDevice
	key      string
	modality domain.Modality

	mu     sync.Mutex
	latest *domain.Sample
	closed bool
}

func (s *pushStream) put(sample domain.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	s.latest = &sample
	return nil
}

func (s *pushStream) Capture(_ context.Context) (domain.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.Sample{}, ErrStreamClosed
	}
	if s.latest == nil {
		return noSubjectSample(s.modality, time.Now()), nil
	}
	sample := *s.latest
	s.latest = nil
	return sample, nil
}

func (s *pushStream) Tracks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}
	return 1
}

func (s *pushStream) Close() error {
	s.release()
	s.device.remove(s)
	return nil
}

func (s *pushStream) release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.latest = nil
}

var modalityExtensions = map[domain.Modality]map[string]struct{}{
	domain.ModalityFace:  {".jpg": {}, ".jpeg": {}, ".png": {}},
	domain.ModalityVoice: {".wav": {}, ".mp3": {}, ".m4a": {}, ".ogg": {}, ".webm": {}},
}

// DirDevice reproduce en ciclo los archivos de un directorio como si fueran capturas.
type DirDevice struct {
	Dir string
}

func NewDirDevice(dir string) *DirDevice {
	return &DirDevice{Dir: dir}
}

func (d *DirDevice) Open(_ context.Context, _ string, modality domain.Modality) (Stream, error) {
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) || errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return nil, err
	}

	exts := modalityExtensions[modality]
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := exts[strings.ToLower(filepath.Ext(e.Name()))]; ok {
			files = append(files, filepath.Join(d.Dir, e.Name()))
		}
	}
	sort.Strings(files)
	return &dirStream{modality: modality, files: files}, nil
}

type dirStream struct {
	modality domain.Modality
	files    []string

	mu     sync.Mutex
	pos    int
	closed bool
}

func (s *dirStream) Capture(_ context.Context) (domain.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.Sample{}, ErrStreamClosed
	}
	if len(s.files) == 0 {
		return noSubjectSample(s.modality, time.Now()), nil
	}

	path := s.files[s.pos%len(s.files)]
	s.pos++
	payload, err := os.ReadFile(path)
	if err != nil {
		return domain.Sample{}, fmt.Errorf("read %s: %w", path, err)
	}
	if len(payload) == 0 {
		return noSubjectSample(s.modality, time.Now()), nil
	}
	return domain.Sample{
		ID:          uuid.NewString(),
		Modality:    s.modality,
		Payload:     payload,
		ContentType: mime.TypeByExtension(strings.ToLower(filepath.Ext(path))),
		CapturedAt:  time.Now().UTC(),
	}, nil
}

func (s *dirStream) Tracks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0
	}
	return 1
}

func (s *dirStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
