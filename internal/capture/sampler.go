package capture

import (
	"context"
	"time"

	"sentio/internal/domain"
)

// Limites observados para el intervalo del sampler.
const (
	MinInterval     = 500 * time.Millisecond
	MaxInterval     = 3000 * time.Millisecond
	DefaultInterval = 3000 * time.Millisecond
)

// ClampInterval lleva el intervalo al rango permitido; cero usa el default.
func ClampInterval(d time.Duration) time.Duration {
	switch {
	case d <= 0:
		return DefaultInterval
	case d < MinInterval:
		return MinInterval
	case d > MaxInterval:
		return MaxInterval
	default:
		return d
	}
}

type tickerFunc func(d time.Duration) (<-chan time.Time, func())

func newTimeTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Sampler produce una muestra por tick sobre un stream vivo. Cada llamada a
// Ticks arranca una secuencia nueva, por lo que se puede reiniciar.
type Sampler struct {
	interval  time.Duration
	newTicker tickerFunc
}

func NewSampler(interval time.Duration) Sampler {
	return Sampler{interval: ClampInterval(interval), newTicker: newTimeTicker}
}

func (s Sampler) Interval() time.Duration { return s.interval }

// Ticks devuelve el canal de ticks y la funcion que lo detiene.
func (s Sampler) Ticks() (<-chan time.Time, func()) {
	newTicker := s.newTicker
	if newTicker == nil {
		newTicker = newTimeTicker
	}
	return newTicker(s.interval)
}

// Sample captura una muestra. Nunca bloquea el tick esperando un sujeto:
// si no lo hay devuelve el marcador no-subject.
func (s Sampler) Sample(ctx context.Context, stream Stream, modality domain.Modality) (domain.Sample, error) {
	sample, err := stream.Capture(ctx)
	if err != nil {
		return domain.Sample{}, err
	}
	if sample.Modality == "" {
		sample.Modality = modality
	}
	if !sample.NoSubject && len(sample.Payload) == 0 {
		sample = noSubjectSample(modality, time.Now())
	}
	return sample, nil
}
