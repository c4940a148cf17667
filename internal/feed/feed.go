package feed

import (
	"context"
	"sync"

	"sentio/internal/domain"
)

// Feed anuncia eventos recien persistidos a los dashboards conectados.
type Feed interface {
	Publish(ctx context.Context, event domain.EmotionEvent) error
	// Subscribe entrega eventos hasta que se cancela ctx; entonces cierra el canal.
	Subscribe(ctx context.Context) (<-chan domain.EmotionEvent, error)
}

const subscriberBuffer = 16

// MemoryFeed reparte eventos dentro del proceso. Un suscriptor lento pierde
// notificaciones en vez de frenar al publicador.
type MemoryFeed struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan domain.EmotionEvent
}

func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{subs: make(map[int]chan domain.EmotionEvent)}
}

func (f *MemoryFeed) Publish(_ context.Context, event domain.EmotionEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

func (f *MemoryFeed) Subscribe(ctx context.Context) (<-chan domain.EmotionEvent, error) {
	ch := make(chan domain.EmotionEvent, subscriberBuffer)

	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = ch
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		delete(f.subs, id)
		close(ch)
		f.mu.Unlock()
	}()
	return ch, nil
}
