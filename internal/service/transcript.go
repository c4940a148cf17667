package service

import (
	"sync"

	"sentio/internal/classifier"
	"sentio/internal/domain"
)

// Transcript es un buffer append-only de mensajes con reemplazo por id.
// Un mensaje en streaming se reescribe completo en cada delta, nunca se concatena in situ.
type Transcript struct {
	mu       sync.RWMutex
	messages []domain.ChatMessage
	index    map[string]int
}

func NewTranscript(initial ...domain.ChatMessage) *Transcript {
	t := &Transcript{index: make(map[string]int)}
	for _, m := range initial {
		t.Upsert(m)
	}
	return t
}

// Upsert reemplaza el mensaje con el mismo id o lo agrega al final. Es idempotente.
func (t *Transcript) Upsert(msg domain.ChatMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i, ok := t.index[msg.ID]; ok {
		t.messages[i] = msg
		return
	}
	t.index[msg.ID] = len(t.messages)
	t.messages = append(t.messages, msg)
}

// Messages devuelve una copia en orden de insercion.
func (t *Transcript) Messages() []domain.ChatMessage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]domain.ChatMessage(nil), t.messages...)
}

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// History arma el historial para el modelo con los ultimos limit mensajes completos.
func (t *Transcript) History(limit int) []classifier.ChatTurn {
	t.mu.RLock()
	defer t.mu.RUnlock()

	turns := make([]classifier.ChatTurn, 0, len(t.messages))
	for _, m := range t.messages {
		if m.Streaming || m.Text == "" {
			continue
		}
		role := "user"
		if m.Sender == domain.ChatSenderBot {
			role = "model"
		}
		turns = append(turns, classifier.ChatTurn{Role: role, Parts: []classifier.ChatPart{{Text: m.Text}}})
	}
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns
}
