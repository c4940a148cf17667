package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ChatRateLimiter limita los mensajes de chat por usuario dentro de una ventana.
type ChatRateLimiter interface {
	Allow(ctx context.Context, userID string) bool
}

// chatWindowScript cuenta los mensajes del usuario en la ventana fija actual.
// La clave incluye el inicio de la ventana, asi un contador nunca cruza ventanas.
const chatWindowScript = `
local sent = redis.call("INCR", KEYS[1])
if sent == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return sent
`

type redisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// redisChatRateLimiter comparte el contador de mensajes entre replicas del API.
type redisChatRateLimiter struct {
	client redisEvaler
	window time.Duration
	max    int
	prefix string
	now    func() time.Time
}

// NewRedisChatRateLimiter permite max mensajes por usuario y ventana. Si Redis
// falla deja pasar el mensaje.
func NewRedisChatRateLimiter(client *redis.Client, window time.Duration, max int) ChatRateLimiter {
	if client == nil {
		return nil
	}
	if window < time.Second {
		window = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	return &redisChatRateLimiter{
		client: client,
		window: window,
		max:    max,
		prefix: "chat:rl:",
		now:    time.Now,
	}
}

func (l *redisChatRateLimiter) windowKey(userID string) string {
	now := time.Now
	if l.now != nil {
		now = l.now
	}
	start := now().UTC().Truncate(l.window).Unix()
	return fmt.Sprintf("%s%s:%d", l.prefix, userID, start)
}

func (l *redisChatRateLimiter) Allow(ctx context.Context, userID string) bool {
	if l == nil || l.client == nil {
		return true
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	sent, err := l.client.Eval(ctx, chatWindowScript, []string{l.windowKey(userID)}, l.window.Milliseconds()).Int()
	if err != nil {
		return true
	}
	return sent <= l.max
}

type memoryChatRateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	hits   map[string][]time.Time
}

// NewMemoryChatRateLimiter crea un rate limiter en memoria con ventana deslizante.
func NewMemoryChatRateLimiter(window time.Duration, max int) ChatRateLimiter {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &memoryChatRateLimiter{
		window: window,
		max:    max,
		hits:   make(map[string][]time.Time),
	}
}

func (l *memoryChatRateLimiter) Allow(_ context.Context, userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now().UTC()
	cutoff := now.Add(-l.window)
	entries := l.hits[userID]
	kept := entries[:0]
	for _, ts := range entries {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.hits[userID] = kept
		return false
	}
	l.hits[userID] = append(kept, now)
	return true
}
