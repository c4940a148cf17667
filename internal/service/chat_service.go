package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sentio/internal/classifier"
	"sentio/internal/domain"
)

const (
	chatGreeting     = "Hello! How are you feeling today?"
	chatFallbackText = "Sorry, I'm having trouble connecting. Please try again."
	chatHistoryLimit = 20

	// Las sesiones las nombra el cliente: se vencen por inactividad y se
	// limitan por usuario.
	chatSessionIdleTTL     = 30 * time.Minute
	maxChatSessionsPerUser = 10
)

var (
	ErrChatSessionNotFound = errors.New("chat session not found")
	ErrChatUnavailable     = errors.New("chat unavailable")
	ErrEmptyMessage        = errors.New("empty message")
	ErrChatRateLimited     = errors.New("too many chat messages")
)

// ChatClient genera la respuesta del bot a partir del mensaje y la emocion actual.
type ChatClient interface {
	Chat(ctx context.Context, req classifier.ChatRequest, onDelta func(string)) (classifier.ChatReply, error)
}

var chatEmojis = map[string]string{
	"joy":      "😊",
	"sadness":  "😢",
	"anger":    "😠",
	"optimism": "🙂",
	"love":     "❤️",
	"fear":     "😨",
	"disgust":  "🤢",
	"surprise": "😲",
	"neutral":  "🤖",
}

// ChatEmoji mapea la emocion detectada en texto a su badge.
func ChatEmoji(label string) string {
	if e, ok := chatEmojis[strings.ToLower(strings.TrimSpace(label))]; ok {
		return e
	}
	return "🤖"
}

type chatSession struct {
	userID     string
	transcript *Transcript
	lastUsed   time.Time
	// sendMu serializa los envios: el transcript tiene un unico escritor a la vez.
	sendMu sync.Mutex
}

// ChatService coordina el chatbot que adapta el tono a la emocion del usuario.
type ChatService struct {
	client    ChatClient
	publisher *Publisher
	tones     *ToneTracker
	limiter   ChatRateLimiter
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*chatSession
}

// NewChatService crea el servicio; limiter puede ser nil.
func NewChatService(client ChatClient, publisher *Publisher, tones *ToneTracker, limiter ChatRateLimiter, logger *zap.Logger) *ChatService {
	return &ChatService{
		client:    client,
		publisher: publisher,
		tones:     tones,
		limiter:   limiter,
		logger:    logger,
		now:       time.Now,
		sessions:  make(map[string]*chatSession),
	}
}

type ChatResult struct {
	SessionID   string             `json:"session_id"`
	UserMessage domain.ChatMessage `json:"user_message"`
	BotMessage  domain.ChatMessage `json:"bot_message"`
}

// Transcript devuelve los mensajes de una sesion del usuario.
func (s *ChatService) Transcript(userID, sessionID string) ([]domain.ChatMessage, error) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	if ok && s.now().Sub(sess.lastUsed) > chatSessionIdleTTL {
		ok = false
	}
	s.mu.Unlock()
	if !ok || sess.userID != userID {
		return nil, ErrChatSessionNotFound
	}
	return sess.transcript.Messages(), nil
}

// Send agrega el mensaje del usuario, arma la respuesta del bot delta a delta y
// publica el evento de chat. onUpdate recibe cada version del mensaje del bot.
func (s *ChatService) Send(ctx context.Context, userID, sessionID, text string, onUpdate func(domain.ChatMessage)) (ChatResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ChatResult{}, ErrEmptyMessage
	}
	if s.limiter != nil && !s.limiter.Allow(ctx, userID) {
		return ChatResult{}, ErrChatRateLimited
	}
	if onUpdate == nil {
		onUpdate = func(domain.ChatMessage) {}
	}

	sess, sessionID, err := s.session(userID, sessionID)
	if err != nil {
		return ChatResult{}, err
	}
	sess.sendMu.Lock()
	defer sess.sendMu.Unlock()

	history := sess.transcript.History(chatHistoryLimit)

	userMsg := domain.ChatMessage{
		ID:        uuid.NewString(),
		Sender:    domain.ChatSenderUser,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	sess.transcript.Upsert(userMsg)

	botMsg := domain.ChatMessage{
		ID:        uuid.NewString(),
		Sender:    domain.ChatSenderBot,
		Streaming: true,
		CreatedAt: time.Now().UTC(),
	}
	sess.transcript.Upsert(botMsg)

	var assembled strings.Builder
	reply, err := s.client.Chat(ctx, classifier.ChatRequest{
		Message: text,
		Emotion: s.tones.Emotion(userID),
		History: history,
	}, func(delta string) {
		assembled.WriteString(delta)
		botMsg.Text = assembled.String()
		sess.transcript.Upsert(botMsg)
		onUpdate(botMsg)
	})
	if err != nil {
		s.logger.Warn("chat reply failed", zap.Error(err), zap.String("user_id", userID), zap.String("session_id", sessionID))
		botMsg.Text = chatFallbackText
		botMsg.Emotion = domain.EmotionNeutral
		botMsg.Emoji = ChatEmoji(domain.EmotionNeutral)
		botMsg.Streaming = false
		sess.transcript.Upsert(botMsg)
		onUpdate(botMsg)
		return ChatResult{SessionID: sessionID, UserMessage: userMsg, BotMessage: botMsg}, fmt.Errorf("%w: %v", ErrChatUnavailable, err)
	}

	botMsg.Text = reply.Text
	botMsg.Emotion = reply.DetectedEmotion
	botMsg.Emoji = ChatEmoji(reply.DetectedEmotion)
	botMsg.Streaming = false
	sess.transcript.Upsert(botMsg)
	onUpdate(botMsg)

	scores := []domain.EmotionScore{{Label: reply.DetectedEmotion, Score: 1.0}}
	reduction, err := DefaultEmotionReducer.Reduce(scores)
	if err == nil {
		event := NewEmotionEvent(userID, domain.ModalityChat, scores, reduction, time.Now())
		event.ChatMessage = text
		event.BotResponse = reply.Text
		s.publisher.Publish(ctx, event, nil)
	}

	return ChatResult{SessionID: sessionID, UserMessage: userMsg, BotMessage: botMsg}, nil
}

func (s *ChatService) session(userID, sessionID string) (*chatSession, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	sess, ok := s.sessions[sessionID]
	if ok && now.Sub(sess.lastUsed) <= chatSessionIdleTTL {
		if sess.userID != userID {
			return nil, "", ErrChatSessionNotFound
		}
		sess.lastUsed = now
		return sess, sessionID, nil
	}

	s.pruneLocked(userID, now)
	sess = &chatSession{
		userID:   userID,
		lastUsed: now,
		transcript: NewTranscript(domain.ChatMessage{
			ID:        uuid.NewString(),
			Sender:    domain.ChatSenderBot,
			Text:      chatGreeting,
			Emotion:   domain.EmotionNeutral,
			Emoji:     ChatEmoji(domain.EmotionNeutral),
			CreatedAt: time.Now().UTC(),
		}),
	}
	s.sessions[sessionID] = sess
	return sess, sessionID, nil
}

// pruneLocked borra las sesiones vencidas y, si el usuario llego al tope,
// las menos usadas de ese usuario. Requiere s.mu.
func (s *ChatService) pruneLocked(userID string, now time.Time) {
	owned := 0
	for id, sess := range s.sessions {
		if now.Sub(sess.lastUsed) > chatSessionIdleTTL {
			delete(s.sessions, id)
			continue
		}
		if sess.userID == userID {
			owned++
		}
	}
	for ; owned >= maxChatSessionsPerUser; owned-- {
		oldestID := ""
		var oldest time.Time
		for id, sess := range s.sessions {
			if sess.userID != userID {
				continue
			}
			if oldestID == "" || sess.lastUsed.Before(oldest) {
				oldestID, oldest = id, sess.lastUsed
			}
		}
		delete(s.sessions, oldestID)
	}
}
