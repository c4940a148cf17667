package domain

import "time"

const (
	ChatSenderUser = "user"
	ChatSenderBot  = "bot"
)

type ChatMessage struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Emotion   string    `json:"emotion,omitempty"`
	Emoji     string    `json:"emoji,omitempty"`
	Streaming bool      `json:"streaming,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Recommendation agrupa el contenido sugerido para un estado de animo.
type Recommendation struct {
	Mood  string          `json:"mood"`
	Music MusicSuggestion `json:"music"`
	Video VideoSuggestion `json:"video"`
	Quote QuoteSuggestion `json:"quote"`
}

type MusicSuggestion struct {
	Title  string `json:"title" yaml:"title"`
	Artist string `json:"artist" yaml:"artist"`
	Link   string `json:"link" yaml:"link"`
}

type VideoSuggestion struct {
	Title string `json:"title" yaml:"title"`
	Link  string `json:"link" yaml:"link"`
}

type QuoteSuggestion struct {
	Text   string `json:"text" yaml:"text"`
	Author string `json:"author" yaml:"author"`
}
