package api

import "time"

// QueryRequest is the payload for POST /query.
// UserEmail and ChatID are optional: without them the backend still answers,
// it just cannot persist the exchange.
type QueryRequest struct {
	Question  string `json:"question"`
	UserEmail string `json:"user_email,omitempty"`
	ChatID    string `json:"chat_id,omitempty"`
}

// ChatSummary is one entry of GET /chats, ordered by server-assigned recency.
type ChatSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updated_at"`
	Preview   string    `json:"preview,omitempty"`
}

// StoredMessage is one persisted message of a chat.
// Role is "user" for user messages; anything else renders as assistant.
type StoredMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatDetail is the response of GET /chats/{id}.
type ChatDetail struct {
	Title    string          `json:"title"`
	Messages []StoredMessage `json:"messages"`
}

// createChatRequest is the payload for POST /chats.
type createChatRequest struct {
	UserEmail string `json:"user_email"`
	Title     string `json:"title"`
}

// createChatResponse is the response of POST /chats.
type createChatResponse struct {
	ChatID string `json:"chat_id"`
}

// FileInfo describes one file in the knowledge base (GET /files).
type FileInfo struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// FlashcardRequest is the payload for POST /flashcards.
type FlashcardRequest struct {
	Topic string `json:"topic"`
}

// Flashcard is one generated card.
type Flashcard struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

// FlashcardSet is the response of POST /flashcards.
type FlashcardSet struct {
	Topic      string      `json:"topic"`
	Flashcards []Flashcard `json:"flashcards"`
}

// QuizRequest is the payload for POST /generate_quiz.
type QuizRequest struct {
	Topic      string `json:"topic"`
	Count      int    `json:"count"`
	Difficulty string `json:"difficulty"`
}

// QuizQuestion is one generated multiple-choice question.
// Answer may be a single option letter ("B") or the full option text;
// study.ResolveAnswer is the one place that disambiguates.
type QuizQuestion struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Answer   string   `json:"answer"`
}

// Quiz is the response of POST /generate_quiz.
type Quiz struct {
	Topic     string         `json:"topic"`
	Questions []QuizQuestion `json:"questions"`
}
