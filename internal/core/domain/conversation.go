package domain

import "time"

type Chat struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ChatMessage struct {
	ID        string      `json:"id"`
	ChatID    string      `json:"chat_id"`
	Role      string      `json:"role"`
	Content   string      `json:"content"`
	Sources   []SourceRef `json:"sources,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}
