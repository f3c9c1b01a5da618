// Package postgres persists chats and their messages. It uses the pgx stdlib
// driver through database/sql.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nadavgross/faculty-rag/internal/core/domain"
)

type ChatRepository struct {
	db *sql.DB
}

func NewChatRepository(db *sql.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

func (r *ChatRepository) CreateChat(ctx context.Context, chat *domain.Chat) error {
	now := time.Now().UTC()
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = now
	}
	chat.UpdatedAt = now
	_, err := r.db.ExecContext(ctx, `
INSERT INTO chats (id, user_id, title, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5)
`, chat.ID, chat.UserID, chat.Title, chat.CreatedAt, chat.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create chat: %w", err)
	}
	return nil
}

func (r *ChatRepository) ListChats(ctx context.Context, userID string) ([]domain.Chat, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, user_id, title, created_at, updated_at
FROM chats
WHERE user_id = $1
ORDER BY updated_at DESC
`, userID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	defer rows.Close()

	var out []domain.Chat
	for rows.Next() {
		var c domain.Chat
		if err := rows.Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chats: %w", err)
	}
	return out, nil
}

func (r *ChatRepository) GetChat(ctx context.Context, userID, chatID string) (*domain.Chat, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, user_id, title, created_at, updated_at
FROM chats
WHERE user_id = $1 AND id = $2
`, userID, chatID)

	var c domain.Chat
	if err := row.Scan(&c.ID, &c.UserID, &c.Title, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrChatNotFound, "get chat", err)
		}
		return nil, fmt.Errorf("get chat: %w", err)
	}
	return &c, nil
}

func (r *ChatRepository) UpdateChatTitle(ctx context.Context, chatID, title string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE chats
SET title = $2, updated_at = $3
WHERE id = $1
`, chatID, title, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update chat title: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update chat title result: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrChatNotFound, "update chat title", sql.ErrNoRows)
	}
	return nil
}

func (r *ChatRepository) AppendMessage(ctx context.Context, message domain.ChatMessage) error {
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	sourcesJSON, err := json.Marshal(message.Sources)
	if err != nil {
		return fmt.Errorf("encode message sources: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO chat_messages (id, chat_id, role, content, sources_json, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`, message.ID, message.ChatID, message.Role, message.Content, sourcesJSON, message.CreatedAt)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
UPDATE chats SET updated_at = $2 WHERE id = $1
`, message.ChatID, message.CreatedAt)
	if err != nil {
		return fmt.Errorf("touch chat: %w", err)
	}
	return nil
}

// ClearMessages wipes a chat's conversation window, as triggered by the
// reset command or a fresh greeting. The chat row itself stays.
func (r *ChatRepository) ClearMessages(ctx context.Context, chatID string) error {
	_, err := r.db.ExecContext(ctx, `
DELETE FROM chat_messages WHERE chat_id = $1
`, chatID)
	if err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
UPDATE chats SET updated_at = $2 WHERE id = $1
`, chatID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("touch chat: %w", err)
	}
	return nil
}

func (r *ChatRepository) ListMessages(ctx context.Context, chatID string) ([]domain.ChatMessage, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, chat_id, role, content, sources_json, created_at
FROM chat_messages
WHERE chat_id = $1
ORDER BY created_at ASC
`, chatID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []domain.ChatMessage
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

// ListRecentTurns returns the last limit messages in chronological order as
// bare role/content pairs for the prompt history window.
func (r *ChatRepository) ListRecentTurns(ctx context.Context, chatID string, limit int) ([]domain.HistoryTurn, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT role, content
FROM (
	SELECT role, content, created_at
	FROM chat_messages
	WHERE chat_id = $1
	ORDER BY created_at DESC
	LIMIT $2
) recent
ORDER BY created_at ASC
`, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent turns: %w", err)
	}
	defer rows.Close()

	out := make([]domain.HistoryTurn, 0, limit)
	for rows.Next() {
		var turn domain.HistoryTurn
		if err := rows.Scan(&turn.Role, &turn.Content); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		out = append(out, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}
	return out, nil
}

func scanMessage(rows *sql.Rows) (domain.ChatMessage, error) {
	var msg domain.ChatMessage
	var sourcesJSON []byte
	if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.Role, &msg.Content, &sourcesJSON, &msg.CreatedAt); err != nil {
		return domain.ChatMessage{}, fmt.Errorf("scan message: %w", err)
	}
	if len(sourcesJSON) > 0 {
		if err := json.Unmarshal(sourcesJSON, &msg.Sources); err != nil {
			return domain.ChatMessage{}, fmt.Errorf("decode message sources: %w", err)
		}
	}
	return msg, nil
}
