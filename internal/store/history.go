package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Message is one persisted conversation turn. Timestamps are assigned by the
// store and are strictly increasing within a (userID, chatID) partition, so
// insertion order and timestamp order never disagree.
type Message struct {
	ID         string
	UserID     string
	ChatID     string
	Role       string
	Text       string
	Timestamp  time.Time
	SenderID   string
	ReceiverID string
	SenderName string
}

// AppendMessage persists a turn and returns it with the assigned id and
// timestamp filled in.
func (s *Store) AppendMessage(ctx context.Context, msg Message) (*Message, error) {
	if strings.TrimSpace(msg.UserID) == "" || strings.TrimSpace(msg.ChatID) == "" {
		return nil, fmt.Errorf("append message: empty user or chat id")
	}
	if msg.Role != RoleUser && msg.Role != RoleModel {
		return nil, fmt.Errorf("append message: invalid role %q", msg.Role)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var lastTs int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(ts), 0) FROM messages
		WHERE user_id = ? AND chat_id = ?`, msg.UserID, msg.ChatID).Scan(&lastTs)
	if err != nil {
		return nil, fmt.Errorf("append message: read last timestamp: %w", err)
	}

	ts := time.Now().UnixMicro()
	if ts <= lastTs {
		ts = lastTs + 1
	}

	msg.ID = uuid.NewString()
	msg.Timestamp = time.UnixMicro(ts)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (id, user_id, chat_id, role, text, ts, sender_id, receiver_id, sender_name)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.UserID, msg.ChatID, msg.Role, msg.Text, ts,
		msg.SenderID, msg.ReceiverID, msg.SenderName)
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	return &msg, nil
}

// History returns a chat's turns in timestamp order. Rows with roles other
// than user/model cannot exist (schema check), but the filter stays in the
// query so a hand-edited database degrades instead of corrupting a prompt.
func (s *Store) History(ctx context.Context, userID, chatID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, text, ts, sender_id, receiver_id, sender_name
		FROM messages
		WHERE user_id = ? AND chat_id = ? AND role IN ('user', 'model')
		ORDER BY ts ASC`, userID, chatID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		m := Message{UserID: userID, ChatID: chatID}
		var ts int64
		if err := rows.Scan(&m.ID, &m.Role, &m.Text, &ts, &m.SenderID, &m.ReceiverID, &m.SenderName); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		m.Timestamp = time.UnixMicro(ts)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}
