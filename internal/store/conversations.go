package store

import (
	"context"
	"fmt"
	"time"

	"voxrelay/pkg/protocol"
)

const maxListLimit = 500

// AppendConversation commits one turn. The device must exist; the foreign key
// rejects anything else and nothing is written.
func (s *Store) AppendConversation(ctx context.Context, deviceID int64, userInput, aiResponse string) (protocol.Conversation, error) {
	if deviceID <= 0 {
		return protocol.Conversation{}, ErrInvalidTurn
	}

	ts := s.now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (device_id, user_input, ai_response, timestamp) VALUES (?, ?, ?, ?)`,
		deviceID, userInput, aiResponse, ts.UnixNano(),
	)
	if err != nil {
		return protocol.Conversation{}, fmt.Errorf("insert conversation: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return protocol.Conversation{}, fmt.Errorf("get last insert id: %w", err)
	}

	return protocol.Conversation{
		ID:         id,
		DeviceID:   deviceID,
		UserInput:  userInput,
		AIResponse: aiResponse,
		Timestamp:  time.Unix(0, ts.UnixNano()).UTC(),
	}, nil
}

// ListConversations returns the newest turns first. deviceID 0 means all
// devices.
func (s *Store) ListConversations(ctx context.Context, deviceID int64, limit int) ([]protocol.Conversation, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	query := `SELECT id, device_id, user_input, ai_response, timestamp FROM conversations`
	args := []any{}
	if deviceID > 0 {
		query += ` WHERE device_id = ?`
		args = append(args, deviceID)
	}
	query += ` ORDER BY timestamp DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	out := []protocol.Conversation{}
	for rows.Next() {
		var (
			c  protocol.Conversation
			ts int64
		)
		if err := rows.Scan(&c.ID, &c.DeviceID, &c.UserInput, &c.AIResponse, &ts); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		c.Timestamp = time.Unix(0, ts).UTC()
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) CountConversations(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count conversations: %w", err)
	}
	return n, nil
}
