package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/codefionn/huddle/internal/identity"
)

// Room is a named chat space.
type Room struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// Message is an immutable chat line.
type Message struct {
	ID        int64
	RoomID    int64
	UserID    int64
	Username  string
	Content   string
	CreatedAt time.Time
}

// ValidRoomName reports whether name can be used in a room URL and group
// name.
func ValidRoomName(name string) bool {
	if name == "" || len(name) > 100 {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}

// GetRoom loads a room by name.
func (s *Store) GetRoom(ctx context.Context, name string) (*Room, error) {
	var r Room
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM rooms WHERE name = ?`, name,
	).Scan(&r.ID, &r.Name, &r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("room %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load room: %w", err)
	}
	return &r, nil
}

// GetOrCreateRoom returns the room called name, creating it if needed.
// The bool reports whether the room was created.
func (s *Store) GetOrCreateRoom(ctx context.Context, name string) (*Room, bool, error) {
	name = strings.TrimSpace(name)
	if !ValidRoomName(name) {
		return nil, false, fmt.Errorf("invalid room name %q", name)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO rooms (name, created_at) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		name, time.Now().UTC())
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert room: %w", err)
	}
	n, _ := res.RowsAffected()
	room, err := s.GetRoom(ctx, name)
	if err != nil {
		return nil, false, err
	}
	return room, n > 0, nil
}

// ListRooms returns all rooms ordered by name.
func (s *Store) ListRooms(ctx context.Context) ([]*Room, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM rooms ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []*Room
	for rows.Next() {
		var r Room
		if err := rows.Scan(&r.ID, &r.Name, &r.CreatedAt); err != nil {
			return nil, err
		}
		rooms = append(rooms, &r)
	}
	return rooms, rows.Err()
}

// AddOnline records one more live connection of user in room. It reports
// whether this is the user's first connection, i.e. the user came online.
func (s *Store) AddOnline(ctx context.Context, room *Room, user identity.Principal) (bool, error) {
	var connections int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO room_online (room_id, user_id, connections) VALUES (?, ?, 1)
		ON CONFLICT(room_id, user_id) DO UPDATE SET connections = connections + 1
		RETURNING connections`,
		room.ID, user.ID).Scan(&connections)
	if err != nil {
		return false, fmt.Errorf("failed to add presence: %w", err)
	}
	return connections == 1, nil
}

// RemoveOnline drops one live connection of user from room. The user stays
// online while other connections remain. It reports whether the user went
// offline.
func (s *Store) RemoveOnline(ctx context.Context, room *Room, user identity.Principal) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE room_online SET connections = connections - 1 WHERE room_id = ? AND user_id = ?`,
		room.ID, user.ID); err != nil {
		return false, fmt.Errorf("failed to remove presence: %w", err)
	}
	res, err := tx.ExecContext(ctx,
		`DELETE FROM room_online WHERE room_id = ? AND user_id = ? AND connections <= 0`,
		room.ID, user.ID)
	if err != nil {
		return false, fmt.Errorf("failed to remove presence: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, tx.Commit()
}

// Online lists the usernames currently present in room.
func (s *Store) Online(ctx context.Context, room *Room) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.username FROM room_online o JOIN users u ON u.id = o.user_id
		WHERE o.room_id = ? ORDER BY u.username`, room.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list presence: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		users = append(users, name)
	}
	return users, rows.Err()
}

// ResetPresence clears every presence row. Called at startup because no
// connection survives a restart.
func (s *Store) ResetPresence(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM room_online`); err != nil {
		return fmt.Errorf("failed to reset presence: %w", err)
	}
	return nil
}

// CreateMessage appends a chat message to room.
func (s *Store) CreateMessage(ctx context.Context, room *Room, author identity.Principal, content string) (*Message, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (room_id, user_id, content, created_at) VALUES (?, ?, ?, ?)`,
		room.ID, author.ID, content, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:        id,
		RoomID:    room.ID,
		UserID:    author.ID,
		Username:  author.Username,
		Content:   content,
		CreatedAt: now,
	}, nil
}

// CountMessages returns the number of messages stored for room.
func (s *Store) CountMessages(ctx context.Context, room *Room) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE room_id = ?`, room.ID).Scan(&n)
	return n, err
}
