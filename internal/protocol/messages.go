package protocol

import (
	"encoding/json"
	"fmt"
)

// Event types
const (
	// Chat presence
	TypeUserList  = "user.list"
	TypeUserJoin  = "user.join"
	TypeUserLeave = "user.leave"

	// Chat messages
	TypeChatMessage             = "chat.message"
	TypePrivateMessage          = "private.message"
	TypePrivateMessageDelivered = "private.message.delivered"

	// Checklist snapshot
	TypeTaskList = "task.list"

	// Error
	TypeError = "error"
)

// AdminUser is the author attached to messages injected by operators.
const AdminUser = "ADMIN"

// Event is a JSON object exchanged over a connection. Every event carries a
// "type" key; the remaining keys depend on the type. Once an event has been
// handed to the fabric it is shared between recipients and must not be
// modified.
type Event map[string]any

// NewEvent creates an event with the given type.
func NewEvent(eventType string) Event {
	return Event{"type": eventType}
}

// Type returns the event discriminator, or "" if absent or not a string.
func (e Event) Type() string {
	t, _ := e["type"].(string)
	return t
}

// With sets key to value and returns the event for chaining.
func (e Event) With(key string, value any) Event {
	e[key] = value
	return e
}

// Clone returns a shallow copy of the event.
func (e Event) Clone() Event {
	out := make(Event, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// String returns the string value stored under key.
func (e Event) String(key string) (string, bool) {
	s, ok := e[key].(string)
	return s, ok
}

// Decode parses a raw frame into an event. Frames that are not JSON objects
// are rejected.
func Decode(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	if ev == nil {
		return nil, fmt.Errorf("decode event: not an object")
	}
	return ev, nil
}

// UserList is sent privately to a chat connection after it joins a room.
func UserList(users []string) Event {
	if users == nil {
		users = []string{}
	}
	return NewEvent(TypeUserList).With("users", users)
}

// UserJoin announces a user entering a room.
func UserJoin(user string) Event {
	return NewEvent(TypeUserJoin).With("user", user)
}

// UserLeave announces a user leaving a room.
func UserLeave(user string) Event {
	return NewEvent(TypeUserLeave).With("user", user)
}

// ChatMessage is a room-wide chat line.
func ChatMessage(user, message string) Event {
	return NewEvent(TypeChatMessage).With("user", user).With("message", message)
}

// PrivateMessage is delivered to the addressee's inbox group.
func PrivateMessage(user, message string) Event {
	return NewEvent(TypePrivateMessage).With("user", user).With("message", message)
}

// PrivateMessageDelivered confirms a private message to its sender.
func PrivateMessageDelivered(target, message string) Event {
	return NewEvent(TypePrivateMessageDelivered).With("target", target).With("message", message)
}

// TaskList carries the caller's checklist snapshot.
func TaskList(tasks []map[string]any) Event {
	if tasks == nil {
		tasks = []map[string]any{}
	}
	return NewEvent(TypeTaskList).With("tasks", tasks)
}
