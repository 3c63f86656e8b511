package web

import "time"

// LoginRequest is the body of POST /api/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the issued session token.
type LoginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	UserID   int64  `json:"user_id"`
}

// RoomRequest is the body of POST /api/rooms.
type RoomRequest struct {
	Name string `json:"name"`
}

// RoomResponse describes a chat room.
type RoomResponse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Created   bool      `json:"created,omitempty"`
}

// AdminMessageRequest is the body of POST /admin/rooms/:room/messages.
type AdminMessageRequest struct {
	Message string `json:"message"`
}

// AdminMessageResponse reports how many connections received an injected
// message.
type AdminMessageResponse struct {
	Room      string `json:"room"`
	Delivered int    `json:"delivered"`
	Dropped   int    `json:"dropped"`
}

// ErrorResponse is returned for failed API requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	Groups      int    `json:"groups"`
}
