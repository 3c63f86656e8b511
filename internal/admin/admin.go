// Package admin injects operator messages into chat rooms.
package admin

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/codefionn/huddle/internal/fabric"
	"github.com/codefionn/huddle/internal/logger"
	"github.com/codefionn/huddle/internal/protocol"
	"github.com/codefionn/huddle/internal/store"
)

// ErrEmptyMessage is returned when there is nothing to send.
var ErrEmptyMessage = errors.New("message is empty")

// Injector broadcasts chat messages attributed to the ADMIN user. Injected
// messages are not stored.
type Injector struct {
	fabric fabric.Fabric
	token  string
}

// NewInjector creates an injector. token guards Authorize; an empty token
// disables remote injection.
func NewInjector(f fabric.Fabric, token string) *Injector {
	return &Injector{fabric: f, token: token}
}

// Inject sends message to every connection in room.
func (i *Injector) Inject(room, message string) (fabric.Result, error) {
	if !store.ValidRoomName(room) {
		return fabric.Result{}, fmt.Errorf("invalid room name %q", room)
	}
	if strings.TrimSpace(message) == "" {
		return fabric.Result{}, ErrEmptyMessage
	}
	res := i.fabric.Broadcast(fabric.ChatGroup(room), protocol.ChatMessage(protocol.AdminUser, message))
	logger.Info("Admin message to %s delivered to %d connections", room, res.Delivered)
	return res, nil
}

// Authorize reports whether token matches the configured admin token.
func (i *Injector) Authorize(token string) bool {
	if i.token == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(i.token), []byte(token)) == 1
}
