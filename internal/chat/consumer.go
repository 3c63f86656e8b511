// Package chat serves chat rooms. A connection joins the room group
// chat_<room> and the personal inbox group inbox_<username>; room messages
// are broadcast to the room and stored, private messages go to the
// addressee's inbox only and are never stored.
//
// Presence is counted per connection: a user opening a room twice shows up
// once, and stays online until the last of those connections closes.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/codefionn/huddle/internal/fabric"
	"github.com/codefionn/huddle/internal/identity"
	"github.com/codefionn/huddle/internal/logger"
	"github.com/codefionn/huddle/internal/protocol"
	"github.com/codefionn/huddle/internal/session"
	"github.com/codefionn/huddle/internal/store"
)

// ErrRoomNotFound is returned by Admit for unknown rooms.
var ErrRoomNotFound = errors.New("room not found")

// PrivatePrefix starts a private message: "/pm <user> <text>".
const PrivatePrefix = "/pm"

// Rooms is the storage the chat flow needs.
type Rooms interface {
	GetRoom(ctx context.Context, name string) (*store.Room, error)
	AddOnline(ctx context.Context, room *store.Room, user identity.Principal) (bool, error)
	RemoveOnline(ctx context.Context, room *store.Room, user identity.Principal) (bool, error)
	Online(ctx context.Context, room *store.Room) ([]string, error)
	CreateMessage(ctx context.Context, room *store.Room, author identity.Principal, content string) (*store.Message, error)
}

// Consumer builds chat handlers for new connections.
type Consumer struct {
	rooms Rooms
	log   *logger.Logger
}

// NewConsumer creates a consumer backed by rooms.
func NewConsumer(rooms Rooms) *Consumer {
	return &Consumer{rooms: rooms, log: logger.Global().WithPrefix("chat")}
}

// Admit runs the handshake checks that happen before a connection is
// accepted. Anonymous principals and unknown rooms are refused.
func (c *Consumer) Admit(ctx context.Context, p identity.Principal, roomName string) (*store.Room, error) {
	if !p.Authenticated() {
		return nil, protocol.ErrUnauthenticated
	}
	room, err := c.rooms.GetRoom(ctx, roomName)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, roomName)
	}
	if err != nil {
		return nil, err
	}
	return room, nil
}

// Handler serves one chat connection.
type Handler struct {
	consumer *Consumer
	sess     *session.Session
	room     *store.Room
	group    string
}

// Connect activates an admitted session in room: it joins the room and inbox
// groups, records presence, sends the current user list privately and
// announces the user to the room.
func (c *Consumer) Connect(ctx context.Context, sess *session.Session, room *store.Room) (*Handler, error) {
	p := sess.Principal()
	if !p.Authenticated() {
		return nil, protocol.ErrUnauthenticated
	}
	if err := sess.Activate(); err != nil {
		return nil, err
	}

	h := &Handler{consumer: c, sess: sess, room: room, group: fabric.ChatGroup(room.Name)}
	if err := sess.Join(h.group); err != nil {
		return nil, err
	}

	cameOnline, err := c.rooms.AddOnline(ctx, room, p)
	if err != nil {
		return nil, err
	}
	sess.OnClose(h.disconnect)

	users, err := c.rooms.Online(ctx, room)
	if err != nil {
		return nil, err
	}
	sess.Send(protocol.UserList(users))

	if err := sess.Join(fabric.InboxGroup(p.Username)); err != nil {
		return nil, err
	}
	if cameOnline {
		sess.Broadcast(h.group, protocol.UserJoin(p.Username))
	}
	c.log.Debug("%s joined %s", p, room.Name)
	return h, nil
}

// disconnect runs after the session left its groups.
func (h *Handler) disconnect() {
	p := h.sess.Principal()
	wentOffline, err := h.consumer.rooms.RemoveOnline(context.Background(), h.room, p)
	if err != nil {
		h.consumer.log.Error("remove presence of %s in %s: %v", p, h.room.Name, err)
		return
	}
	if wentOffline {
		h.sess.Broadcast(h.group, protocol.UserLeave(p.Username))
	}
	h.consumer.log.Debug("%s left %s", p, h.room.Name)
}

// Receive handles one inbound frame of the form {"message": "..."}.
func (h *Handler) Receive(ctx context.Context, ev protocol.Event) {
	p := h.sess.Principal()
	if !p.Authenticated() {
		return
	}

	message, ok := ev.String("message")
	if !ok {
		h.sess.Send(protocol.ErrorEvent("Field 'message' is required",
			protocol.NewError(protocol.CodeBadRequest, "missing message")))
		return
	}

	if strings.HasPrefix(message, PrivatePrefix) {
		h.sendPrivate(message)
		return
	}

	h.sess.Broadcast(h.group, protocol.ChatMessage(p.Username, message))
	if _, err := h.consumer.rooms.CreateMessage(ctx, h.room, p, message); err != nil {
		h.consumer.log.Error("store message in %s: %v", h.room.Name, err)
	}
}

func (h *Handler) sendPrivate(message string) {
	target, text, ok := ParsePrivate(message)
	if !ok {
		h.sess.Send(protocol.ErrorEvent("Usage: /pm <user> <message>",
			protocol.NewError(protocol.CodeBadRequest, "malformed private message")))
		return
	}
	h.sess.Broadcast(fabric.InboxGroup(target), protocol.PrivateMessage(h.sess.Principal().Username, text))
	h.sess.Send(protocol.PrivateMessageDelivered(target, text))
}

// ParsePrivate splits "/pm <target> <text>". The text keeps its inner
// spacing.
func ParsePrivate(message string) (target, text string, ok bool) {
	parts := strings.SplitN(message, " ", 3)
	if len(parts) != 3 || parts[0] != PrivatePrefix || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}
