// Package checklist serves the shared task lists. Every authenticated
// connection joins the personal group checklist_<user id>; mutations sent in
// the "entity.action" protocol are applied by receivers and broadcast to
// that group, so all connections of the same user stay in sync.
package checklist

import (
	"context"
	"fmt"

	"github.com/codefionn/huddle/internal/dispatch"
	"github.com/codefionn/huddle/internal/fabric"
	"github.com/codefionn/huddle/internal/logger"
	"github.com/codefionn/huddle/internal/protocol"
	"github.com/codefionn/huddle/internal/receiver"
	"github.com/codefionn/huddle/internal/session"
	"github.com/codefionn/huddle/internal/store"
)

// Consumer builds checklist handlers for new connections.
type Consumer struct {
	store *store.Store
	log   *logger.Logger
}

// NewConsumer creates a consumer backed by st.
func NewConsumer(st *store.Store) *Consumer {
	return &Consumer{store: st, log: logger.Global().WithPrefix("checklist")}
}

// Handler serves one checklist connection.
type Handler struct {
	consumer   *Consumer
	sess       *session.Session
	group      string
	dispatcher *dispatch.Dispatcher
}

// Connect activates sess. Anonymous connections are accepted but join no
// group and receive no snapshot; their mutations are answered with errors.
func (c *Consumer) Connect(ctx context.Context, sess *session.Session) (*Handler, error) {
	if err := sess.Activate(); err != nil {
		return nil, err
	}

	p := sess.Principal()
	h := &Handler{consumer: c, sess: sess, group: fabric.ChecklistGroup(p.ID)}
	h.dispatcher = dispatch.New(sess, h.group, dispatch.Table{
		dispatch.EntityTask: receiver.New[store.Task]("task", p, c.store.Tasks(), TaskSchema{}),
		dispatch.EntityItem: receiver.New[store.Item]("item", p, c.store.Items(), ItemSchema{Tasks: c.store.Tasks()}),
	})
	if !p.Authenticated() {
		return h, nil
	}

	if err := sess.Join(h.group); err != nil {
		return nil, err
	}
	if err := h.sendSnapshot(ctx); err != nil {
		return nil, err
	}
	c.log.Debug("%s connected", p)
	return h, nil
}

// Receive handles one inbound envelope.
func (h *Handler) Receive(ctx context.Context, ev protocol.Event) {
	if ev.Type() == protocol.TypeTaskList {
		if !h.sess.Principal().Authenticated() {
			h.sess.Send(protocol.ErrorEvent(
				"Message type 'task.list' cannot be processed: Authentication required",
				protocol.ErrUnauthenticated))
			return
		}
		if err := h.sendSnapshot(ctx); err != nil {
			h.consumer.log.Error("snapshot for %s: %v", h.sess.Principal(), err)
			h.sess.Send(protocol.ErrorEvent("Message type 'task.list' cannot be processed: Internal error", err))
		}
		return
	}

	if _, err := h.dispatcher.Dispatch(ctx, ev); err != nil {
		if protocol.CodeOf(err) == protocol.CodeInternal {
			h.consumer.log.Error("%s from %s: %v", ev.Type(), h.sess.Principal(), err)
		} else {
			h.consumer.log.Debug("%s from %s rejected: %v", ev.Type(), h.sess.Principal(), err)
		}
	}
}

func (h *Handler) sendSnapshot(ctx context.Context) error {
	tasks, err := h.consumer.store.Tasks().List(ctx, h.sess.Principal())
	if err != nil {
		return fmt.Errorf("failed to load tasks: %w", err)
	}
	out := make([]map[string]any, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, EncodeTask(t))
	}
	h.sess.Send(protocol.TaskList(out))
	return nil
}
