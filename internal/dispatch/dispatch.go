// Package dispatch routes "entity.action" envelopes to receivers and fans
// the results out to a session's primary group.
package dispatch

import (
	"context"
	"fmt"

	"github.com/codefionn/huddle/internal/protocol"
	"github.com/codefionn/huddle/internal/receiver"
	"github.com/codefionn/huddle/internal/session"
)

// Handler applies the three mutations of one entity kind. *receiver.Receiver
// implements it.
type Handler interface {
	Create(ctx context.Context, fields receiver.Fields) (receiver.Fields, error)
	Update(ctx context.Context, fields receiver.Fields) (receiver.Fields, error)
	Delete(ctx context.Context, fields receiver.Fields) (receiver.Fields, error)
}

// Table maps each entity kind to its handler.
type Table map[Entity]Handler

// Dispatcher serves the generic protocol for one session.
type Dispatcher struct {
	sess     *session.Session
	group    string
	handlers Table
}

// New creates a dispatcher broadcasting successful mutations to group.
func New(sess *session.Session, group string, handlers Table) *Dispatcher {
	return &Dispatcher{sess: sess, group: group, handlers: handlers}
}

// Dispatch handles one inbound envelope. On success the result, stamped with
// the envelope type, is broadcast to the primary group and returned. On
// failure a private "error" event goes to the sender and the error is
// returned; the session stays open either way.
func (d *Dispatcher) Dispatch(ctx context.Context, env protocol.Event) (protocol.Event, error) {
	msgType := env.Type()

	result, err := d.apply(ctx, msgType, env)
	if err != nil {
		msg := fmt.Sprintf("Message type '%s' cannot be processed: %s", msgType, err)
		d.sess.Send(protocol.ErrorEvent(msg, err))
		return nil, err
	}

	ev := protocol.Event(result).With("type", msgType)
	d.sess.Broadcast(d.group, ev)
	return ev, nil
}

func (d *Dispatcher) apply(ctx context.Context, msgType string, env protocol.Event) (receiver.Fields, error) {
	if !d.sess.Principal().Authenticated() {
		return nil, protocol.NewError(protocol.CodeUnauthenticated, "Authentication required")
	}

	disc, err := ParseDiscriminator(msgType)
	if err != nil {
		return nil, err
	}
	h, ok := d.handlers[disc.Entity]
	if !ok {
		return nil, protocol.NewError(protocol.CodeUnknownEntity, "No entity found with name %s", disc.Entity)
	}

	fields := receiver.Fields(env.Clone())
	delete(fields, "type")

	switch disc.Action {
	case ActionCreate:
		return h.Create(ctx, fields)
	case ActionUpdate:
		return h.Update(ctx, fields)
	case ActionDelete:
		return h.Delete(ctx, fields)
	default:
		return nil, protocol.NewError(protocol.CodeUnknownAction, "No action found with name %s", disc.Action)
	}
}
