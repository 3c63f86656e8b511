package checklist

import (
	"context"
	"errors"
	"fmt"

	"github.com/codefionn/huddle/internal/identity"
	"github.com/codefionn/huddle/internal/protocol"
	"github.com/codefionn/huddle/internal/receiver"
	"github.com/codefionn/huddle/internal/store"
)

// MaxNameLength bounds task and item names.
const MaxNameLength = 128

// TaskSchema validates and serializes tasks. The owner always comes from the
// acting principal; a "user" field sent by the client is ignored.
type TaskSchema struct{}

// Decode implements receiver.Schema.
func (TaskSchema) Decode(_ context.Context, owner identity.Principal, fields receiver.Fields, existing *store.Task) (*store.Task, receiver.FieldErrors) {
	var fe receiver.FieldErrors
	task := &store.Task{UserID: owner.ID, Username: owner.Username}
	if existing != nil {
		copied := *existing
		task = &copied
	}

	name, present, msg := receiver.String(fields, "name", MaxNameLength)
	switch {
	case msg != "":
		fe.Add("name", msg)
	case present:
		task.Name = name
	case existing == nil:
		fe.Add("name", receiver.MsgRequired)
	}
	return task, fe
}

// Encode implements receiver.Schema.
func (TaskSchema) Encode(t *store.Task) receiver.Fields {
	return EncodeTask(t)
}

// EncodeTask renders a task with its nested item_set.
func EncodeTask(t *store.Task) receiver.Fields {
	items := make([]receiver.Fields, 0, len(t.Items))
	for _, it := range t.Items {
		items = append(items, EncodeItem(it))
	}
	return receiver.Fields{
		"id":       t.ID,
		"name":     t.Name,
		"user":     t.Username,
		"item_set": items,
	}
}

// EncodeItem renders an item.
func EncodeItem(it *store.Item) receiver.Fields {
	var doneBy any
	if it.DoneBy != nil {
		doneBy = *it.DoneBy
	}
	return receiver.Fields{
		"id":      it.ID,
		"name":    it.Name,
		"task":    it.TaskID,
		"done_at": receiver.FormatTime(it.DoneAt),
		"done_by": doneBy,
	}
}

// TaskLookup finds tasks visible to a principal.
type TaskLookup interface {
	Get(ctx context.Context, owner identity.Principal, id int64) (*store.Task, error)
}

// ItemSchema validates and serializes items. An item is done exactly when
// done_at is set, and done_by then names the acting principal.
type ItemSchema struct {
	Tasks TaskLookup
}

// Decode implements receiver.Schema. On update the item keeps its task and
// name; only done_at is taken from fields.
func (s ItemSchema) Decode(ctx context.Context, owner identity.Principal, fields receiver.Fields, existing *store.Item) (*store.Item, receiver.FieldErrors) {
	var fe receiver.FieldErrors
	item := &store.Item{}
	if existing != nil {
		copied := *existing
		item = &copied
	} else {
		item.Name = s.decodeName(fields, &fe)
		item.TaskID = s.decodeTask(ctx, owner, fields, &fe)
	}

	doneAt, present, msg := receiver.Time(fields, "done_at")
	switch {
	case msg != "":
		fe.Add("done_at", msg)
	case present:
		item.DoneAt = doneAt
	}

	if item.DoneAt != nil {
		id, name := owner.ID, owner.Username
		item.DoneByID = &id
		item.DoneBy = &name
	} else {
		item.DoneByID = nil
		item.DoneBy = nil
	}
	return item, fe
}

func (ItemSchema) decodeName(fields receiver.Fields, fe *receiver.FieldErrors) string {
	name, present, msg := receiver.String(fields, "name", MaxNameLength)
	switch {
	case msg != "":
		fe.Add("name", msg)
	case !present:
		fe.Add("name", receiver.MsgRequired)
	}
	return name
}

func (s ItemSchema) decodeTask(ctx context.Context, owner identity.Principal, fields receiver.Fields, fe *receiver.FieldErrors) int64 {
	raw, ok := fields["task"]
	if !ok || raw == nil {
		fe.Add("task", receiver.MsgRequired)
		return 0
	}
	id, ok := receiver.Int(raw)
	if !ok {
		fe.Add("task", fmt.Sprintf("Incorrect type. Expected pk value, received %T.", raw))
		return 0
	}
	if _, err := s.Tasks.Get(ctx, owner, id); err != nil {
		if errors.Is(err, protocol.ErrNotFound) {
			fe.Add("task", fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", id))
		} else {
			fe.Add("task", "Could not be verified.")
		}
		return 0
	}
	return id
}

// Encode implements receiver.Schema.
func (ItemSchema) Encode(it *store.Item) receiver.Fields {
	return EncodeItem(it)
}
