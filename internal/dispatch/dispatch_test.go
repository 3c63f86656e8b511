package dispatch_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/huddle/internal/dispatch"
	"github.com/codefionn/huddle/internal/fabric"
	"github.com/codefionn/huddle/internal/fabric/fabrictest"
	"github.com/codefionn/huddle/internal/identity"
	"github.com/codefionn/huddle/internal/protocol"
	"github.com/codefionn/huddle/internal/receiver"
	"github.com/codefionn/huddle/internal/session"
)

type recordingHandler struct {
	calls []string
	last  receiver.Fields
	err   error
}

func (h *recordingHandler) record(action string, fields receiver.Fields) (receiver.Fields, error) {
	h.calls = append(h.calls, action)
	h.last = fields
	if h.err != nil {
		return nil, h.err
	}
	out := receiver.Fields{"id": int64(7)}
	if name, ok := fields["name"]; ok {
		out["name"] = name
	}
	return out, nil
}

func (h *recordingHandler) Create(_ context.Context, f receiver.Fields) (receiver.Fields, error) {
	return h.record("create", f)
}

func (h *recordingHandler) Update(_ context.Context, f receiver.Fields) (receiver.Fields, error) {
	return h.record("update", f)
}

func (h *recordingHandler) Delete(_ context.Context, f receiver.Fields) (receiver.Fields, error) {
	return h.record("delete", f)
}

type fixture struct {
	fabric   *fabric.Local
	self     *fabrictest.Conn
	peer     *fabrictest.Conn
	outsider *fabrictest.Conn
	handler  *recordingHandler
	d        *dispatch.Dispatcher
}

func newFixture(t *testing.T, p identity.Principal) *fixture {
	t.Helper()
	f := &fixture{
		fabric:   fabric.NewLocal(4),
		self:     fabrictest.NewConn("self"),
		peer:     fabrictest.NewConn("peer"),
		outsider: fabrictest.NewConn("outsider"),
		handler:  &recordingHandler{},
	}
	group := fabric.ChecklistGroup(p.ID)
	sess := session.New(f.self, p, f.fabric)
	require.NoError(t, sess.Activate())
	require.NoError(t, sess.Join(group))
	f.fabric.Subscribe(group, f.peer)
	f.fabric.Subscribe("checklist_999", f.outsider)

	f.d = dispatch.New(sess, group, dispatch.Table{dispatch.EntityTask: f.handler})
	return f
}

var alice = identity.Principal{ID: 1, Username: "alice"}

func TestParseDiscriminator(t *testing.T) {
	tests := []struct {
		input string
		want  dispatch.Discriminator
		code  protocol.Code
	}{
		{"task.create", dispatch.Discriminator{Entity: dispatch.EntityTask, Action: dispatch.ActionCreate}, ""},
		{"item.delete", dispatch.Discriminator{Entity: dispatch.EntityItem, Action: dispatch.ActionDelete}, ""},
		{"garbage", dispatch.Discriminator{}, protocol.CodeMalformedDiscriminator},
		{"a.b.c", dispatch.Discriminator{}, protocol.CodeMalformedDiscriminator},
		{"", dispatch.Discriminator{}, protocol.CodeMalformedDiscriminator},
		{"user.create", dispatch.Discriminator{}, protocol.CodeUnknownEntity},
		{"task.list", dispatch.Discriminator{}, protocol.CodeUnknownAction},
		{"bogus.bogus", dispatch.Discriminator{}, protocol.CodeUnknownEntity},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := dispatch.ParseDiscriminator(tt.input)
			if tt.code == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
				assert.Equal(t, tt.input, got.String())
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.code, protocol.CodeOf(err))
		})
	}
}

func TestDispatchBroadcastsToPrimaryGroup(t *testing.T) {
	f := newFixture(t, alice)

	ev, err := f.d.Dispatch(context.Background(), protocol.Event{"type": "task.create", "name": "Groceries"})
	require.NoError(t, err)
	assert.Equal(t, "task.create", ev.Type())

	assert.Equal(t, []string{"create"}, f.handler.calls)
	assert.NotContains(t, f.handler.last, "type")

	for _, c := range []*fabrictest.Conn{f.self, f.peer} {
		require.Len(t, c.Events(), 1, c.ID())
		got := c.Last()
		assert.Equal(t, "task.create", got.Type())
		assert.Equal(t, "Groceries", got["name"])
		assert.Equal(t, int64(7), got["id"])
	}
	assert.Empty(t, f.outsider.Events())
}

func TestDispatchActions(t *testing.T) {
	f := newFixture(t, alice)
	ctx := context.Background()

	for _, typ := range []string{"task.update", "task.delete"} {
		_, err := f.d.Dispatch(ctx, protocol.Event{"type": typ, "id": float64(7)})
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"update", "delete"}, f.handler.calls)
	assert.Equal(t, []string{"task.update", "task.delete"}, f.peer.Types())
}

func TestDispatchErrorsArePrivate(t *testing.T) {
	tests := []struct {
		name    string
		env     protocol.Event
		code    protocol.Code
		message string
	}{
		{
			"malformed", protocol.Event{"type": "garbage"}, protocol.CodeMalformedDiscriminator,
			"Message type 'garbage' cannot be processed: Format must be 'ENTITY.ACTION'",
		},
		{
			"unknown entity", protocol.Event{"type": "user.create"}, protocol.CodeUnknownEntity,
			"Message type 'user.create' cannot be processed: No entity found with name user",
		},
		{
			"no handler", protocol.Event{"type": "item.create"}, protocol.CodeUnknownEntity,
			"Message type 'item.create' cannot be processed: No entity found with name item",
		},
		{
			"unknown action", protocol.Event{"type": "task.archive"}, protocol.CodeUnknownAction,
			"Message type 'task.archive' cannot be processed: No action found with name archive",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, alice)

			_, err := f.d.Dispatch(context.Background(), tt.env)
			require.Error(t, err)
			assert.Equal(t, tt.code, protocol.CodeOf(err))

			require.Len(t, f.self.Events(), 1)
			reply := f.self.Last()
			assert.Equal(t, protocol.TypeError, reply.Type())
			assert.Equal(t, tt.message, reply["message"])
			assert.Equal(t, string(tt.code), reply["code"])

			assert.Empty(t, f.peer.Events())
			assert.Empty(t, f.handler.calls)
		})
	}
}

func TestDispatchHandlerErrorIsPrivate(t *testing.T) {
	f := newFixture(t, alice)
	f.handler.err = protocol.ValidationError(map[string][]string{"name": {"This field is required."}})

	_, err := f.d.Dispatch(context.Background(), protocol.Event{"type": "task.create"})
	require.Error(t, err)

	reply := f.self.Last()
	assert.Equal(t, "Message type 'task.create' cannot be processed: {'name': ['This field is required.']}", reply["message"])
	assert.Contains(t, reply, "fields")
	assert.Empty(t, f.peer.Events())
}

func TestDispatchStorageFault(t *testing.T) {
	f := newFixture(t, alice)
	f.handler.err = protocol.WrapError(protocol.CodeInternal, "Internal error", errors.New("database is locked"))

	_, err := f.d.Dispatch(context.Background(), protocol.Event{"type": "task.update", "id": 1})
	require.Error(t, err)
	assert.Equal(t, string(protocol.CodeInternal), f.self.Last()["code"])
	assert.Empty(t, f.peer.Events())
}

func TestDispatchRejectsAnonymous(t *testing.T) {
	f := newFixture(t, identity.Anonymous)

	_, err := f.d.Dispatch(context.Background(), protocol.Event{"type": "task.create", "name": "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, protocol.ErrUnauthenticated)
	assert.Equal(t, protocol.TypeError, f.self.Last().Type())
	assert.Empty(t, f.handler.calls)
	assert.Empty(t, f.peer.Events())
}
