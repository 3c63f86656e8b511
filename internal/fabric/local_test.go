package fabric_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/codefionn/huddle/internal/fabric"
	"github.com/codefionn/huddle/internal/fabric/fabrictest"
	"github.com/codefionn/huddle/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupNames(t *testing.T) {
	assert.Equal(t, "chat_lobby", fabric.ChatGroup("lobby"))
	assert.Equal(t, "inbox_alice", fabric.InboxGroup("alice"))
	assert.Equal(t, "checklist_42", fabric.ChecklistGroup(42))
}

func TestSubscribeIsIdempotent(t *testing.T) {
	f := fabric.NewLocal(4)
	c := fabrictest.NewConn("a")

	f.Subscribe("g", c)
	f.Subscribe("g", c)
	assert.Equal(t, 1, f.GroupSize("g"))

	res := f.Broadcast("g", protocol.NewEvent("ping"))
	assert.Equal(t, fabric.Result{Delivered: 1}, res)
	assert.Len(t, c.Events(), 1)
}

func TestUnsubscribeAbsentIsNoop(t *testing.T) {
	f := fabric.NewLocal(0)
	a := fabrictest.NewConn("a")
	b := fabrictest.NewConn("b")

	f.Unsubscribe("nothing", a)
	f.Subscribe("g", a)
	f.Unsubscribe("g", b)
	assert.Equal(t, 1, f.GroupSize("g"))

	f.Unsubscribe("g", a)
	assert.Equal(t, 0, f.GroupSize("g"))
	assert.Empty(t, f.Groups(), "empty groups are pruned")
}

func TestBroadcastToEmptyGroup(t *testing.T) {
	f := fabric.NewLocal(2)
	res := f.Broadcast("chat_nobody", protocol.ChatMessage("ADMIN", "hello?"))
	assert.Equal(t, fabric.Result{}, res)
}

func TestBroadcastReachesOnlyMembers(t *testing.T) {
	f := fabric.NewLocal(8)
	a := fabrictest.NewConn("a")
	b := fabrictest.NewConn("b")
	outsider := fabrictest.NewConn("c")

	f.Subscribe("chat_lobby", a)
	f.Subscribe("chat_lobby", b)
	f.Subscribe("chat_other", outsider)

	f.Broadcast("chat_lobby", protocol.ChatMessage("alice", "hi"))

	assert.Equal(t, []string{protocol.TypeChatMessage}, a.Types())
	assert.Equal(t, []string{protocol.TypeChatMessage}, b.Types())
	assert.Empty(t, outsider.Events())
	assert.Equal(t, []string{"chat_lobby", "chat_other"}, f.Groups())
}

func TestSlowMemberDoesNotBlockOthers(t *testing.T) {
	f := fabric.NewLocal(1)
	slow := fabrictest.NewBoundedConn("slow", 1)
	dead := fabrictest.NewConn("dead")
	dead.Close()
	healthy := fabrictest.NewConn("healthy")

	for _, c := range []*fabrictest.Conn{slow, dead, healthy} {
		f.Subscribe("g", c)
	}

	first := f.Broadcast("g", protocol.NewEvent("one"))
	assert.Equal(t, fabric.Result{Delivered: 2, Dropped: 1}, first)

	second := f.Broadcast("g", protocol.NewEvent("two"))
	assert.Equal(t, fabric.Result{Delivered: 1, Dropped: 2}, second)

	assert.Equal(t, []string{"one", "two"}, healthy.Types())
	assert.Equal(t, []string{"one"}, slow.Types())
}

func TestSequentialBroadcastsKeepOrder(t *testing.T) {
	f := fabric.NewLocal(4)
	members := make([]*fabrictest.Conn, 5)
	for i := range members {
		members[i] = fabrictest.NewConn(fmt.Sprintf("m%d", i))
		f.Subscribe("g", members[i])
	}

	const n = 100
	for i := 0; i < n; i++ {
		f.Broadcast("g", protocol.NewEvent("seq").With("n", i))
	}

	for _, m := range members {
		events := m.Events()
		require.Len(t, events, n)
		for i, ev := range events {
			assert.Equal(t, i, ev["n"], "member %s out of order", m.ID())
		}
	}
}

func TestConcurrentMembershipReturnsToBaseline(t *testing.T) {
	f := fabric.NewLocal(8)
	baseline := fabrictest.NewConn("baseline")
	f.Subscribe("chat_lobby", baseline)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := fabrictest.NewConn(fmt.Sprintf("c%d", i))
			groups := []string{"chat_lobby", fabric.InboxGroup(c.ID())}
			for _, g := range groups {
				f.Subscribe(g, c)
			}
			f.Broadcast("chat_lobby", protocol.UserJoin(c.ID()))
			for _, g := range groups {
				f.Unsubscribe(g, c)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, f.GroupSize("chat_lobby"))
	assert.Equal(t, []string{"chat_lobby"}, f.Groups())
	assert.Len(t, baseline.Events(), 50)
}
