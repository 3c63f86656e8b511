// Package fabric implements the group broadcast fabric: a registry mapping
// group names to the connections currently subscribed to them.
//
// Groups are created implicitly by the first Subscribe and disappear when
// their last member unsubscribes. Broadcasting never blocks on a slow
// member: each member accepts or drops the event without waiting, and drops
// are logged rather than reported to the sender.
//
// For a fixed group, events broadcast one after another from the same
// goroutine reach every member in that order. Broadcasts issued
// concurrently to the same group have no relative order.
package fabric

import (
	"github.com/codefionn/huddle/internal/protocol"
)

// Conn is a handle that pushes events to exactly one remote peer.
type Conn interface {
	// ID uniquely identifies the connection within the process.
	ID() string
	// Deliver queues ev for the peer without blocking. It returns false if
	// the event was dropped.
	Deliver(ev protocol.Event) bool
}

// Result reports the outcome of a broadcast.
type Result struct {
	Delivered int
	Dropped   int
}

// Fabric is the group membership and fan-out contract. Local is the
// in-process implementation; other backends can distribute groups across
// processes behind the same interface.
type Fabric interface {
	// Subscribe adds conn to group. Subscribing twice has no further effect.
	Subscribe(group string, conn Conn)
	// Unsubscribe removes conn from group; absent members are ignored.
	Unsubscribe(group string, conn Conn)
	// Broadcast delivers ev to every current member of group. Empty or
	// unknown groups are a no-op.
	Broadcast(group string, ev protocol.Event) Result
	// GroupSize returns the number of members in group.
	GroupSize(group string) int
	// Groups lists the groups that currently have members.
	Groups() []string
}

// Group name prefixes.
const (
	chatPrefix      = "chat_"
	inboxPrefix     = "inbox_"
	checklistPrefix = "checklist_"
)

// ChatGroup names the broadcast group of a chat room.
func ChatGroup(room string) string { return chatPrefix + room }

// InboxGroup names the personal inbox group of a user.
func InboxGroup(username string) string { return inboxPrefix + username }

// ChecklistGroup names the checklist group of a user id.
func ChecklistGroup(userID int64) string {
	return checklistPrefix + formatID(userID)
}
