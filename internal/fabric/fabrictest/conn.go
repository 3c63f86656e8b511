// Package fabrictest provides an in-memory fabric.Conn for tests.
package fabrictest

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/codefionn/huddle/internal/protocol"
)

var nextID atomic.Int64

// Conn records every delivered event. A positive capacity makes Deliver drop
// events once that many are buffered, mimicking a full send queue.
type Conn struct {
	id       string
	capacity int

	mu     sync.Mutex
	events []protocol.Event
	closed bool
}

// NewConn returns an unbounded recording connection.
func NewConn(id string) *Conn {
	if id == "" {
		id = "conn-" + strconv.FormatInt(nextID.Add(1), 10)
	}
	return &Conn{id: id}
}

// NewBoundedConn returns a connection that drops events beyond capacity.
func NewBoundedConn(id string, capacity int) *Conn {
	c := NewConn(id)
	c.capacity = capacity
	return c
}

func (c *Conn) ID() string { return c.id }

// Deliver implements fabric.Conn.
func (c *Conn) Deliver(ev protocol.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || (c.capacity > 0 && len(c.events) >= c.capacity) {
		return false
	}
	c.events = append(c.events, ev)
	return true
}

// Close makes subsequent deliveries fail.
func (c *Conn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

// Events returns a copy of the delivered events.
func (c *Conn) Events() []protocol.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Event(nil), c.events...)
}

// Types returns the type of every delivered event, in order.
func (c *Conn) Types() []string {
	events := c.Events()
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.Type()
	}
	return out
}

// Last returns the most recently delivered event, or nil.
func (c *Conn) Last() protocol.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 {
		return nil
	}
	return c.events[len(c.events)-1]
}

// Reset discards recorded events.
func (c *Conn) Reset() {
	c.mu.Lock()
	c.events = nil
	c.mu.Unlock()
}
