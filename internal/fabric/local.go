package fabric

import (
	"sort"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/codefionn/huddle/internal/logger"
	"github.com/codefionn/huddle/internal/protocol"
)

// DefaultShards is the shard count used when NewLocal is given zero.
const DefaultShards = 16

type shard struct {
	mu     sync.RWMutex
	groups map[string]map[string]Conn // group -> conn id -> conn
}

// Local is an in-process Fabric. Groups are spread over shards by the hash
// of their name so unrelated groups do not contend on one lock.
type Local struct {
	shards []*shard
	log    *logger.Logger
}

var _ Fabric = (*Local)(nil)

// NewLocal creates an in-process fabric with n shards.
func NewLocal(n int) *Local {
	if n <= 0 {
		n = DefaultShards
	}
	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = &shard{groups: make(map[string]map[string]Conn)}
	}
	return &Local{
		shards: shards,
		log:    logger.Global().WithPrefix("fabric"),
	}
}

func (f *Local) shardFor(group string) *shard {
	return f.shards[xxhash.Sum64String(group)%uint64(len(f.shards))]
}

// Subscribe implements Fabric.
func (f *Local) Subscribe(group string, conn Conn) {
	s := f.shardFor(group)
	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.groups[group]
	if !ok {
		members = make(map[string]Conn)
		s.groups[group] = members
	}
	members[conn.ID()] = conn
	f.log.Debug("%s joined %s (%d members)", conn.ID(), group, len(members))
}

// Unsubscribe implements Fabric.
func (f *Local) Unsubscribe(group string, conn Conn) {
	s := f.shardFor(group)
	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.groups[group]
	if !ok {
		return
	}
	if _, ok := members[conn.ID()]; !ok {
		return
	}
	delete(members, conn.ID())
	if len(members) == 0 {
		delete(s.groups, group)
	}
	f.log.Debug("%s left %s (%d members)", conn.ID(), group, len(members))
}

// Broadcast implements Fabric. The member set is snapshotted under the
// shard lock and delivery happens outside it.
func (f *Local) Broadcast(group string, ev protocol.Event) Result {
	s := f.shardFor(group)
	s.mu.RLock()
	members := make([]Conn, 0, len(s.groups[group]))
	for _, c := range s.groups[group] {
		members = append(members, c)
	}
	s.mu.RUnlock()

	var res Result
	for _, c := range members {
		if c.Deliver(ev) {
			res.Delivered++
			continue
		}
		res.Dropped++
		f.log.Warn("Dropped %s for %s in %s: send queue full or closed", ev.Type(), c.ID(), group)
	}
	return res
}

// GroupSize implements Fabric.
func (f *Local) GroupSize(group string) int {
	s := f.shardFor(group)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.groups[group])
}

// Groups implements Fabric.
func (f *Local) Groups() []string {
	var out []string
	for _, s := range f.shards {
		s.mu.RLock()
		for g := range s.groups {
			out = append(out, g)
		}
		s.mu.RUnlock()
	}
	sort.Strings(out)
	return out
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
