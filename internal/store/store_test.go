package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/huddle/internal/identity"
	"github.com/codefionn/huddle/internal/protocol"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createUser(t *testing.T, s *Store, name string) identity.Principal {
	t.Helper()
	u, err := s.CreateUser(context.Background(), name, "scrypt:test")
	require.NoError(t, err)
	return u.Principal()
}

func TestOpenFileDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "huddle.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Ping(context.Background()))
	createUser(t, s, "alice")
	require.NoError(t, s.Close())

	// Reopening keeps the data and tolerates the existing schema.
	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	u, err := s.GetUserByName(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
}

func TestCreateUser(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	alice := createUser(t, s, "alice")
	assert.True(t, alice.Authenticated())

	_, err := s.CreateUser(ctx, "alice", "x")
	assert.ErrorIs(t, err, ErrConflict)

	_, err = s.CreateUser(ctx, "bad name", "x")
	assert.Error(t, err)

	_, err = s.GetUserByName(ctx, "bob")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLookupCredentials(t *testing.T) {
	s := openTestStore(t)
	alice := createUser(t, s, "alice")

	p, hash, err := s.LookupCredentials(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, alice, p)
	assert.Equal(t, "scrypt:test", hash)

	_, _, err = s.LookupCredentials(context.Background(), "nobody")
	assert.ErrorIs(t, err, identity.ErrUnknownUser)
}

func TestRooms(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	room, created, err := s.GetOrCreateRoom(ctx, "lobby")
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := s.GetOrCreateRoom(ctx, "lobby")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, room.ID, again.ID)

	_, _, err = s.GetOrCreateRoom(ctx, "no spaces")
	assert.Error(t, err)

	_, _, err = s.GetOrCreateRoom(ctx, "attic")
	require.NoError(t, err)
	rooms, err := s.ListRooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, "attic", rooms[0].Name)

	_, err = s.GetRoom(ctx, "cellar")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestValidRoomName(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"lobby", true},
		{"team-1_a.b", true},
		{"", false},
		{"with space", false},
		{"slash/name", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.valid, ValidRoomName(tt.name), tt.name)
	}
}

func TestPresenceCountsConnections(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")
	room, _, err := s.GetOrCreateRoom(ctx, "lobby")
	require.NoError(t, err)

	online1, err := s.AddOnline(ctx, room, alice)
	require.NoError(t, err)
	assert.True(t, online1)
	online2, err := s.AddOnline(ctx, room, alice)
	require.NoError(t, err)
	assert.False(t, online2, "second connection of alice")
	_, err = s.AddOnline(ctx, room, bob)
	require.NoError(t, err)

	online, err := s.Online(ctx, room)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, online)

	offline, err := s.RemoveOnline(ctx, room, alice)
	require.NoError(t, err)
	assert.False(t, offline, "alice still has a connection")

	offline, err = s.RemoveOnline(ctx, room, alice)
	require.NoError(t, err)
	assert.True(t, offline)

	online, err = s.Online(ctx, room)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, online)

	require.NoError(t, s.ResetPresence(ctx))
	online, err = s.Online(ctx, room)
	require.NoError(t, err)
	assert.Empty(t, online)
}

func TestCreateMessage(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice")
	room, _, err := s.GetOrCreateRoom(ctx, "lobby")
	require.NoError(t, err)

	msg, err := s.CreateMessage(ctx, room, alice, "hello")
	require.NoError(t, err)
	assert.Equal(t, "alice", msg.Username)
	assert.NotZero(t, msg.ID)

	n, err := s.CountMessages(ctx, room)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestTasksAreOwnerScoped(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")
	tasks := s.Tasks()

	task, err := tasks.Create(ctx, alice, &Task{Name: "Groceries", UserID: bob.ID})
	require.NoError(t, err)
	assert.Equal(t, alice.ID, task.UserID, "owner is always the creator")
	assert.Equal(t, "alice", task.Username)
	assert.Empty(t, task.Items)

	_, err = tasks.Get(ctx, bob, task.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, protocol.ErrNotFound)

	_, err = tasks.Update(ctx, bob, &Task{ID: task.ID, Name: "Mine now"})
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, tasks.Delete(ctx, bob, task.ID), ErrNotFound)

	updated, err := tasks.Update(ctx, alice, &Task{ID: task.ID, Name: "Weekly groceries"})
	require.NoError(t, err)
	assert.Equal(t, "Weekly groceries", updated.Name)

	list, err := tasks.List(ctx, bob)
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, tasks.Delete(ctx, alice, task.ID))
	_, err = tasks.Get(ctx, alice, task.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestItemsFollowTaskOwner(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice")
	bob := createUser(t, s, "bob")

	task, err := s.Tasks().Create(ctx, alice, &Task{Name: "Groceries"})
	require.NoError(t, err)

	items := s.Items()
	_, err = items.Create(ctx, bob, &Item{TaskID: task.ID, Name: "Milk"})
	assert.ErrorIs(t, err, ErrNotFound, "bob cannot add to alice's task")

	milk, err := items.Create(ctx, alice, &Item{TaskID: task.ID, Name: "Milk"})
	require.NoError(t, err)
	assert.Nil(t, milk.DoneAt)
	assert.Nil(t, milk.DoneBy)

	doneAt := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	milk.DoneAt = &doneAt
	milk.DoneByID = &alice.ID
	done, err := items.Update(ctx, alice, milk)
	require.NoError(t, err)
	require.NotNil(t, done.DoneAt)
	assert.True(t, doneAt.Equal(*done.DoneAt))
	require.NotNil(t, done.DoneBy)
	assert.Equal(t, "alice", *done.DoneBy)

	done.DoneAt = nil
	done.DoneByID = nil
	reopened, err := items.Update(ctx, alice, done)
	require.NoError(t, err)
	assert.Nil(t, reopened.DoneAt)
	assert.Nil(t, reopened.DoneBy)

	_, err = items.Get(ctx, bob, milk.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = items.Update(ctx, bob, milk)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, items.Delete(ctx, bob, milk.ID), ErrNotFound)

	_, err = items.Create(ctx, alice, &Item{TaskID: task.ID, Name: "Eggs"})
	require.NoError(t, err)

	list, err := s.Tasks().List(ctx, alice)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Len(t, list[0].Items, 2)
	assert.Equal(t, "Milk", list[0].Items[0].Name)
	assert.Equal(t, "Eggs", list[0].Items[1].Name)

	require.NoError(t, items.Delete(ctx, alice, milk.ID))
	got, err := s.Tasks().Get(ctx, alice, task.ID)
	require.NoError(t, err)
	assert.Len(t, got.Items, 1)
}

func TestDeletingTaskRemovesItems(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice")

	task, err := s.Tasks().Create(ctx, alice, &Task{Name: "Trip"})
	require.NoError(t, err)
	item, err := s.Items().Create(ctx, alice, &Item{TaskID: task.ID, Name: "Tickets"})
	require.NoError(t, err)

	require.NoError(t, s.Tasks().Delete(ctx, alice, task.ID))
	_, err = s.Items().Get(ctx, alice, item.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
