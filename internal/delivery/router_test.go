package delivery

import (
	"encoding/json"
	"testing"

	"github.com/nfrund/huddle/internal/domain"
	"github.com/nfrund/huddle/internal/presence"
	"github.com/nfrund/huddle/internal/protocol"
	"github.com/nfrund/huddle/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	registry *presence.Registry
	router   *Router
	conns    map[string]*testutils.FakeConn
}

func newFixture(t *testing.T, identities ...string) *fixture {
	t.Helper()
	f := &fixture{
		registry: presence.NewRegistry(),
		conns:    make(map[string]*testutils.FakeConn),
	}
	f.router = NewRouter(f.registry, nil)
	for _, id := range identities {
		conn := testutils.NewFakeConn("conn-" + id)
		_, err := f.registry.Join(id, conn)
		require.NoError(t, err)
		f.conns[id] = conn
	}
	return f
}

func direct(author, target, text string) domain.Message {
	return domain.Message{Author: author, Text: text, Target: &target}
}

func TestRouter_DeliverBroadcast(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")

	n := f.router.Deliver(domain.Message{Author: "alice", Text: "hi", Index: 0})
	assert.Equal(t, 3, n)

	for id, conn := range f.conns {
		frames := conn.Events(protocol.EventMessage)
		require.Len(t, frames, 1, id)

		var ev protocol.MessageEvent
		require.NoError(t, json.Unmarshal(frames[0].Data, &ev))
		assert.Equal(t, "hi", ev.Message.Text)
		assert.Equal(t, 0, ev.Index)
	}
}

func TestRouter_DeliverDirect(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")

	n := f.router.Deliver(direct("alice", "bob", "psst"))
	assert.Equal(t, 2, n)

	assert.Len(t, f.conns["alice"].Events(protocol.EventMessage), 1)
	assert.Len(t, f.conns["bob"].Events(protocol.EventMessage), 1)
	assert.Empty(t, f.conns["carol"].Frames())
}

func TestRouter_DeliverDirectToSelf(t *testing.T) {
	f := newFixture(t, "alice", "bob")

	n := f.router.Deliver(direct("alice", "alice", "note"))
	assert.Equal(t, 1, n)
	assert.Len(t, f.conns["alice"].Frames(), 1)
	assert.Empty(t, f.conns["bob"].Frames())
}

func TestRouter_DeliverDirectOfflineTarget(t *testing.T) {
	f := newFixture(t, "alice", "carol")

	n := f.router.Deliver(direct("alice", "bob", "are you there"))
	assert.Equal(t, 1, n)
	assert.Len(t, f.conns["alice"].Frames(), 1)
	assert.Empty(t, f.conns["carol"].Frames())
}

func TestRouter_FullConnectionDoesNotStallOthers(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	f.conns["bob"].SetFull(true)

	n := f.router.Deliver(domain.Message{Author: "alice", Text: "hi"})
	assert.Equal(t, 2, n)
	assert.Len(t, f.conns["alice"].Frames(), 1)
	assert.Empty(t, f.conns["bob"].Frames())
	assert.Len(t, f.conns["carol"].Frames(), 1)
}

func TestRouter_BroadcastAndSend(t *testing.T) {
	f := newFixture(t, "alice", "bob")

	n := f.router.Broadcast(protocol.EventOnlineUsers, []string{"alice", "bob"})
	assert.Equal(t, 2, n)
	frames := f.conns["bob"].Events(protocol.EventOnlineUsers)
	require.Len(t, frames, 1)
	assert.JSONEq(t, `["alice","bob"]`, string(frames[0].Data))

	anon := testutils.NewFakeConn("anon")
	assert.True(t, f.router.Send(anon, protocol.EventLoadMessages, []domain.Message{}))
	assert.Len(t, anon.Events(protocol.EventLoadMessages), 1)

	anon.Close("gone")
	assert.False(t, f.router.Send(anon, protocol.EventLoadMessages, []domain.Message{}))
}
