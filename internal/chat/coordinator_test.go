package chat

import (
	"context"
	"encoding/json"
	"runtime"
	"sync"
	"testing"

	"github.com/nfrund/huddle/internal/authz"
	"github.com/nfrund/huddle/internal/delivery"
	"github.com/nfrund/huddle/internal/domain"
	"github.com/nfrund/huddle/internal/messagelog"
	"github.com/nfrund/huddle/internal/presence"
	"github.com/nfrund/huddle/internal/protocol"
	"github.com/nfrund/huddle/internal/pubsub"
	"github.com/nfrund/huddle/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockPublisher implements pubsub.Publisher for testing
type mockPublisher struct {
	mu       sync.Mutex
	messages []pubsub.Message
}

func (m *mockPublisher) Publish(ctx context.Context, msg pubsub.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

func (m *mockPublisher) topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.messages))
	for i, msg := range m.messages {
		out[i] = msg.Topic
	}
	return out
}

type harness struct {
	coord    *Coordinator
	log      *messagelog.Log
	registry *presence.Registry
	pub      *mockPublisher
}

func newHarness(moderators ...string) *harness {
	h := &harness{
		log:      messagelog.New(),
		registry: presence.NewRegistry(),
		pub:      &mockPublisher{},
	}
	router := delivery.NewRouter(h.registry, nil)
	h.coord = NewCoordinator(h.log, h.registry, router, authz.NewStatic(moderators...), WithPublisher(h.pub))
	return h
}

// joined connects a fake connection and joins it as identity.
func (h *harness) joined(t *testing.T, identity string) (*Session, *testutils.FakeConn) {
	t.Helper()
	conn := testutils.NewFakeConn("conn-" + identity)
	s := h.coord.Connect(conn, "")
	require.NoError(t, s.Join(context.Background(), identity))
	return s, conn
}

func send(t *testing.T, s *Session, text, target string) domain.Message {
	t.Helper()
	msg, err := s.SendMessage(context.Background(), protocol.ChatMessage{Text: text, Target: target})
	require.NoError(t, err)
	return msg
}

func decodeMessages(t *testing.T, frames []testutils.Frame) []protocol.MessageEvent {
	t.Helper()
	out := make([]protocol.MessageEvent, len(frames))
	for i, f := range frames {
		require.NoError(t, json.Unmarshal(f.Data, &out[i]))
	}
	return out
}

func lastOnline(t *testing.T, conn *testutils.FakeConn) []string {
	t.Helper()
	frames := conn.Events(protocol.EventOnlineUsers)
	require.NotEmpty(t, frames)
	var users []string
	require.NoError(t, json.Unmarshal(frames[len(frames)-1].Data, &users))
	return users
}

func TestSession_JoinSendsHistoryAndPresence(t *testing.T) {
	h := newHarness()
	alice, aliceConn := h.joined(t, "alice")
	send(t, alice, "hello", "")

	_, bobConn := h.joined(t, " bob ")

	loads := bobConn.Events(protocol.EventLoadMessages)
	require.Len(t, loads, 1)
	var history []domain.Message
	require.NoError(t, json.Unmarshal(loads[0].Data, &history))
	require.Len(t, history, 1)
	assert.Equal(t, "hello", history[0].Text)

	assert.Equal(t, []string{"alice", "bob"}, lastOnline(t, aliceConn))
	assert.Equal(t, []string{"alice", "bob"}, lastOnline(t, bobConn))
	assert.Empty(t, aliceConn.Events(protocol.EventLoadMessages)[1:], "history goes to the joining connection only")
}

func TestSession_JoinValidation(t *testing.T) {
	h := newHarness()
	s := h.coord.Connect(testutils.NewFakeConn("c1"), "")

	assert.ErrorIs(t, s.Join(context.Background(), "   "), domain.ErrInvalidIdentity)
	assert.ErrorIs(t, s.Join(context.Background(), "abcdefghijklmnopqrstuvwxyz012345"), domain.ErrInvalidIdentity)
	assert.Equal(t, StateAnonymous, s.State())

	require.NoError(t, s.Join(context.Background(), "alice"))
	assert.ErrorIs(t, s.Join(context.Background(), "alice"), domain.ErrAlreadyJoined)
}

func TestSession_JoinMustMatchAuthenticatedIdentity(t *testing.T) {
	h := newHarness()
	s := h.coord.Connect(testutils.NewFakeConn("c1"), "alice")

	assert.ErrorIs(t, s.Join(context.Background(), "mallory"), domain.ErrUnauthorized)
	assert.Equal(t, 0, h.registry.Count())

	require.NoError(t, s.Join(context.Background(), "alice"))
	assert.Equal(t, StateActive, s.State())
}

func TestSession_RejoinTerminatesPriorConnection(t *testing.T) {
	h := newHarness()
	first, firstConn := h.joined(t, "alice")

	secondConn := testutils.NewFakeConn("second")
	second := h.coord.Connect(secondConn, "")
	require.NoError(t, second.Join(context.Background(), "alice"))

	closed, _ := firstConn.Closed()
	assert.True(t, closed)
	assert.Equal(t, 1, h.registry.Count())
	conn, ok := h.registry.Resolve("alice")
	require.True(t, ok)
	assert.Equal(t, "second", conn.ID())

	// The replaced session can no longer act as alice.
	_, err := first.SendMessage(context.Background(), protocol.ChatMessage{Text: "ghost"})
	assert.ErrorIs(t, err, domain.ErrSessionReplaced)
	assert.Equal(t, 0, h.log.Len())

	// Its eventual disconnect does not evict the new binding.
	first.Disconnect(context.Background())
	_, ok = h.registry.Resolve("alice")
	assert.True(t, ok)
}

func TestSession_ReplacedSessionCannotRejoin(t *testing.T) {
	h := newHarness()
	first, _ := h.joined(t, "alice")

	secondConn := testutils.NewFakeConn("second")
	second := h.coord.Connect(secondConn, "")
	require.NoError(t, second.Join(context.Background(), "alice"))

	// A join still in flight from the closing connection must not reclaim alice.
	assert.ErrorIs(t, first.Join(context.Background(), "alice"), domain.ErrSessionReplaced)
	assert.ErrorIs(t, first.Leave(context.Background()), domain.ErrSessionReplaced)
	assert.ErrorIs(t, first.Join(context.Background(), "alice"), domain.ErrSessionReplaced)

	closed, _ := secondConn.Closed()
	assert.False(t, closed)
	conn, ok := h.registry.Resolve("alice")
	require.True(t, ok)
	assert.Equal(t, "second", conn.ID())

	first.Disconnect(context.Background())
	assert.Equal(t, []string{"alice"}, h.registry.Identities())
	id, ok := second.Identity()
	assert.True(t, ok)
	assert.Equal(t, "alice", id)
}

func TestSession_SendRequiresCurrentBinding(t *testing.T) {
	h := newHarness()
	alice, _ := h.joined(t, "alice")

	// The registry moved alice to another connection before this session
	// learned it was replaced.
	_, err := h.registry.Join("alice", testutils.NewFakeConn("elsewhere"))
	require.NoError(t, err)

	_, err = alice.SendMessage(context.Background(), protocol.ChatMessage{Text: "stale"})
	assert.ErrorIs(t, err, domain.ErrSessionReplaced)
	assert.Equal(t, 0, h.log.Len())
	_, ok := alice.Identity()
	assert.False(t, ok)
}

func TestSession_JoinDuringTrafficSeesEachMessageOnce(t *testing.T) {
	const total = 300
	h := newHarness()
	alice, _ := h.joined(t, "alice")

	bobConn := testutils.NewFakeConn("conn-bob")
	bob := h.coord.Connect(bobConn, "")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			_, err := alice.SendMessage(context.Background(), protocol.ChatMessage{Text: "tick"})
			assert.NoError(t, err)
		}
	}()
	for h.log.Len() < total/3 {
		runtime.Gosched()
	}
	require.NoError(t, bob.Join(context.Background(), "bob"))
	wg.Wait()

	seen := make(map[uint64]int)
	historyAt, firstLiveAt := -1, -1
	for i, f := range bobConn.Frames() {
		switch f.Event {
		case protocol.EventLoadMessages:
			historyAt = i
			var history []domain.Message
			require.NoError(t, json.Unmarshal(f.Data, &history))
			for _, m := range history {
				seen[m.ID]++
			}
		case protocol.EventMessage:
			if firstLiveAt < 0 {
				firstLiveAt = i
			}
			var ev protocol.MessageEvent
			require.NoError(t, json.Unmarshal(f.Data, &ev))
			seen[ev.Message.ID]++
		}
	}

	require.GreaterOrEqual(t, historyAt, 0)
	if firstLiveAt >= 0 {
		assert.Less(t, historyAt, firstLiveAt, "history must precede live messages")
	}
	assert.Len(t, seen, total)
	for id, n := range seen {
		assert.Equal(t, 1, n, "message %d delivered %d times", id, n)
	}
}

func TestSession_ChatRequiresJoin(t *testing.T) {
	h := newHarness()
	s := h.coord.Connect(testutils.NewFakeConn("c1"), "")

	_, err := s.SendMessage(context.Background(), protocol.ChatMessage{Text: "hi"})
	assert.ErrorIs(t, err, domain.ErrNotJoined)
	assert.Equal(t, 0, h.log.Len())
}

func TestSession_EmptyMessageIsRejected(t *testing.T) {
	h := newHarness()
	alice, aliceConn := h.joined(t, "alice")
	aliceConn.Reset()

	_, err := alice.SendMessage(context.Background(), protocol.ChatMessage{Text: "   "})
	assert.ErrorIs(t, err, domain.ErrEmptyMessage)
	assert.Empty(t, aliceConn.Frames())
}

func TestScenario_BroadcastDirectAndHistory(t *testing.T) {
	h := newHarness()
	a, aConn := h.joined(t, "A")
	b, bConn := h.joined(t, "B")

	// A broadcasts "hi" at index 0.
	msg0 := send(t, a, "hi", "")
	assert.Equal(t, 0, msg0.Index)
	for _, conn := range []*testutils.FakeConn{aConn, bConn} {
		got := decodeMessages(t, conn.Events(protocol.EventMessage))
		require.Len(t, got, 1)
		assert.Equal(t, 0, got[0].Index)
		assert.Equal(t, "hi", got[0].Message.Text)
	}

	// B sends "secret" to A at index 1.
	msg1 := send(t, b, "secret", "A")
	assert.Equal(t, 1, msg1.Index)
	for _, conn := range []*testutils.FakeConn{aConn, bConn} {
		got := decodeMessages(t, conn.Events(protocol.EventMessage))
		require.Len(t, got, 2)
		assert.Equal(t, 1, got[1].Index)
		assert.Equal(t, "secret", got[1].Message.Text)
	}

	// C joins and receives both messages in its history, but saw no live events.
	_, cConn := h.joined(t, "C")
	loads := cConn.Events(protocol.EventLoadMessages)
	require.Len(t, loads, 1)
	var history []domain.Message
	require.NoError(t, json.Unmarshal(loads[0].Data, &history))
	require.Len(t, history, 2)
	assert.Equal(t, "hi", history[0].Text)
	assert.Equal(t, "secret", history[1].Text)
	assert.Empty(t, cConn.Events(protocol.EventMessage))

	// A later DM between A and B never reaches C.
	send(t, a, "just us", "B")
	assert.Empty(t, cConn.Events(protocol.EventMessage))
}

func TestSession_NonModeratorCannotEditOrDelete(t *testing.T) {
	h := newHarness("admin")
	a, aConn := h.joined(t, "A")
	send(t, a, "original", "")
	d, dConn := h.joined(t, "D")
	aConn.Reset()
	dConn.Reset()

	assert.ErrorIs(t, d.EditMessage(context.Background(), 0, "x"), domain.ErrUnauthorized)
	assert.ErrorIs(t, d.DeleteMessage(context.Background(), 0), domain.ErrUnauthorized)

	assert.Equal(t, "original", h.log.Snapshot()[0].Text)
	assert.Equal(t, 1, h.log.Len())
	assert.Empty(t, aConn.Frames())
	assert.Empty(t, dConn.Frames())
}

func TestSession_ModeratorEditAndDelete(t *testing.T) {
	h := newHarness("admin")
	a, aConn := h.joined(t, "A")
	send(t, a, "first", "")
	send(t, a, "second", "")
	admin, _ := h.joined(t, "admin")
	aConn.Reset()

	require.NoError(t, admin.EditMessage(context.Background(), 1, "edited"))
	updates := aConn.Events(protocol.EventUpdateMessage)
	require.Len(t, updates, 1)
	assert.JSONEq(t, `{"index":1,"newText":"edited"}`, string(updates[0].Data))

	require.NoError(t, admin.DeleteMessage(context.Background(), 0))
	deletes := aConn.Events(protocol.EventDeleteMessage)
	require.Len(t, deletes, 1)
	assert.JSONEq(t, `{"index":0}`, string(deletes[0].Data))

	snap := h.log.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "edited", snap[0].Text)
	assert.Equal(t, 0, snap[0].Index)

	// Out of range is a silent no-op for the other clients.
	aConn.Reset()
	assert.ErrorIs(t, admin.EditMessage(context.Background(), 5, "x"), domain.ErrIndexOutOfRange)
	assert.ErrorIs(t, admin.DeleteMessage(context.Background(), 5), domain.ErrIndexOutOfRange)
	assert.Empty(t, aConn.Frames())
}

func TestCoordinator_EditErrorKinds(t *testing.T) {
	h := newHarness("admin")
	a, _ := h.joined(t, "A")
	send(t, a, "only", "")
	ctx := context.Background()

	_, err := h.coord.Edit(ctx, "admin", 5, "")
	assert.ErrorIs(t, err, domain.ErrIndexOutOfRange)

	_, err = h.coord.Edit(ctx, "admin", -1, "")
	assert.ErrorIs(t, err, domain.ErrIndexOutOfRange)

	_, err = h.coord.Edit(ctx, "admin", 0, "  ")
	assert.ErrorIs(t, err, domain.ErrEmptyMessage)
	assert.Equal(t, "only", h.log.Snapshot()[0].Text)
}

func TestSession_LeaveAndDisconnect(t *testing.T) {
	h := newHarness()
	a, _ := h.joined(t, "A")
	b, bConn := h.joined(t, "B")

	require.NoError(t, a.Leave(context.Background()))
	assert.Equal(t, StateAnonymous, a.State())
	assert.Equal(t, []string{"B"}, lastOnline(t, bConn))
	assert.ErrorIs(t, a.Leave(context.Background()), domain.ErrNotJoined)

	// Rejoin after leave is allowed.
	require.NoError(t, a.Join(context.Background(), "A"))
	assert.Equal(t, []string{"A", "B"}, lastOnline(t, bConn))

	a.Disconnect(context.Background())
	assert.Equal(t, StateTerminated, a.State())
	assert.Equal(t, []string{"B"}, lastOnline(t, bConn))
	assert.ErrorIs(t, a.Join(context.Background(), "A"), domain.ErrTerminated)

	// Disconnecting an anonymous connection broadcasts nothing.
	anonConn := testutils.NewFakeConn("anon")
	anon := h.coord.Connect(anonConn, "")
	bConn.Reset()
	anon.Disconnect(context.Background())
	assert.Empty(t, bConn.Frames())

	b.Disconnect(context.Background())
	assert.Empty(t, h.coord.OnlineUsers())
}

func TestSession_HandleDispatch(t *testing.T) {
	h := newHarness("admin")
	conn := testutils.NewFakeConn("c1")
	s := h.coord.Connect(conn, "")
	ctx := context.Background()

	require.NoError(t, s.Handle(ctx, []byte(`{"event":"join","data":"admin"}`)))
	require.NoError(t, s.Handle(ctx, []byte(`{"event":"chatMessage","data":{"text":"hi","image":"/uploads/x.png","to":"admin"}}`)))

	snap := h.log.Snapshot()
	require.Len(t, snap, 1)
	require.NotNil(t, snap[0].Attachment)
	assert.Equal(t, "/uploads/x.png", *snap[0].Attachment)
	require.NotNil(t, snap[0].Target)
	assert.Equal(t, "admin", *snap[0].Target)

	require.NoError(t, s.Handle(ctx, []byte(`{"event":"editMessage","data":{"index":0,"newText":"hey"}}`)))
	assert.Equal(t, "hey", h.log.Snapshot()[0].Text)

	assert.ErrorIs(t, s.Handle(ctx, []byte(`{"event":"deleteMessage","data":{}}`)), domain.ErrMalformedEvent)
	assert.ErrorIs(t, s.Handle(ctx, []byte(`{"event":"dance"}`)), domain.ErrMalformedEvent)
	assert.ErrorIs(t, s.Handle(ctx, []byte(`not json`)), domain.ErrMalformedEvent)

	require.NoError(t, s.Handle(ctx, []byte(`{"event":"deleteMessage","data":{"index":0}}`)))
	assert.Equal(t, 0, h.log.Len())

	require.NoError(t, s.Handle(ctx, []byte(`{"event":"leave"}`)))
	assert.Equal(t, StateAnonymous, s.State())
}

func TestCoordinator_PublishesActivity(t *testing.T) {
	h := newHarness("admin")
	admin, _ := h.joined(t, "admin")
	send(t, admin, "hi", "")
	require.NoError(t, admin.EditMessage(context.Background(), 0, "hey"))
	require.NoError(t, admin.DeleteMessage(context.Background(), 0))
	require.NoError(t, admin.Leave(context.Background()))

	assert.Equal(t, []string{
		TopicIdentityJoined.Name(),
		TopicMessageAppended.Name(),
		TopicMessageEdited.Name(),
		TopicMessageDeleted.Name(),
		TopicIdentityLeft.Name(),
	}, h.pub.topics())
}

func TestCoordinator_ShutdownClosesConnections(t *testing.T) {
	h := newHarness()
	_, aConn := h.joined(t, "A")
	anonConn := testutils.NewFakeConn("anon")
	h.coord.Connect(anonConn, "")

	h.coord.Shutdown("server shutting down")

	for _, c := range []*testutils.FakeConn{aConn, anonConn} {
		closed, reason := c.Closed()
		assert.True(t, closed)
		assert.Equal(t, "server shutting down", reason)
	}
}

func TestCoordinator_ConcurrentSessions(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := testutils.NewFakeConn(string(rune('a' + i)))
			s := h.coord.Connect(conn, "")
			if err := s.Join(ctx, "user"+string(rune('a'+i))); err != nil {
				t.Error(err)
				return
			}
			for j := 0; j < 10; j++ {
				if _, err := s.SendMessage(ctx, protocol.ChatMessage{Text: "hi"}); err != nil {
					t.Error(err)
				}
			}
			s.Disconnect(ctx)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 100, h.log.Len())
	assert.Empty(t, h.coord.OnlineUsers())
	for i, m := range h.log.Snapshot() {
		assert.Equal(t, i, m.Index)
	}
}
