package server

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pixil98/go-multiworld/internal/messaging"
	"github.com/pixil98/go-multiworld/internal/protocol"
	"github.com/pixil98/go-multiworld/internal/rando"
	"github.com/pixil98/go-testutil"
)

// fakeRouter is an in-process ItemRouter: publishes go straight to the
// registered handler.
type fakeRouter struct {
	mu   sync.Mutex
	subs map[string]func(messaging.ItemEvent)
}

func newFakeRouter() *fakeRouter {
	return &fakeRouter{subs: map[string]func(messaging.ItemEvent){}}
}

func routeKey(mwID string, player int) string {
	return fmt.Sprintf("%s/%d", mwID, player)
}

func (f *fakeRouter) PublishItem(mwID string, player int, ev messaging.ItemEvent) error {
	f.mu.Lock()
	handler := f.subs[routeKey(mwID, player)]
	f.mu.Unlock()
	if handler != nil {
		handler(ev)
	}
	return nil
}

func (f *fakeRouter) SubscribeItems(mwID string, player int, handler func(messaging.ItemEvent)) (func(), error) {
	key := routeKey(mwID, player)
	f.mu.Lock()
	f.subs[key] = handler
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.subs, key)
		f.mu.Unlock()
	}, nil
}

// memStore is an in-memory result store.
type memStore struct {
	mu sync.Mutex
	m  map[string]*rando.Result
}

func newMemStore() *memStore {
	return &memStore{m: map[string]*rando.Result{}}
}

func (s *memStore) Save(id string, r *rando.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[id] = r
	return nil
}

func (s *memStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, id)
	return nil
}

func (s *memStore) Get(id string) *rando.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[id]
}

func (s *memStore) GetAll() map[string]*rando.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]*rando.Result{}
	for k, v := range s.m {
		out[k] = v
	}
	return out
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

func testLogic(t *testing.T) rando.Logic {
	t.Helper()

	spec := &rando.RulesetSpec{
		Items: map[string]*rando.ItemDef{
			"Dash":    {Pool: "skills", Progression: true},
			"Relic_1": {Pool: "relics"},
			"Relic_2": {Pool: "relics"},
			"Relic_3": {Pool: "relics"},
		},
		Locations: map[string]*rando.LocationDef{
			"Start_Cache": {},
			"Ledge":       {Logic: &rando.Requirement{AnyOf: []rando.Clause{{All: []string{"Dash"}}}}},
			"Shop":        {Shop: true},
		},
		Starts: []rando.StartDef{{Name: "Start_Cache"}},
	}

	logic, err := spec.Resolve()
	if err != nil {
		t.Fatalf("resolving test ruleset: %v", err)
	}
	return logic
}

func testRoomSettings(seed int64) *rando.Settings {
	return &rando.Settings{
		RandomizePools: map[string]bool{"skills": true, "relics": true},
		Seed:           seed,
	}
}

type harness struct {
	srv     *Server
	router  *fakeRouter
	store   *memStore
	baseCtx context.Context
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := &harness{
		router:  newFakeRouter(),
		store:   newMemStore(),
		baseCtx: ctx,
	}
	h.srv = NewServer(testLogic(t), h.router, h.store)
	return h
}

// dial opens an in-memory connection handled by the server.
func (h *harness) dial(t *testing.T) *testConn {
	t.Helper()

	client, server := net.Pipe()
	go func() {
		h.srv.HandleConnection(h.baseCtx, server)
		server.Close()
	}()
	t.Cleanup(func() { client.Close() })

	return &testConn{t: t, conn: client}
}

type testConn struct {
	t    *testing.T
	conn net.Conn
	uid  uint64
}

func (c *testConn) send(msg protocol.Message) {
	c.t.Helper()
	data, err := protocol.Encode(msg)
	if err != nil {
		c.t.Fatalf("encoding %s: %v", msg.Type(), err)
	}
	c.conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	if _, err := c.conn.Write(data); err != nil {
		c.t.Fatalf("writing %s: %v", msg.Type(), err)
	}
}

func (c *testConn) recv() protocol.Message {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msg, err := protocol.Decode(c.conn)
	if err != nil {
		c.t.Fatalf("reading frame: %v", err)
	}
	return msg
}

func (c *testConn) recvErr() error {
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := protocol.Decode(c.conn)
	return err
}

func (c *testConn) connect() {
	c.t.Helper()
	c.send(&protocol.Connect{})
	reply, ok := c.recv().(*protocol.Connect)
	if !ok {
		c.t.Fatal("expected connect reply")
	}
	if reply.SenderUID == 0 {
		c.t.Fatal("expected a nonzero uid")
	}
	c.uid = reply.SenderUID
}

func TestServer_ConnectAssignsUIDs(t *testing.T) {
	h := newHarness(t)

	c1 := h.dial(t)
	c1.connect()
	c2 := h.dial(t)
	c2.connect()

	if c1.uid == c2.uid {
		t.Errorf("both clients got uid %d", c1.uid)
	}
}

func TestServer_ConnectWithPresetUID(t *testing.T) {
	h := newHarness(t)

	c := h.dial(t)
	c.send(&protocol.Connect{SenderUID: 7})

	// The server rejects the claim and closes the connection.
	if err := c.recvErr(); err == nil {
		t.Error("expected the connection to be closed")
	}
}

func TestServer_FirstFrameMustBeConnect(t *testing.T) {
	h := newHarness(t)

	c := h.dial(t)
	c.send(&protocol.Ping{})

	if err := c.recvErr(); err == nil {
		t.Error("expected the connection to be closed")
	}
}

func TestServer_StartWithoutReady(t *testing.T) {
	h := newHarness(t)

	c := h.dial(t)
	c.connect()
	c.send(&protocol.Start{})

	msg, ok := c.recv().(*protocol.Notify)
	if !ok {
		t.Fatal("expected a notify")
	}
	if !strings.Contains(msg.Text, "cannot start") {
		t.Errorf("unexpected notify text %q", msg.Text)
	}
}

func TestServer_ReadyStartSaveFlow(t *testing.T) {
	h := newHarness(t)

	c1 := h.dial(t)
	c1.connect()
	c2 := h.dial(t)
	c2.connect()

	c1.send(&protocol.Ready{Room: "weekly", Nickname: "kay", Settings: testRoomSettings(5)})
	nr := c1.recv().(*protocol.NumReady)
	testutil.AssertEqual(t, "first ready count", nr.Ready, 1)
	testutil.AssertEqual(t, "first ready names", nr.Names, "kay")

	c2.send(&protocol.Ready{Room: "weekly", Nickname: "lin", Settings: testRoomSettings(9)})
	nr = c1.recv().(*protocol.NumReady)
	testutil.AssertEqual(t, "second ready count", nr.Ready, 2)
	nr = c2.recv().(*protocol.NumReady)
	testutil.AssertEqual(t, "second ready names", nr.Names, "kay, lin")

	// The initiator becomes player zero, so their seed drives the run.
	c2.send(&protocol.Start{})

	r2 := c2.recv().(*protocol.Result)
	testutil.AssertEqual(t, "initiator player", r2.Result.PlayerID, 0)
	testutil.AssertEqual(t, "driving seed", r2.Result.Settings.Seed, int64(9))

	r1 := c1.recv().(*protocol.Result)
	testutil.AssertEqual(t, "other player", r1.Result.PlayerID, 1)
	testutil.AssertEqual(t, "shared id", r1.Result.MultiworldID, r2.Result.MultiworldID)

	// Each player only sees placements at their own locations.
	for _, loc := range r1.Result.ItemPlacements {
		testutil.AssertEqual(t, "projected owner", loc.Player, 1)
	}

	testutil.AssertEqual(t, "persisted results", h.store.count(), 2)

	// Until the result is saved, starting again just resends it.
	c1.send(&protocol.Start{})
	again := c1.recv().(*protocol.Result)
	testutil.AssertEqual(t, "resent result", again.Result.MultiworldID, r1.Result.MultiworldID)
	testutil.AssertEqual(t, "resent player", again.Result.PlayerID, 1)

	// A stranger cannot ready into the room while results are unsaved.
	c3 := h.dial(t)
	c3.connect()
	c3.send(&protocol.Ready{Room: "weekly", Nickname: "mo", Settings: testRoomSettings(1)})
	denied := c3.recv().(*protocol.NumReady)
	testutil.AssertEqual(t, "denied", denied.Ready, -1)
	if !strings.Contains(denied.Names, "unsaved") {
		t.Errorf("unexpected denial reason %q", denied.Names)
	}

	// Once every participant saves, the room opens up again.
	c1.send(&protocol.Save{})
	c2.send(&protocol.Save{})

	deadline := time.Now().Add(2 * time.Second)
	for {
		h.srv.roomsMu.Lock()
		_, busy := h.srv.unsavedResults["weekly"]
		h.srv.roomsMu.Unlock()
		if !busy {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("room never freed after saves")
		}
		time.Sleep(5 * time.Millisecond)
	}

	c3.send(&protocol.Ready{Room: "weekly", Nickname: "mo", Settings: testRoomSettings(1)})
	nr = c3.recv().(*protocol.NumReady)
	testutil.AssertEqual(t, "room reopened", nr.Ready, 1)
}

func TestServer_DeadConnectionUnreadiesRoom(t *testing.T) {
	h := newHarness(t)

	c1 := h.dial(t)
	c1.connect()
	c2 := h.dial(t)
	c2.connect()

	c1.send(&protocol.Ready{Room: "weekly", Nickname: "kay", Settings: testRoomSettings(5)})
	c1.recv()
	c2.send(&protocol.Ready{Room: "weekly", Nickname: "lin", Settings: testRoomSettings(9)})
	c1.recv()
	c2.recv()

	// Kill the first connection without a disconnect frame. The handler's
	// teardown must unready the dead client and tell the survivors.
	c1.conn.Close()

	nr := c2.recv().(*protocol.NumReady)
	testutil.AssertEqual(t, "count after death", nr.Ready, 1)
	testutil.AssertEqual(t, "names after death", nr.Names, "lin")

	h.srv.roomsMu.Lock()
	roster := h.srv.ready["weekly"]
	_, stale := roster[c1.uid]
	h.srv.roomsMu.Unlock()
	if stale {
		t.Fatal("dead client still in the ready roster")
	}

	// The survivor can still start the room alone.
	c2.send(&protocol.Start{})
	res, ok := c2.recv().(*protocol.Result)
	if !ok {
		t.Fatal("expected a result")
	}
	testutil.AssertEqual(t, "solo player", res.Result.PlayerID, 0)
	testutil.AssertEqual(t, "solo player count", res.Result.Players, 1)
}

func TestServer_SpoilerOnlyForRequestingPlayers(t *testing.T) {
	h := newHarness(t)

	c1 := h.dial(t)
	c1.connect()
	c2 := h.dial(t)
	c2.connect()

	c1.send(&protocol.Ready{Room: "weekly", Nickname: "kay", Settings: testRoomSettings(5)})
	c1.recv()

	wantSpoiler := testRoomSettings(9)
	wantSpoiler.CreateSpoilerLog = true
	c2.send(&protocol.Ready{Room: "weekly", Nickname: "lin", Settings: wantSpoiler})
	c1.recv()
	c2.recv()

	c2.send(&protocol.Start{})

	r2 := c2.recv().(*protocol.Result)
	if r2.Result.ItemsSpoiler == "" {
		t.Fatal("requesting player got no spoiler")
	}
	if !strings.Contains(r2.Result.ItemsSpoiler, r2.Result.MultiworldID) {
		t.Errorf("spoiler does not name the generation: %q", r2.Result.ItemsSpoiler)
	}

	r1 := c1.recv().(*protocol.Result)
	testutil.AssertEqual(t, "unrequested spoiler", r1.Result.ItemsSpoiler, "")
}

func TestServer_Unready(t *testing.T) {
	h := newHarness(t)

	c1 := h.dial(t)
	c1.connect()
	c2 := h.dial(t)
	c2.connect()

	c1.send(&protocol.Ready{Room: "weekly", Nickname: "kay", Settings: testRoomSettings(5)})
	c1.recv() // own roster update
	c2.send(&protocol.Ready{Room: "weekly", Nickname: "lin", Settings: testRoomSettings(9)})
	c1.recv()
	c2.recv()

	c2.send(&protocol.Unready{})
	nr := c1.recv().(*protocol.NumReady)
	testutil.AssertEqual(t, "count after unready", nr.Ready, 1)
	testutil.AssertEqual(t, "names after unready", nr.Names, "kay")
}

func TestServer_ItemRoutingAndConfirm(t *testing.T) {
	h := newHarness(t)

	c1 := h.dial(t)
	c1.connect()
	c1.send(&protocol.Join{MultiworldID: "game-1", PlayerID: 0, Nickname: "kay"})
	if _, ok := c1.recv().(*protocol.JoinConfirm); !ok {
		t.Fatal("expected join confirm")
	}

	c2 := h.dial(t)
	c2.connect()
	c2.send(&protocol.Join{MultiworldID: "game-1", PlayerID: 1, Nickname: "lin"})
	if _, ok := c2.recv().(*protocol.JoinConfirm); !ok {
		t.Fatal("expected join confirm")
	}

	c1.send(&protocol.ItemSend{Location: "Ledge", Item: "Claw", To: 1})

	conf := c1.recv().(*protocol.ItemSendConfirm)
	testutil.AssertEqual(t, "echoed item", conf.Item, "Claw")
	testutil.AssertEqual(t, "echoed to", conf.To, 1)

	recv := c2.recv().(*protocol.ItemReceive)
	testutil.AssertEqual(t, "delivered item", recv.Item, "Claw")
	testutil.AssertEqual(t, "delivered from", recv.From, "kay")

	// The delivery stays pending until confirmed.
	sess := h.srv.client(c2.uid).Session()
	testutil.AssertEqual(t, "pending before confirm", sess.PendingCount(), 1)

	c2.send(&protocol.ItemReceiveConfirm{Item: "Claw", From: "kay"})

	deadline := time.Now().Add(2 * time.Second)
	for sess.PendingCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("confirmation never drained the pending queue")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestServer_ItemBufferedWhileOffline(t *testing.T) {
	h := newHarness(t)

	c1 := h.dial(t)
	c1.connect()
	c1.send(&protocol.Join{MultiworldID: "game-1", PlayerID: 0, Nickname: "kay"})
	c1.recv()

	// Player 2 has never connected; the event is buffered.
	c1.send(&protocol.ItemSend{Location: "Ledge", Item: "Lantern", To: 2})
	c1.recv() // send confirm

	c3 := h.dial(t)
	c3.connect()
	c3.send(&protocol.Join{MultiworldID: "game-1", PlayerID: 2, Nickname: "mo"})

	// The buffered delivery flushes before the join confirm.
	recv := c3.recv().(*protocol.ItemReceive)
	testutil.AssertEqual(t, "buffered item", recv.Item, "Lantern")
	testutil.AssertEqual(t, "buffered from", recv.From, "kay")
	if _, ok := c3.recv().(*protocol.JoinConfirm); !ok {
		t.Fatal("expected join confirm after flush")
	}
}
