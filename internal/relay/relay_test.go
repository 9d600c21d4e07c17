package relay

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabtext/internal/auth"
	"collabtext/internal/editor"
	"collabtext/internal/protocol"
)

var seed = editor.Lines{{ID: "seed", Type: editor.H1}}

func quietLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	hub *Hub
	srv *httptest.Server
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	return newFixtureOn(t, NewMemoryBroker(), opts)
}

func newFixtureOn(t *testing.T, broker Broker, opts Options) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(broker, seed, quietLog())
	go hub.Run(ctx)
	<-hub.Ready()

	opts.Log = quietLog()
	srv := httptest.NewServer(NewServer(hub, opts).Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return &fixture{hub: hub, srv: srv}
}

func (f *fixture) wsURL(query string) string {
	u := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	if query != "" {
		u += "?" + query
	}
	return u
}

type peer struct {
	t     *testing.T
	conn  *websocket.Conn
	codec protocol.Codec
}

func (f *fixture) dial(t *testing.T, query string) *peer {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL(query), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	codec := protocol.JSON
	if strings.Contains(query, "codec=cbor") {
		codec = protocol.CBOR
	}
	p := &peer{t: t, conn: conn, codec: codec}
	init := p.read()
	require.Equal(t, protocol.TypeInit, init.Type)
	return p
}

func (p *peer) read() protocol.Envelope {
	p.t.Helper()
	require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := p.conn.ReadMessage()
	require.NoError(p.t, err)
	var env protocol.Envelope
	require.NoError(p.t, p.codec.Unmarshal(data, &env))
	return env
}

func (p *peer) write(env protocol.Envelope) {
	p.t.Helper()
	data, err := p.codec.Marshal(env)
	require.NoError(p.t, err)
	frame := websocket.TextMessage
	if p.codec.Binary() {
		frame = websocket.BinaryMessage
	}
	require.NoError(p.t, p.conn.WriteMessage(frame, data))
}

func (p *peer) send(a editor.Action) {
	p.t.Helper()
	env, err := protocol.ActionEnvelope(a)
	require.NoError(p.t, err)
	p.write(env)
}

func (p *peer) readAction() editor.Action {
	p.t.Helper()
	env := p.read()
	require.Equal(p.t, protocol.TypeAction, env.Type)
	a, err := env.Action.ToEditor()
	require.NoError(p.t, err)
	return a
}

func TestJoinerReceivesSnapshot(t *testing.T) {
	f := newFixture(t, Options{})
	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL(""), nil)
	require.NoError(t, err)
	defer conn.Close()

	var env protocol.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, protocol.InitEnvelope(seed), env)
}

func TestActionsGoToEveryoneButSender(t *testing.T) {
	f := newFixture(t, Options{})
	a, b, c := f.dial(t, ""), f.dial(t, ""), f.dial(t, "")

	first := editor.UpdateContent{ID: "seed", Content: "from a"}
	a.send(first)
	assert.Equal(t, editor.Action(first), b.readAction())
	assert.Equal(t, editor.Action(first), c.readAction())

	second := editor.NewLine{AfterID: "seed", NewID: "n1"}
	b.send(second)
	assert.Equal(t, editor.Action(second), a.readAction(), "a must not see its own action")
	assert.Equal(t, editor.Action(second), c.readAction())
}

func TestSnapshotPushReachesLateJoiners(t *testing.T) {
	f := newFixture(t, Options{})
	a := f.dial(t, "")

	pushed := editor.Lines{{ID: "x", Type: editor.H2, Content: "pushed"}, {ID: "y", Type: editor.Paragraph}}
	a.write(protocol.SnapshotEnvelope(pushed))
	require.Eventually(t, func() bool { return len(f.hub.Snapshot()) == 2 }, 5*time.Second, 10*time.Millisecond)

	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL(""), nil)
	require.NoError(t, err)
	defer conn.Close()
	var env protocol.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, pushed, env.Lines)

	res, err := http.Get(f.srv.URL + "/snapshot")
	require.NoError(t, err)
	defer res.Body.Close()
	var got editor.Lines
	require.NoError(t, json.NewDecoder(res.Body).Decode(&got))
	assert.Equal(t, pushed, got)
}

func TestEmptySnapshotIsIgnored(t *testing.T) {
	f := newFixture(t, Options{})
	a, b := f.dial(t, ""), f.dial(t, "")

	a.write(protocol.SnapshotEnvelope(nil))
	// Actions and snapshots travel the same path, so once b sees this
	// action the snapshot has been handled.
	a.send(editor.RemoveLine{ID: "zz"})
	b.readAction()
	assert.Equal(t, seed, f.hub.Snapshot())
}

func TestCodecsInteroperate(t *testing.T) {
	f := newFixture(t, Options{})
	j, c := f.dial(t, "codec=json"), f.dial(t, "codec=cbor")

	sel := editor.UpdateSelection{UserID: "u", LineID: "seed", Selection: editor.SelectionRange{Type: editor.Caret}}
	c.send(sel)
	assert.Equal(t, editor.Action(sel), j.readAction())

	j.send(editor.SetTextType{ID: "seed", TextType: editor.H3})
	assert.Equal(t, editor.Action(editor.SetTextType{ID: "seed", TextType: editor.H3}), c.readAction())
}

func TestUnknownCodecRejected(t *testing.T) {
	f := newFixture(t, Options{})
	_, res, err := websocket.DefaultDialer.Dial(f.wsURL("codec=xml"), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestMalformedMessagesAreDropped(t *testing.T) {
	f := newFixture(t, Options{})
	a, b := f.dial(t, ""), f.dial(t, "")

	require.NoError(t, a.conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	a.write(protocol.Envelope{Type: protocol.TypeAction, Action: &protocol.Action{Kind: "FOCUS"}})
	a.write(protocol.Envelope{Type: protocol.TypeInit})
	a.send(editor.RemoveLine{ID: "seed"})

	assert.Equal(t, editor.Action(editor.RemoveLine{ID: "seed"}), b.readAction())
}

func TestRequireAuth(t *testing.T) {
	store := auth.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.AddUser(ctx, "a@b.c", "pw"))
	f := newFixture(t, Options{Auth: store, RequireAuth: true})

	_, res, err := websocket.DefaultDialer.Dial(f.wsURL(""), nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)

	token, err := (&auth.Client{BaseURL: f.srv.URL}).Login(ctx, "a@b.c", "pw")
	require.NoError(t, err)
	f.dial(t, "token="+token)

	header := http.Header{"Authorization": {"bearer " + token}}
	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL(""), header)
	require.NoError(t, err)
	conn.Close()
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, Options{})
	res, err := http.Get(f.srv.URL + "/healthz")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestMemoryBrokerFanOut(t *testing.T) {
	b := NewMemoryBroker()
	ctx1, cancel1 := context.WithCancel(context.Background())
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()

	s1, err := b.Subscribe(ctx1)
	require.NoError(t, err)
	s2, err := b.Subscribe(ctx2)
	require.NoError(t, err)

	env := protocol.SnapshotEnvelope(seed)
	require.NoError(t, b.Publish(context.Background(), env))
	assert.Equal(t, env, <-s1)
	assert.Equal(t, env, <-s2)

	cancel1()
	require.Eventually(t, func() bool {
		b.mu.RLock()
		defer b.mu.RUnlock()
		return len(b.subs) == 1
	}, time.Second, 5*time.Millisecond)
	require.NoError(t, b.Publish(context.Background(), env))
	assert.Equal(t, env, <-s2)
}
