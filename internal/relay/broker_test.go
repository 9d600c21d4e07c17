package relay

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabtext/internal/editor"
	"collabtext/internal/protocol"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func receive(t *testing.T, ch <-chan protocol.Envelope) protocol.Envelope {
	t.Helper()
	select {
	case env := <-ch:
		return env
	case <-time.After(5 * time.Second):
		t.Fatal("nothing received")
		return protocol.Envelope{}
	}
}

func TestRedisBrokerRoundTrip(t *testing.T) {
	_, rdb := newRedis(t)
	b := NewRedisBroker(rdb, "doc", quietLog())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := b.Subscribe(ctx)
	require.NoError(t, err)

	env, err := protocol.ActionEnvelope(editor.UpdateContent{ID: "seed", Content: "hi"})
	require.NoError(t, err)
	env.Sender = "client-1"
	require.NoError(t, b.Publish(ctx, env))

	got := receive(t, ch)
	assert.Equal(t, "client-1", got.Sender)
	a, err := got.Action.ToEditor()
	require.NoError(t, err)
	assert.Equal(t, editor.UpdateContent{ID: "seed", Content: "hi"}, a)

	require.NoError(t, b.Publish(ctx, protocol.SnapshotEnvelope(seed)))
	assert.Equal(t, seed, receive(t, ch).Lines)
}

func TestRedisBrokerSkipsMalformedPayloads(t *testing.T) {
	mr, rdb := newRedis(t)
	b := NewRedisBroker(rdb, "doc", quietLog())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := b.Subscribe(ctx)
	require.NoError(t, err)

	mr.Publish("collabtext:doc", "{not json")
	require.NoError(t, b.Publish(ctx, protocol.SnapshotEnvelope(seed)))

	got := receive(t, ch)
	assert.Equal(t, protocol.TypeSnapshot, got.Type)
}

func TestRedisBrokerKeepsDocumentsApart(t *testing.T) {
	_, rdb := newRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	other, err := NewRedisBroker(rdb, "other", quietLog()).Subscribe(ctx)
	require.NoError(t, err)
	mine := NewRedisBroker(rdb, "doc", quietLog())
	ch, err := mine.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, mine.Publish(ctx, protocol.SnapshotEnvelope(seed)))
	receive(t, ch)
	assert.Never(t, func() bool { return len(other) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestRedisBrokerStopsOnCancel(t *testing.T) {
	mr, rdb := newRedis(t)
	b := NewRedisBroker(rdb, "doc", quietLog())
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := b.Subscribe(ctx)
	require.NoError(t, err)
	cancel()

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub("collabtext:doc")["collabtext:doc"] == 0
	}, 5*time.Second, 10*time.Millisecond, "subscription released")
	require.NoError(t, b.Publish(context.Background(), protocol.SnapshotEnvelope(seed)))
	assert.Never(t, func() bool { return len(ch) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestHubsShareRedisChannel(t *testing.T) {
	_, rdb := newRedis(t)
	one := newFixtureOn(t, NewRedisBroker(rdb, "doc", quietLog()), Options{})
	two := newFixtureOn(t, NewRedisBroker(rdb, "doc", quietLog()), Options{})

	a := one.dial(t, "")
	b := two.dial(t, "codec=cbor")
	c := one.dial(t, "")

	a.send(editor.NewLine{AfterID: "seed", NewID: "n1", IsMe: true})
	assert.Equal(t, editor.NewLine{AfterID: "seed", NewID: "n1", IsMe: true}, b.readAction())
	assert.Equal(t, editor.NewLine{AfterID: "seed", NewID: "n1", IsMe: true}, c.readAction())

	// The sender hears nothing back, even through the other instance.
	require.NoError(t, a.conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := a.conn.ReadMessage()
	assert.Error(t, err)

	last := editor.Lines{{ID: "seed", Type: editor.H1}, {ID: "n1", Type: editor.Paragraph, Content: "from two"}}
	b.write(protocol.SnapshotEnvelope(last))
	for _, f := range []*fixture{one, two} {
		require.Eventually(t, func() bool {
			return assert.ObjectsAreEqual(last, f.hub.Snapshot())
		}, 5*time.Second, 10*time.Millisecond)
	}
}
