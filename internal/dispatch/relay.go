package dispatch

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/jonboulle/clockwork"
	"github.com/zeebo/blake3"

	"collabtext/internal/editor"
)

// DefaultSnapshotInterval is the minimum spacing of snapshot pushes.
const DefaultSnapshotInterval = 2 * time.Second

// Messenger is the transport the relay interceptor talks to.
type Messenger interface {
	// Send forwards a local action to the other participants. It must not
	// block.
	Send(a editor.Action)
	// SendSnapshot pushes the full line sequence for late joiners.
	SendSnapshot(lines editor.Lines)
	// OnAction registers a handler for actions from other participants.
	OnAction(fn func(editor.Action))
}

// reconnectNotifier is implemented by messengers that report a connection
// coming back after an outage.
type reconnectNotifier interface {
	OnReconnect(fn func())
}

// RelayedKinds are the action kinds shared with other participants by
// default. Focus and menu actions stay local.
var RelayedKinds = []editor.Kind{
	editor.KindNewLine,
	editor.KindRemoveLine,
	editor.KindUpdateContent,
	editor.KindSetTextType,
	editor.KindUpdateSelection,
}

// RelayOptions configures NewRelay.
type RelayOptions struct {
	// Kinds overrides RelayedKinds.
	Kinds []editor.Kind
	// SnapshotInterval defaults to DefaultSnapshotInterval.
	SnapshotInterval time.Duration
	Clock            clockwork.Clock
	Log              *slog.Logger
}

// Relay is the network interceptor: it sends allowed local actions to the
// messenger and feeds actions from other participants back into the
// pipeline, marked as remote.
type Relay struct {
	messenger Messenger
	kinds     mapset.Set[editor.Kind]
	interval  time.Duration
	clock     clockwork.Clock
	log       *slog.Logger

	subscribe sync.Once

	mu       sync.Mutex
	throttle *Throttle
	lastSum  [32]byte
	pushed   bool
}

// NewRelay returns a relay interceptor bound to m.
func NewRelay(m Messenger, opts RelayOptions) *Relay {
	kinds := opts.Kinds
	if kinds == nil {
		kinds = RelayedKinds
	}
	interval := opts.SnapshotInterval
	if interval <= 0 {
		interval = DefaultSnapshotInterval
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Relay{
		messenger: m,
		kinds:     mapset.NewSet(kinds...),
		interval:  interval,
		clock:     opts.Clock,
		log:       log,
	}
}

func (r *Relay) Intercept(api API, next Next) Next {
	r.subscribe.Do(func() {
		r.messenger.OnAction(func(a editor.Action) {
			api.Dispatch(editor.Remote{Action: a})
		})
		if rn, ok := r.messenger.(reconnectNotifier); ok {
			rn.OnReconnect(func() {
				// Actions sent while offline were dropped; the relay's
				// snapshot is brought up to the local lines instead.
				r.mu.Lock()
				r.pushed = false
				r.mu.Unlock()
				r.pushSnapshot(api.GetState().Lines)
			})
		}
	})

	t := NewThrottle(r.clock, r.interval, func() { r.pushSnapshot(api.GetState().Lines) })
	r.mu.Lock()
	r.throttle = t
	r.mu.Unlock()

	return func(a editor.Action) editor.Action {
		inner, remote := editor.Unwrap(a)
		if remote {
			// Another participant may have pushed a different snapshot
			// since ours, so the next local push must not be skipped.
			r.mu.Lock()
			r.pushed = false
			r.mu.Unlock()
			return next(editor.WithOrigin(inner, false))
		}
		local := editor.WithOrigin(inner, true)
		if r.kinds.Contains(local.Kind()) {
			r.messenger.Send(local)
		}
		returned := next(local)
		t.Trigger()
		return returned
	}
}

// Close stops the snapshot throttle.
func (r *Relay) Close() {
	r.mu.Lock()
	t := r.throttle
	r.mu.Unlock()
	if t != nil {
		t.Stop()
	}
}

// pushSnapshot sends lines unless they are identical to the last push.
func (r *Relay) pushSnapshot(lines editor.Lines) {
	buf, err := json.Marshal(lines)
	if err != nil {
		r.log.Error("encode snapshot", "err", err)
		return
	}
	sum := blake3.Sum256(buf)

	r.mu.Lock()
	if r.pushed && sum == r.lastSum {
		r.mu.Unlock()
		return
	}
	r.lastSum, r.pushed = sum, true
	r.mu.Unlock()

	r.messenger.SendSnapshot(lines)
	r.log.Debug("snapshot pushed", "lines", len(lines))
}
