package dispatch

import (
	"log/slog"

	"github.com/sanity-io/litter"

	"collabtext/internal/editor"
)

// Entry is one observed dispatch.
type Entry struct {
	Prev   editor.State
	Action editor.Action
	Next   editor.State
}

// Logger records the state before and after every action. It never changes
// the action or the flow.
type Logger struct {
	Log *slog.Logger
	// Dump renders whole states at debug level instead of a summary.
	Dump bool
	// Record, when set, receives every entry.
	Record func(Entry)
}

var dumper = litter.Options{Compact: true, StripPackageNames: true, HidePrivateFields: true}

func (l *Logger) Intercept(api API, next Next) Next {
	log := l.Log
	if log == nil {
		log = slog.Default()
	}
	return func(a editor.Action) editor.Action {
		prev := api.GetState()
		returned := next(a)
		cur := api.GetState()

		inner, remote := editor.Unwrap(a)
		if l.Dump {
			log.Debug("dispatch",
				"kind", inner.Kind(),
				"remote", remote,
				"action", dumper.Sdump(inner),
				"prev", dumper.Sdump(prev),
				"next", dumper.Sdump(cur))
		} else {
			log.Debug("dispatch",
				"kind", inner.Kind(),
				"remote", remote,
				"lines", len(cur.Lines),
				"focus", cur.FocusID)
		}
		if l.Record != nil {
			l.Record(Entry{Prev: prev, Action: a, Next: cur})
		}
		return returned
	}
}
