// Package dispatch runs editor actions through an ordered chain of
// interceptors before they reach the reducer.
//
// Interceptors are composed outermost first: the first interceptor passed to
// NewStore sees an action before every other one, and sees the state after
// every inner interceptor and the reducer have run.
package dispatch

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/petermattis/goid"

	"collabtext/internal/editor"
)

// ErrDispatchDuringConstruction is the panic value of a dispatch issued
// before NewStore has finished composing the pipeline. Such an action would
// skip the interceptors that are not wired yet.
var ErrDispatchDuringConstruction = errors.New("dispatch: dispatching while constructing the pipeline is not allowed; other interceptors would not be applied to this dispatch")

// Next passes an action on to the rest of the pipeline.
type Next func(editor.Action) editor.Action

// API is what an interceptor may use besides its Next.
type API struct {
	// GetState returns the current state. Safe to call at any time.
	GetState func() editor.State
	// Dispatch enters the pipeline from the outermost interceptor. Called
	// synchronously from inside another dispatch, the nested action runs to
	// completion before the outer one resumes.
	Dispatch func(editor.Action) editor.Action
}

// Interceptor wraps the rest of the pipeline.
type Interceptor interface {
	Intercept(api API, next Next) Next
}

// InterceptorFunc adapts a function to Interceptor.
type InterceptorFunc func(api API, next Next) Next

func (f InterceptorFunc) Intercept(api API, next Next) Next { return f(api, next) }

// Store owns one document state and the pipeline that updates it.
type Store struct {
	dispatchMu sync.Mutex
	built      bool
	dispatch   Next
	// owner is the goroutine running the pipeline, 0 when idle.
	owner atomic.Int64

	stateMu sync.RWMutex
	state   editor.State

	subsMu sync.Mutex
	subs   []func(editor.State)
}

// NewStore composes interceptors around the reducer.
func NewStore(initial editor.State, interceptors ...Interceptor) *Store {
	s := &Store{state: initial}
	api := API{GetState: s.GetState, Dispatch: s.Dispatch}

	d := Next(s.reduce)
	for i := len(interceptors) - 1; i >= 0; i-- {
		d = interceptors[i].Intercept(api, d)
	}

	s.dispatchMu.Lock()
	s.dispatch = d
	s.built = true
	s.dispatchMu.Unlock()
	return s
}

// Dispatch runs a through the pipeline and returns what the outermost
// interceptor returned. Dispatches from different goroutines are applied one
// at a time; a dispatch issued by an interceptor or subscriber on the
// dispatching goroutine is nested instead of waiting.
func (s *Store) Dispatch(a editor.Action) editor.Action {
	gid := goid.Get()
	if s.owner.Load() == gid {
		return s.dispatch(a)
	}

	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()
	if !s.built {
		panic(ErrDispatchDuringConstruction)
	}
	s.owner.Store(gid)
	defer s.owner.Store(0)
	return s.dispatch(a)
}

// GetState returns the current state snapshot.
func (s *Store) GetState() editor.State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// Subscribe registers fn to be called with every new state, after the
// reducer ran and before the surrounding interceptors resume.
func (s *Store) Subscribe(fn func(editor.State)) {
	s.subsMu.Lock()
	s.subs = append(s.subs, fn)
	s.subsMu.Unlock()
}

func (s *Store) reduce(a editor.Action) editor.Action {
	s.stateMu.Lock()
	next := editor.Reduce(s.state, a)
	s.state = next
	s.stateMu.Unlock()

	s.subsMu.Lock()
	subs := append([]func(editor.State){}, s.subs...)
	s.subsMu.Unlock()
	for _, fn := range subs {
		fn(next)
	}
	return a
}
