package editor

// Kind names an action variant. The string values are the ones used on the
// wire.
type Kind string

const (
	KindFocus           Kind = "FOCUS"
	KindFocusUp         Kind = "FOCUS_UP"
	KindFocusDown       Kind = "FOCUS_DOWN"
	KindNewLine         Kind = "NEW_LINE"
	KindUpdateContent   Kind = "UPDATE_CONTENT"
	KindRemoveLine      Kind = "REMOVE_LINE"
	KindSetTextType     Kind = "SET_TEXT_TYPE"
	KindUpdateSelection Kind = "UPDATE_SELECTION"
	KindMenuSetSearch   Kind = "MENU_SET_SEARCH"
	KindMenuClose       Kind = "MENU_CLOSE"
	KindMenuSelectUp    Kind = "MENU_SELECT_UP"
	KindMenuSelectDown  Kind = "MENU_SELECT_DOWN"
	KindInitState       Kind = "INIT_STATE"
)

// Action is one of the action structs declared in this file. The set is
// closed: only types in this package implement it.
type Action interface {
	Kind() Kind
	action()
}

type Focus struct{ ID ID }

type FocusUp struct{}

type FocusDown struct{}

// NewLine inserts an empty paragraph after AfterID. NewID is chosen by the
// participant that originated the action so every replica uses the same
// identity for the new line. IsMe is true on the originating replica only.
type NewLine struct {
	AfterID ID
	NewID   ID
	IsMe    bool
}

type UpdateContent struct {
	ID      ID
	Content string
}

type RemoveLine struct{ ID ID }

type SetTextType struct {
	ID       ID
	TextType LineType
}

type UpdateSelection struct {
	UserID    UserID
	LineID    ID
	Selection SelectionRange
}

type MenuSetSearch struct{ Search string }

type MenuClose struct{}

type MenuSelectUp struct{}

type MenuSelectDown struct{}

// InitState replaces the whole line sequence. It is pushed by the relay when
// a participant connects.
type InitState struct{ Lines Lines }

// Remote marks an action that was received from another participant.
type Remote struct{ Action Action }

func (Focus) Kind() Kind           { return KindFocus }
func (FocusUp) Kind() Kind         { return KindFocusUp }
func (FocusDown) Kind() Kind       { return KindFocusDown }
func (NewLine) Kind() Kind         { return KindNewLine }
func (UpdateContent) Kind() Kind   { return KindUpdateContent }
func (RemoveLine) Kind() Kind      { return KindRemoveLine }
func (SetTextType) Kind() Kind     { return KindSetTextType }
func (UpdateSelection) Kind() Kind { return KindUpdateSelection }
func (MenuSetSearch) Kind() Kind   { return KindMenuSetSearch }
func (MenuClose) Kind() Kind       { return KindMenuClose }
func (MenuSelectUp) Kind() Kind    { return KindMenuSelectUp }
func (MenuSelectDown) Kind() Kind  { return KindMenuSelectDown }
func (InitState) Kind() Kind       { return KindInitState }
func (r Remote) Kind() Kind {
	if r.Action == nil {
		return ""
	}
	return r.Action.Kind()
}

func (Focus) action()           {}
func (FocusUp) action()         {}
func (FocusDown) action()       {}
func (NewLine) action()         {}
func (UpdateContent) action()   {}
func (RemoveLine) action()      {}
func (SetTextType) action()     {}
func (UpdateSelection) action() {}
func (MenuSetSearch) action()   {}
func (MenuClose) action()       {}
func (MenuSelectUp) action()    {}
func (MenuSelectDown) action()  {}
func (InitState) action()       {}
func (Remote) action()          {}

// Unwrap strips any Remote wrappers and reports whether there was one.
func Unwrap(a Action) (Action, bool) {
	remote := false
	for {
		r, ok := a.(Remote)
		if !ok {
			return a, remote
		}
		a, remote = r.Action, true
	}
}

// WithOrigin returns a with its origin flag set. Only NewLine carries one;
// other actions are returned as is.
func WithOrigin(a Action, isMe bool) Action {
	if nl, ok := a.(NewLine); ok {
		nl.IsMe = isMe
		return nl
	}
	return a
}
