package main

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"collabtext/internal/editor"
	"collabtext/internal/selection"
)

var errQuit = errors.New("quit")

// Pipeline is the part of dispatch.Store the session drives.
type Pipeline interface {
	Dispatch(a editor.Action) editor.Action
	GetState() editor.State
}

// session turns typed commands into actions, the way an editor turns key
// presses into them.
type session struct {
	store Pipeline
	gen   editor.IDGenerator
	user  editor.UserID
	out   io.Writer

	// busy is set while a command runs; changes seen meanwhile are ours.
	busy atomic.Bool

	mu   sync.Mutex
	seen editor.Lines
}

const usage = `commands:
  type <text>          replace the focused line's content
  enter                new line, or apply the menu choice
  up | down            move focus, or the menu highlight
  backspace            remove the focused line when it is empty
  esc                  close the menu
  focus <n>            focus line n (1-based)
  select <from> <to>   report a selection in the focused line
  print                show the document
  quit`

// handle runs one command line. It returns errQuit on quit.
func (s *session) handle(line string) error {
	s.busy.Store(true)
	defer s.busy.Store(false)

	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	state := s.store.GetState()

	switch strings.ToLower(cmd) {
	case "":
		return nil

	case "type":
		s.store.Dispatch(editor.UpdateContent{ID: state.FocusID, Content: arg})
		if strings.HasPrefix(arg, "/") {
			s.store.Dispatch(editor.MenuSetSearch{Search: arg[1:]})
		} else if state.Menu.IsOpen {
			s.store.Dispatch(editor.MenuClose{})
		}

	case "enter":
		if state.Menu.IsOpen {
			if t, ok := editor.SelectedTextType(state); ok {
				s.store.Dispatch(editor.SetTextType{ID: state.FocusID, TextType: t})
			}
			s.store.Dispatch(editor.MenuClose{})
		} else {
			s.store.Dispatch(editor.NewLine{AfterID: state.FocusID, NewID: s.gen.NewID(), IsMe: true})
		}

	case "up":
		if state.Menu.IsOpen {
			s.store.Dispatch(editor.MenuSelectUp{})
		} else {
			s.store.Dispatch(editor.FocusUp{})
		}

	case "down":
		if state.Menu.IsOpen {
			s.store.Dispatch(editor.MenuSelectDown{})
		} else {
			s.store.Dispatch(editor.FocusDown{})
		}

	case "backspace":
		if !editor.HasContentInFocus(state) {
			s.store.Dispatch(editor.RemoveLine{ID: state.FocusID})
		}

	case "esc":
		if state.Menu.IsOpen {
			s.store.Dispatch(editor.MenuClose{})
		}

	case "focus":
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 || n > len(state.Lines) {
			return fmt.Errorf("focus: no line %q", arg)
		}
		s.store.Dispatch(editor.Focus{ID: state.Lines[n-1].ID})

	case "select":
		from, to, err := parseSpan(arg)
		if err != nil {
			return fmt.Errorf("select: %w", err)
		}
		typ := editor.Range
		if from == to {
			typ = editor.Caret
		}
		s.store.Dispatch(editor.UpdateSelection{
			UserID: s.user,
			LineID: state.FocusID,
			Selection: editor.SelectionRange{
				Type:  typ,
				Start: editor.Boundary{Offset: from},
				End:   editor.Boundary{Offset: to},
			},
		})

	case "print":
		s.mu.Lock()
		render(s.out, s.store.GetState(), s.user)
		s.mu.Unlock()

	case "help":
		fmt.Fprintln(s.out, usage)

	case "quit", "exit":
		return errQuit

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}

// watch is a store subscriber. It prints the document when its lines were
// changed by another participant.
func (s *session) watch(st editor.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.Equal(s.seen, st.Lines) {
		return
	}
	s.seen = st.Lines
	if s.busy.Load() {
		return
	}
	fmt.Fprintln(s.out, "-- updated by another participant")
	render(s.out, st, s.user)
}

func parseSpan(arg string) (int, int, error) {
	fields := strings.Fields(arg)
	if len(fields) != 2 {
		return 0, 0, errors.New("want two offsets")
	}
	from, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, err
	}
	to, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, err
	}
	return from, to, nil
}

var markers = map[editor.LineType]string{
	editor.H1:        "# ",
	editor.H2:        "## ",
	editor.H3:        "### ",
	editor.H4:        "#### ",
	editor.Paragraph: "",
}

// render prints the lines, the open menu and where the other users'
// selections sit. Columns count from the start of the printed line.
func render(w io.Writer, s editor.State, self editor.UserID) {
	const gutter = 2
	els := make(map[editor.ID]*selection.GridElement, len(s.Lines))
	for i, l := range s.Lines {
		cursor := "  "
		if l.ID == s.FocusID {
			cursor = "> "
		}
		marker := markers[l.Type]
		fmt.Fprintf(w, "%s%s%s\n", cursor, marker, l.Content)
		els[l.ID] = selection.NewGridElement(i, gutter+len(marker), l.Content)
	}

	if s.Menu.IsOpen {
		items := editor.FilteredMenuItems(s)
		if len(items) == 0 {
			fmt.Fprintln(w, "  [menu] No results")
		}
		for i, item := range items {
			hl := " "
			if i == s.Menu.SelectedIndex {
				hl = "*"
			}
			fmt.Fprintf(w, "  [menu]%s %s\n", hl, item.Name)
		}
	}

	overlays := selection.Overlays(s.Selections, self, func(id editor.ID) (selection.Element, bool) {
		el, ok := els[id]
		return el, ok
	})
	for _, o := range overlays {
		fmt.Fprintf(w, "  @%s %s line %d col %d width %d\n",
			o.UserID, strings.ToLower(string(o.Type)), int(o.Rect.Top)+1, int(o.Rect.Left), int(o.Rect.Width))
	}
}
