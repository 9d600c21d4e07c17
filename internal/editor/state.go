package editor

import "strings"

// SelectionType distinguishes a collapsed caret from an extended range.
type SelectionType string

const (
	Caret SelectionType = "Caret"
	Range SelectionType = "Range"
)

// Boundary is one end of a selection inside a line's rendered content:
// the index of a child node and an offset within it.
type Boundary struct {
	ChildIndex int `json:"childIndex"`
	Offset     int `json:"offset"`
}

// SelectionRange describes a selection inside one line. The reducer never
// looks inside it.
type SelectionRange struct {
	Type  SelectionType `json:"type"`
	Start Boundary      `json:"start"`
	End   Boundary      `json:"end"`
}

// UserSelection is the last reported selection of one user.
type UserSelection struct {
	LineID    ID             `json:"lineId"`
	Selection SelectionRange `json:"selection"`
}

// Menu is the state of the "/" command menu.
type Menu struct {
	IsOpen        bool   `json:"isOpen"`
	Search        string `json:"search"`
	SelectedIndex int    `json:"selectedIndex"`
}

// State is an immutable document snapshot. Reduce never modifies a State it
// was given; callers must not either.
type State struct {
	Lines      Lines                    `json:"lines"`
	FocusID    ID                       `json:"focusId"`
	Selections map[UserID]UserSelection `json:"selections"`
	Menu       Menu                     `json:"menu"`
}

// NewState returns a state holding the given lines with the first one
// focused. It panics on an empty sequence.
func NewState(lines ...Line) State {
	if len(lines) == 0 {
		panic("editor: a document needs at least one line")
	}
	return State{
		Lines:      Lines(lines).Clone(),
		FocusID:    lines[0].ID,
		Selections: map[UserID]UserSelection{},
	}
}

// DefaultLines is the content of a fresh document: one empty h1.
func DefaultLines(gen IDGenerator) Lines {
	return Lines{{ID: gen.NewID(), Type: H1}}
}

// DefaultState returns NewState(DefaultLines(gen)...).
func DefaultState(gen IDGenerator) State {
	return NewState(DefaultLines(gen)...)
}

// FocusedLine returns the line holding the focus.
func (s State) FocusedLine() (Line, bool) {
	i := s.Lines.IndexOf(s.FocusID)
	if i < 0 {
		return Line{}, false
	}
	return s.Lines[i], true
}

// MenuItem is an entry of the "/" command menu.
type MenuItem struct {
	Name string
	Type LineType
}

// MenuItems is the fixed menu catalog.
var MenuItems = []MenuItem{
	{Name: "Text", Type: Paragraph},
	{Name: "Heading 1", Type: H1},
	{Name: "Heading 2", Type: H2},
	{Name: "Heading 3", Type: H3},
	{Name: "Heading 4", Type: H4},
}

// FilteredMenuItems returns the catalog entries whose name starts with the
// menu search, ignoring case.
func FilteredMenuItems(s State) []MenuItem {
	search := strings.ToUpper(s.Menu.Search)
	var out []MenuItem
	for _, item := range MenuItems {
		if strings.HasPrefix(strings.ToUpper(item.Name), search) {
			out = append(out, item)
		}
	}
	return out
}

// SelectedTextType returns the type of the highlighted menu entry. ok is
// false when the filtered list has no entry at the selected index.
func SelectedTextType(s State) (LineType, bool) {
	items := FilteredMenuItems(s)
	i := s.Menu.SelectedIndex
	if i < 0 || i >= len(items) {
		return "", false
	}
	return items[i].Type, true
}

// HasContentInFocus reports whether the focused line has any content.
func HasContentInFocus(s State) bool {
	l, ok := s.FocusedLine()
	return ok && l.Content != ""
}
