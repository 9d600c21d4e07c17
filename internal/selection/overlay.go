// Package selection turns the selections other participants report into
// rectangles drawn over the rendered document.
package selection

import (
	"errors"
	"math"
	"sort"

	"collabtext/internal/editor"
)

// ErrIndexSize reports an offset past the end of its node.
var ErrIndexSize = errors.New("selection: offset is larger than the node")

// minWidth keeps a collapsed caret visible.
const minWidth = 3

// Node is a piece of rendered content. For text, Len is the number of
// characters; for an element, the number of children.
type Node interface {
	Len() int
}

// Element is the rendered form of one line.
type Element interface {
	Node
	Children() []Node
	// Measure returns the bounding rectangle of a range whose offsets
	// have already been checked against their nodes.
	Measure(r Range) (Rect, error)
}

// Range is a span between two node positions.
type Range struct {
	StartNode   Node
	StartOffset int
	EndNode     Node
	EndOffset   int
}

// Rect is a screen rectangle.
type Rect struct {
	Top, Left, Width, Height float64
}

// Locator finds the rendered element of a line.
type Locator func(id editor.ID) (Element, bool)

// Overlay is the rectangle of one user's selection.
type Overlay struct {
	UserID editor.UserID
	Type   editor.SelectionType
	Rect   Rect
}

// Resolve maps sel onto el. ok is false when the selection no longer fits
// the element, typically because the line changed since it was reported.
//
// Endpoints are ordered by comparing raw offsets only, so a backwards
// selection spanning two children may resolve to the wrong span.
func Resolve(el Element, sel editor.SelectionRange) (Rect, bool) {
	if el == nil {
		return Rect{}, false
	}
	start, end := sel.Start, sel.End
	if start.Offset >= end.Offset {
		start, end = end, start
	}

	r := Range{
		StartNode:   child(el, start.ChildIndex),
		StartOffset: start.Offset,
		EndNode:     child(el, end.ChildIndex),
		EndOffset:   end.Offset,
	}
	if err := check(r.StartNode, r.StartOffset); err != nil {
		return Rect{}, false
	}
	if err := check(r.EndNode, r.EndOffset); err != nil {
		return Rect{}, false
	}
	rect, err := el.Measure(r)
	if err != nil {
		return Rect{}, false
	}
	rect.Width = math.Max(minWidth, math.Abs(rect.Width))
	return rect, true
}

// Overlays resolves the selections of every user except self, sorted by
// user id. Users whose selection cannot be resolved are left out.
func Overlays(sels map[editor.UserID]editor.UserSelection, self editor.UserID, locate Locator) []Overlay {
	var out []Overlay
	for user, us := range sels {
		if user == self {
			continue
		}
		el, ok := locate(us.LineID)
		if !ok {
			continue
		}
		rect, ok := Resolve(el, us.Selection)
		if !ok {
			continue
		}
		out = append(out, Overlay{UserID: user, Type: us.Selection.Type, Rect: rect})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// child returns the i-th child of el, or el itself when there is none.
func child(el Element, i int) Node {
	children := el.Children()
	if i < 0 || i >= len(children) {
		return el
	}
	return children[i]
}

func check(n Node, offset int) error {
	if offset < 0 || offset > n.Len() {
		return ErrIndexSize
	}
	return nil
}
