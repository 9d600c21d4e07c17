package selection

import (
	"fmt"
	"unicode/utf8"
)

// GridElement is a line laid out on a fixed-cell grid such as a terminal:
// row Row, starting at column Indent, one cell per character.
type GridElement struct {
	Row    int
	Indent int
	Runs   []string
}

// NewGridElement returns the element for a line of the given text runs.
// Empty runs are dropped.
func NewGridElement(row, indent int, runs ...string) *GridElement {
	el := &GridElement{Row: row, Indent: indent}
	for _, r := range runs {
		if r != "" {
			el.Runs = append(el.Runs, r)
		}
	}
	return el
}

// run is the text node of one entry of GridElement.Runs.
type run struct {
	el    *GridElement
	index int
}

func (r run) Len() int { return utf8.RuneCountInString(r.el.Runs[r.index]) }

func (e *GridElement) Len() int { return len(e.Runs) }

func (e *GridElement) Children() []Node {
	out := make([]Node, len(e.Runs))
	for i := range e.Runs {
		out[i] = run{el: e, index: i}
	}
	return out
}

func (e *GridElement) Measure(r Range) (Rect, error) {
	start, err := e.column(r.StartNode, r.StartOffset)
	if err != nil {
		return Rect{}, err
	}
	end, err := e.column(r.EndNode, r.EndOffset)
	if err != nil {
		return Rect{}, err
	}
	return Rect{
		Top:    float64(e.Row),
		Left:   float64(e.Indent + start),
		Width:  float64(end - start),
		Height: 1,
	}, nil
}

// column converts a node position to a column relative to Indent.
func (e *GridElement) column(n Node, offset int) (int, error) {
	switch n := n.(type) {
	case *GridElement:
		if n != e {
			break
		}
		col := 0
		for i, end := 0, min(offset, len(e.Runs)); i < end; i++ {
			col += run{el: e, index: i}.Len()
		}
		return col, nil
	case run:
		if n.el != e {
			break
		}
		col := 0
		for i := 0; i < n.index; i++ {
			col += run{el: e, index: i}.Len()
		}
		return col + offset, nil
	}
	return 0, fmt.Errorf("selection: node is not part of row %d", e.Row)
}
