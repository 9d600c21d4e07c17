package editor

// LineType is the block type of a line.
type LineType string

const (
	H1        LineType = "h1"
	H2        LineType = "h2"
	H3        LineType = "h3"
	H4        LineType = "h4"
	Paragraph LineType = "p"
)

// Valid reports whether t is one of the known line types.
func (t LineType) Valid() bool {
	switch t {
	case H1, H2, H3, H4, Paragraph:
		return true
	}
	return false
}

// Line is a single block of the document.
type Line struct {
	ID      ID       `json:"id"`
	Type    LineType `json:"type"`
	Content string   `json:"content"`
}

// Direction selects a neighbor in NeighborOf.
type Direction int

const (
	Up   Direction = -1
	Down Direction = 1
)

// Lines is the ordered line sequence of a document. Methods never modify the
// receiver; every update returns a fresh slice.
type Lines []Line

// IndexOf returns the position of the line with the given id, or -1.
func (ls Lines) IndexOf(id ID) int {
	for i, l := range ls {
		if l.ID == id {
			return i
		}
	}
	return -1
}

// Has reports whether a line with the given id exists.
func (ls Lines) Has(id ID) bool {
	return ls.IndexOf(id) >= 0
}

// Clone returns a copy of the sequence.
func (ls Lines) Clone() Lines {
	if ls == nil {
		return nil
	}
	out := make(Lines, len(ls))
	copy(out, ls)
	return out
}

// InsertAt returns a sequence with line inserted at index. The index is
// clamped to [0, len].
func (ls Lines) InsertAt(index int, line Line) Lines {
	index = clamp(0, len(ls), index)
	out := make(Lines, 0, len(ls)+1)
	out = append(out, ls[:index]...)
	out = append(out, line)
	return append(out, ls[index:]...)
}

// RemoveBy returns a sequence without the line with the given id. Removing
// from a one-line sequence, or removing an unknown id, returns ls unchanged:
// a document always keeps at least one line.
func (ls Lines) RemoveBy(id ID) Lines {
	if len(ls) <= 1 {
		return ls
	}
	i := ls.IndexOf(id)
	if i < 0 {
		return ls
	}
	out := make(Lines, 0, len(ls)-1)
	out = append(out, ls[:i]...)
	return append(out, ls[i+1:]...)
}

// UpdateBy returns a sequence where the line with the given id is replaced by
// patch(line). Unknown ids return ls unchanged.
func (ls Lines) UpdateBy(id ID, patch func(Line) Line) Lines {
	i := ls.IndexOf(id)
	if i < 0 {
		return ls
	}
	out := ls.Clone()
	out[i] = patch(out[i])
	out[i].ID = id
	return out
}

// NeighborOf returns the id of the line before (Up) or after (Down) the given
// one. At either end of the sequence, and for unknown ids, it returns id
// itself: there is no wraparound.
func (ls Lines) NeighborOf(id ID, dir Direction) ID {
	i := ls.IndexOf(id)
	if i < 0 {
		return id
	}
	j := clamp(0, len(ls)-1, i+int(dir))
	return ls[j].ID
}

func clamp(lo, hi, x int) int {
	return max(lo, min(hi, x))
}
