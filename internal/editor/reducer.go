package editor

// Reduce applies one action and returns the next state. It is pure: s is not
// modified and the result shares no mutable data with it that a later step
// could change.
//
// Actions naming lines that no longer exist are ignored, which keeps a
// replica running when removals race other edits to the same line.
func Reduce(s State, a Action) State {
	a, remote := Unwrap(a)
	if remote {
		a = WithOrigin(a, false)
	}

	switch a := a.(type) {
	case Focus:
		if !s.Lines.Has(a.ID) {
			return s
		}
		s.FocusID = a.ID
		return s

	case FocusUp:
		s.FocusID = s.Lines.NeighborOf(s.FocusID, Up)
		return s

	case FocusDown:
		s.FocusID = s.Lines.NeighborOf(s.FocusID, Down)
		return s

	case NewLine:
		i := s.Lines.IndexOf(a.AfterID)
		if i < 0 || a.NewID == "" || s.Lines.Has(a.NewID) {
			return s
		}
		s.Lines = s.Lines.InsertAt(i+1, Line{ID: a.NewID, Type: Paragraph})
		if a.IsMe {
			s.FocusID = a.NewID
		}
		return s

	case UpdateContent:
		s.Lines = s.Lines.UpdateBy(a.ID, func(l Line) Line {
			l.Content = a.Content
			return l
		})
		return s

	case RemoveLine:
		return removeLine(s, a.ID)

	case SetTextType:
		if !a.TextType.Valid() {
			return s
		}
		// The content is dropped whether or not it held the "/" command
		// that opened the menu.
		s.Lines = s.Lines.UpdateBy(a.ID, func(l Line) Line {
			l.Type = a.TextType
			l.Content = ""
			return l
		})
		return s

	case UpdateSelection:
		if !s.Lines.Has(a.LineID) {
			return s
		}
		sel := make(map[UserID]UserSelection, len(s.Selections)+1)
		for k, v := range s.Selections {
			sel[k] = v
		}
		sel[a.UserID] = UserSelection{LineID: a.LineID, Selection: a.Selection}
		s.Selections = sel
		return s

	case MenuSetSearch:
		s.Menu.IsOpen = true
		s.Menu.Search = a.Search
		return s

	case MenuClose:
		s.Menu.IsOpen = false
		s.Menu.SelectedIndex = 0
		return s

	case MenuSelectUp:
		return moveMenuSelection(s, -1)

	case MenuSelectDown:
		return moveMenuSelection(s, 1)

	case InitState:
		lines := dedupe(a.Lines)
		if len(lines) == 0 {
			return s
		}
		s.Lines = lines
		s.FocusID = lines[0].ID
		s.Selections = pruneSelections(s.Selections, lines)
		return s
	}
	return s
}

func removeLine(s State, id ID) State {
	next := s.Lines.RemoveBy(id)
	if len(next) == len(s.Lines) {
		return s
	}
	if s.FocusID == id {
		focus := s.Lines.NeighborOf(id, Up)
		if focus == id {
			focus = s.Lines.NeighborOf(id, Down)
		}
		s.FocusID = focus
	}
	s.Lines = next
	s.Selections = pruneSelections(s.Selections, next)
	return s
}

// moveMenuSelection steps the highlighted entry, wrapping around the
// filtered list in both directions.
func moveMenuSelection(s State, step int) State {
	if !s.Menu.IsOpen {
		return s
	}
	n := len(FilteredMenuItems(s))
	if n == 0 {
		s.Menu.SelectedIndex = 0
		return s
	}
	s.Menu.SelectedIndex = ((s.Menu.SelectedIndex+step)%n + n) % n
	return s
}

// pruneSelections drops selections pointing at lines that are gone. It
// returns sel itself when nothing needs to go.
func pruneSelections(sel map[UserID]UserSelection, lines Lines) map[UserID]UserSelection {
	stale := false
	for _, v := range sel {
		if !lines.Has(v.LineID) {
			stale = true
			break
		}
	}
	if !stale {
		return sel
	}
	out := make(map[UserID]UserSelection, len(sel))
	for k, v := range sel {
		if lines.Has(v.LineID) {
			out[k] = v
		}
	}
	return out
}

// dedupe copies lines, keeping the first line for every id.
func dedupe(lines Lines) Lines {
	seen := make(map[ID]struct{}, len(lines))
	out := make(Lines, 0, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.ID]; ok {
			continue
		}
		seen[l.ID] = struct{}{}
		out = append(out, l)
	}
	return out
}
