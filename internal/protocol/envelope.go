// Package protocol defines the messages exchanged between participants and
// the relay, and the codecs that put them on the wire.
package protocol

import (
	"errors"
	"fmt"

	"collabtext/internal/editor"
)

var (
	// ErrNotRelayed is returned when encoding an action kind that never
	// leaves the participant that dispatched it.
	ErrNotRelayed = errors.New("protocol: action kind is not relayed")
	// ErrUnknownKind is returned when decoding an unrecognized action kind.
	ErrUnknownKind = errors.New("protocol: unknown action kind")
)

// MessageType discriminates envelopes.
type MessageType string

const (
	// TypeAction carries one action, participant to relay to participants.
	TypeAction MessageType = "action"
	// TypeSnapshot carries the sender's full line sequence to the relay.
	TypeSnapshot MessageType = "snapshot"
	// TypeInit carries the relay's stored snapshot to a new participant.
	TypeInit MessageType = "init"
)

// Envelope is one websocket message.
type Envelope struct {
	Type MessageType `json:"type" cbor:"type"`
	// Sender is the relay connection id of the originator. The relay fills
	// it in; participants leave it empty.
	Sender string       `json:"sender,omitempty" cbor:"sender,omitempty"`
	Action *Action      `json:"action,omitempty" cbor:"action,omitempty"`
	Lines  editor.Lines `json:"lines,omitempty" cbor:"lines,omitempty"`
}

// Action is the wire form of an editor action. Only the fields of the
// given kind are set.
type Action struct {
	Kind      editor.Kind            `json:"kind" cbor:"kind"`
	ID        editor.ID              `json:"id,omitempty" cbor:"id,omitempty"`
	AfterID   editor.ID              `json:"afterId,omitempty" cbor:"afterId,omitempty"`
	NewID     editor.ID              `json:"newId,omitempty" cbor:"newId,omitempty"`
	Content   *string                `json:"content,omitempty" cbor:"content,omitempty"`
	TextType  editor.LineType        `json:"textType,omitempty" cbor:"textType,omitempty"`
	UserID    editor.UserID          `json:"userId,omitempty" cbor:"userId,omitempty"`
	LineID    editor.ID              `json:"lineId,omitempty" cbor:"lineId,omitempty"`
	Selection *editor.SelectionRange `json:"selection,omitempty" cbor:"selection,omitempty"`
}

// FromAction converts a relayed editor action to its wire form. Remote
// wrappers are stripped; the origin flag of NewLine is not transmitted.
func FromAction(a editor.Action) (*Action, error) {
	a, _ = editor.Unwrap(a)
	switch a := a.(type) {
	case editor.NewLine:
		return &Action{Kind: a.Kind(), AfterID: a.AfterID, NewID: a.NewID}, nil
	case editor.RemoveLine:
		return &Action{Kind: a.Kind(), ID: a.ID}, nil
	case editor.UpdateContent:
		content := a.Content
		return &Action{Kind: a.Kind(), ID: a.ID, Content: &content}, nil
	case editor.SetTextType:
		return &Action{Kind: a.Kind(), ID: a.ID, TextType: a.TextType}, nil
	case editor.UpdateSelection:
		sel := a.Selection
		return &Action{Kind: a.Kind(), UserID: a.UserID, LineID: a.LineID, Selection: &sel}, nil
	case nil:
		return nil, fmt.Errorf("%w: nil action", ErrNotRelayed)
	}
	return nil, fmt.Errorf("%w: %s", ErrNotRelayed, a.Kind())
}

// ToEditor converts the wire form back to an editor action.
func (w *Action) ToEditor() (editor.Action, error) {
	switch w.Kind {
	case editor.KindNewLine:
		return editor.NewLine{AfterID: w.AfterID, NewID: w.NewID}, nil
	case editor.KindRemoveLine:
		return editor.RemoveLine{ID: w.ID}, nil
	case editor.KindUpdateContent:
		var content string
		if w.Content != nil {
			content = *w.Content
		}
		return editor.UpdateContent{ID: w.ID, Content: content}, nil
	case editor.KindSetTextType:
		return editor.SetTextType{ID: w.ID, TextType: w.TextType}, nil
	case editor.KindUpdateSelection:
		var sel editor.SelectionRange
		if w.Selection != nil {
			sel = *w.Selection
		}
		return editor.UpdateSelection{UserID: w.UserID, LineID: w.LineID, Selection: sel}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, w.Kind)
}

// ActionEnvelope wraps a relayed action.
func ActionEnvelope(a editor.Action) (Envelope, error) {
	w, err := FromAction(a)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: TypeAction, Action: w}, nil
}

// SnapshotEnvelope wraps a snapshot push.
func SnapshotEnvelope(lines editor.Lines) Envelope {
	return Envelope{Type: TypeSnapshot, Lines: lines}
}

// InitEnvelope wraps the relay's snapshot for a new participant.
func InitEnvelope(lines editor.Lines) Envelope {
	return Envelope{Type: TypeInit, Lines: lines}
}
