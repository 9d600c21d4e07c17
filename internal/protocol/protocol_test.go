package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabtext/internal/editor"
)

func relayedActions() []editor.Action {
	return []editor.Action{
		editor.NewLine{AfterID: "a", NewID: "b"},
		editor.RemoveLine{ID: "b"},
		editor.UpdateContent{ID: "a", Content: "<b>hi</b>"},
		editor.UpdateContent{ID: "a", Content: ""},
		editor.SetTextType{ID: "a", TextType: editor.H2},
		editor.UpdateSelection{UserID: "u", LineID: "a", Selection: editor.SelectionRange{
			Type:  editor.Range,
			Start: editor.Boundary{ChildIndex: 0, Offset: 3},
			End:   editor.Boundary{ChildIndex: 1, Offset: 1},
		}},
	}
}

func TestActionsSurviveEveryCodec(t *testing.T) {
	for _, codec := range []Codec{JSON, CBOR} {
		for _, a := range relayedActions() {
			env, err := ActionEnvelope(a)
			require.NoError(t, err)
			data, err := codec.Marshal(env)
			require.NoError(t, err)

			var got Envelope
			require.NoError(t, codec.Unmarshal(data, &got), codec.Name())
			require.Equal(t, TypeAction, got.Type)
			back, err := got.Action.ToEditor()
			require.NoError(t, err)
			assert.Equal(t, a, back, "%s %T", codec.Name(), a)
		}
	}
}

func TestOriginIsNotTransmitted(t *testing.T) {
	w, err := FromAction(editor.Remote{Action: editor.NewLine{AfterID: "a", NewID: "b", IsMe: true}})
	require.NoError(t, err)
	back, err := w.ToEditor()
	require.NoError(t, err)
	assert.Equal(t, editor.NewLine{AfterID: "a", NewID: "b"}, back)
}

func TestLocalKindsAreNotRelayed(t *testing.T) {
	for _, a := range []editor.Action{
		editor.Focus{ID: "a"},
		editor.FocusUp{},
		editor.MenuSetSearch{Search: "x"},
		editor.MenuSelectDown{},
		editor.InitState{},
		nil,
	} {
		_, err := FromAction(a)
		assert.ErrorIs(t, err, ErrNotRelayed)
	}
}

func TestUnknownKind(t *testing.T) {
	_, err := (&Action{Kind: "DROP_TABLE"}).ToEditor()
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestSnapshotEnvelopeJSONShape(t *testing.T) {
	data, err := JSON.Marshal(InitEnvelope(editor.Lines{{ID: "x", Type: editor.H1, Content: ""}}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"init","lines":[{"id":"x","type":"h1","content":""}]}`, string(data))
}

func TestCodecByName(t *testing.T) {
	c, err := CodecByName("")
	require.NoError(t, err)
	assert.Equal(t, "json", c.Name())
	c, err = CodecByName("cbor")
	require.NoError(t, err)
	assert.True(t, c.Binary())
	_, err = CodecByName("xml")
	assert.Error(t, err)
}

func TestUnmarshalGarbage(t *testing.T) {
	var env Envelope
	assert.Error(t, JSON.Unmarshal([]byte("{"), &env))
	assert.Error(t, CBOR.Unmarshal([]byte{0xff, 0x00}, &env))
}
