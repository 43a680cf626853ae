package common

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/editorqa/uidriver/cdp/domains"
	"github.com/editorqa/uidriver/keyboard"
)

type recordingInput struct {
	keys     []domains.KeyEvent
	inserted []string
}

func (r *recordingInput) MouseClick(context.Context, float64, float64, string) error { return nil }

func (r *recordingInput) KeyPress(_ context.Context, key domains.KeyEvent) error {
	r.keys = append(r.keys, key)
	return nil
}

func (r *recordingInput) InsertText(_ context.Context, text string) error {
	r.inserted = append(r.inserted, text)
	return nil
}

func TestKeyboardPress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key  string
		want domains.KeyEvent
	}{
		{key: "Enter", want: domains.KeyEvent{Key: "Enter", Code: "Enter", Text: "\r", KeyCode: 13}},
		{key: "Escape", want: domains.KeyEvent{Key: "Escape", Code: "Escape", KeyCode: 27}},
		{key: "KeyA", want: domains.KeyEvent{Key: "a", Code: "KeyA", Text: "a", KeyCode: 65}},
		{
			key: "Control+a",
			want: domains.KeyEvent{
				Key: "a", Code: "KeyA", KeyCode: 65,
				Modifiers: int64(keyboard.ModControl),
			},
		},
		{
			key: "Shift+KeyA",
			want: domains.KeyEvent{
				Key: "A", Code: "KeyA", Text: "A", KeyCode: 65,
				Modifiers: int64(keyboard.ModShift),
			},
		},
	}
	for _, tt := range tests {
		var in recordingInput
		kb := NewKeyboard(&in)
		require.NoError(t, kb.Press(context.Background(), tt.key), tt.key)
		require.Len(t, in.keys, 1)
		assert.Equal(t, tt.want, in.keys[0], tt.key)
	}
}

func TestKeyboardPressInvalid(t *testing.T) {
	t.Parallel()

	kb := NewKeyboard(&recordingInput{})
	assert.ErrorContains(t, kb.Press(context.Background(), "Hyper"), `"Hyper" is not a valid key`)
	assert.ErrorContains(t, kb.Press(context.Background(), "Super+a"), `"Super" is not a modifier key`)
}

func TestKeyboardType(t *testing.T) {
	t.Parallel()

	var in recordingInput
	kb := NewKeyboard(&in)
	require.NoError(t, kb.Type(context.Background(), "Hi é!"))

	require.Len(t, in.keys, 4)
	assert.Equal(t, "H", in.keys[0].Text)
	assert.Equal(t, "i", in.keys[1].Text)
	assert.Equal(t, " ", in.keys[2].Text)
	assert.Equal(t, "!", in.keys[3].Text)
	assert.Equal(t, []string{"é"}, in.inserted)
}
