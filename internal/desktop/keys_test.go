package desktop

import (
	"errors"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAccelerator(t *testing.T) {
	tests := []struct {
		accel string
		want  Chord
	}{
		{"enter", Chord{Keys: []string{"enter"}}},
		{"ENTER", Chord{Keys: []string{"enter"}}},
		{"{ENTER}", Chord{Keys: []string{"enter"}}},
		{"~", Chord{Keys: []string{"enter"}}},
		{"^a", Chord{Modifiers: ModCtrl, Keys: []string{"a"}}},
		{"%{F4}", Chord{Modifiers: ModAlt, Keys: []string{"f4"}}},
		{"+{TAB}", Chord{Modifiers: ModShift, Keys: []string{"tab"}}},
		{"^+s", Chord{Modifiers: ModCtrl | ModShift, Keys: []string{"s"}}},
		{"#r", Chord{Modifiers: ModMeta, Keys: []string{"r"}}},
		{"ctrl+enter", Chord{Modifiers: ModCtrl, Keys: []string{"enter"}}},
		{"Ctrl+Shift+T", Chord{Modifiers: ModCtrl | ModShift, Keys: []string{"t"}}},
		{"ctrl shift esc", Chord{Modifiers: ModCtrl | ModShift, Keys: []string{"escape"}}},
		{"alt + tab", Chord{Modifiers: ModAlt, Keys: []string{"tab"}}},
		{"ctrl++", Chord{Modifiers: ModCtrl, Keys: []string{"+"}}},
		{"{+}", Chord{Keys: []string{"+"}}},
		{"+", Chord{Keys: []string{"+"}}},
		{"^", Chord{Keys: []string{"^"}}},
		{"pgdn", Chord{Keys: []string{"pagedown"}}},
		{"  space  ", Chord{Keys: []string{"space"}}},
	}

	for _, tt := range tests {
		t.Run(tt.accel, func(t *testing.T) {
			got, err := ParseAccelerator(tt.accel)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseAccelerator(%q) mismatch (-want +got):\n%s", tt.accel, diff)
			}
		})
	}
}

func TestParseAccelerator_Invalid(t *testing.T) {
	for _, accel := range []string{"", "   ", "ctrl+shift", "ctrl+"} {
		t.Run(accel, func(t *testing.T) {
			_, err := ParseAccelerator(accel)
			require.Error(t, err)
			var invalid *InvalidArgumentError
			assert.True(t, errors.As(err, &invalid))
			assert.Equal(t, "key", invalid.Arg)
		})
	}
}

func TestChord_String(t *testing.T) {
	assert.Equal(t, "ctrl+shift+s", Chord{Modifiers: ModShift | ModCtrl, Keys: []string{"s"}}.String())
	assert.Equal(t, "enter", Chord{Keys: []string{"enter"}}.String())
	assert.Equal(t, "ctrl+alt+win+delete", Chord{Modifiers: ModCtrl | ModAlt | ModMeta, Keys: []string{"delete"}}.String())
}

func TestChord_Is(t *testing.T) {
	assert.True(t, ChordPaste.Is(ModCtrl, "v"))
	assert.False(t, ChordPaste.Is(ModCtrl|ModShift, "v"))
	assert.False(t, Chord{Modifiers: ModCtrl, Keys: []string{"v", "v"}}.Is(ModCtrl, "v"))
}

func FuzzParseAccelerator(f *testing.F) {
	f.Add([]byte("^+{TAB}"))
	f.Add([]byte("ctrl + shift + t"))
	f.Fuzz(func(t *testing.T, data []byte) {
		accel, err := fuzz.NewConsumer(data).GetString()
		if err != nil {
			return
		}
		chord, err := ParseAccelerator(accel)
		if err != nil {
			var argErr *InvalidArgumentError
			require.True(t, errors.As(err, &argErr))
			return
		}
		assert.NotEmpty(t, chord.Keys)
		assert.NotEmpty(t, chord.String())
	})
}
