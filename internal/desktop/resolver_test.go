package desktop_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/deskpilot/internal/desktop"
	"go.uber.org/zap/zaptest"
)

const toolbarFixture = `
windows:
  - title: "Editor"
    elements:
      - {type: Text, text: "Toolbar"}
      - type: Group
        children:
          - {type: Button, text: "Bold"}
          - {type: Button, text: "Italic"}
      - {type: Button, text: "Underline"}
      - {type: MenuItem, text: "Save As (Ctrl+Shift+S)"}
      - {type: Button, text: "Save"}
`

func newResolver(t *testing.T) *desktop.Resolver {
	return desktop.NewResolver(testPoll, zaptest.NewLogger(t))
}

func TestResolver_FirstButtonInTraversalOrder(t *testing.T) {
	d := newDesk(t, toolbarFixture)
	w := locate(t, d, "Editor")

	for i := 0; i < 3; i++ {
		el, err := newResolver(t).Resolve(t.Context(), w, desktop.Criteria{ControlType: "Button"}, testTimeout)
		require.NoError(t, err)
		assert.Equal(t, "Bold", el.Text())
	}
}

func TestResolver_Hints(t *testing.T) {
	d := newDesk(t, toolbarFixture)
	w := locate(t, d, "Editor")
	r := newResolver(t)

	tests := []struct {
		name     string
		criteria desktop.Criteria
		want     string
	}{
		{"title only, case-insensitive", desktop.Criteria{Title: "italic"}, "Italic"},
		{"title substring", desktop.Criteria{Title: "line"}, "Underline"},
		{"title and type", desktop.Criteria{Title: "save", ControlType: "Button"}, "Save"},
		{"metacharacters are literal", desktop.Criteria{Title: "(Ctrl+Shift+S)"}, "Save As (Ctrl+Shift+S)"},
		{"type spelling is normalized", desktop.Criteria{ControlType: "menu item"}, "Save As (Ctrl+Shift+S)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			el, err := r.Resolve(t.Context(), w, tt.criteria, testTimeout)
			require.NoError(t, err)
			assert.Equal(t, tt.want, el.Text())
		})
	}
}

func TestResolver_RequiresAHint(t *testing.T) {
	d := newDesk(t, toolbarFixture)
	_, err := newResolver(t).Resolve(t.Context(), locate(t, d, "Editor"), desktop.Criteria{}, testTimeout)

	var invalid *desktop.InvalidArgumentError
	assert.True(t, errors.As(err, &invalid))
}

func TestResolver_NotFound(t *testing.T) {
	d := newDesk(t, toolbarFixture)
	c := desktop.Criteria{Title: "Strikethrough", ControlType: "Button"}

	start := time.Now()
	_, err := newResolver(t).Resolve(t.Context(), locate(t, d, "Editor"), c, testTimeout)

	var notFound *desktop.ElementNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, c, notFound.Criteria)
	assert.GreaterOrEqual(t, time.Since(start), testTimeout)
	assert.Contains(t, err.Error(), "'element_title': 'Strikethrough'")
}

func TestResolver_WaitsForVisibility(t *testing.T) {
	d := newDesk(t, `
windows:
  - title: "Loader"
    elements:
      - {type: Button, text: "Continue", hidden: true}
`)
	w := locate(t, d, "Loader")
	target := d.Window("Loader").Element("Continue")

	go func() {
		time.Sleep(20 * time.Millisecond)
		target.SetHidden(false)
	}()

	el, err := newResolver(t).Resolve(t.Context(), w, desktop.Criteria{Title: "continue"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "Continue", el.Text())
}
