package desktop_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/deskpilot/internal/desktop"
	"github.com/xkilldash9x/deskpilot/internal/desktop/memdesk"
	"go.uber.org/zap/zaptest"
)

const (
	testPoll    = 5 * time.Millisecond
	testTimeout = 100 * time.Millisecond
)

const chatFixture = `
windows:
  - title: "Chats - WhatsApp"
    process: WhatsApp.exe
    class: ApplicationFrameWindow
    bounds: [0, 0, 800, 600]
    elements:
      - type: Pane
        text: ""
        children:
          - {type: ListItem, text: "Secret message"}
          - {type: ListItem, text: "Another secret"}
          - {type: ListItem, text: "Archived chats"}
          - {type: Button, text: "Send", bounds: [700, 550, 780, 590]}
          - {type: Button, text: "Send", bounds: [700, 550, 780, 590]}
          - {type: Button, text: "Attach", disabled: true}
          - {type: Button, text: "Hidden", hidden: true}
          - {type: "", text: "Untyped"}
          - {type: Edit, text: "Type a message", bounds: [10, 550, 690, 590]}
  - title: "C++ Reference (Debug) - Google Chrome"
    process: chrome.exe
    class: Chrome_WidgetWin_1
    bounds: [0, 0, 1280, 800]
    elements:
      - {type: Hyperlink, text: "std::vector", bounds: [100, 200, 220, 220]}
      - {type: Button, text: "Search", bounds: [900, 20, 980, 60]}
  - title: "Background Task"
    hidden: true
`

func newDesk(t *testing.T, fixture string) *memdesk.Desktop {
	t.Helper()
	f, err := memdesk.ParseFixture([]byte(fixture))
	require.NoError(t, err)
	return memdesk.New(f, zaptest.NewLogger(t))
}

func locate(t *testing.T, d *memdesk.Desktop, fragment string) desktop.Window {
	t.Helper()
	l := desktop.NewLocator(d, testPoll, zaptest.NewLogger(t))
	w, err := l.Locate(t.Context(), fragment, testTimeout)
	require.NoError(t, err)
	return w
}
