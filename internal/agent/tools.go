package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xkilldash9x/deskpilot/internal/config"
	"github.com/xkilldash9x/deskpilot/internal/desktop"
	"go.uber.org/zap"
)

// Env bundles the desktop components the toolkit operations drive.
type Env struct {
	platform  desktop.Platform
	locator   *desktop.Locator
	inspector *desktop.Inspector
	resolver  *desktop.Resolver
	executor  *desktop.Executor

	locateTimeout time.Duration
	resolveWait   time.Duration
	launchSettle  time.Duration
	sleep         func(ctx context.Context, d time.Duration) error
}

// NewEnv wires the locator, inspector, resolver and executor over a platform.
func NewEnv(p desktop.Platform, dcfg config.DesktopConfig, rcfg config.RedactionConfig, logger *zap.Logger) (*Env, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	policy := desktop.NewPolicyFromConfig(rcfg)
	return &Env{
		platform:  p,
		locator:   desktop.NewLocator(p.Desktop, dcfg.PollInterval, logger),
		inspector: desktop.NewInspector(policy, dcfg.SettleDelay, logger),
		resolver:  desktop.NewResolver(dcfg.PollInterval, logger),
		executor: desktop.NewExecutor(p.Input, p.Clipboard, desktop.ExecutorConfig{
			BrowserMarkers: dcfg.BrowserMarkers,
			FocusSettle:    dcfg.SettleDelay,
			KeySettle:      dcfg.KeySettle,
			Policy:         policy,
		}, logger),
		locateTimeout: dcfg.LocateTimeout,
		resolveWait:   dcfg.ResolveWait,
		launchSettle:  dcfg.LaunchSettle,
		sleep:         desktop.Sleep,
	}, nil
}

// Toolkit builds the operation set for a variant. Every operation runs under ui.
func (e *Env) Toolkit(variant config.Variant, ui sync.Locker, logger *zap.Logger) *Toolkit {
	rules := []string{
		"To send a message or submit a search after typing, you MUST use the `PRESS_KEY` action with the `key` parameter set to `'enter'`.",
		"After any major `click` or `PRESS_KEY` action, use `GET_WINDOW_ELEMENTS` to see the new screen state.",
	}
	tools := []Tool{
		{
			Name:        "search_and_open_app",
			Signature:   "app_name: str",
			Description: "Use for local apps like 'WhatsApp', 'Notepad'.",
			Required:    []string{"app_name"},
			Handler:     e.searchAndOpenApp,
		},
		{
			Name:        "open_url",
			Signature:   "url: str",
			Description: "Use for websites like 'https://www.google.com'.",
			Required:    []string{"url"},
			Handler:     e.openURL,
		},
		{
			Name:        "LIST_OPEN_WINDOWS",
			Description: "Gets the titles of all open windows.",
			Handler:     e.listOpenWindows,
		},
		{
			Name:        "GET_WINDOW_ELEMENTS",
			Signature:   "window_title: str",
			Description: "Inspects a window to see its controls.",
			Required:    []string{"window_title"},
			Handler:     e.getWindowElements,
		},
		{
			Name:        "INTERACT_WITH_ELEMENT",
			Signature:   `window_title: str, action: str, element_title: str = None, control_type: str = None, value: str = ""`,
			Description: "Use this to 'click' or 'type'.",
			Required:    []string{"window_title", "action"},
			Handler:     e.interactWithElement,
		},
		{
			Name:        "PRESS_KEY",
			Signature:   "window_title: str, key: str",
			Description: "Use this for single keys like 'enter' or chords like 'ctrl+s'.",
			Required:    []string{"window_title", "key"},
			Handler:     e.pressKey,
		},
	}

	if variant == config.VariantVision {
		rules = append(rules,
			"Use `CAPTURE_GRID` before `CLICK_CELL`. Cells are named by column letter and row number, like 'C4'.",
			"After `CLICK_CELL` on a text field, use `TYPE_TEXT` to enter text into it.",
		)
		tools = append(tools,
			Tool{
				Name:        "CAPTURE_GRID",
				Signature:   "window_title: str",
				Description: "Overlays a labeled grid on a screenshot of the window.",
				Required:    []string{"window_title"},
				Handler:     e.captureGrid,
			},
			Tool{
				Name:        "CLICK_CELL",
				Signature:   "window_title: str, cell: str",
				Description: "Clicks the center of a grid cell from the last CAPTURE_GRID.",
				Required:    []string{"window_title", "cell"},
				Handler:     e.clickCell,
			},
			Tool{
				Name:        "TYPE_TEXT",
				Signature:   "window_title: str, value: str",
				Description: "Pastes text into the focused control of the window.",
				Required:    []string{"window_title", "value"},
				Handler:     e.typeText,
			},
		)
	}

	tools = append(tools, Tool{
		Name:        "FINISH",
		Signature:   "reason: str",
		Description: "Use this when the entire objective is complete.",
		Handler:     finish,
		Terminal:    true,
	})
	return NewToolkit(logger, ui, rules, tools...)
}

func (e *Env) searchAndOpenApp(ctx context.Context, a Args) (string, error) {
	name := a.String("app_name")
	if err := e.platform.Launcher.OpenApp(ctx, name); err != nil {
		return failf("Error searching for and opening '%s': %v", name, err)
	}
	if err := e.sleep(ctx, e.launchSettle); err != nil {
		return "", err
	}
	return fmt.Sprintf("Successfully launched '%s' from the Start Menu. Use LIST_OPEN_WINDOWS to find its title.", name), nil
}

// normalizeURL adds a scheme and "www." to bare hosts.
func normalizeURL(url string) string {
	if strings.HasPrefix(strings.ToLower(url), "http") {
		return url
	}
	parts := strings.Split(url, "www.")
	return "https://www." + parts[len(parts)-1]
}

func (e *Env) openURL(ctx context.Context, a Args) (string, error) {
	url := normalizeURL(strings.TrimSpace(a.String("url")))
	if err := e.platform.Launcher.OpenURL(ctx, url); err != nil {
		return failf("Error opening URL '%s': %v", url, err)
	}
	if err := e.sleep(ctx, e.launchSettle); err != nil {
		return "", err
	}
	return fmt.Sprintf("Successfully opened URL %s. Use LIST_OPEN_WINDOWS to find the browser title.", url), nil
}

func (e *Env) listOpenWindows(ctx context.Context, _ Args) (string, error) {
	titles, err := e.locator.Titles(ctx)
	if err != nil {
		return failf("Error listing windows: %v", err)
	}
	if len(titles) == 0 {
		return "No open windows found.", nil
	}
	return strings.Join(titles, "\n"), nil
}

func (e *Env) getWindowElements(ctx context.Context, a Args) (string, error) {
	title := a.String("window_title")
	w, err := e.locator.Locate(ctx, title, e.locateTimeout)
	if err != nil {
		return failf("Error getting window elements for title '%s': %v", title, err)
	}
	descriptors, err := e.inspector.Inspect(ctx, w)
	if err != nil {
		return failf("Error getting window elements for title '%s': %v", title, err)
	}
	return desktop.FormatDescriptors(descriptors), nil
}

func (e *Env) interactWithElement(ctx context.Context, a Args) (string, error) {
	title := a.String("window_title")
	action := a.String("action")
	c := desktop.Criteria{Title: a.String("element_title"), ControlType: a.String("control_type")}

	if c.Empty() {
		return failf("Error: Must provide 'element_title' and/or 'control_type'.")
	}
	kind, ok := desktop.ParseActionKind(action)
	if !ok {
		return failf("Error: Unknown action '%s'.", action)
	}

	fail := func(err error) (string, error) {
		return failf("Error interacting with element matching criteria %s in window '%s': %v", c, title, err)
	}
	w, err := e.locator.Locate(ctx, title, e.locateTimeout)
	if err != nil {
		return fail(err)
	}
	el, err := e.resolver.Resolve(ctx, w, c, e.resolveWait)
	if err != nil {
		return fail(err)
	}
	if _, err := e.executor.Execute(ctx, w, el, desktop.Action{Kind: kind, Value: a.String("value"), Criteria: c}); err != nil {
		return fail(err)
	}

	if kind == desktop.ActionType {
		return fmt.Sprintf("Successfully pasted text into the element matching %s.", c), nil
	}
	return fmt.Sprintf("Successfully clicked the element matching %s.", c), nil
}

func (e *Env) pressKey(ctx context.Context, a Args) (string, error) {
	title := a.String("window_title")
	key := a.String("key")
	w, err := e.locator.Locate(ctx, title, e.locateTimeout)
	if err != nil {
		return failf("Error pressing key on window '%s': %v", title, err)
	}
	if _, err := e.executor.PressKey(ctx, w, key); err != nil {
		return failf("Error pressing key on window '%s': %v", title, err)
	}
	return fmt.Sprintf("Sent key(s) '%s' to window '%s'.", key, title), nil
}

func (e *Env) captureGrid(ctx context.Context, a Args) (string, error) {
	title := a.String("window_title")
	state, ok := runStateFrom(ctx)
	if !ok {
		return failf("Error capturing grid for window '%s': no run in progress", title)
	}
	w, err := e.locator.Locate(ctx, title, e.locateTimeout)
	if err != nil {
		return failf("Error capturing grid for window '%s': %v", title, err)
	}
	if e.platform.Annotator == nil {
		return failf("Error capturing grid for window '%s': this desktop cannot capture screenshots", title)
	}
	grid, err := e.platform.Annotator.Annotate(ctx, w)
	if err != nil {
		return failf("Error capturing grid for window '%s': %v", title, err)
	}

	state.setGrid(w.Title(), grid)
	return grid.Describe(w.Title()), nil
}

func (e *Env) clickCell(ctx context.Context, a Args) (string, error) {
	title := a.String("window_title")
	cell := strings.ToUpper(strings.TrimSpace(a.String("cell")))
	fail := func(err error) (string, error) {
		return failf("Error clicking cell '%s' in window '%s': %v", cell, title, err)
	}

	w, err := e.locator.Locate(ctx, title, e.locateTimeout)
	if err != nil {
		return fail(err)
	}
	var grid desktop.Grid
	state, ok := runStateFrom(ctx)
	if ok {
		grid, ok = state.grid(w.Title())
	}
	if !ok {
		return fail(fmt.Errorf("no grid captured for this window, use CAPTURE_GRID first"))
	}

	p, err := grid.CellCenter(cell)
	if err != nil {
		return fail(err)
	}
	if err := e.executor.ClickPoint(ctx, w, p); err != nil {
		return fail(err)
	}
	return fmt.Sprintf("Clicked cell %s at (%.0f, %.0f) in window '%s'.", cell, p.X, p.Y, w.Title()), nil
}

func (e *Env) typeText(ctx context.Context, a Args) (string, error) {
	title := a.String("window_title")
	w, err := e.locator.Locate(ctx, title, e.locateTimeout)
	if err != nil {
		return failf("Error typing into window '%s': %v", title, err)
	}
	if err := e.executor.PasteFocused(ctx, w, a.String("value")); err != nil {
		return failf("Error typing into window '%s': %v", title, err)
	}
	return fmt.Sprintf("Successfully pasted text into the focused control of window '%s'.", w.Title()), nil
}

func finish(_ context.Context, a Args) (string, error) {
	if reason := strings.TrimSpace(a.String("reason")); reason != "" {
		return reason, nil
	}
	return finishDefault, nil
}
