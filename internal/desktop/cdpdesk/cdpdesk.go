// Package cdpdesk drives browser-hosted applications through the Chrome DevTools
// Protocol. Every page target is a top-level window and the page's full
// accessibility tree is the window's element tree.
package cdpdesk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/accessibility"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/xkilldash9x/deskpilot/internal/config"
	"github.com/xkilldash9x/deskpilot/internal/desktop"
	"go.uber.org/zap"
)

const (
	// Window context reported for every page target.
	browserProcess = "chrome"
	browserClass   = "Chrome_WidgetWin_1"

	gridCellSize = 80
)

// ErrNoDOMNode is returned for accessibility nodes without a backing DOM node.
var ErrNoDOMNode = errors.New("accessibility node has no DOM node")

// Desktop is a browser seen as a desktop.
type Desktop struct {
	browserCtx context.Context
	cancel     context.CancelFunc
	timeout    time.Duration
	apps       map[string]string
	log        *zap.Logger

	attachMu  sync.Mutex
	mu        sync.Mutex
	tabs      map[target.ID]tab
	clipboard string
}

type tab struct {
	ctx    context.Context
	cancel context.CancelFunc
}

var (
	_ desktop.Desktop   = (*Desktop)(nil)
	_ desktop.Input     = (*Desktop)(nil)
	_ desktop.Clipboard = (*Desktop)(nil)
	_ desktop.Launcher  = (*Desktop)(nil)
	_ desktop.Annotator = (*Desktop)(nil)
)

// New connects to a running browser at cfg.CDP.RemoteURL, or launches one.
func New(ctx context.Context, cfg config.DesktopConfig, logger *zap.Logger) (*Desktop, error) {
	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)
	if cfg.CDP.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, cfg.CDP.RemoteURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", cfg.CDP.Headless),
			chromedp.Flag("hide-scrollbars", false),
		)
		if cfg.CDP.NoSandbox {
			opts = append(opts, chromedp.NoSandbox)
		}
		if cfg.CDP.ExecPath != "" {
			opts = append(opts, chromedp.ExecPath(cfg.CDP.ExecPath))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, opts...)
	}

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser session: %w", err)
	}

	apps := make(map[string]string, len(cfg.Apps))
	for name, url := range cfg.Apps {
		apps[strings.ToLower(name)] = url
	}

	timeout := cfg.CDP.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Desktop{
		browserCtx: browserCtx,
		cancel: func() {
			browserCancel()
			allocCancel()
		},
		timeout: timeout,
		apps:    apps,
		log:     logger.Named("cdpdesk"),
		tabs:    make(map[target.ID]tab),
	}, nil
}

// Platform exposes d through the platform interfaces.
func (d *Desktop) Platform() desktop.Platform {
	return desktop.Platform{Desktop: d, Input: d, Clipboard: d, Launcher: d, Annotator: d}
}

// Close detaches from every tab and shuts the browser session down.
func (d *Desktop) Close() {
	d.mu.Lock()
	for id, t := range d.tabs {
		t.cancel()
		delete(d.tabs, id)
	}
	d.mu.Unlock()
	d.cancel()
}

// tabContext returns the cached chromedp context attached to a target.
// Contexts are kept for the life of the Desktop because cancelling them
// closes the tab.
func (d *Desktop) tabContext(id target.ID) (context.Context, error) {
	d.attachMu.Lock()
	defer d.attachMu.Unlock()

	d.mu.Lock()
	t, ok := d.tabs[id]
	d.mu.Unlock()
	if ok {
		return t.ctx, nil
	}

	ctx, cancel := chromedp.NewContext(d.browserCtx, chromedp.WithTargetID(id))
	if err := d.attach(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to attach to tab %s: %w", id, err)
	}
	d.mu.Lock()
	d.tabs[id] = tab{ctx: ctx, cancel: cancel}
	d.mu.Unlock()
	return ctx, nil
}

// attach performs the first Run on a tab context. The tab's event loop lives
// on the context of that first Run, so it must not carry a timeout.
func (d *Desktop) attach(tabCtx context.Context) error {
	return chromedp.Run(tabCtx)
}

// run executes actions against a tab, bounded by the per-operation timeout and
// by the caller's ctx.
func (d *Desktop) run(ctx context.Context, id target.ID, actions ...chromedp.Action) error {
	tabCtx, err := d.tabContext(id)
	if err != nil {
		return err
	}
	return d.runIn(ctx, tabCtx, actions...)
}

func (d *Desktop) runIn(ctx, tabCtx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(tabCtx, d.timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("devtools operation timed out after %s: %w", d.timeout, err)
		}
		return err
	}
	return nil
}

// Windows lists page targets.
func (d *Desktop) Windows(ctx context.Context) ([]desktop.Window, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	infos, err := chromedp.Targets(d.browserCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}
	var out []desktop.Window
	for _, info := range infos {
		if info.Type != "page" {
			continue
		}
		out = append(out, &window{d: d, id: info.TargetID, title: info.Title, url: info.URL})
	}
	return out, nil
}

// window is a page target.
type window struct {
	d     *Desktop
	id    target.ID
	title string
	url   string
}

func (w *window) Title() string { return w.title }

// Visible is always true; background tabs are brought forward on focus.
func (w *window) Visible() bool { return true }

func (w *window) Context() desktop.WindowContext {
	return desktop.WindowContext{ProcessName: browserProcess, ClassName: browserClass, Title: w.title}
}

func (w *window) Focus(ctx context.Context) error {
	return w.d.run(ctx, w.id, page.BringToFront())
}

func (w *window) Descendants(ctx context.Context) ([]desktop.Element, error) {
	var nodes []*accessibility.Node
	err := w.d.run(ctx, w.id, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		nodes, err = accessibility.GetFullAXTree().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to read accessibility tree: %w", err)
	}

	converted := make([]axNode, 0, len(nodes))
	for _, n := range nodes {
		if n != nil {
			converted = append(converted, convertNode(n))
		}
	}

	ordered := preorder(converted)
	out := make([]desktop.Element, 0, len(ordered))
	for _, n := range ordered {
		out = append(out, &element{w: w, node: n})
	}
	return out, nil
}

// element is an accessibility node of a page.
type element struct {
	w    *window
	node axNode
}

func (e *element) ControlType() string { return controlType(e.node.role) }
func (e *element) Text() string        { return e.node.name }
func (e *element) Enabled() bool       { return !e.node.disabled }
func (e *element) Visible() bool       { return !e.node.ignored && !e.node.hidden }

func (e *element) Bounds(ctx context.Context) (desktop.Rect, error) {
	if e.node.backend == 0 {
		return desktop.Rect{}, ErrNoDOMNode
	}
	var box *dom.BoxModel
	err := e.w.d.run(ctx, e.w.id, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		box, err = dom.GetBoxModel().WithBackendNodeID(e.node.backend).Do(ctx)
		return err
	}))
	if err != nil {
		return desktop.Rect{}, fmt.Errorf("failed to get box model: %w", err)
	}
	left, top, right, bottom, ok := quadBounds(box.Content)
	if !ok {
		return desktop.Rect{}, fmt.Errorf("box model has no content quad")
	}
	return desktop.Rect{Left: left, Top: top, Right: right, Bottom: bottom}, nil
}

func (e *element) Invoke(ctx context.Context) error {
	if e.node.backend == 0 {
		return ErrNoDOMNode
	}
	return e.w.d.run(ctx, e.w.id, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := dom.ResolveNode().WithBackendNodeID(e.node.backend).Do(ctx)
		if err != nil {
			return fmt.Errorf("failed to resolve node: %w", err)
		}
		_, exc, err := runtime.CallFunctionOn(`function() { this.click(); }`).
			WithObjectID(obj.ObjectID).
			Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return fmt.Errorf("click raised: %s", exc.Text)
		}
		return nil
	}))
}

func (e *element) Focus(ctx context.Context) error {
	if e.node.backend == 0 {
		return ErrNoDOMNode
	}
	return e.w.d.run(ctx, e.w.id, dom.Focus().WithBackendNodeID(e.node.backend))
}

// windowID resolves the target to act on.
func (d *Desktop) windowID(w desktop.Window) (target.ID, error) {
	cw, ok := w.(*window)
	if !ok || cw.d != d {
		return "", fmt.Errorf("window does not belong to this browser")
	}
	return cw.id, nil
}

// ClickAt dispatches a left click at p in viewport coordinates.
func (d *Desktop) ClickAt(ctx context.Context, w desktop.Window, p desktop.Point) error {
	id, err := d.windowID(w)
	if err != nil {
		return err
	}
	return d.run(ctx, id,
		input.DispatchMouseEvent(input.MouseMoved, p.X, p.Y),
		input.DispatchMouseEvent(input.MousePressed, p.X, p.Y).WithButton(input.Left).WithClickCount(1),
		input.DispatchMouseEvent(input.MouseReleased, p.X, p.Y).WithButton(input.Left).WithClickCount(1),
	)
}

// SendChord dispatches the chord as key events. Ctrl+V inserts the staged
// clipboard text, since synthetic key events never reach the OS clipboard.
func (d *Desktop) SendChord(ctx context.Context, w desktop.Window, c desktop.Chord) error {
	id, err := d.windowID(w)
	if err != nil {
		return err
	}
	if c.Is(desktop.ModCtrl, "v") {
		d.mu.Lock()
		text := d.clipboard
		d.mu.Unlock()
		return d.run(ctx, id, input.InsertText(text))
	}

	actions, err := keyActions(c)
	if err != nil {
		return err
	}
	return d.run(ctx, id, actions...)
}

// SetText stages text for the next paste.
func (d *Desktop) SetText(ctx context.Context, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clipboard = text
	return nil
}

// OpenApp opens the URL configured for a web application name.
func (d *Desktop) OpenApp(ctx context.Context, name string) error {
	url, ok := d.apps[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return &desktop.NotFoundError{Kind: "application", Name: name}
	}
	return d.OpenURL(ctx, url)
}

// OpenURL opens url in a new tab.
func (d *Desktop) OpenURL(ctx context.Context, url string) error {
	tabCtx, cancel := chromedp.NewContext(d.browserCtx)
	if err := d.attach(tabCtx); err != nil {
		cancel()
		return fmt.Errorf("failed to open tab: %w", err)
	}
	if err := d.runIn(ctx, tabCtx, chromedp.Navigate(url)); err != nil {
		cancel()
		return fmt.Errorf("failed to open %s: %w", url, err)
	}

	id := chromedp.FromContext(tabCtx).Target.TargetID
	d.mu.Lock()
	d.tabs[id] = tab{ctx: tabCtx, cancel: cancel}
	d.mu.Unlock()
	d.log.Debug("Opened tab.", zap.String("url", url), zap.String("target", string(id)))
	return nil
}

// Annotate captures the page and lays a grid over its viewport.
func (d *Desktop) Annotate(ctx context.Context, w desktop.Window) (desktop.Grid, error) {
	id, err := d.windowID(w)
	if err != nil {
		return desktop.Grid{}, err
	}
	var (
		shot     []byte
		viewport *page.VisualViewport
	)
	err = d.run(ctx, id, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		_, _, _, _, viewport, _, err = page.GetLayoutMetrics().Do(ctx)
		if err != nil {
			return err
		}
		shot, err = page.CaptureScreenshot().WithFormat(page.CaptureScreenshotFormatPng).Do(ctx)
		return err
	}))
	if err != nil {
		return desktop.Grid{}, fmt.Errorf("failed to capture window: %w", err)
	}
	if viewport == nil {
		return desktop.Grid{}, fmt.Errorf("browser reported no viewport")
	}

	grid := desktop.NewGrid(desktop.Rect{Right: viewport.ClientWidth, Bottom: viewport.ClientHeight}, gridCellSize)
	grid.Image = shot
	grid.Format = "png"
	return grid, nil
}
