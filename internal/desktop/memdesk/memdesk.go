// Package memdesk is an in-memory desktop backend. It models windows, an
// accessibility tree, focus, a clipboard and paste semantics closely enough to
// drive the agent loop in tests and dry runs.
package memdesk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xkilldash9x/deskpilot/internal/desktop"
	"go.uber.org/zap"
)

// ErrWindowClosed is returned by operations on a closed window.
var ErrWindowClosed = errors.New("window has been closed")

// gridCellSize is the pixel size of annotation cells.
const gridCellSize = 100

// Desktop is the in-memory desktop. It implements every platform interface.
type Desktop struct {
	mu         sync.Mutex
	windows    []*Window
	apps       map[string]WindowSpec
	clipboard  string
	foreground *Window
	launched   []string
	opened     []string
	log        *zap.Logger
}

var (
	_ desktop.Desktop   = (*Desktop)(nil)
	_ desktop.Input     = (*Desktop)(nil)
	_ desktop.Clipboard = (*Desktop)(nil)
	_ desktop.Launcher  = (*Desktop)(nil)
	_ desktop.Annotator = (*Desktop)(nil)
)

// New builds a desktop from a fixture.
func New(f *Fixture, logger *zap.Logger) *Desktop {
	d := &Desktop{apps: make(map[string]WindowSpec), log: logger.Named("memdesk")}
	for _, spec := range f.Windows {
		d.windows = append(d.windows, d.newWindow(spec))
	}
	for name, spec := range f.Apps {
		d.apps[strings.ToLower(name)] = spec
	}
	return d
}

// Platform exposes d through the platform interfaces.
func (d *Desktop) Platform() desktop.Platform {
	return desktop.Platform{Desktop: d, Input: d, Clipboard: d, Launcher: d, Annotator: d}
}

func (d *Desktop) newWindow(spec WindowSpec) *Window {
	bounds, _ := rect(spec.Bounds)
	w := &Window{
		d:       d,
		title:   spec.Title,
		process: spec.Process,
		class:   spec.Class,
		hidden:  spec.Hidden,
		bounds:  bounds,
	}
	var walk func([]ElementSpec)
	walk = func(specs []ElementSpec) {
		for _, s := range specs {
			b, _ := rect(s.Bounds)
			w.elements = append(w.elements, &Element{
				w:        w,
				ctype:    s.Type,
				text:     s.Text,
				value:    s.Value,
				disabled: s.Disabled,
				hidden:   s.Hidden,
				bounds:   b,
			})
			walk(s.Children)
		}
	}
	walk(spec.Elements)
	return w
}

// Windows returns every open window in z-order.
func (d *Desktop) Windows(ctx context.Context) ([]desktop.Window, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]desktop.Window, 0, len(d.windows))
	for _, w := range d.windows {
		if !w.closed {
			out = append(out, w)
		}
	}
	return out, nil
}

// Window returns the first open window whose title contains fragment.
func (d *Desktop) Window(fragment string) *Window {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, w := range d.windows {
		if !w.closed && strings.Contains(strings.ToLower(w.title), strings.ToLower(fragment)) {
			return w
		}
	}
	return nil
}

// AddWindow opens a new window.
func (d *Desktop) AddWindow(spec WindowSpec) *Window {
	w := d.newWindow(spec)
	d.mu.Lock()
	d.windows = append(d.windows, w)
	d.mu.Unlock()
	return w
}

// Foreground returns the focused window, or nil.
func (d *Desktop) Foreground() *Window {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.foreground
}

// SetText implements desktop.Clipboard.
func (d *Desktop) SetText(ctx context.Context, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clipboard = text
	return nil
}

// ClipboardText returns the clipboard content.
func (d *Desktop) ClipboardText() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clipboard
}

// ClickAt clicks the topmost visible element under p, if any, and focuses it.
func (d *Desktop) ClickAt(ctx context.Context, w desktop.Window, p desktop.Point) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	mw, err := d.target(w)
	if err != nil {
		return err
	}
	mw.pointerClicks = append(mw.pointerClicks, p)
	for i := len(mw.elements) - 1; i >= 0; i-- {
		el := mw.elements[i]
		if el.hidden || el.disabled || !el.bounds.Contains(p) {
			continue
		}
		el.clicks++
		mw.focused = el
		mw.selectAll = false
		return nil
	}
	return nil
}

// SendChord applies a chord to the focused element of w. Ctrl+A selects all of
// it and ctrl+V pastes the clipboard, replacing the selection.
func (d *Desktop) SendChord(ctx context.Context, w desktop.Window, c desktop.Chord) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	mw, err := d.target(w)
	if err != nil {
		return err
	}
	mw.keys = append(mw.keys, c.String())

	switch {
	case c.Is(desktop.ModCtrl, "a"):
		mw.selectAll = mw.focused != nil
	case c.Is(desktop.ModCtrl, "v"):
		if mw.focused == nil {
			return nil
		}
		if mw.selectAll {
			mw.focused.value = d.clipboard
		} else {
			mw.focused.value += d.clipboard
		}
		mw.selectAll = false
	default:
		mw.selectAll = false
	}
	return nil
}

// target resolves w, or the foreground window when w is nil. d.mu is held.
func (d *Desktop) target(w desktop.Window) (*Window, error) {
	if w == nil {
		if d.foreground == nil {
			return nil, fmt.Errorf("no foreground window")
		}
		return d.foreground, nil
	}
	mw, ok := w.(*Window)
	if !ok || mw.d != d {
		return nil, fmt.Errorf("window %q does not belong to this desktop", w.Title())
	}
	if mw.closed {
		return nil, ErrWindowClosed
	}
	return mw, nil
}

// OpenApp opens the fixture window registered for name.
func (d *Desktop) OpenApp(ctx context.Context, name string) error {
	d.mu.Lock()
	spec, ok := d.apps[strings.ToLower(strings.TrimSpace(name))]
	d.launched = append(d.launched, name)
	d.mu.Unlock()
	if !ok {
		return &desktop.NotFoundError{Kind: "application", Name: name}
	}
	w := d.AddWindow(spec)
	d.log.Debug("Application opened.", zap.String("app", name), zap.String("window", w.title))
	return nil
}

// OpenURL opens a browser window showing url.
func (d *Desktop) OpenURL(ctx context.Context, url string) error {
	d.mu.Lock()
	d.opened = append(d.opened, url)
	d.mu.Unlock()
	d.AddWindow(WindowSpec{
		Title:   url + " - Chromium",
		Process: "chromium",
		Class:   "Chrome_WidgetWin_1",
		Bounds:  []float64{0, 0, 1280, 800},
		Elements: []ElementSpec{
			{Type: "Document", Text: url, Bounds: []float64{0, 80, 1280, 800}},
		},
	})
	return nil
}

// Launched lists the application names passed to OpenApp.
func (d *Desktop) Launched() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.launched...)
}

// OpenedURLs lists the URLs passed to OpenURL.
func (d *Desktop) OpenedURLs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.opened...)
}

// Annotate overlays a grid of 100px cells on the window bounds.
func (d *Desktop) Annotate(ctx context.Context, w desktop.Window) (desktop.Grid, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	mw, err := d.target(w)
	if err != nil {
		return desktop.Grid{}, err
	}
	if mw.bounds.Empty() {
		return desktop.Grid{}, fmt.Errorf("window %q has no bounds", mw.title)
	}
	return desktop.NewGrid(mw.bounds, gridCellSize), nil
}

// Window is an in-memory top-level window.
type Window struct {
	d             *Desktop
	title         string
	process       string
	class         string
	hidden        bool
	closed        bool
	bounds        desktop.Rect
	elements      []*Element
	focused       *Element
	selectAll     bool
	keys          []string
	pointerClicks []desktop.Point
}

func (w *Window) Title() string { return w.title }

func (w *Window) Visible() bool {
	w.d.mu.Lock()
	defer w.d.mu.Unlock()
	return !w.hidden && !w.closed
}

func (w *Window) Context() desktop.WindowContext {
	return desktop.WindowContext{ProcessName: w.process, ClassName: w.class, Title: w.title}
}

func (w *Window) Focus(ctx context.Context) error {
	w.d.mu.Lock()
	defer w.d.mu.Unlock()
	if w.closed {
		return ErrWindowClosed
	}
	w.d.foreground = w
	return nil
}

func (w *Window) Descendants(ctx context.Context) ([]desktop.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.d.mu.Lock()
	defer w.d.mu.Unlock()
	if w.closed {
		return nil, ErrWindowClosed
	}
	out := make([]desktop.Element, len(w.elements))
	for i, el := range w.elements {
		out[i] = el
	}
	return out, nil
}

// Close closes the window.
func (w *Window) Close() {
	w.d.mu.Lock()
	defer w.d.mu.Unlock()
	w.closed = true
	if w.d.foreground == w {
		w.d.foreground = nil
	}
}

// Keys lists the chords sent to the window.
func (w *Window) Keys() []string {
	w.d.mu.Lock()
	defer w.d.mu.Unlock()
	return append([]string(nil), w.keys...)
}

// PointerClicks lists the points clicked in the window.
func (w *Window) PointerClicks() []desktop.Point {
	w.d.mu.Lock()
	defer w.d.mu.Unlock()
	return append([]desktop.Point(nil), w.pointerClicks...)
}

// Element returns the first element whose text equals text.
func (w *Window) Element(text string) *Element {
	w.d.mu.Lock()
	defer w.d.mu.Unlock()
	for _, el := range w.elements {
		if el.text == text {
			return el
		}
	}
	return nil
}

// Elements returns the window's elements in traversal order.
func (w *Window) Elements() []*Element {
	w.d.mu.Lock()
	defer w.d.mu.Unlock()
	return append([]*Element(nil), w.elements...)
}

// SetHidden changes the window's visibility.
func (w *Window) SetHidden(hidden bool) {
	w.d.mu.Lock()
	defer w.d.mu.Unlock()
	w.hidden = hidden
}

// Element is an in-memory accessibility node.
type Element struct {
	w        *Window
	ctype    string
	text     string
	value    string
	disabled bool
	hidden   bool
	bounds   desktop.Rect
	clicks   int
}

func (e *Element) ControlType() string { return e.ctype }
func (e *Element) Text() string        { return e.text }

func (e *Element) Enabled() bool {
	e.w.d.mu.Lock()
	defer e.w.d.mu.Unlock()
	return !e.disabled
}

func (e *Element) Visible() bool {
	e.w.d.mu.Lock()
	defer e.w.d.mu.Unlock()
	return !e.hidden
}

func (e *Element) Bounds(ctx context.Context) (desktop.Rect, error) {
	e.w.d.mu.Lock()
	defer e.w.d.mu.Unlock()
	if e.w.closed {
		return desktop.Rect{}, ErrWindowClosed
	}
	return e.bounds, nil
}

func (e *Element) Invoke(ctx context.Context) error {
	e.w.d.mu.Lock()
	defer e.w.d.mu.Unlock()
	switch {
	case e.w.closed:
		return ErrWindowClosed
	case e.disabled:
		return fmt.Errorf("%s element is disabled", e.ctype)
	}
	e.clicks++
	e.w.focused = e
	e.w.selectAll = false
	return nil
}

func (e *Element) Focus(ctx context.Context) error {
	e.w.d.mu.Lock()
	defer e.w.d.mu.Unlock()
	if e.w.closed {
		return ErrWindowClosed
	}
	e.w.focused = e
	e.w.selectAll = false
	return nil
}

// Value returns the element's editable content.
func (e *Element) Value() string {
	e.w.d.mu.Lock()
	defer e.w.d.mu.Unlock()
	return e.value
}

// Clicks returns how many times the element was clicked.
func (e *Element) Clicks() int {
	e.w.d.mu.Lock()
	defer e.w.d.mu.Unlock()
	return e.clicks
}

// SetHidden changes the element's visibility.
func (e *Element) SetHidden(hidden bool) {
	e.w.d.mu.Lock()
	defer e.w.d.mu.Unlock()
	e.hidden = hidden
}
