// Package desktop is the UI-interaction substrate the agent loop drives: window
// location, redacting accessibility-tree inspection, element resolution and
// action execution. Concrete backends live in subpackages and implement the
// interfaces declared here.
package desktop

import (
	"context"
	"fmt"
)

// Point is a physical screen (or viewport) coordinate.
type Point struct {
	X, Y float64
}

// Rect is an on-screen bounding box.
type Rect struct {
	Left, Top, Right, Bottom float64
}

// Midpoint returns the center of the rectangle.
func (r Rect) Midpoint() Point {
	return Point{X: (r.Left + r.Right) / 2, Y: (r.Top + r.Bottom) / 2}
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool {
	return r.Right <= r.Left || r.Bottom <= r.Top
}

// Contains reports whether p lies inside the rectangle.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.Left && p.X < r.Right && p.Y >= r.Top && p.Y < r.Bottom
}

func (r Rect) String() string {
	return fmt.Sprintf("(L%.0f, T%.0f, R%.0f, B%.0f)", r.Left, r.Top, r.Right, r.Bottom)
}

// WindowContext describes the process that owns a window. It is used to pick
// the click strategy.
type WindowContext struct {
	ProcessName string
	ClassName   string
	Title       string
}

// Desktop enumerates live top-level windows.
type Desktop interface {
	Windows(ctx context.Context) ([]Window, error)
}

// Window is a short-lived handle to a top-level window. Handles must not be
// kept across loop steps; re-locate instead.
type Window interface {
	Title() string
	Visible() bool
	Context() WindowContext
	// Focus brings the window to the foreground.
	Focus(ctx context.Context) error
	// Descendants returns every element under the window in traversal order.
	Descendants(ctx context.Context) ([]Element, error)
}

// Element is a node of a window's accessibility tree.
type Element interface {
	ControlType() string
	Text() string
	Enabled() bool
	Visible() bool
	Bounds(ctx context.Context) (Rect, error)
	// Invoke performs the native accessibility click.
	Invoke(ctx context.Context) error
	Focus(ctx context.Context) error
}

// Input injects pointer and keyboard events into a window.
type Input interface {
	ClickAt(ctx context.Context, w Window, p Point) error
	SendChord(ctx context.Context, w Window, c Chord) error
}

// Clipboard stages text for paste.
type Clipboard interface {
	SetText(ctx context.Context, text string) error
}

// Launcher starts applications and opens URLs.
type Launcher interface {
	OpenApp(ctx context.Context, name string) error
	OpenURL(ctx context.Context, url string) error
}

// Grid is an annotated screenshot of a window split into labelled cells.
// Columns are lettered from A, rows are numbered from 1.
type Grid struct {
	Rows, Cols int
	Bounds     Rect
	Image      []byte
	Format     string
}

// Annotator captures a window and overlays a coordinate grid.
type Annotator interface {
	Annotate(ctx context.Context, w Window) (Grid, error)
}

// Platform bundles the collaborators a backend provides.
type Platform struct {
	Desktop   Desktop
	Input     Input
	Clipboard Clipboard
	Launcher  Launcher
	Annotator Annotator
}

// Validate reports the first missing collaborator.
func (p Platform) Validate() error {
	switch {
	case p.Desktop == nil:
		return fmt.Errorf("platform has no desktop")
	case p.Input == nil:
		return fmt.Errorf("platform has no input")
	case p.Clipboard == nil:
		return fmt.Errorf("platform has no clipboard")
	case p.Launcher == nil:
		return fmt.Errorf("platform has no launcher")
	}
	return nil
}
