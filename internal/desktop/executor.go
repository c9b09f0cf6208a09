package desktop

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ActionKind is an element-level action.
type ActionKind string

const (
	ActionClick ActionKind = "click"
	ActionType  ActionKind = "type"
)

// ParseActionKind accepts an action name in any case.
func ParseActionKind(s string) (ActionKind, bool) {
	switch k := ActionKind(strings.ToLower(strings.TrimSpace(s))); k {
	case ActionClick, ActionType:
		return k, true
	}
	return "", false
}

// Action is one element-level action.
type Action struct {
	Kind ActionKind
	// Value is the text to paste for ActionType.
	Value string
	// Criteria that resolved the element; carried into errors.
	Criteria Criteria
}

// Strategy names how an action was carried out.
type Strategy string

const (
	StrategyInvoke  Strategy = "invoke"  // native accessibility click
	StrategyPointer Strategy = "pointer" // synthetic click at the element midpoint
	StrategyPaste   Strategy = "paste"   // clipboard, select-all, paste
)

// ExecutionResult describes a completed action.
type ExecutionResult struct {
	Kind     ActionKind
	Strategy Strategy
	// At is the clicked point for pointer clicks.
	At Point
}

// ExecutorConfig holds the executor's timing and browser detection settings.
type ExecutorConfig struct {
	BrowserMarkers []string
	// FocusSettle is waited after focusing a window before sending keys.
	FocusSettle time.Duration
	// KeySettle is waited after a key chord.
	KeySettle time.Duration
	// Policy decides which element text must not appear in errors.
	// DefaultPolicy is used when nil.
	Policy *Policy
}

// Executor performs clicks, paste-typing and key presses.
type Executor struct {
	input     Input
	clipboard Clipboard
	cfg       ExecutorConfig
	log       *zap.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(input Input, clipboard Clipboard, cfg ExecutorConfig, logger *zap.Logger) *Executor {
	if cfg.Policy == nil {
		cfg.Policy = DefaultPolicy()
	}
	return &Executor{input: input, clipboard: clipboard, cfg: cfg, log: logger.Named("executor")}
}

// IsBrowserContext reports whether a window belongs to a browser, by matching
// the markers against its process name, window class and title.
func IsBrowserContext(wc WindowContext, markers []string) bool {
	haystacks := []string{
		strings.ToLower(wc.ProcessName),
		strings.ToLower(wc.ClassName),
		strings.ToLower(wc.Title),
	}
	for _, marker := range markers {
		marker = strings.ToLower(strings.TrimSpace(marker))
		if marker == "" {
			continue
		}
		for _, h := range haystacks {
			if strings.Contains(h, marker) {
				return true
			}
		}
	}
	return false
}

// Execute re-focuses w and performs a on el.
func (e *Executor) Execute(ctx context.Context, w Window, el Element, a Action) (ExecutionResult, error) {
	fail := func(err error) (ExecutionResult, error) {
		if text := el.Text(); e.cfg.Policy.Apply(el.ControlType(), text) == Redacted {
			err = scrub(err, text)
		}
		return ExecutionResult{}, &ExecutionError{Op: string(a.Kind), Window: w.Title(), Criteria: a.Criteria, Err: err}
	}

	if err := w.Focus(ctx); err != nil {
		return fail(fmt.Errorf("focus window: %w", err))
	}

	switch a.Kind {
	case ActionClick:
		return e.click(ctx, w, el, fail)
	case ActionType:
		return e.paste(ctx, w, el, a.Value, fail)
	default:
		return ExecutionResult{}, &InvalidArgumentError{Arg: "action", Reason: fmt.Sprintf("unknown action '%s'", a.Kind)}
	}
}

func (e *Executor) click(ctx context.Context, w Window, el Element, fail func(error) (ExecutionResult, error)) (ExecutionResult, error) {
	if !IsBrowserContext(w.Context(), e.cfg.BrowserMarkers) {
		if err := el.Invoke(ctx); err != nil {
			return fail(fmt.Errorf("invoke: %w", err))
		}
		return ExecutionResult{Kind: ActionClick, Strategy: StrategyInvoke}, nil
	}

	// Browser accessibility trees misreport invoke targets; click the pixels.
	bounds, err := el.Bounds(ctx)
	if err != nil {
		return fail(fmt.Errorf("read bounds: %w", err))
	}
	if bounds.Empty() {
		return fail(fmt.Errorf("element has empty bounds %s", bounds))
	}
	at := bounds.Midpoint()
	if err := e.input.ClickAt(ctx, w, at); err != nil {
		return fail(fmt.Errorf("pointer click at (%.0f, %.0f): %w", at.X, at.Y, err))
	}
	e.log.Debug("Pointer click dispatched.", zap.String("window", w.Title()), zap.Float64("x", at.X), zap.Float64("y", at.Y))
	return ExecutionResult{Kind: ActionClick, Strategy: StrategyPointer, At: at}, nil
}

func (e *Executor) paste(ctx context.Context, w Window, el Element, value string, fail func(error) (ExecutionResult, error)) (ExecutionResult, error) {
	if err := el.Focus(ctx); err != nil {
		return fail(fmt.Errorf("focus element: %w", err))
	}
	if err := e.clipboard.SetText(ctx, value); err != nil {
		return fail(fmt.Errorf("stage clipboard: %w", err))
	}
	for _, chord := range []Chord{ChordSelectAll, ChordPaste} {
		if err := e.input.SendChord(ctx, w, chord); err != nil {
			return fail(fmt.Errorf("send %s: %w", chord, err))
		}
	}
	return ExecutionResult{Kind: ActionType, Strategy: StrategyPaste}, nil
}

// PressKey re-focuses w, waits for focus to settle, sends the accelerator as one
// chord and waits for the UI to react.
func (e *Executor) PressKey(ctx context.Context, w Window, accel string) (Chord, error) {
	chord, err := ParseAccelerator(accel)
	if err != nil {
		return Chord{}, err
	}
	fail := func(err error) (Chord, error) {
		return Chord{}, &ExecutionError{Op: "press_key " + chord.String(), Window: w.Title(), Err: err}
	}
	if err := w.Focus(ctx); err != nil {
		return fail(fmt.Errorf("focus window: %w", err))
	}
	if err := Sleep(ctx, e.cfg.FocusSettle); err != nil {
		return Chord{}, err
	}
	if err := e.input.SendChord(ctx, w, chord); err != nil {
		return fail(err)
	}
	if err := Sleep(ctx, e.cfg.KeySettle); err != nil {
		return Chord{}, err
	}
	return chord, nil
}

// PasteFocused stages text and pastes it into whatever element of w has focus.
func (e *Executor) PasteFocused(ctx context.Context, w Window, text string) error {
	fail := func(err error) error {
		return &ExecutionError{Op: "type", Window: w.Title(), Err: err}
	}
	if err := w.Focus(ctx); err != nil {
		return fail(fmt.Errorf("focus window: %w", err))
	}
	if err := e.clipboard.SetText(ctx, text); err != nil {
		return fail(fmt.Errorf("stage clipboard: %w", err))
	}
	if err := e.input.SendChord(ctx, w, ChordPaste); err != nil {
		return fail(fmt.Errorf("send %s: %w", ChordPaste, err))
	}
	return nil
}

// ClickPoint re-focuses w and clicks at p.
func (e *Executor) ClickPoint(ctx context.Context, w Window, p Point) error {
	if err := w.Focus(ctx); err != nil {
		return &ExecutionError{Op: "click", Window: w.Title(), Err: fmt.Errorf("focus window: %w", err)}
	}
	if err := e.input.ClickAt(ctx, w, p); err != nil {
		return &ExecutionError{Op: "click", Window: w.Title(), Err: fmt.Errorf("pointer click at (%.0f, %.0f): %w", p.X, p.Y, err)}
	}
	return nil
}
