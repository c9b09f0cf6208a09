package agent

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// countingLock tracks whether it is held.
type countingLock struct {
	mu     sync.Mutex
	held   bool
	locked int
}

func (l *countingLock) Lock() {
	l.mu.Lock()
	l.held = true
	l.locked++
}

func (l *countingLock) Unlock() {
	l.held = false
	l.mu.Unlock()
}

func echoTool(lock *countingLock) Tool {
	return Tool{
		Name:        "ECHO",
		Signature:   "text: str",
		Description: "Repeats text.",
		Required:    []string{"text"},
		Handler: func(ctx context.Context, a Args) (string, error) {
			if lock != nil && !lock.held {
				return "", errors.New("lock not held")
			}
			return "echo: " + a.String("text"), nil
		},
	}
}

func TestToolkit_Spec(t *testing.T) {
	tk := NewToolkit(zaptest.NewLogger(t), nil, []string{"Be brief."},
		echoTool(nil),
		Tool{Name: "LIST_OPEN_WINDOWS", Description: "Gets the titles of all open windows."},
	)
	assert.Equal(t, "- `ECHO(text: str)`: Repeats text.\n- `LIST_OPEN_WINDOWS()`: Gets the titles of all open windows.", tk.Spec())
	assert.Equal(t, []string{"Be brief."}, tk.Rules())
	assert.Equal(t, []string{"ECHO", "LIST_OPEN_WINDOWS"}, tk.Names())
}

func TestToolkit_Lookup(t *testing.T) {
	tk := NewToolkit(zaptest.NewLogger(t), nil, nil, echoTool(nil))
	for _, name := range []string{"ECHO", "echo", "Echo()", " echo "} {
		tool, ok := tk.Lookup(name)
		require.True(t, ok, name)
		assert.Equal(t, "ECHO", tool.Name)
	}
	_, ok := tk.Lookup("send")
	assert.False(t, ok)
}

func TestToolkit_Dispatch(t *testing.T) {
	lock := &countingLock{}
	tk := NewToolkit(zaptest.NewLogger(t), lock, nil,
		echoTool(lock),
		Tool{Name: "BROKEN", Handler: func(context.Context, Args) (string, error) { return "", errors.New("boom") }},
		Tool{Name: "REFUSE", Handler: func(context.Context, Args) (string, error) {
			return failf("Window '%s' refused the request.", "Error Log")
		}},
		Tool{Name: "FINISH", Handler: finish, Terminal: true},
	)

	tests := []struct {
		name string
		d    Decision
		want Result
	}{
		{"runs under the lock", Decision{Action: "echo", Args: map[string]any{"text": "hi"}}, Result{Observation: "echo: hi", Known: true}},
		{"unknown action", Decision{Action: "send"}, Result{Observation: "Attempted an unknown action: 'send'."}},
		{"missing argument", Decision{Action: "echo"}, Result{Observation: "Error executing action ECHO: missing required argument 'text'", Known: true, Failed: true}},
		{"null argument", Decision{Action: "echo", Args: map[string]any{"text": nil}}, Result{Observation: "Error executing action ECHO: missing required argument 'text'", Known: true, Failed: true}},
		{"handler error", Decision{Action: "broken"}, Result{Observation: "Error executing action BROKEN: boom", Known: true, Failed: true}},
		{"expected failure", Decision{Action: "refuse"}, Result{Observation: "Window 'Error Log' refused the request.", Known: true, Failed: true}},
		{"terminal", Decision{Action: "finish", Args: map[string]any{"reason": "done"}}, Result{Observation: "done", Terminal: true, Known: true}},
		{"terminal default reason", Decision{Action: "finish"}, Result{Observation: "Objective complete.", Terminal: true, Known: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tk.Dispatch(t.Context(), tt.d))
			assert.False(t, lock.held)
		})
	}
	assert.Equal(t, 5, lock.locked)
}

func TestArgs_String(t *testing.T) {
	a := Args{"s": "text", "n": float64(3), "b": true, "m": map[string]any{"k": "v"}, "nil": nil}
	assert.Equal(t, "text", a.String("s"))
	assert.Equal(t, "3", a.String("n"))
	assert.Equal(t, "true", a.String("b"))
	assert.Equal(t, `{"k":"v"}`, a.String("m"))
	assert.Equal(t, "", a.String("nil"))
	assert.Equal(t, "", a.String("missing"))
	assert.True(t, a.Has("s"))
	assert.False(t, a.Has("nil"))
}
