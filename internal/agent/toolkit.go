package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Args is a decision's flattened argument map.
type Args map[string]any

// String returns the argument as text. Non-string values are rendered as JSON.
func (a Args) String(key string) string {
	switch v := a[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}

// Has reports whether key is present with a non-null value.
func (a Args) Has(key string) bool {
	v, ok := a[key]
	return ok && v != nil
}

// Handler runs one toolkit operation and returns its observation. Expected
// failures are returned through failf so their observation reaches the
// oracle unchanged; any other error is rendered as a generic execution
// failure.
type Handler func(ctx context.Context, args Args) (string, error)

// toolFailure is an expected operation failure with its observation text.
type toolFailure struct {
	observation string
}

func (f *toolFailure) Error() string { return f.observation }

// failf reports a failed operation with a formatted observation.
func failf(format string, args ...any) (string, error) {
	return "", &toolFailure{observation: fmt.Sprintf(format, args...)}
}

// Tool is one operation the oracle may choose.
type Tool struct {
	Name        string
	Signature   string
	Description string
	// Required arguments are checked before the handler runs.
	Required []string
	Handler  Handler
	// Terminal tools end the run; their observation is the run's summary.
	Terminal bool
}

// Result is the outcome of dispatching one decision.
type Result struct {
	Observation string
	Terminal    bool
	Known       bool
	// Failed marks an operation that did not do what was asked.
	Failed bool
}

// Toolkit is the fixed operation set offered to the oracle.
type Toolkit struct {
	tools  []Tool
	byName map[string]int
	rules  []string
	// ui serializes every handler; loops sharing a desktop share the lock.
	ui  sync.Locker
	log *zap.Logger
}

// NewToolkit registers tools in prompt order. A nil lock gives the toolkit a
// private one.
func NewToolkit(logger *zap.Logger, ui sync.Locker, rules []string, tools ...Tool) *Toolkit {
	if ui == nil {
		ui = &sync.Mutex{}
	}
	t := &Toolkit{
		byName: make(map[string]int, len(tools)),
		rules:  rules,
		ui:     ui,
		log:    logger.Named("toolkit"),
	}
	for _, tool := range tools {
		t.byName[strings.ToLower(tool.Name)] = len(t.tools)
		t.tools = append(t.tools, tool)
	}
	return t
}

// Spec renders the operation list for the prompt.
func (t *Toolkit) Spec() string {
	lines := make([]string, 0, len(t.tools))
	for _, tool := range t.tools {
		lines = append(lines, fmt.Sprintf("- `%s(%s)`: %s", tool.Name, tool.Signature, tool.Description))
	}
	return strings.Join(lines, "\n")
}

// Rules returns the variant specific prompt rules.
func (t *Toolkit) Rules() []string { return t.rules }

// Names lists the registered operation names.
func (t *Toolkit) Names() []string {
	names := make([]string, len(t.tools))
	for i, tool := range t.tools {
		names[i] = tool.Name
	}
	return names
}

// Lookup finds a tool by name, ignoring case.
func (t *Toolkit) Lookup(name string) (Tool, bool) {
	i, ok := t.byName[strings.ToLower(normalizeActionName(name))]
	if !ok {
		return Tool{}, false
	}
	return t.tools[i], true
}

// Dispatch runs the tool named by d under the UI lock. Unknown names and
// missing arguments become observations.
func (t *Toolkit) Dispatch(ctx context.Context, d Decision) Result {
	tool, ok := t.Lookup(d.Action)
	if !ok {
		t.log.Warn("Oracle chose an unknown action.", zap.String("action", d.Action))
		return Result{Observation: fmt.Sprintf("Attempted an unknown action: '%s'.", d.Action)}
	}

	upper := strings.ToUpper(tool.Name)
	args := Args(d.Args)
	for _, k := range tool.Required {
		if !args.Has(k) {
			return Result{
				Observation: fmt.Sprintf("Error executing action %s: missing required argument '%s'", upper, k),
				Known:       true,
				Failed:      true,
			}
		}
	}

	t.ui.Lock()
	defer t.ui.Unlock()

	obs, err := tool.Handler(ctx, args)
	if err != nil {
		var failure *toolFailure
		if errors.As(err, &failure) {
			return Result{Observation: failure.observation, Known: true, Failed: true}
		}
		obs = fmt.Sprintf("Error executing action %s: %v", upper, err)
		return Result{Observation: obs, Known: true, Failed: true}
	}
	return Result{Observation: obs, Terminal: tool.Terminal, Known: true}
}
