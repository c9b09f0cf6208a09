// Package oracle defines the decision-making collaborator of the agent loop and
// its backends. An Oracle sees only what the loop hands it on each call.
package oracle

import (
	"context"
	"fmt"
	"strings"
)

// Oracle picks the next toolkit action. Implementations must be safe for
// concurrent use.
type Oracle interface {
	Decide(ctx context.Context, req DecisionRequest) (string, error)
}

// Func adapts a function to the Oracle interface.
type Func func(ctx context.Context, req DecisionRequest) (string, error)

func (f Func) Decide(ctx context.Context, req DecisionRequest) (string, error) {
	return f(ctx, req)
}

// DecisionRequest carries everything the oracle is allowed to know.
type DecisionRequest struct {
	Objective string
	// History holds rendered action records, oldest first. The first entry is
	// the objective line.
	History []string
	// Toolkit lists the callable operations, one per line.
	Toolkit string
	// Rules are variant specific constraints appended to the prompt.
	Rules []string
}

const systemPrompt = `You are the reasoning core of a general-purpose PC control assistant. ` +
	`Your task is to analyze the user's objective and the history of actions to decide the single next logical step.

Respond with exactly one JSON object and nothing else, in the form:
{"action": "<toolkit action name>", "args": {"<parameter>": "<value>"}}`

// SystemPrompt returns the fixed instructions.
func (r DecisionRequest) SystemPrompt() string {
	return systemPrompt
}

// UserPrompt renders the objective, history and toolkit.
func (r DecisionRequest) UserPrompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "**USER'S OBJECTIVE:** %s\n", r.Objective)
	b.WriteString("**ACTION HISTORY & OBSERVATIONS:**\n")
	b.WriteString(strings.Join(r.History, ""))
	b.WriteString("\n--- TOOLKIT & CRITICAL RULES ---\n")
	b.WriteString("**RULE 1: You MUST ONLY use the exact action names from the TOOLKIT below.**\n")
	for i, rule := range r.Rules {
		fmt.Fprintf(&b, "**RULE %d: %s**\n", i+2, rule)
	}
	b.WriteString("\n**TOOLKIT (The ONLY allowed actions):**\n")
	b.WriteString(r.Toolkit)
	b.WriteString("\n\nWhat is the single best action from the TOOLKIT to take NEXT? Respond with only a valid JSON object.\n")
	return b.String()
}

// Error wraps a backend failure.
type Error struct {
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("oracle %s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
