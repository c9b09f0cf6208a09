package oracle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

const providerScript = "script"

// ErrScriptExhausted is returned once every scripted step has been consumed.
var ErrScriptExhausted = errors.New("script exhausted")

// Step is one scripted oracle turn. Exactly one of Reply and Error is set.
type Step struct {
	Reply string `yaml:"reply"`
	Error string `yaml:"error"`
}

// Script replays canned replies in order. It backs dry runs and tests.
type Script struct {
	mu       sync.Mutex
	steps    []Step
	next     int
	requests []DecisionRequest
}

// NewScript builds a script from steps.
func NewScript(steps ...Step) *Script {
	return &Script{steps: steps}
}

// Replies builds a script that returns each reply in turn.
func Replies(replies ...string) *Script {
	steps := make([]Step, len(replies))
	for i, r := range replies {
		steps[i] = Step{Reply: r}
	}
	return NewScript(steps...)
}

// LoadScript reads a YAML document of the form
//
//	steps:
//	  - reply: '{"action": "list_open_windows"}'
//	  - error: "backend unavailable"
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script %s: %w", path, err)
	}
	return ParseScript(data)
}

// ParseScript decodes a YAML script document.
func ParseScript(data []byte) (*Script, error) {
	var doc struct {
		Steps []Step `yaml:"steps"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse script: %w", err)
	}
	for i, s := range doc.Steps {
		if (s.Reply == "") == (s.Error == "") {
			return nil, fmt.Errorf("script step %d must set exactly one of reply or error", i)
		}
	}
	return NewScript(doc.Steps...), nil
}

// Decide returns the next scripted step.
func (s *Script) Decide(ctx context.Context, req DecisionRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)

	if s.next >= len(s.steps) {
		return "", &Error{Provider: providerScript, Err: ErrScriptExhausted}
	}
	step := s.steps[s.next]
	s.next++
	if step.Error != "" {
		return "", &Error{Provider: providerScript, Err: errors.New(step.Error)}
	}
	return step.Reply, nil
}

// Requests returns a copy of every request seen so far.
func (s *Script) Requests() []DecisionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DecisionRequest(nil), s.requests...)
}

// Remaining reports how many steps have not been consumed.
func (s *Script) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps) - s.next
}
