package desktop

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// NoElementsFound is the inspection result when nothing interactable is left
// after filtering. It is not an error.
const NoElementsFound = "No interactable elements found."

// Descriptor is the redacted view of one element. It is produced fresh on
// every inspection.
type Descriptor struct {
	ControlType string
	DisplayText string
	Enabled     bool
	Visible     bool
}

// String is the canonical representation, also used as the dedup key.
func (d Descriptor) String() string {
	return fmt.Sprintf("Type: '%s', Title: '%s'", d.ControlType, d.DisplayText)
}

// FormatDescriptors renders an inspection result as one line per descriptor.
func FormatDescriptors(ds []Descriptor) string {
	if len(ds) == 0 {
		return NoElementsFound
	}
	lines := make([]string, len(ds))
	for i, d := range ds {
		lines[i] = d.String()
	}
	return strings.Join(lines, "\n")
}

// Inspector walks a window's accessibility tree and returns redacted,
// deduplicated descriptors of its interactable elements.
type Inspector struct {
	policy *Policy
	settle time.Duration
	log    *zap.Logger
}

// NewInspector creates an Inspector that waits settle after focusing a window.
func NewInspector(policy *Policy, settle time.Duration, logger *zap.Logger) *Inspector {
	return &Inspector{policy: policy, settle: settle, log: logger.Named("inspector")}
}

// Inspect focuses w, waits for it to settle and walks all of its descendants.
// Only enabled, visible elements with a control type are kept. An empty result
// with a nil error means nothing interactable was found.
func (i *Inspector) Inspect(ctx context.Context, w Window) ([]Descriptor, error) {
	title := w.Title()
	if err := w.Focus(ctx); err != nil {
		return nil, &InspectionError{Window: title, Err: fmt.Errorf("focus: %w", err)}
	}
	if err := Sleep(ctx, i.settle); err != nil {
		return nil, err
	}

	elements, err := w.Descendants(ctx)
	if err != nil {
		return nil, &InspectionError{Window: title, Err: err}
	}

	seen := make(map[string]struct{}, len(elements))
	var out []Descriptor
	redacted := 0
	for _, el := range elements {
		controlType := el.ControlType()
		if controlType == "" || !el.Enabled() || !el.Visible() {
			continue
		}
		text := i.policy.Apply(controlType, el.Text())
		if text == Redacted {
			redacted++
		}
		d := Descriptor{ControlType: controlType, DisplayText: text, Enabled: true, Visible: true}
		key := d.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, d)
	}

	i.log.Debug("Window inspected.",
		zap.String("window", title),
		zap.Int("walked", len(elements)),
		zap.Int("kept", len(out)),
		zap.Int("redacted", redacted))
	return out, nil
}
