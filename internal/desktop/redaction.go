package desktop

import (
	"strings"
	"unicode"

	"github.com/xkilldash9x/deskpilot/internal/config"
)

// Redacted replaces withheld element text.
const Redacted = "[User Content Redacted]"

// typeAliases folds control type names from different accessibility vocabularies
// onto the canonical normalized name.
var typeAliases = map[string]string{
	"statictext":      "text",
	"freetextcontent": "text",
	"label":           "text",
	"paragraph":       "text",
	"rootwebarea":     "document",
	"webarea":         "document",
	"hyperlink":       "link",
	"listitemtext":    "listitem",
	"textbox":         "edit",
}

// normalizeType lowercases a control type and strips everything that is not
// a letter, so "ListItem", "list-item" and "list item" compare equal.
func normalizeType(controlType string) string {
	var b strings.Builder
	for _, r := range controlType {
		if unicode.IsLetter(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	n := b.String()
	if alias, ok := typeAliases[n]; ok {
		return alias
	}
	return n
}

func toSet(values []string, normalize func(string) string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[normalize(v)] = struct{}{}
	}
	return set
}

// Policy decides which element text may be shown. It is immutable once built
// and safe for concurrent use.
//
// Text of a sensitive type is withheld unless it is a safe title. Types that are
// neither sensitive nor in the passthrough allowlist are treated as sensitive.
type Policy struct {
	sensitive   map[string]struct{}
	passthrough map[string]struct{}
	safeTitles  map[string]struct{}
}

// NewPolicy builds a Policy. Safe titles compare exactly.
func NewPolicy(sensitiveTypes, safeTitles, passthroughTypes []string) *Policy {
	return &Policy{
		sensitive:   toSet(sensitiveTypes, normalizeType),
		passthrough: toSet(passthroughTypes, normalizeType),
		safeTitles:  toSet(safeTitles, func(s string) string { return s }),
	}
}

// NewPolicyFromConfig builds a Policy from the redaction section.
func NewPolicyFromConfig(cfg config.RedactionConfig) *Policy {
	return NewPolicy(cfg.SensitiveTypes, cfg.SafeTitles, cfg.PassthroughTypes)
}

// DefaultPolicy returns the policy built from the configuration defaults.
func DefaultPolicy() *Policy {
	return NewPolicyFromConfig(config.NewDefaultConfig().Redaction())
}

// Sensitive reports whether text of the given control type is withheld unless
// it is a safe title.
func (p *Policy) Sensitive(controlType string) bool {
	n := normalizeType(controlType)
	if _, ok := p.sensitive[n]; ok {
		return true
	}
	_, ok := p.passthrough[n]
	return !ok
}

// Apply returns the text that may be shown for an element.
func (p *Policy) Apply(controlType, text string) string {
	if !p.Sensitive(controlType) {
		return text
	}
	if _, ok := p.safeTitles[text]; ok {
		return text
	}
	return Redacted
}
