package desktop

import (
	"fmt"
	"regexp"
	"strings"
)

// Criteria are the hints used to resolve an element.
type Criteria struct {
	Title       string
	ControlType string
}

// Empty reports whether no hint is set.
func (c Criteria) Empty() bool {
	return c.Title == "" && c.ControlType == ""
}

// String renders the criteria the way the toolkit arguments are named.
func (c Criteria) String() string {
	var parts []string
	if c.Title != "" {
		parts = append(parts, fmt.Sprintf("'element_title': '%s'", c.Title))
	}
	if c.ControlType != "" {
		parts = append(parts, fmt.Sprintf("'control_type': '%s'", c.ControlType))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// literalPattern compiles fragment as literal text matching anywhere,
// case-insensitively.
func literalPattern(fragment string) *regexp.Regexp {
	return regexp.MustCompile("(?i)" + regexp.QuoteMeta(fragment))
}

// matcher is a compiled Criteria.
type matcher struct {
	title       *regexp.Regexp
	controlType string
}

func (c Criteria) compile() matcher {
	m := matcher{}
	if c.Title != "" {
		m.title = literalPattern(c.Title)
	}
	if c.ControlType != "" {
		m.controlType = normalizeType(c.ControlType)
	}
	return m
}

func (m matcher) match(el Element) bool {
	if m.controlType != "" && normalizeType(el.ControlType()) != m.controlType {
		return false
	}
	if m.title != nil && !m.title.MatchString(el.Text()) {
		return false
	}
	return true
}
