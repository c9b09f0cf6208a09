package memdesk

import (
	"fmt"
	"os"

	"github.com/xkilldash9x/deskpilot/internal/desktop"
	"gopkg.in/yaml.v3"
)

// Fixture describes an in-memory desktop.
//
//	windows:
//	  - title: "Chats - WhatsApp"
//	    process: WhatsApp.exe
//	    bounds: [0, 0, 800, 600]
//	    elements:
//	      - {type: ListItem, text: "Secret message"}
//	      - {type: Button, text: Send, bounds: [700, 550, 780, 590]}
//	apps:
//	  notepad:
//	    title: "Untitled - Notepad"
//	    elements:
//	      - {type: Document, text: "Text Editor"}
type Fixture struct {
	Windows []WindowSpec          `yaml:"windows"`
	Apps    map[string]WindowSpec `yaml:"apps"`
}

// WindowSpec describes a top-level window.
type WindowSpec struct {
	Title    string        `yaml:"title"`
	Process  string        `yaml:"process"`
	Class    string        `yaml:"class"`
	Hidden   bool          `yaml:"hidden"`
	Bounds   []float64     `yaml:"bounds"`
	Elements []ElementSpec `yaml:"elements"`
}

// ElementSpec describes an element and its children.
type ElementSpec struct {
	Type     string        `yaml:"type"`
	Text     string        `yaml:"text"`
	Value    string        `yaml:"value"`
	Disabled bool          `yaml:"disabled"`
	Hidden   bool          `yaml:"hidden"`
	Bounds   []float64     `yaml:"bounds"`
	Children []ElementSpec `yaml:"children"`
}

// LoadFixture reads a YAML fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	return ParseFixture(data)
}

// ParseFixture decodes a YAML fixture.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse fixture: %w", err)
	}
	for i, w := range f.Windows {
		if err := w.validate(); err != nil {
			return nil, fmt.Errorf("window %d: %w", i, err)
		}
	}
	for name, w := range f.Apps {
		if err := w.validate(); err != nil {
			return nil, fmt.Errorf("app %q: %w", name, err)
		}
	}
	return &f, nil
}

func (w WindowSpec) validate() error {
	if _, err := rect(w.Bounds); err != nil {
		return err
	}
	var walk func([]ElementSpec) error
	walk = func(specs []ElementSpec) error {
		for _, e := range specs {
			if _, err := rect(e.Bounds); err != nil {
				return fmt.Errorf("element %q: %w", e.Text, err)
			}
			if err := walk(e.Children); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(w.Elements)
}

func rect(b []float64) (desktop.Rect, error) {
	switch len(b) {
	case 0:
		return desktop.Rect{}, nil
	case 4:
		return desktop.Rect{Left: b[0], Top: b[1], Right: b[2], Bottom: b[3]}, nil
	default:
		return desktop.Rect{}, fmt.Errorf("bounds must have 4 values [left, top, right, bottom], got %d", len(b))
	}
}
