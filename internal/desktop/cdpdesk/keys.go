package cdpdesk

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/xkilldash9x/deskpilot/internal/desktop"
)

// keyDef describes one key as DevTools expects it.
type keyDef struct {
	key  string
	code string
	vk   int64
	text string
}

var namedKeys = map[string]keyDef{
	"enter":      {key: "Enter", code: "Enter", vk: 13, text: "\r"},
	"tab":        {key: "Tab", code: "Tab", vk: 9},
	"escape":     {key: "Escape", code: "Escape", vk: 27},
	"backspace":  {key: "Backspace", code: "Backspace", vk: 8},
	"delete":     {key: "Delete", code: "Delete", vk: 46},
	"insert":     {key: "Insert", code: "Insert", vk: 45},
	"home":       {key: "Home", code: "Home", vk: 36},
	"end":        {key: "End", code: "End", vk: 35},
	"pageup":     {key: "PageUp", code: "PageUp", vk: 33},
	"pagedown":   {key: "PageDown", code: "PageDown", vk: 34},
	"arrowup":    {key: "ArrowUp", code: "ArrowUp", vk: 38},
	"arrowdown":  {key: "ArrowDown", code: "ArrowDown", vk: 40},
	"arrowleft":  {key: "ArrowLeft", code: "ArrowLeft", vk: 37},
	"arrowright": {key: "ArrowRight", code: "ArrowRight", vk: 39},
	"space":      {key: " ", code: "Space", vk: 32, text: " "},
}

func init() {
	for i := 1; i <= 12; i++ {
		name := fmt.Sprintf("F%d", i)
		namedKeys[strings.ToLower(name)] = keyDef{key: name, code: name, vk: int64(111 + i)}
	}
}

// lookupKey resolves a canonical key name from desktop.ParseAccelerator.
func lookupKey(name string, shift bool) (keyDef, error) {
	if def, ok := namedKeys[name]; ok {
		return def, nil
	}
	if utf8.RuneCountInString(name) != 1 {
		return keyDef{}, fmt.Errorf("unsupported key %q", name)
	}

	r, _ := utf8.DecodeRuneInString(name)
	def := keyDef{key: name, text: name}
	switch {
	case r >= 'a' && r <= 'z':
		upper := strings.ToUpper(name)
		def.code = "Key" + upper
		def.vk = int64(upper[0])
		if shift {
			def.key, def.text = upper, upper
		}
	case r >= '0' && r <= '9':
		def.code = "Digit" + name
		def.vk = int64(r)
	}
	return def, nil
}

// keyActions expands a chord into key down and up events for every key.
func keyActions(c desktop.Chord) ([]chromedp.Action, error) {
	var mods input.Modifier
	if c.Modifiers&desktop.ModAlt != 0 {
		mods |= input.ModifierAlt
	}
	if c.Modifiers&desktop.ModCtrl != 0 {
		mods |= input.ModifierCtrl
	}
	if c.Modifiers&desktop.ModMeta != 0 {
		mods |= input.ModifierMeta
	}
	if c.Modifiers&desktop.ModShift != 0 {
		mods |= input.ModifierShift
	}
	// Text is only produced when no command modifier is held.
	typing := c.Modifiers&(desktop.ModAlt|desktop.ModCtrl|desktop.ModMeta) == 0

	var actions []chromedp.Action
	for _, name := range c.Keys {
		def, err := lookupKey(name, c.Modifiers&desktop.ModShift != 0)
		if err != nil {
			return nil, err
		}

		down := input.DispatchKeyEvent(input.KeyRawDown)
		if typing && def.text != "" {
			down = input.DispatchKeyEvent(input.KeyDown).WithText(def.text)
		}
		down = down.
			WithModifiers(mods).
			WithKey(def.key).
			WithCode(def.code).
			WithWindowsVirtualKeyCode(def.vk).
			WithNativeVirtualKeyCode(def.vk)
		if c.Is(desktop.ModCtrl, "a") {
			down = down.WithCommands([]string{"selectAll"})
		}

		up := input.DispatchKeyEvent(input.KeyUp).
			WithModifiers(mods).
			WithKey(def.key).
			WithCode(def.code).
			WithWindowsVirtualKeyCode(def.vk).
			WithNativeVirtualKeyCode(def.vk)

		actions = append(actions, down, up)
	}
	return actions, nil
}
