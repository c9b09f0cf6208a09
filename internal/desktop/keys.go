package desktop

import (
	"strings"
)

// Modifier is a bitmask of held modifier keys. Values match the Chrome
// DevTools Protocol input modifiers.
type Modifier int

const (
	ModAlt   Modifier = 1
	ModCtrl  Modifier = 2
	ModMeta  Modifier = 4
	ModShift Modifier = 8
)

// Chord is a set of modifiers held while the keys are pressed in order.
type Chord struct {
	Modifiers Modifier
	Keys      []string
}

// String renders the chord in "ctrl+shift+s" form.
func (c Chord) String() string {
	var parts []string
	for _, m := range []struct {
		mod  Modifier
		name string
	}{{ModCtrl, "ctrl"}, {ModAlt, "alt"}, {ModShift, "shift"}, {ModMeta, "win"}} {
		if c.Modifiers&m.mod != 0 {
			parts = append(parts, m.name)
		}
	}
	return strings.Join(append(parts, c.Keys...), "+")
}

// Is reports whether the chord is exactly mods plus a single key.
func (c Chord) Is(mods Modifier, key string) bool {
	return c.Modifiers == mods && len(c.Keys) == 1 && c.Keys[0] == key
}

var (
	// ChordSelectAll and ChordPaste drive paste-based typing.
	ChordSelectAll = Chord{Modifiers: ModCtrl, Keys: []string{"a"}}
	ChordPaste     = Chord{Modifiers: ModCtrl, Keys: []string{"v"}}
)

var modifierNames = map[string]Modifier{
	"ctrl":    ModCtrl,
	"control": ModCtrl,
	"alt":     ModAlt,
	"shift":   ModShift,
	"win":     ModMeta,
	"windows": ModMeta,
	"meta":    ModMeta,
	"cmd":     ModMeta,
	"super":   ModMeta,
}

// keyAliases maps accepted spellings onto canonical key names.
var keyAliases = map[string]string{
	"return":   "enter",
	"~":        "enter",
	"esc":      "escape",
	"del":      "delete",
	"bksp":     "backspace",
	"bs":       "backspace",
	"ins":      "insert",
	"pgup":     "pageup",
	"pgdn":     "pagedown",
	"spacebar": "space",
	"up":       "arrowup",
	"down":     "arrowdown",
	"left":     "arrowleft",
	"right":    "arrowright",
}

// prefixModifiers are the single-character accelerator prefixes.
var prefixModifiers = map[rune]Modifier{
	'^': ModCtrl,
	'%': ModAlt,
	'+': ModShift,
	'#': ModMeta,
}

// ParseAccelerator translates an accelerator string into a chord.
//
// "^" is ctrl, "%" is alt, "+" is shift and "#" is the windows key when they
// prefix a token ("^a", "%{F4}", "+{TAB}", "^+s"). Everywhere else "+" and
// spaces separate tokens, and every token of the string joins one chord
// ("ctrl+enter", "ctrl shift t"). Braces around key names are stripped.
func ParseAccelerator(accel string) (Chord, error) {
	s := strings.ToLower(strings.TrimSpace(accel))
	if s == "" {
		return Chord{}, &InvalidArgumentError{Arg: "key", Reason: "must not be empty"}
	}

	var chord Chord
	fields := strings.Fields(s)
	for _, field := range fields {
		if field == "+" && len(fields) > 1 {
			continue
		}
		for _, token := range splitPlus(field) {
			mods, rest := stripPrefixes(token)
			chord.Modifiers |= mods
			if rest == "" {
				continue
			}
			if m, ok := modifierNames[rest]; ok {
				chord.Modifiers |= m
				continue
			}
			if key := canonicalKey(rest); key != "" {
				chord.Keys = append(chord.Keys, key)
			}
		}
	}

	if len(chord.Keys) == 0 {
		return Chord{}, &InvalidArgumentError{Arg: "key", Reason: "accelerator " + quote(accel) + " names no key"}
	}
	return chord, nil
}

// splitPlus splits a field on "+" delimiters. A "+" that follows nothing but
// prefix characters is itself a prefix, and braced names are taken whole so
// "{+}" names the plus key.
func splitPlus(field string) []string {
	var tokens []string
	start := 0
	for i := 0; i < len(field); i++ {
		switch field[i] {
		case '{':
			if end := strings.IndexByte(field[i+1:], '}'); end >= 0 {
				i += end + 1
			}
		case '+':
			if i > start && !onlyPrefixes(field[start:i]) {
				tokens = append(tokens, field[start:i])
				start = i + 1
			}
		}
	}
	if start < len(field) {
		tokens = append(tokens, field[start:])
	}
	return tokens
}

func onlyPrefixes(s string) bool {
	for _, r := range s {
		if _, ok := prefixModifiers[r]; !ok {
			return false
		}
	}
	return true
}

// stripPrefixes peels leading modifier prefix characters off a token. A token
// made only of prefix characters is treated as the literal key.
func stripPrefixes(token string) (Modifier, string) {
	var mods Modifier
	i := 0
	for i < len(token)-1 {
		m, ok := prefixModifiers[rune(token[i])]
		if !ok {
			break
		}
		mods |= m
		i++
	}
	return mods, token[i:]
}

func canonicalKey(name string) string {
	name = strings.TrimSuffix(strings.TrimPrefix(name, "{"), "}")
	if alias, ok := keyAliases[name]; ok {
		return alias
	}
	return name
}

func quote(s string) string {
	return "'" + s + "'"
}
