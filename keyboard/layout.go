// Package keyboard maps key names and typed characters to the key strokes
// a browser expects.
package keyboard

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// Modifier is a bit set of held modifier keys, in the encoding CDP uses
// for Input.dispatchKeyEvent.
type Modifier int64

const (
	ModAlt Modifier = 1 << iota
	ModControl
	ModMeta
	ModShift
)

var modifierNames = map[string]Modifier{ //nolint:gochecknoglobals
	"Alt":     ModAlt,
	"Control": ModControl,
	"Meta":    ModMeta,
	"Shift":   ModShift,
}

// ParseModifier returns the modifier named name, like "Control".
func ParseModifier(name string) (Modifier, bool) {
	m, ok := modifierNames[name]
	return m, ok
}

// Definition describes a physical key.
type Definition struct {
	Code     string
	Key      string
	KeyCode  int64
	ShiftKey string
	Text     string
	Location int64
}

// Stroke is a resolved key press.
type Stroke struct {
	Key       string
	Code      string
	Text      string
	KeyCode   int64
	Location  int64
	Modifiers Modifier
}

// Layout is a keyboard layout. A key can be looked up by its code
// ("KeyA"), by the value it produces ("a"), or by its shifted value ("A").
type Layout struct {
	Name string

	byCode  map[string]Definition
	byKey   map[string]string
	byShift map[string]string
}

func newLayout(name string, keys map[string]Definition) *Layout {
	l := &Layout{
		Name:    name,
		byCode:  keys,
		byKey:   make(map[string]string, len(keys)),
		byShift: make(map[string]string, len(keys)),
	}

	// Sorted so that a value shared by several keys, like "Shift", always
	// maps to the same one.
	codes := make([]string, 0, len(keys))
	for code := range keys {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		d := keys[code]
		if _, ok := l.byKey[d.Key]; !ok {
			l.byKey[d.Key] = code
		}
		if _, ok := l.byShift[d.ShiftKey]; d.ShiftKey != "" && !ok {
			l.byShift[d.ShiftKey] = code
		}
	}

	return l
}

// Has tells whether key is a code or a value of the layout.
func (l *Layout) Has(key string) bool {
	_, _, ok := l.lookup(key)
	return ok
}

// lookup also reports whether key is a shifted value.
func (l *Layout) lookup(key string) (Definition, bool, bool) {
	if d, ok := l.byCode[key]; ok {
		return d, false, true
	}
	if code, ok := l.byKey[key]; ok {
		return l.byCode[code], false, true
	}
	if code, ok := l.byShift[key]; ok {
		return l.byCode[code], true, true
	}
	return Definition{}, false, false
}

// Resolve returns the stroke for pressing key with mods held. A shifted
// value like "A" implies Shift. Only single characters produce text, and
// none is produced when a modifier other than Shift is held.
func (l *Layout) Resolve(key string, mods Modifier) (Stroke, error) {
	d, shifted, ok := l.lookup(key)
	if !ok {
		return Stroke{}, fmt.Errorf("%q is not a valid key for layout %q", key, l.Name)
	}
	if shifted {
		mods |= ModShift
	}

	s := Stroke{
		Key:       d.Key,
		Code:      d.Code,
		Text:      d.Text,
		KeyCode:   d.KeyCode,
		Location:  d.Location,
		Modifiers: mods,
	}
	if s.Text == "" {
		s.Text = d.Key
	}
	if mods&ModShift != 0 && d.ShiftKey != "" {
		s.Key, s.Text = d.ShiftKey, d.ShiftKey
	}
	if mods&^ModShift != 0 || utf8.RuneCountInString(s.Text) != 1 {
		s.Text = ""
	}

	return s, nil
}

// Press resolves a combo like "Control+a", "Shift+Tab" or "Shift++".
func (l *Layout) Press(combo string) (Stroke, error) {
	key, mods, err := ParseCombo(combo)
	if err != nil {
		return Stroke{}, err
	}
	return l.Resolve(key, mods)
}

// ParseCombo splits a combo into its key and modifiers.
func ParseCombo(combo string) (string, Modifier, error) {
	if len(combo) < 2 || !strings.Contains(combo, "+") {
		return combo, 0, nil
	}

	parts := strings.Split(combo, "+")
	key := parts[len(parts)-1]
	if key == "" {
		// "Shift++" presses the plus key.
		key = "+"
		parts = parts[:len(parts)-1]
	}

	var mods Modifier
	for _, name := range parts[:len(parts)-1] {
		if name == "" {
			continue
		}
		m, ok := ParseModifier(name)
		if !ok {
			return "", 0, fmt.Errorf("%q is not a modifier key in %q", name, combo)
		}
		mods |= m
	}

	return key, mods, nil
}

var us = usLayout() //nolint:gochecknoglobals

// US returns the US layout.
func US() *Layout {
	return us
}
