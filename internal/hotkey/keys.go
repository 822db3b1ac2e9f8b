// Package hotkey delivers global key presses as recording commands.
package hotkey

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnsupported is returned by Register on platforms without global hotkeys.
var ErrUnsupported = errors.New("global hotkeys not supported on this platform")

// Binding names what a hotkey does.
type Binding int

const (
	BindRecord Binding = iota + 1
	BindCancel
	BindMode
	BindCalibrate
)

func (b Binding) String() string {
	switch b {
	case BindRecord:
		return "record"
	case BindCancel:
		return "cancel"
	case BindMode:
		return "mode"
	case BindCalibrate:
		return "calibrate"
	}
	return "binding(" + strconv.Itoa(int(b)) + ")"
}

// Event is a key transition for a binding. Up events are only produced by
// backends that observe key release.
type Event struct {
	Binding Binding
	Down    bool
}

// Handler receives hotkey events. It is called from the hotkey goroutine and
// must not block.
type Handler func(Event)

// Bindings maps each action to a key spec such as "alt+x". Empty specs are
// left unbound.
type Bindings struct {
	Record    string
	Cancel    string
	Mode      string
	Calibrate string
}

// Modifier bits, matching the Win32 MOD_* values.
const (
	ModAlt   uint32 = 0x0001
	ModCtrl  uint32 = 0x0002
	ModShift uint32 = 0x0004
	ModWin   uint32 = 0x0008
)

// Key is a parsed hotkey: a modifier mask plus a virtual-key code.
type Key struct {
	Mod uint32
	VK  uint32
}

type boundKey struct {
	binding Binding
	spec    string
	key     Key
}

func (b Bindings) parse() ([]boundKey, error) {
	var out []boundKey
	for _, e := range []struct {
		binding Binding
		spec    string
	}{
		{BindRecord, b.Record},
		{BindCancel, b.Cancel},
		{BindMode, b.Mode},
		{BindCalibrate, b.Calibrate},
	} {
		if strings.TrimSpace(e.spec) == "" {
			continue
		}
		k, err := ParseHotkey(e.spec)
		if err != nil {
			return nil, fmt.Errorf("invalid %s hotkey '%s': %w", e.binding, e.spec, err)
		}
		out = append(out, boundKey{binding: e.binding, spec: e.spec, key: k})
	}
	if len(out) == 0 {
		return nil, errors.New("no hotkeys configured")
	}
	return out, nil
}

var namedKeys = map[string]uint32{
	"esc": 0x1B, "escape": 0x1B,
	"space": 0x20,
	"enter": 0x0D, "return": 0x0D,
	"tab":       0x09,
	"backspace": 0x08,
	"insert":    0x2D,
	"delete":    0x2E,
	"home":      0x24,
	"end":       0x23,
	"pageup":    0x21,
	"pagedown":  0x22,
	"left":      0x25,
	"up":        0x26,
	"right":     0x27,
	"down":      0x28,
	"add":       0x6B, "plus": 0x6B, "kpadd": 0x6B,
	"subtract": 0x6D, "minus": 0x6D, "kpsubtract": 0x6D,
	"pause":      0x13,
	"scrolllock": 0x91,
}

// ParseHotkey accepts strings like "alt+q", "ctrl+shift+F1", "numpad5" or "esc".
func ParseHotkey(s string) (Key, error) {
	if strings.TrimSpace(s) == "" {
		return Key{}, errors.New("empty key")
	}
	parts := strings.Split(s, "+")
	for i := range parts {
		parts[i] = strings.ToLower(strings.TrimSpace(parts[i]))
	}
	tok := parts[len(parts)-1]

	var k Key
	for _, p := range parts[:len(parts)-1] {
		switch p {
		case "alt", "menu":
			k.Mod |= ModAlt
		case "ctrl", "control":
			k.Mod |= ModCtrl
		case "shift":
			k.Mod |= ModShift
		case "win", "meta", "super":
			k.Mod |= ModWin
		default:
			return Key{}, fmt.Errorf("unknown modifier: %s", p)
		}
	}

	switch {
	case len(tok) == 1 && tok[0] >= 'a' && tok[0] <= 'z':
		k.VK = uint32(tok[0] - 'a' + 'A')
	case len(tok) == 1 && tok[0] >= '0' && tok[0] <= '9':
		k.VK = uint32(tok[0])
	case strings.HasPrefix(tok, "f") && len(tok) > 1:
		n, err := strconv.Atoi(tok[1:])
		if err != nil || n < 1 || n > 24 {
			return Key{}, fmt.Errorf("unsupported key token: %s", s)
		}
		k.VK = 0x70 + uint32(n-1)
	default:
		if n, ok := numpad(tok); ok {
			k.VK = 0x60 + n
		} else if vk, ok := namedKeys[tok]; ok {
			k.VK = vk
		} else {
			return Key{}, fmt.Errorf("unsupported key token: %s", s)
		}
	}
	return k, nil
}

func numpad(tok string) (uint32, bool) {
	for _, p := range []string{"numpad", "num", "kp"} {
		if rest, ok := strings.CutPrefix(tok, p); ok && len(rest) == 1 && rest[0] >= '0' && rest[0] <= '9' {
			return uint32(rest[0] - '0'), true
		}
	}
	return 0, false
}
