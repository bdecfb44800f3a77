package input

import (
	"fmt"
	"strings"
)

// KeyID names one monitored keyboard key or mouse button.
//
// Values are canonical names produced by ParseKeyID, so two KeyIDs compare
// equal exactly when they refer to the same physical input.
type KeyID string

// Keys referenced directly by the pipeline.
const (
	KeyEscape KeyID = "Escape"
	KeyMouse1 KeyID = "Mouse1"
)

// canonicalKeys lists every supported key in display order.
var canonicalKeys = []KeyID{
	"A", "B", "C", "D", "E", "F", "G", "H", "I", "J", "K", "L", "M",
	"N", "O", "P", "Q", "R", "S", "T", "U", "V", "W", "X", "Y", "Z",
	"0", "1", "2", "3", "4", "5", "6", "7", "8", "9",
	"F1", "F2", "F3", "F4", "F5", "F6", "F7", "F8", "F9", "F10", "F11", "F12",
	"Space", "Enter", "Tab", "Backspace", KeyEscape,
	"LShift", "RShift", "LControl", "RControl", "LAlt", "RAlt",
	KeyMouse1, "Mouse2", "Mouse3", "Mouse4", "Mouse5",
}

// keyAliases maps extra spellings (already upper-cased) to canonical names.
var keyAliases = map[string]KeyID{
	"RETURN": "Enter",
	"ESC":    KeyEscape,
	"LCTRL":  "LControl",
	"RCTRL":  "RControl",
	"ALTGR":  "RAlt",
}

var keyLookup = buildKeyLookup()

func buildKeyLookup() map[string]KeyID {
	lookup := make(map[string]KeyID, len(canonicalKeys)*2+len(keyAliases))
	for _, k := range canonicalKeys {
		lookup[strings.ToUpper(string(k))] = k
	}
	for i := 0; i <= 9; i++ {
		digit := KeyID(fmt.Sprintf("%d", i))
		lookup[fmt.Sprintf("D%d", i)] = digit
		lookup[fmt.Sprintf("NUM%d", i)] = digit
	}
	for alias, k := range keyAliases {
		lookup[alias] = k
	}
	return lookup
}

// ParseKeyID resolves a user-supplied key name to its canonical KeyID.
// Matching is case-insensitive and ignores surrounding whitespace.
func ParseKeyID(name string) (KeyID, error) {
	normalized := strings.ToUpper(strings.TrimSpace(name))
	if k, ok := keyLookup[normalized]; ok {
		return k, nil
	}
	return "", fmt.Errorf("unsupported key name %q (examples: A, 0, F1, LControl, Mouse1)", name)
}

// KnownKeys returns every canonical key name.
func KnownKeys() []KeyID {
	out := make([]KeyID, len(canonicalKeys))
	copy(out, canonicalKeys)
	return out
}

// IsMouse reports whether k names a mouse button.
func (k KeyID) IsMouse() bool {
	return strings.HasPrefix(string(k), "Mouse")
}

func (k KeyID) String() string {
	return string(k)
}
