//go:build linux

package input

// evdevCodes maps linux/input-event-codes.h key and button codes to key names.
var evdevCodes = map[uint16]KeyID{
	1:  KeyEscape,
	2:  "1",
	3:  "2",
	4:  "3",
	5:  "4",
	6:  "5",
	7:  "6",
	8:  "7",
	9:  "8",
	10: "9",
	11: "0",
	14: "Backspace",
	15: "Tab",
	16: "Q",
	17: "W",
	18: "E",
	19: "R",
	20: "T",
	21: "Y",
	22: "U",
	23: "I",
	24: "O",
	25: "P",
	28: "Enter",
	29: "LControl",
	30: "A",
	31: "S",
	32: "D",
	33: "F",
	34: "G",
	35: "H",
	36: "J",
	37: "K",
	38: "L",
	42: "LShift",
	44: "Z",
	45: "X",
	46: "C",
	47: "V",
	48: "B",
	49: "N",
	50: "M",
	54: "RShift",
	56: "LAlt",
	57: "Space",
	59: "F1",
	60: "F2",
	61: "F3",
	62: "F4",
	63: "F5",
	64: "F6",
	65: "F7",
	66: "F8",
	67: "F9",
	68: "F10",
	87: "F11",
	88: "F12",
	97: "RControl",

	100: "RAlt",

	// BTN_LEFT .. BTN_EXTRA
	0x110: KeyMouse1,
	0x111: "Mouse2",
	0x112: "Mouse3",
	0x113: "Mouse4",
	0x114: "Mouse5",
}
