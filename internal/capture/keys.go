package capture

import "unicode"

// ClassifyKey maps a key value to a coarse class. The key itself is never
// stored.
func ClassifyKey(key string) string {
	switch key {
	case "":
		return "other"
	case " ", "Spacebar":
		return "space"
	case "Enter":
		return "enter"
	case "Backspace", "Delete":
		return "backspace"
	case "Tab", "ArrowLeft", "ArrowRight", "ArrowUp", "ArrowDown",
		"Home", "End", "PageUp", "PageDown":
		return "nav"
	case "Shift", "Control", "Alt", "Meta", "CapsLock", "AltGraph":
		return "modifier"
	}
	r := []rune(key)
	if len(r) != 1 {
		return "other"
	}
	switch {
	case unicode.IsDigit(r[0]):
		return "digit"
	case unicode.IsPrint(r[0]):
		return "char"
	}
	return "other"
}
