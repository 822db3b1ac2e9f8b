//go:build !windows

package clipboard

import "github.com/atotto/clipboard"

// PasteText copies text to the system clipboard. Keystroke injection is only
// available on Windows, so the user pastes manually.
func PasteText(text string) error {
	return clipboard.WriteAll(text)
}

// CanPaste reports whether PasteText types into the focused window.
func CanPaste() bool { return false }
