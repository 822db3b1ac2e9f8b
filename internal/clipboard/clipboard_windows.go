//go:build windows

package clipboard

import (
	"fmt"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	"github.com/micmonay/keybd_event"
)

const (
	// time for the clipboard owner change to land before the keystroke
	clipboardSettle = 80 * time.Millisecond
	// time for the target window to read the clipboard before it is restored
	pasteSettle = 120 * time.Millisecond
)

var pasteMu sync.Mutex

// PasteText writes text to the clipboard, sends Ctrl+V to the focused window
// and restores the previous clipboard contents when they could be read.
func PasteText(text string) error {
	pasteMu.Lock()
	defer pasteMu.Unlock()

	prev, readErr := clipboard.ReadAll()
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("write clipboard: %w", err)
	}
	if readErr == nil {
		defer func() {
			time.Sleep(pasteSettle)
			_ = clipboard.WriteAll(prev)
		}()
	}
	time.Sleep(clipboardSettle)
	return sendCtrlV()
}

func sendCtrlV() error {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return fmt.Errorf("keyboard: %w", err)
	}
	kb.HasCTRL(true)
	kb.SetKeys(keybd_event.VK_V)
	return kb.Launching()
}

// CanPaste reports whether PasteText types into the focused window.
func CanPaste() bool { return true }
