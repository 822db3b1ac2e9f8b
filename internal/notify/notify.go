// Package notify shows desktop notifications and plays short cue beeps.
package notify

import (
	"log/slog"

	"github.com/gen2brain/beeep"
)

var send = func(title, message string) error {
	return beeep.Notify(title, message, "")
}

var beep = func(freq float64, ms int) error {
	return beeep.Beep(freq, ms)
}

const (
	startFreq = 1000
	doneFreq  = 800
	cueMs     = 150
)

// Notify shows a desktop notification. Failures are logged and otherwise
// ignored.
func Notify(title, message string) {
	if err := send(title, message); err != nil {
		slog.Debug("notification failed", "component", "notify", "err", err)
	}
}

// Notifier sends notifications under a fixed title when enabled.
type Notifier struct {
	Enabled bool
	Title   string
}

// Send notifies with message if n is enabled.
func (n Notifier) Send(message string) {
	if !n.Enabled {
		return
	}
	title := n.Title
	if title == "" {
		title = "whisperer"
	}
	Notify(title, message)
}

// Sound plays the recording cues when enabled.
type Sound struct {
	Enabled bool
}

// Start plays the higher cue that marks the start of a recording.
func (s Sound) Start() { s.play(startFreq) }

// Done plays the lower cue that marks a finished recording.
func (s Sound) Done() { s.play(doneFreq) }

func (s Sound) play(freq float64) {
	if !s.Enabled {
		return
	}
	if err := beep(freq, cueMs); err != nil {
		slog.Debug("beep failed", "component", "notify", "err", err)
	}
}
