package app

import (
	"whisperer/internal/config"
	"whisperer/internal/notify"
	"whisperer/internal/session"
)

// cues tells the user when a recording starts and ends, with a desktop
// notification and a beep. Both run off the capture goroutine.
type cues struct {
	notify   func(message string)
	start    func()
	done     func()
	dispatch func(func())
}

func newCues(cfg config.Config) *cues {
	n := notify.Notifier{Enabled: cfg.Notification}
	s := notify.Sound{Enabled: cfg.EnableSounds}
	return &cues{
		notify:   n.Send,
		start:    s.Start,
		done:     s.Done,
		dispatch: func(f func()) { go f() },
	}
}

func (c *cues) OnStep(step session.Step) {
	switch {
	case step.From == session.StateIdle && step.To != session.StateIdle:
		c.dispatch(func() {
			c.start()
			c.notify("Recording started")
		})
	case step.From != session.StateIdle && step.To == session.StateIdle:
		if step.Utterance == nil {
			c.dispatch(func() { c.notify("Recording stopped") })
			return
		}
		c.dispatch(func() {
			c.done()
			c.notify("Recording finished")
		})
	}
}

func (c *cues) OnDeviceRetry(int, error) {}

func (c *cues) OnHandoffError(error) {}
