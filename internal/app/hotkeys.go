package app

import (
	"context"
	"log/slog"
	"strings"

	"whisperer/internal/config"
	"whisperer/internal/hotkey"
	"whisperer/internal/record"
	"whisperer/internal/session"
)

func bindings(cfg config.Config) hotkey.Bindings {
	return hotkey.Bindings{
		Record:    cfg.StartKey,
		Cancel:    cfg.CancelKey,
		Mode:      cfg.ModeKey,
		Calibrate: cfg.CalibrateKey,
	}
}

// needsHook reports whether the low-level hook must be installed. Hold mode
// needs key releases, and a bound mode key can switch into hold at runtime.
func needsHook(cfg config.Config, mode session.Mode) bool {
	return cfg.HotKeyHook || mode == session.ModeHold || strings.TrimSpace(cfg.ModeKey) != ""
}

// actionFor maps a key event to a runner action. Releases only matter for the
// record key in hold mode, and only when the hook reports them.
func actionFor(ev hotkey.Event, mode session.Mode, hookActive bool) (record.Action, bool) {
	switch ev.Binding {
	case hotkey.BindRecord:
		if mode == session.ModeHold && hookActive {
			if ev.Down {
				return record.ActionStart, true
			}
			return record.ActionStop, true
		}
		if ev.Down {
			return record.ActionToggle, true
		}
	case hotkey.BindCancel:
		if ev.Down {
			return record.ActionCancel, true
		}
	case hotkey.BindMode:
		if ev.Down {
			return record.ActionSwitchMode, true
		}
	case hotkey.BindCalibrate:
		if ev.Down {
			return record.ActionRecalibrate, true
		}
	}
	return 0, false
}

// actionForCommand maps a console command. Quit has no action.
func actionForCommand(cmd hotkey.Command) (record.Action, bool) {
	switch cmd {
	case hotkey.CmdToggle:
		return record.ActionToggle, true
	case hotkey.CmdCancel:
		return record.ActionCancel, true
	case hotkey.CmdMode:
		return record.ActionSwitchMode, true
	case hotkey.CmdCalibrate:
		return record.ActionRecalibrate, true
	case hotkey.CmdForce:
		return record.ActionForce, true
	}
	return 0, false
}

func send(r *record.Runner, a record.Action, log *slog.Logger) {
	if !r.Send(record.Event{Action: a}) {
		log.Warn("event queue full; dropped", "action", a)
		return
	}
	log.Debug("event queued", "action", a)
}

func hotkeyHandler(r *record.Runner, hookActive bool, log *slog.Logger) hotkey.Handler {
	return func(ev hotkey.Event) {
		a, ok := actionFor(ev, r.Mode(), hookActive)
		if !ok {
			return
		}
		send(r, a, log)
	}
}

func consoleHandler(r *record.Runner, quit context.CancelFunc, log *slog.Logger) func(hotkey.Command) {
	return func(cmd hotkey.Command) {
		if cmd == hotkey.CmdQuit {
			log.Info("quit requested")
			quit()
			return
		}
		if a, ok := actionForCommand(cmd); ok {
			send(r, a, log)
		}
	}
}
