package hotkey

import (
	"bufio"
	"context"
	"io"
	"strings"
)

// Command is a line typed on the console fallback.
type Command int

const (
	CmdToggle Command = iota + 1
	CmdCancel
	CmdMode
	CmdCalibrate
	CmdForce
	CmdQuit
)

func parseCommand(line string) (Command, bool) {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "":
		return CmdToggle, true
	case "c", "cancel":
		return CmdCancel, true
	case "m", "mode":
		return CmdMode, true
	case "r", "recalibrate":
		return CmdCalibrate, true
	case "f", "force":
		return CmdForce, true
	case "q", "quit", "exit":
		return CmdQuit, true
	}
	return 0, false
}

// ReadConsole reads commands line by line until ctx is done, r is exhausted or
// a quit command arrives. Enter alone toggles recording. Unknown lines are
// ignored.
func ReadConsole(ctx context.Context, r io.Reader, handler func(Command)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	lines := make(chan string)
	errCh := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errCh <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			return err
		case line := <-lines:
			cmd, ok := parseCommand(line)
			if !ok {
				continue
			}
			handler(cmd)
			if cmd == CmdQuit {
				return nil
			}
		}
	}
}
