//go:build !windows

package hotkey

import "log/slog"

// Register is not supported on non-Windows builds. Bindings are still
// validated so configuration errors surface on every platform.
func Register(b Bindings, hook bool, handler Handler, logger *slog.Logger) (func(), error) {
	if _, err := b.parse(); err != nil {
		return nil, err
	}
	return nil, ErrUnsupported
}
