//go:build windows

package hotkey

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"syscall"
	"time"
	"unsafe"
)

var (
	user32                 = syscall.NewLazyDLL("user32.dll")
	kernel32               = syscall.NewLazyDLL("kernel32.dll")
	procRegisterHotKey     = user32.NewProc("RegisterHotKey")
	procUnregisterHotKey   = user32.NewProc("UnregisterHotKey")
	procGetMessageW        = user32.NewProc("GetMessageW")
	procPostThreadMessageW = user32.NewProc("PostThreadMessageW")
	procSetWindowsHookExW  = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHook  = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx     = user32.NewProc("CallNextHookEx")
	procGetAsyncKeyState   = user32.NewProc("GetAsyncKeyState")
	procGetCurrentThreadId = kernel32.NewProc("GetCurrentThreadId")
)

const (
	wmQuit       = 0x0012
	wmHotkey     = 0x0312
	wmKeyDown    = 0x0100
	wmKeyUp      = 0x0101
	wmSysKeyDown = 0x0104
	wmSysKeyUp   = 0x0105
	whKeyboardLL = 13
	llkhInjected = 0x10
)

type winMsg struct {
	Hwnd    uintptr
	Message uint32
	WParam  uintptr
	LParam  uintptr
	Time    uint32
	PtX     int32
	PtY     int32
}

type kbdLLHookStruct struct {
	vkCode      uint32
	scanCode    uint32
	flags       uint32
	time        uint32
	dwExtraInfo uintptr
}

// Register installs global hotkeys and returns a function that removes them.
// With hook set, a low-level keyboard hook is used so key release is reported
// as well; hold mode requires it.
func Register(b Bindings, hook bool, handler Handler, logger *slog.Logger) (func(), error) {
	keys, err := b.parse()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "hotkey")
	for _, k := range keys {
		log.Debug("parsed hotkey", "binding", k.binding, "spec", k.spec, "mod", k.key.Mod, "vk", k.key.VK)
	}

	type ready struct {
		tid uintptr
		err error
	}
	readyCh := make(chan ready, 1)
	loop := registerLoop
	if hook {
		loop = hookLoop
	}
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		tid, _, _ := procGetCurrentThreadId.Call()
		loop(keys, handler, log, func(err error) { readyCh <- ready{tid: tid, err: err} })
	}()

	select {
	case r := <-readyCh:
		if r.err != nil {
			return nil, r.err
		}
		stop := func() { procPostThreadMessageW.Call(r.tid, wmQuit, 0, 0) }
		return stop, nil
	case <-time.After(2 * time.Second):
		return nil, errors.New("timeout registering hotkeys")
	}
}

func pump(log *slog.Logger, onMsg func(m *winMsg)) {
	var m winMsg
	for {
		ret, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		switch int32(ret) {
		case -1:
			log.Error("GetMessageW failed; leaving hotkey loop")
			return
		case 0:
			return
		}
		if onMsg != nil {
			onMsg(&m)
		}
	}
}

func registerLoop(keys []boundKey, handler Handler, log *slog.Logger, ready func(error)) {
	for i, k := range keys {
		r, _, _ := procRegisterHotKey.Call(0, uintptr(i+1), uintptr(k.key.Mod), uintptr(k.key.VK))
		if r == 0 {
			for j := 0; j < i; j++ {
				procUnregisterHotKey.Call(0, uintptr(j+1))
			}
			ready(fmt.Errorf("RegisterHotKey failed for '%s'", k.spec))
			return
		}
	}
	defer func() {
		for i := range keys {
			procUnregisterHotKey.Call(0, uintptr(i+1))
		}
	}()
	log.Info("registered global hotkeys", "count", len(keys))
	ready(nil)

	pump(log, func(m *winMsg) {
		if m.Message != wmHotkey {
			return
		}
		id := int(m.WParam) - 1
		if id >= 0 && id < len(keys) {
			handler(Event{Binding: keys[id].binding, Down: true})
		}
	})
}

func keyDown(vk uintptr) bool {
	st, _, _ := procGetAsyncKeyState.Call(vk)
	return st&0x8000 != 0
}

func modsSatisfied(required uint32) bool {
	if required&ModCtrl != 0 && !keyDown(0x11) {
		return false
	}
	if required&ModAlt != 0 && !keyDown(0x12) {
		return false
	}
	if required&ModShift != 0 && !keyDown(0x10) {
		return false
	}
	if required&ModWin != 0 && !keyDown(0x5B) && !keyDown(0x5C) {
		return false
	}
	return true
}

func hookLoop(keys []boundKey, handler Handler, log *slog.Logger, ready func(error)) {
	lookup := make(map[uint32][]boundKey)
	for _, k := range keys {
		lookup[k.key.VK] = append(lookup[k.key.VK], k)
	}
	// vk -> binding whose keydown was swallowed
	held := make(map[uint32]Binding)

	callback := syscall.NewCallback(func(nCode, wParam, lParam uintptr) uintptr {
		if int32(nCode) >= 0 {
			k := (*kbdLLHookStruct)(unsafe.Pointer(lParam))
			if k.flags&llkhInjected == 0 {
				switch uint32(wParam) {
				case wmKeyDown, wmSysKeyDown:
					for _, c := range lookup[k.vkCode] {
						if modsSatisfied(c.key.Mod) {
							held[k.vkCode] = c.binding
							handler(Event{Binding: c.binding, Down: true})
							return 1
						}
					}
				case wmKeyUp, wmSysKeyUp:
					if b, ok := held[k.vkCode]; ok {
						delete(held, k.vkCode)
						handler(Event{Binding: b, Down: false})
						return 1
					}
				}
			}
		}
		ret, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
		return ret
	})

	h, _, _ := procSetWindowsHookExW.Call(whKeyboardLL, callback, 0, 0)
	if h == 0 {
		ready(errors.New("SetWindowsHookExW failed"))
		return
	}
	defer procUnhookWindowsHook.Call(h)
	log.Info("low-level keyboard hook installed", "count", len(keys))
	ready(nil)

	pump(log, nil)
	log.Debug("low-level keyboard hook removed")
}
