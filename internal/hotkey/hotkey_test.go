package hotkey

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"
)

func TestParseHotkey(t *testing.T) {
	tests := []struct {
		spec    string
		want    Key
		wantErr bool
	}{
		{spec: "alt+x", want: Key{Mod: ModAlt, VK: 'X'}},
		{spec: "Ctrl+Shift+F1", want: Key{Mod: ModCtrl | ModShift, VK: 0x70}},
		{spec: "esc", want: Key{VK: 0x1B}},
		{spec: "win+9", want: Key{Mod: ModWin, VK: '9'}},
		{spec: "numpad5", want: Key{VK: 0x65}},
		{spec: "kp0", want: Key{VK: 0x60}},
		{spec: "ctrl + space", want: Key{Mod: ModCtrl, VK: 0x20}},
		{spec: "f24", want: Key{VK: 0x87}},
		{spec: "f25", wantErr: true},
		{spec: "hyper+x", wantErr: true},
		{spec: "alt+", wantErr: true},
		{spec: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := ParseHotkey(tt.spec)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestBindingsParse(t *testing.T) {
	keys, err := Bindings{Record: "alt+x", Cancel: "esc"}.parse()
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(keys) != 2 || keys[0].binding != BindRecord || keys[1].binding != BindCancel {
		t.Errorf("unexpected bindings: %+v", keys)
	}

	if _, err := (Bindings{}).parse(); err == nil {
		t.Error("Expected error for empty bindings")
	}
	if _, err := (Bindings{Record: "alt+x", Mode: "bogus+key"}).parse(); err == nil {
		t.Error("Expected error for invalid mode key")
	}
}

func TestReadConsole(t *testing.T) {
	input := "\nc\nwhat\nm\nr\nF\nq\n\n"
	var got []Command
	err := ReadConsole(context.Background(), strings.NewReader(input), func(c Command) {
		got = append(got, c)
	})
	if err != nil {
		t.Fatalf("ReadConsole failed: %v", err)
	}
	want := []Command{CmdToggle, CmdCancel, CmdMode, CmdCalibrate, CmdForce, CmdQuit}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("command %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestReadConsoleStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r, w := io.Pipe()
	defer w.Close()

	done := make(chan error, 1)
	go func() { done <- ReadConsole(ctx, r, func(Command) {}) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected nil error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("ReadConsole did not return after cancel")
	}
}
