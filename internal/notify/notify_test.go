package notify

import (
	"errors"
	"testing"
)

func TestNotifierSend(t *testing.T) {
	var got []string
	orig := send
	defer func() { send = orig }()
	send = func(title, message string) error {
		got = append(got, title+": "+message)
		return errors.New("no notification daemon")
	}

	Notifier{Enabled: false}.Send("hidden")
	Notifier{Enabled: true}.Send("Recording started")
	Notifier{Enabled: true, Title: "STT"}.Send("Paste success")

	want := []string{"whisperer: Recording started", "STT: Paste success"}
	if len(got) != len(want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected %q, got %q", want[i], got[i])
		}
	}
}

func TestSoundCues(t *testing.T) {
	var got []float64
	orig := beep
	defer func() { beep = orig }()
	beep = func(freq float64, ms int) error {
		if ms != cueMs {
			t.Errorf("Expected %dms cue, got %d", cueMs, ms)
		}
		got = append(got, freq)
		return errors.New("no speaker")
	}

	Sound{}.Start()
	Sound{Enabled: true}.Start()
	Sound{Enabled: true}.Done()

	if len(got) != 2 || got[0] != startFreq || got[1] != doneFreq {
		t.Errorf("Expected [%v %v], got %v", startFreq, doneFreq, got)
	}
}
