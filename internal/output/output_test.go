package output

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type failingSink struct{ err error }

func (f failingSink) Deliver(context.Context, Transcript) error { return f.err }

func TestFileAppendsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcripts.txt")
	f := NewFile(path)
	ts := time.Date(2024, 5, 1, 9, 30, 0, 0, time.Local)

	for _, text := range []string{"first line", "second\nline"} {
		if err := f.Deliver(context.Background(), Transcript{Text: text, CreatedAt: ts}); err != nil {
			t.Fatalf("Deliver failed: %v", err)
		}
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	want := "2024-05-01 09:30:00\tfirst line\n2024-05-01 09:30:00\tsecond line\n"
	if string(b) != want {
		t.Errorf("Expected %q, got %q", want, b)
	}
}

func TestMultiDeliversToAllSinks(t *testing.T) {
	var a, b bytes.Buffer
	boom := errors.New("boom")
	m := NewMulti(nil, NewWriter(&a), failingSink{boom}, nil, NewWriter(&b))
	if m.Len() != 3 {
		t.Fatalf("Expected nil sink skipped, got %d sinks", m.Len())
	}

	err := m.Deliver(context.Background(), Transcript{Text: "hello"})
	if !errors.Is(err, boom) {
		t.Errorf("Expected joined error to contain boom, got %v", err)
	}
	if a.String() != "hello\n" || b.String() != "hello\n" {
		t.Errorf("Expected both writers to receive text, got %q and %q", a.String(), b.String())
	}
}

func TestPasteSkipsBlankText(t *testing.T) {
	var pasted []string
	p := &Paste{paste: func(s string) error {
		pasted = append(pasted, s)
		return nil
	}}
	_ = p.Deliver(context.Background(), Transcript{Text: "  "})
	_ = p.Deliver(context.Background(), Transcript{Text: "hi"})
	if len(pasted) != 1 || pasted[0] != "hi" {
		t.Errorf("Expected only hi pasted, got %v", pasted)
	}
}

type fakeRedis struct {
	published map[string][]string
	lists     map[string][]string
	trims     []int64
}

func (f *fakeRedis) Publish(_ context.Context, channel string, message interface{}) *redis.IntCmd {
	f.published[channel] = append(f.published[channel], string(message.([]byte)))
	return redis.NewIntResult(1, nil)
}

func (f *fakeRedis) LPush(_ context.Context, key string, values ...interface{}) *redis.IntCmd {
	for _, v := range values {
		f.lists[key] = append([]string{string(v.([]byte))}, f.lists[key]...)
	}
	return redis.NewIntResult(int64(len(f.lists[key])), nil)
}

func (f *fakeRedis) LTrim(_ context.Context, key string, start, stop int64) *redis.StatusCmd {
	f.trims = append(f.trims, stop)
	return redis.NewStatusResult("OK", nil)
}

func TestRedisPublishesAndKeepsHistory(t *testing.T) {
	fr := &fakeRedis{published: map[string][]string{}, lists: map[string][]string{}}
	r := NewRedisWithClient(fr, "whisperer:transcripts")

	tr := Transcript{ID: "u1", Text: "turn on the lights", Reason: "silence", DurationMs: 1400}
	if err := r.Deliver(context.Background(), tr); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	msgs := fr.published["whisperer:transcripts"]
	if len(msgs) != 1 {
		t.Fatalf("Expected 1 published message, got %d", len(msgs))
	}
	var got Transcript
	if err := json.Unmarshal([]byte(msgs[0]), &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if got.ID != "u1" || got.Text != tr.Text || got.DurationMs != 1400 {
		t.Errorf("unexpected payload %+v", got)
	}
	if len(fr.lists["whisperer:transcripts:history"]) != 1 {
		t.Errorf("Expected history entry, got %v", fr.lists)
	}
	if len(fr.trims) != 1 || fr.trims[0] != historyLen-1 {
		t.Errorf("Expected trim to %d, got %v", historyLen-1, fr.trims)
	}
}

func TestRedisReportsPublishError(t *testing.T) {
	r := NewRedisWithClient(errRedis{}, "ch")
	err := r.Deliver(context.Background(), Transcript{Text: "x"})
	if err == nil || !strings.Contains(err.Error(), "PUBLISH") {
		t.Errorf("Expected publish error, got %v", err)
	}
}

type errRedis struct{}

func (errRedis) Publish(context.Context, string, interface{}) *redis.IntCmd {
	return redis.NewIntResult(0, errors.New("connection refused"))
}

func (errRedis) LPush(context.Context, string, ...interface{}) *redis.IntCmd {
	return redis.NewIntResult(0, nil)
}

func (errRedis) LTrim(context.Context, string, int64, int64) *redis.StatusCmd {
	return redis.NewStatusResult("OK", nil)
}
