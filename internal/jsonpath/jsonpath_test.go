package jsonpath

import "testing"

func TestText(t *testing.T) {
	tests := []struct {
		name string
		body string
		path string
		want string
	}{
		{name: "groq style", body: `{"text":" hello there","x_groq":{"id":"req_1"}}`, path: "text", want: " hello there"},
		{name: "nested path", body: `{"results":[{"alternatives":[{"transcript":"ok"}]}]}`, path: "results[0].alternatives[0].transcript", want: "ok"},
		{name: "numeric leaf", body: `{"data":{"n":42}}`, path: "data.n", want: "42"},
		{name: "path miss falls back to text", body: `{"text":"fallback"}`, path: "nope", want: "fallback"},
		{name: "first string field", body: `{"b":"second","a":"first","c":1}`, path: "", want: "first"},
		{name: "not json", body: `<html>`, path: "text", want: ""},
		{name: "array root", body: `["a"]`, path: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Text([]byte(tt.body), tt.path); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestLookupOutOfRange(t *testing.T) {
	root := map[string]any{"items": []any{"a"}}
	if _, ok := Lookup(root, "items[3]"); ok {
		t.Error("Expected out of range index to miss")
	}
	if v, ok := Lookup(root, "items[0]"); !ok || v != "a" {
		t.Errorf("Expected a, got %v (ok=%v)", v, ok)
	}
}

func TestSplitToken(t *testing.T) {
	key, idxs, err := SplitToken("foo[0][1]")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if key != "foo" || len(idxs) != 2 || idxs[0] != 0 || idxs[1] != 1 {
		t.Fatalf("unexpected parse result: key=%s idxs=%v", key, idxs)
	}
	for _, bad := range []string{"", "foo[", "foo[x]", "foo[1]bar"} {
		if _, _, err := SplitToken(bad); err == nil {
			t.Errorf("Expected error for %q", bad)
		}
	}
}
