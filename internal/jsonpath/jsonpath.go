// Package jsonpath pulls transcript text out of provider-specific JSON.
//
// Paths are dot separated with optional indexes, e.g.
// "results[0].alternatives[0].transcript".
package jsonpath

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Text returns the transcript from a JSON response body. It tries path first,
// then a top-level "text" field, then the first non-empty top-level string.
func Text(body []byte, path string) string {
	var root any
	if err := json.Unmarshal(body, &root); err != nil {
		return ""
	}
	if path != "" {
		if v, ok := Lookup(root, path); ok {
			if s, ok := scalar(v); ok {
				return s
			}
		}
	}

	m, ok := root.(map[string]any)
	if !ok {
		return ""
	}
	if s, ok := scalar(m["text"]); ok {
		return s
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// Lookup walks path through a decoded JSON value.
func Lookup(root any, path string) (any, bool) {
	if path == "" {
		return nil, false
	}
	cur := root
	for _, tok := range strings.Split(path, ".") {
		key, idxs, err := SplitToken(tok)
		if err != nil {
			return nil, false
		}
		if key != "" {
			m, ok := cur.(map[string]any)
			if !ok {
				return nil, false
			}
			if cur, ok = m[key]; !ok {
				return nil, false
			}
		}
		for _, i := range idxs {
			arr, ok := cur.([]any)
			if !ok || i < 0 || i >= len(arr) {
				return nil, false
			}
			cur = arr[i]
		}
	}
	return cur, true
}

// SplitToken splits "foo[0][1]" into "foo" and [0 1]. A bare "[2]" has an
// empty key.
func SplitToken(tok string) (string, []int, error) {
	if tok == "" {
		return "", nil, fmt.Errorf("empty path segment")
	}
	br := strings.IndexByte(tok, '[')
	if br < 0 {
		return tok, nil, nil
	}
	key, rest := tok[:br], tok[br:]
	var idxs []int
	for rest != "" {
		end := strings.IndexByte(rest, ']')
		if rest[0] != '[' || end < 0 {
			return "", nil, fmt.Errorf("malformed index in %q", tok)
		}
		n, err := strconv.Atoi(rest[1:end])
		if err != nil {
			return "", nil, fmt.Errorf("bad index %q in %q", rest[1:end], tok)
		}
		idxs = append(idxs, n)
		rest = rest[end+1:]
	}
	return key, idxs, nil
}

func scalar(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(x), true
	}
	return "", false
}
