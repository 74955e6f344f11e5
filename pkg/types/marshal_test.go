package types

import (
	"encoding/json"
	"strings"
	"testing"
)

func marshalBytes(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return b
}

func marshalUnmarshal[T any](t *testing.T, v T) T {
	t.Helper()
	b := marshalBytes(t, v)
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	return out
}

func containsKey(jsonStr, key string) bool {
	return strings.Contains(jsonStr, `"`+key+`"`)
}
