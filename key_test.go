package tiercache

import (
	"errors"
	"strings"
	"testing"
)

func TestGenerateKeyWithoutParams(t *testing.T) {
	t.Parallel()

	if got := GenerateKey("msg", "chat1", nil); got != "msg:chat1" {
		t.Errorf("GenerateKey() = %q, want %q", got, "msg:chat1")
	}
	if got := GenerateKey("msg", "chat1", map[string]any{}); got != "msg:chat1" {
		t.Errorf("GenerateKey(empty params) = %q, want %q", got, "msg:chat1")
	}
}

func TestGenerateKeyDeterministic(t *testing.T) {
	t.Parallel()

	a := GenerateKey("msg", "chat1", map[string]any{"page": 1, "limit": 50, "sort": "asc"})
	b := GenerateKey("msg", "chat1", map[string]any{"sort": "asc", "limit": 50, "page": 1})
	if a != b {
		t.Errorf("same params hashed differently: %q vs %q", a, b)
	}

	if !strings.HasPrefix(a, "msg:chat1:") {
		t.Errorf("GenerateKey() = %q, want msg:chat1: prefix", a)
	}
	// 16 hash bytes hex-encoded.
	if suffix := strings.TrimPrefix(a, "msg:chat1:"); len(suffix) != 32 {
		t.Errorf("hash suffix %q has length %d, want 32", suffix, len(suffix))
	}
}

func TestGenerateKeyDistinguishesParams(t *testing.T) {
	t.Parallel()

	base := GenerateKey("msg", "chat1", map[string]any{"page": 1})
	cases := map[string]map[string]any{
		"different value": {"page": 2},
		"different name":  {"offset": 1},
		"different type":  {"page": "1"},
		"extra param":     {"page": 1, "limit": 50},
	}
	for name, params := range cases {
		if got := GenerateKey("msg", "chat1", params); got == base {
			t.Errorf("%s produced the same key %q", name, got)
		}
	}

	if GenerateKey("msg", "chat2", map[string]any{"page": 1}) == base {
		t.Error("different identifier produced the same key")
	}
	if GenerateKey("usr", "chat1", map[string]any{"page": 1}) == base {
		t.Error("different namespace produced the same key")
	}
}

func TestGenerateKeyNestedParams(t *testing.T) {
	t.Parallel()

	a := GenerateKey("q", "idx", map[string]any{
		"filter": map[string]any{"status": "open", "owner": "ada"},
	})
	b := GenerateKey("q", "idx", map[string]any{
		"filter": map[string]any{"owner": "ada", "status": "open"},
	})
	if a != b {
		t.Errorf("nested maps hashed differently: %q vs %q", a, b)
	}
}

func TestGenerateKeyUnencodableParam(t *testing.T) {
	t.Parallel()

	// Channels have no JSON encoding; the fmt fallback still yields a key.
	ch := make(chan int)
	params := map[string]any{"ch": ch}

	a := GenerateKey("q", "x", params)
	b := GenerateKey("q", "x", params)
	if a != b {
		t.Errorf("fallback rendering unstable: %q vs %q", a, b)
	}
	if err := ValidateKey(a); err != nil {
		t.Errorf("generated key %q invalid: %v", a, err)
	}
}

func TestGenerateKeyPassesValidation(t *testing.T) {
	t.Parallel()

	huge := map[string]any{"blob": strings.Repeat("x", 10_000)}
	key := GenerateKey("ns", "id", huge)
	if err := ValidateKey(key); err != nil {
		t.Errorf("ValidateKey(%q) = %v, want nil (params are hashed, not embedded)", key, err)
	}
}

func TestValidateKey(t *testing.T) {
	t.Parallel()

	valid := []string{
		"k",
		"msg:chat1:abcdef",
		"with space",
		"café",
		strings.Repeat("k", 512),
	}
	for _, key := range valid {
		if err := ValidateKey(key); err != nil {
			t.Errorf("ValidateKey(%q) = %v, want nil", key, err)
		}
	}

	invalid := []string{
		"",
		strings.Repeat("k", 513),
		"tab\there",
		"line\nbreak",
		"nul\x00byte",
		"del\x7fchar",
	}
	for _, key := range invalid {
		if err := ValidateKey(key); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("ValidateKey(%q) = %v, want ErrInvalidKey", key, err)
		}
	}
}
