package utils

import (
	"testing"
	"time"
)

func TestSafeEnv(t *testing.T) {
	const key = "_AUDITIONS_TEST_SAFEENV"
	t.Setenv(key, "")
	if got := SafeEnv(key, "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
	t.Setenv(key, "value")
	if got := SafeEnv(key, "fallback"); got != "value" {
		t.Fatalf("expected 'value', got %q", got)
	}
}

func TestTypedEnv(t *testing.T) {
	t.Setenv("_AUD_BOOL", "true")
	t.Setenv("_AUD_BAD_BOOL", "maybe")
	t.Setenv("_AUD_INT", " 42 ")
	t.Setenv("_AUD_DUR", "90s")
	t.Setenv("_AUD_LIST", "a, ,b,")

	if !EnvBool("_AUD_BOOL", false) || !EnvBool("_AUD_BAD_BOOL", true) {
		t.Fatalf("EnvBool mismatch")
	}
	if got := EnvInt("_AUD_INT", 0); got != 42 {
		t.Fatalf("EnvInt = %d", got)
	}
	if got := EnvDuration("_AUD_DUR", 0); got != 90*time.Second {
		t.Fatalf("EnvDuration = %v", got)
	}
	if got := EnvList("_AUD_LIST", nil); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("EnvList = %v", got)
	}
	if got := EnvList("_AUD_UNSET", []string{"x"}); len(got) != 1 || got[0] != "x" {
		t.Fatalf("EnvList fallback = %v", got)
	}
}
