package main

import (
	"context"
	"testing"
	"time"
)

func TestModeValue(t *testing.T) {
	tests := []struct {
		flagMode string
		envMode  string
		want     string
	}{
		{"", "", "development"},
		{"Production", "", "production"},
		{"", "PRODUCTION", "production"},
		{"development", "production", "development"},
		{"  test  ", "", "test"},
	}
	for _, tc := range tests {
		if got := modeValue(tc.flagMode, tc.envMode); got != tc.want {
			t.Errorf("modeValue(%q, %q) = %q, want %q", tc.flagMode, tc.envMode, got, tc.want)
		}
	}
}

func TestResolveListenAddr(t *testing.T) {
	if got := resolveListenAddr(":9000", "production", ":7000"); got != ":9000" {
		t.Errorf("flag should win, got %q", got)
	}
	if got := resolveListenAddr("", "production", ":7000"); got != ":7000" {
		t.Errorf("env should win over mode default, got %q", got)
	}
	if got := resolveListenAddr("", "production", ""); got != ":80" {
		t.Errorf("production default should be :80, got %q", got)
	}
	if got := resolveListenAddr("", "development", ""); got != ":8080" {
		t.Errorf("development default should be :8080, got %q", got)
	}
}

func TestResolveStorageDriver(t *testing.T) {
	driver, err := resolveStorageDriver("", "", "development")
	if err != nil || driver != "memory" {
		t.Fatalf("expected memory default, got %q err %v", driver, err)
	}

	driver, err = resolveStorageDriver("", "postgres://localhost/app", "development")
	if err != nil || driver != "postgres" {
		t.Fatalf("a DSN should select postgres, got %q err %v", driver, err)
	}

	driver, err = resolveStorageDriver("  Postgres ", "", "production")
	if err != nil || driver != "postgres" {
		t.Fatalf("expected trimmed lowercase driver, got %q err %v", driver, err)
	}

	if _, err = resolveStorageDriver("memory", "", "production"); err == nil {
		t.Fatal("production mode must reject the memory driver")
	}
}

func TestOpenStoreMemory(t *testing.T) {
	store, err := openStore(context.Background(), storeSettings{Driver: "memory"})
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	defer store.Close(context.Background())

	if _, err := openStore(context.Background(), storeSettings{Driver: "postgres"}); err == nil {
		t.Fatal("postgres without a DSN should fail")
	}
	if _, err := openStore(context.Background(), storeSettings{Driver: "bolt"}); err == nil {
		t.Fatal("unknown drivers should fail")
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "  ", "value", "later"); got != "value" {
		t.Errorf("firstNonEmpty = %q", got)
	}
	if got := firstNonEmpty("", "   "); got != "" {
		t.Errorf("expected empty result, got %q", got)
	}
}

func TestResolveIntEnvFallback(t *testing.T) {
	const key = "COURSECAST_TEST_RESOLVE_INT"
	t.Setenv(key, "25")
	if got := resolveInt(0, key); got != 25 {
		t.Errorf("expected env fallback 25, got %d", got)
	}
	if got := resolveInt(7, key); got != 7 {
		t.Errorf("flag should win, got %d", got)
	}
	t.Setenv(key, "not-a-number")
	if got := resolveInt(0, key); got != 0 {
		t.Errorf("bad env should resolve to zero, got %d", got)
	}
}

func TestResolveFloatEnvFallback(t *testing.T) {
	const key = "COURSECAST_TEST_RESOLVE_FLOAT"
	t.Setenv(key, "2.5")
	if got := resolveFloat(0, key); got != 2.5 {
		t.Errorf("expected env fallback 2.5, got %v", got)
	}
	if got := resolveFloat(1.5, key); got != 1.5 {
		t.Errorf("flag should win, got %v", got)
	}
}

func TestResolveDuration(t *testing.T) {
	const key = "COURSECAST_TEST_RESOLVE_DURATION"
	t.Setenv(key, "45s")
	if got := resolveDuration(0, key, time.Minute); got != 45*time.Second {
		t.Errorf("expected env fallback 45s, got %v", got)
	}
	if got := resolveDuration(10*time.Second, key, time.Minute); got != 10*time.Second {
		t.Errorf("flag should win, got %v", got)
	}
	t.Setenv(key, "")
	if got := resolveDuration(0, key, time.Minute); got != time.Minute {
		t.Errorf("expected fallback, got %v", got)
	}
}
