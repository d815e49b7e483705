package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	result := String()

	if !strings.Contains(result, "littleapp version") {
		t.Errorf("String() = %q, should contain 'littleapp version'", result)
	}
	if !strings.Contains(result, Version) {
		t.Errorf("String() = %q, should contain version %q", result, Version)
	}
	if !strings.Contains(result, "built "+BuildTime) {
		t.Errorf("String() = %q, should contain build time %q", result, BuildTime)
	}
}

func TestDefaultValues(t *testing.T) {
	if Version != "dev" {
		t.Errorf("Version = %q, want 'dev'", Version)
	}
	if BuildTime != "unknown" {
		t.Errorf("BuildTime = %q, want 'unknown'", BuildTime)
	}
}

func TestUserAgent(t *testing.T) {
	if got := UserAgent(); got != "littleapp/dev" {
		t.Errorf("UserAgent() = %q, want %q", got, "littleapp/dev")
	}
}
