package util

import "testing"

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		name         string
		value        string
		defaultValue bool
		want         bool
	}{
		{"unset uses default", "", true, true},
		{"true", "true", false, true},
		{"numeric true", "1", false, true},
		{"yes", "YES", false, true},
		{"on", "on", false, true},
		{"false", "false", true, false},
		{"numeric false", "0", true, false},
		{"off", "Off", true, false},
		{"invalid uses default", "maybe", true, true},
		{"whitespace trimmed", "  true  ", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv("TEST_BOOL_ENV", tt.value)
			}
			if got := ParseBoolEnv("TEST_BOOL_ENV", tt.defaultValue); got != tt.want {
				t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.defaultValue, got, tt.want)
			}
		})
	}
}

func TestGetEnvWithDefault(t *testing.T) {
	if got := GetEnvWithDefault("TEST_STRING_ENV", "fallback"); got != "fallback" {
		t.Errorf("expected fallback for unset variable, got %q", got)
	}
	t.Setenv("TEST_STRING_ENV", "value")
	if got := GetEnvWithDefault("TEST_STRING_ENV", "fallback"); got != "value" {
		t.Errorf("expected value, got %q", got)
	}
	t.Setenv("TEST_STRING_ENV", "   ")
	if got := GetEnvWithDefault("TEST_STRING_ENV", "fallback"); got != "fallback" {
		t.Errorf("expected fallback for blank variable, got %q", got)
	}
}
