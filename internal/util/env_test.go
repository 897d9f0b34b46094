package util

import "testing"

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		def      bool
		expected bool
	}{
		{"unset uses default true", "", true, true},
		{"unset uses default false", "", false, false},
		{"true", "true", false, true},
		{"one", "1", false, true},
		{"yes uppercase", "YES", false, true},
		{"on with spaces", " on ", false, true},
		{"false", "false", true, false},
		{"zero", "0", true, false},
		{"off", "off", true, false},
		{"garbage uses default", "banana", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv("VIVA_TEST_BOOL", tt.value)
			}
			if got := ParseBoolEnv("VIVA_TEST_BOOL", tt.def); got != tt.expected {
				t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.expected)
			}
		})
	}
}

func TestParseIntEnv(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		def      int
		expected int
	}{
		{"unset uses default", "", 3, 3},
		{"valid integer", "7", 3, 7},
		{"negative integer", "-2", 3, -2},
		{"spaces trimmed", " 12 ", 3, 12},
		{"garbage uses default", "three", 3, 3},
		{"float uses default", "1.5", 3, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.value != "" {
				t.Setenv("VIVA_TEST_INT", tt.value)
			}
			if got := ParseIntEnv("VIVA_TEST_INT", tt.def); got != tt.expected {
				t.Errorf("ParseIntEnv(%q, %d) = %d, want %d", tt.value, tt.def, got, tt.expected)
			}
		})
	}
}
