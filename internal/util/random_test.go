package util

import (
	"strings"
	"testing"
)

func TestGenerateRandomID(t *testing.T) {
	id := GenerateRandomID("sv_", 16)
	if !strings.HasPrefix(id, "sv_") {
		t.Errorf("expected prefix sv_, got %s", id)
	}
	if len(id) != len("sv_")+16 {
		t.Errorf("expected length %d, got %d", len("sv_")+16, len(id))
	}
	for _, c := range id[len("sv_"):] {
		if !strings.ContainsRune("0123456789abcdef", c) {
			t.Errorf("unexpected non-hex character %q in %s", c, id)
		}
	}
}

func TestGenerateRandomIDZeroLength(t *testing.T) {
	if id := GenerateRandomID("x_", 0); id != "x_" {
		t.Errorf("expected bare prefix for zero length, got %s", id)
	}
}

func TestGenerateSessionIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := GenerateSessionID()
		if !strings.HasPrefix(id, "s_") || len(id) != len("s_")+32 {
			t.Fatalf("malformed session ID %s", id)
		}
		if seen[id] {
			t.Fatalf("duplicate session ID generated: %s", id)
		}
		seen[id] = true
	}
}
