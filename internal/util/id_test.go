package util

import (
	"strings"
	"testing"
)

func TestNewIDPrefixAndUniqueness(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewID("sec")
		if !strings.HasPrefix(id, "sec_") || len(id) != len("sec_")+32 {
			t.Fatalf("unexpected id %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
	if got := NewID(""); len(got) != 32 {
		t.Fatalf("expected bare 32-char id, got %q", got)
	}
}
