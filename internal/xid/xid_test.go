package xid

import (
	"strings"
	"testing"
)

func TestNewIsPathSafeAndUnique(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := New(" TX ")
		if !strings.HasPrefix(id, "tx-") {
			t.Fatalf("expected tx- prefix, got %q", id)
		}
		if strings.Trim(id, "abcdefghijklmnopqrstuvwxyz0123456789-") != "" {
			t.Fatalf("id %q has characters outside [a-z0-9-]", id)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
}
