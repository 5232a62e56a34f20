package xid

import (
	"strings"
	"testing"
)

func TestNewIsPrefixedAndOrdered(t *testing.T) {
	prev := New("ord")
	if !strings.HasPrefix(prev, "ord_") {
		t.Fatalf("expected ord_ prefix, got %s", prev)
	}
	for i := 0; i < 50; i++ {
		next := New("ord")
		if next <= prev {
			t.Fatalf("expected %s to sort after %s", next, prev)
		}
		prev = next
	}
}
