package core

import (
	"errors"
	"testing"
)

func TestResolveReferenceForms(t *testing.T) {
	te := newTestEngine()
	te.seedAccount(1, "one@example.com")
	te.seedAccount(2, "two@example.com")
	if _, err := te.SetAlias(1, "work"); err != nil {
		t.Fatalf("set alias: %v", err)
	}

	tests := []struct {
		ref  string
		want int
	}{
		{ref: "1", want: 1},
		{ref: "2", want: 2},
		{ref: " 1 ", want: 1},
		{ref: "one@example.com", want: 1},
		{ref: "ONE@Example.COM", want: 1},
		{ref: "work", want: 1},
	}
	for _, tt := range tests {
		got, err := te.Resolve(tt.ref)
		if err != nil {
			t.Fatalf("resolve %q: %v", tt.ref, err)
		}
		if got != tt.want {
			t.Fatalf("resolve %q = %d, want %d", tt.ref, got, tt.want)
		}
	}
}

func TestResolveUnknownReferences(t *testing.T) {
	te := newTestEngine()
	te.seedAccount(1, "one@example.com")

	for _, ref := range []string{"", "9", "missing@example.com", "nope"} {
		_, err := te.Resolve(ref)
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("resolve %q: expected ErrNotFound, got %v", ref, err)
		}
	}
}
