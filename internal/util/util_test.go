package util

import (
	"errors"
	"strings"
	"testing"
)

func TestNewID(t *testing.T) {
	id := NewID("req")
	if !strings.HasPrefix(id, "req_") || len(id) != len("req_")+32 {
		t.Fatalf("unexpected id %q", id)
	}
	if NewID("") == NewID("") {
		t.Fatal("expected unique ids")
	}
}

func TestCleanFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
		err  bool
	}{
		{in: "draft", want: "draft.json"},
		{in: " essay.json ", want: "essay.json"},
		{in: "notes.v2", want: "notes.v2.json"},
		{in: "", err: true},
		{in: "../etc/passwd", err: true},
		{in: `a\b`, err: true},
		{in: ".hidden", err: true},
		{in: "bad\x00name", err: true},
		{in: strings.Repeat("a", 300), err: true},
	}
	for _, tt := range tests {
		got, err := CleanFilename(tt.in)
		if tt.err {
			if !errors.Is(err, ErrInvalidFilename) {
				t.Fatalf("CleanFilename(%q) expected error, got %q", tt.in, got)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("CleanFilename(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}
