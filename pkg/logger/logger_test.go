package logger

import "testing"

func TestNew(t *testing.T) {
	for _, level := range []string{"debug", "INFO", "warn", "error"} {
		if _, err := New(level); err != nil {
			t.Fatalf("New(%q): %v", level, err)
		}
	}
	if _, err := New("verbose"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}
