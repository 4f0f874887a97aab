package db

import (
	"strings"
	"testing"
)

func TestTruncateSQL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int
	}{
		{"empty", "", len("unknown")},
		{"short", "SELECT 1", len("SELECT 1")},
		{"long", strings.Repeat("x", 500), 203},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncateSQL(tt.in); len(got) != tt.want {
				t.Fatalf("len(truncateSQL) = %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestNewSlowQueryTracerDefaultThreshold(t *testing.T) {
	tr := NewSlowQueryTracer(nil, 0)
	if tr.slowThreshold.Milliseconds() != 100 {
		t.Fatalf("threshold = %v, want 100ms", tr.slowThreshold)
	}
}
