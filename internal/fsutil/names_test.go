package fsutil

import (
	"strings"
	"testing"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"oak", "oak"},
		{"tree_07", "tree_07"},
		{"plot 3/oak #2", "plot_3_oak_2"},
		{"../../etc/passwd", "etc_passwd"},
		{"eiche-ä", "eiche-"},
		{"", "unknown"},
		{"...", "unknown"},
		{"a  b", "a_b"},
	}
	for _, tt := range tests {
		if got := SanitizeName(tt.in); got != tt.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	long := SanitizeName(strings.Repeat("x", 500))
	if len(long) != maxNameLen {
		t.Errorf("long name has length %d, want %d", len(long), maxNameLen)
	}
}
