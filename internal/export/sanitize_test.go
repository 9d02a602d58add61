package export

import "testing"

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"control chars dropped", " A\nB\rC\tD\x00 ", 100, "ABCD"},
		{"allowed set untouched", "Az09 -_.,()", 100, "Az09 -_.,()"},
		{"unicode letters kept", "éclair", 100, "éclair"},
		{"disallowed become underscores", "bad<>|\"name", 100, "bad____name"},
		{"truncated to max", "abcdefghijklmnopqrstuvwxyz", 10, "abcdefghij"},
		{"no trailing space after cut", "abcdefghi jklmno", 10, "abcdefghi"},
		{"zero max keeps everything", "a very long title", 0, "a very long title"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeName(tt.in, tt.max); got != tt.want {
				t.Errorf("SanitizeName(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
		})
	}
}
