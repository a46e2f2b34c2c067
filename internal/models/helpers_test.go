package models

import "testing"

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short unchanged", "hello", 50, "hello"},
		{"exact length unchanged", "abcde", 5, "abcde"},
		{"cut with ellipsis", "abcdefgh", 5, "abcde..."},
		{"multibyte safe", "héllo wörld", 4, "héll..."},
		{"empty", "", 10, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Truncate(tt.in, tt.n)
			if got != tt.want {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
		})
	}
}

func TestMonthKey(t *testing.T) {
	got := MonthKey(mustTime(t, "2026-03-31T23:30:00-05:00"))
	if got != "2026-04" {
		t.Errorf("MonthKey = %q, want 2026-04 (UTC rollover)", got)
	}
}
