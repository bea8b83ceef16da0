package duration

import (
	"testing"
	"time"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"90s", 90 * time.Second, false},
		{"1h30m", 90 * time.Minute, false},
		{"7d", 7 * Day, false},
		{"2w", 2 * Week, false},
		{"1w2d12h", Week + 2*Day + 12*time.Hour, false},
		{" 3d ", 3 * Day, false},
		{"-1d", -Day, false},
		{"0", 0, false},
		{"1.5s", 1500 * time.Millisecond, false},
		{"", 0, true},
		{"d", 0, true},
		{"3h2d", 0, true},
		{"soon", 0, true},
		{"1d-2h", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) = %v, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{30 * time.Second, "30s"},
		{90 * time.Minute, "1h30m"},
		{36 * time.Hour, "1d12h"},
		{Week + 2*Day, "1w2d"},
		{-Day, "-1d"},
		{time.Minute + 500*time.Millisecond, "1m500ms"},
	}
	for _, tt := range tests {
		if got := Format(tt.in); got != tt.want {
			t.Errorf("Format(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	for _, d := range []time.Duration{10 * time.Second, 6 * time.Hour, 9 * Day, 3*Week + 5*time.Minute} {
		got, err := Parse(Format(d))
		if err != nil {
			t.Fatalf("Parse(Format(%v)) error: %v", d, err)
		}
		if got != d {
			t.Errorf("round trip of %v gave %v", d, got)
		}
	}
}
