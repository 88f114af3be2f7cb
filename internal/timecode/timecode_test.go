package timecode

import "testing"

func TestFormatSeconds(t *testing.T) {
	tests := []struct {
		name    string
		seconds float64
		want    string
	}{
		{"zero", 0, "00:00.000"},
		{"fractional", 4.123, "00:04.123"},
		{"over a minute", 65.5, "01:05.500"},
		{"ten minutes", 600.25, "10:00.250"},
		{"negative clamps", -3, "00:00.000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatSeconds(tt.seconds); got != tt.want {
				t.Errorf("FormatSeconds(%v) = %q, want %q", tt.seconds, got, tt.want)
			}
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "0s"},
		{42.9, "42s"},
		{125, "2m 5s"},
		{3600, "60m 0s"},
	}

	for _, tt := range tests {
		if got := FormatDuration(tt.seconds); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestMillis(t *testing.T) {
	if got := Millis(4.1234); got != 4123 {
		t.Errorf("Millis(4.1234) = %d, want 4123", got)
	}
	if got := Millis(2.5006); got != 2501 {
		t.Errorf("Millis(2.5006) = %d, want 2501", got)
	}
}
