package subtitle

import (
	"math"
	"math/rand"
	"regexp"
	"strconv"
	"testing"
	"time"
)

func TestFormatSeconds(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00:00,000"},
		{3661.5, "01:01:01,500"},
		{1.2, "00:00:01,200"},
		{3.0, "00:00:03,000"},
		{0.0005, "00:00:00,000"},
		{59.9999, "00:00:59,999"},
		{61.25, "00:01:01,250"},
		{86399.999, "23:59:59,999"},
		{360000, "100:00:00,000"},
		{-1, "00:00:00,000"},
		{4.35, "00:00:04,350"},
		{2.9999999999, "00:00:02,999"},
		{0.0009999999999, "00:00:00,000"},
		{9.2e9, "2555555:33:20,000"},
		{1e10, "2777777:46:40,000"},
		{1e12, "277777777:46:40,000"},
		{math.NaN(), "00:00:00,000"},
		{math.Inf(1), "00:00:00,000"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := FormatSeconds(tt.seconds); got != tt.want {
				t.Errorf("FormatSeconds(%v) = %q, want %q", tt.seconds, got, tt.want)
			}
		})
	}
}

func TestFormatTimestampTruncates(t *testing.T) {
	d := 2*time.Second + 999*time.Millisecond + 999*time.Microsecond
	if got := FormatTimestamp(d); got != "00:00:02,999" {
		t.Errorf("FormatTimestamp(%v) = %q, want truncation to 00:00:02,999", d, got)
	}
}

func TestFormatSecondsRoundTrip(t *testing.T) {
	pattern := regexp.MustCompile(`^(\d{2,}):(\d{2}):(\d{2}),(\d{3})$`)
	rng := rand.New(rand.NewSource(42))

	samples := []float64{
		0, 0.001, 0.999, 59.999, 60, 3599.999, 3600, 359999.999, 400000.123,
		9.2e9, 1e10, 123456789012.345, 1e12,
	}
	for i := 0; i < 500; i++ {
		samples = append(samples, rng.Float64()*500000)
	}

	for _, seconds := range samples {
		formatted := FormatSeconds(seconds)
		m := pattern.FindStringSubmatch(formatted)
		if m == nil {
			t.Fatalf("FormatSeconds(%v) = %q does not match SRT timestamp pattern", seconds, formatted)
		}

		var parts [4]float64
		for i := range parts {
			v, err := strconv.ParseFloat(m[i+1], 64)
			if err != nil {
				t.Fatalf("parse %q: %v", m[i+1], err)
			}
			parts[i] = v
		}
		if parts[1] > 59 || parts[2] > 59 {
			t.Fatalf("FormatSeconds(%v) = %q has out-of-range minutes or seconds", seconds, formatted)
		}

		back := parts[0]*3600 + parts[1]*60 + parts[2] + parts[3]/1000
		// float noise grows with magnitude; allow a few ulps below
		if diff := seconds - back; diff < -seconds*1e-15 || diff >= 0.001 {
			t.Errorf("round trip of %v via %q: got back %v", seconds, formatted, back)
		}
	}
}

func TestFormatSecondsMatchesFormatTimestamp(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 1000; i++ {
		seconds := rng.Float64() * 400000
		if a, b := FormatSeconds(seconds), FormatTimestamp(FromSeconds(seconds)); a != b {
			t.Errorf("%v: FormatSeconds = %q, FormatTimestamp(FromSeconds) = %q", seconds, a, b)
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{input: "00:00:00,000", want: 0},
		{input: "01:01:01,500", want: time.Hour + time.Minute + time.Second + 500*time.Millisecond},
		{input: "123:00:00,001", want: 123*time.Hour + time.Millisecond},
		{input: "00:00:01.200", wantErr: true},
		{input: "0:00:01,200", wantErr: true},
		{input: "00:61:00,000", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTimestamp(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseTimestamp(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestFromSeconds(t *testing.T) {
	tests := []struct {
		seconds float64
		want    time.Duration
	}{
		{1.2, 1200 * time.Millisecond},
		{8.470000267028809, 8470000267},
		{2.9999999999, 2999999999},
		{-3, 0},
		{math.NaN(), 0},
		{1e12, time.Duration(math.MaxInt64)},
	}

	for _, tt := range tests {
		if got := FromSeconds(tt.seconds); got != tt.want {
			t.Errorf("FromSeconds(%v) = %v, want %v", tt.seconds, got, tt.want)
		}
	}
}
