package subtitle

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"
)

// few ulps of float64; absorbs representation error such as 4.35*1000 landing
// at 4349.999999999999 without lifting genuinely smaller values
const floatSlack = 4 * 0x1p-52

// floors v after nudging it up by floatSlack
func floorSnap(v float64) float64 {
	return math.Floor(v + v*floatSlack)
}

// FromSeconds converts engine float seconds to a Duration, truncated to the
// nanosecond. Values past the Duration range saturate; negative and NaN
// values give zero.
func FromSeconds(seconds float64) time.Duration {
	if !(seconds > 0) {
		return 0
	}
	ns := floorSnap(seconds * float64(time.Second))
	if ns >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(ns)
}

// FormatSeconds renders seconds as HH:MM:SS,mmm: whole hours, minutes and
// seconds, then milliseconds truncated. Hours are unbounded. Negative and
// non-finite input renders as zero.
func FormatSeconds(seconds float64) string {
	if !(seconds > 0) || math.IsInf(seconds, 1) {
		seconds = 0
	}
	ms := floorSnap(seconds * 1000)

	hours := math.Floor(ms / 3_600_000)
	minutes := int64(math.Mod(ms, 3_600_000) / 60_000)
	secs := int64(math.Mod(ms, 60_000) / 1000)
	millis := int64(math.Mod(ms, 1000))

	return fmt.Sprintf("%02.0f:%02d:%02d,%03d", hours, minutes, secs, millis)
}

// FormatTimestamp renders d as HH:MM:SS,mmm. Sub-millisecond precision is
// truncated, hours are not wrapped, negative values render as zero.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := int64(d / time.Millisecond)

	hours := ms / 3_600_000
	minutes := ms % 3_600_000 / 60_000
	seconds := ms % 60_000 / 1000
	millis := ms % 1000

	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, millis)
}

var timestampRegex = regexp.MustCompile(`^(\d{2,}):(\d{2}):(\d{2}),(\d{3})$`)

// ParseTimestamp is the inverse of FormatTimestamp.
func ParseTimestamp(s string) (time.Duration, error) {
	m := timestampRegex.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid SRT timestamp %q", s)
	}
	return parseSRTTimestamp(m[1], m[2], m[3], m[4])
}

func parseSRTTimestamp(
	hours, minutes, seconds, millis string,
) (time.Duration, error) {
	h, err := strconv.Atoi(hours)
	if err != nil {
		return 0, err
	}
	m, err := strconv.Atoi(minutes)
	if err != nil {
		return 0, err
	}
	s, err := strconv.Atoi(seconds)
	if err != nil {
		return 0, err
	}
	ms, err := strconv.Atoi(millis)
	if err != nil {
		return 0, err
	}
	if m > 59 || s > 59 {
		return 0, fmt.Errorf("minutes and seconds must be below 60")
	}

	return time.Duration(h)*time.Hour +
		time.Duration(m)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(ms)*time.Millisecond, nil
}
