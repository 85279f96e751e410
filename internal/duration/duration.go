// Package duration renders elapsed time for tasks and subtasks as compound
// unit strings ("1分钟30秒", "1m 30s").
package duration

import (
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Placeholder is rendered when no meaningful duration exists.
const Placeholder = "-"

// Timed is implemented by anything with a start/finish window.
// Times are RFC3339 strings; empty means "not set".
type Timed interface {
	Window() (start, finish string, running bool)
}

// Units holds the display names of each unit. The strings are a locale
// concern; only the numeric decomposition lives here.
type Units struct {
	Day       string
	Hour      string
	Minute    string
	Second    string
	Separator string // Placed between unit groups
}

var (
	UnitsZH = Units{Day: "天", Hour: "小时", Minute: "分钟", Second: "秒"}
	UnitsEN = Units{Day: "d", Hour: "h", Minute: "m", Second: "s", Separator: " "}
)

// UnitsFor returns the unit table for a locale tag ("zh", "zh-CN", "en-US", ...).
// Unknown locales get Chinese units, matching the console's default locale.
func UnitsFor(locale string) Units {
	if strings.HasPrefix(strings.ToLower(locale), "en") {
		return UnitsEN
	}
	return UnitsZH
}

// Elapsed returns finish minus start. A running record uses now as its finish
// so the value advances on every refresh. ok is false when the record never
// started, when a timestamp cannot be parsed, or when a finished record has
// no finish time.
func Elapsed(t Timed, now time.Time) (d time.Duration, ok bool) {
	start, finish, running := t.Window()
	if start == "" {
		return 0, false
	}

	startAt, err := parseTime(start)
	if err != nil {
		return 0, false
	}

	var finishAt time.Time
	switch {
	case running:
		finishAt = now
	case finish == "":
		return 0, false
	default:
		finishAt, err = parseTime(finish)
		if err != nil {
			return 0, false
		}
	}

	return finishAt.Sub(startAt), true
}

// Compute renders the elapsed time of t. It returns Placeholder when the
// record never started or the elapsed time is not positive (clock skew,
// timestamps not yet effective).
func Compute(t Timed, now time.Time, units Units) string {
	d, ok := Elapsed(t, now)
	if !ok || d <= 0 {
		return Placeholder
	}
	return FormatSeconds(roundSeconds(d), units)
}

// roundSeconds keeps sub-second resolution for very fast work and drops the
// decimals once a full second has passed.
func roundSeconds(d time.Duration) float64 {
	sec := float64(d.Milliseconds()) / 1000
	if sec >= 1 {
		return math.Round(sec)
	}
	return math.Round(sec*100) / 100
}

// FormatSeconds decomposes sec into days, hours, minutes and seconds and
// renders the non-zero ones in descending order.
func FormatSeconds(sec float64, units Units) string {
	if sec < 0 || math.IsNaN(sec) || math.IsInf(sec, 0) {
		return Placeholder
	}

	days := math.Floor(sec / 86400)
	rem := sec - days*86400
	hours := math.Floor(rem / 3600)
	rem -= hours * 3600
	minutes := math.Floor(rem / 60)
	seconds := rem - minutes*60

	var parts []string
	if days > 0 {
		parts = append(parts, humanize.Ftoa(days)+units.Day)
	}
	if hours > 0 {
		parts = append(parts, humanize.Ftoa(hours)+units.Hour)
	}
	if minutes > 0 {
		parts = append(parts, humanize.Ftoa(minutes)+units.Minute)
	}
	if seconds > 0 {
		parts = append(parts, humanize.FtoaWithDigits(seconds, 2)+units.Second)
	}

	if len(parts) == 0 {
		return "0" + units.Second
	}
	return strings.Join(parts, units.Separator)
}

// parseTime accepts RFC3339 with or without fractional seconds.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
