// Package timeparsing provides layered parsing for the duration and age
// expressions dex accepts on the command line and in config.
//
// Two grammars coexist deliberately:
//   - sync durations: \d+(s|m|h|d|w|mo) where m is minutes and mo is months
//   - archive ages:   \d+(d|w|m) where m is months (30-day approximation)
//
// ParseRelative layers a natural-language fallback ("last month", "2 weeks
// ago") over the compact grammar.
package timeparsing

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

// Day and month lengths used by both grammars. Months are 30-day
// approximations.
const (
	Day   = 24 * time.Hour
	Week  = 7 * Day
	Month = 30 * Day
)

// durationRe matches sync duration syntax: 30s, 5m, 1h, 1d, 2w, 1mo.
var durationRe = regexp.MustCompile(`^(\d+)(s|m|h|d|w|mo)$`)

// ageRe matches archive age syntax: 90d, 4w, 3m.
var ageRe = regexp.MustCompile(`^(\d+)(d|w|m)$`)

// ParseDuration parses the sync duration grammar ("m" = minutes,
// "mo" = months). Used for sync.github.auto.max_age.
func ParseDuration(s string) (time.Duration, error) {
	matches := durationRe.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("invalid duration %q: want <n>(s|m|h|d|w|mo), e.g. 30m or 1d", s)
	}
	n, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, fmt.Errorf("invalid duration amount %q", matches[1])
	}
	switch matches[2] {
	case "s":
		return time.Duration(n) * time.Second, nil
	case "m":
		return time.Duration(n) * time.Minute, nil
	case "h":
		return time.Duration(n) * time.Hour, nil
	case "d":
		return time.Duration(n) * Day, nil
	case "w":
		return time.Duration(n) * Week, nil
	case "mo":
		return time.Duration(n) * Month, nil
	}
	return 0, fmt.Errorf("invalid duration unit %q", matches[2])
}

// ParseAge parses the archive age grammar ("m" = months). Used for
// archive --older-than.
func ParseAge(s string) (time.Duration, error) {
	matches := ageRe.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("invalid age %q: want <n>(d|w|m), e.g. 90d or 3m", s)
	}
	n, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0, fmt.Errorf("invalid age amount %q", matches[1])
	}
	switch matches[2] {
	case "d":
		return time.Duration(n) * Day, nil
	case "w":
		return time.Duration(n) * Week, nil
	case "m":
		return time.Duration(n) * Month, nil
	}
	return 0, fmt.Errorf("invalid age unit %q", matches[2])
}

// ParseRelative resolves a point in time from either the compact age
// grammar (interpreted as "that long before now") or a natural-language
// expression such as "last month" or "3 weeks ago".
func ParseRelative(s string, now time.Time) (time.Time, error) {
	if age, err := ParseAge(s); err == nil {
		return now.Add(-age), nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	result, err := w.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %q: %w", s, err)
	}
	if result == nil {
		return time.Time{}, fmt.Errorf("unrecognized time expression %q", s)
	}
	return result.Time, nil
}
