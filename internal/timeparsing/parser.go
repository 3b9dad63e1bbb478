// Package timeparsing turns CLI date arguments into DICOM YYYYMMDD dates.
//
// Three layers are tried in order:
//  1. Compact duration (-2w, -6m, +1d) relative to now
//  2. Absolute date (2024-03-01 or 20240301)
//  3. Natural language ("last monday", "3 days ago") via olebedev/when
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

const dicomDateLayout = "20060102"

// compactDurationRe matches compact duration patterns: [+-]?(\d+)([dwmy])
// Examples: -1d, -2w, 3m, 1y
var compactDurationRe = regexp.MustCompile(`^([+-]?)(\d+)([dwmy])$`)

var nlParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// ParseDicomDate resolves a CLI date argument to YYYYMMDD. Empty input
// stays empty (open-ended range bound).
func ParseDicomDate(s string, now time.Time) (string, error) {
	if s == "" {
		return "", nil
	}

	if t, err := parseCompactDuration(s, now); err == nil {
		return t.Format(dicomDateLayout), nil
	}

	for _, layout := range []string{"2006-01-02", dicomDateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(dicomDateLayout), nil
		}
	}

	r, err := nlParser.Parse(s, now)
	if err == nil && r != nil {
		return r.Time.Format(dicomDateLayout), nil
	}
	return "", fmt.Errorf("unrecognized date %q (try 2024-03-01, -2w, or \"last monday\")", s)
}

// parseCompactDuration parses compact duration syntax relative to now.
// Units: d = days, w = weeks, m = months, y = years. A bare number with no
// sign counts forward.
func parseCompactDuration(s string, now time.Time) (time.Time, error) {
	matches := compactDurationRe.FindStringSubmatch(s)
	if matches == nil {
		return time.Time{}, fmt.Errorf("not a compact duration: %q", s)
	}

	amount, err := strconv.Atoi(matches[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid duration amount: %q", matches[2])
	}
	if matches[1] == "-" {
		amount = -amount
	}

	switch matches[3] {
	case "d":
		return now.AddDate(0, 0, amount), nil
	case "w":
		return now.AddDate(0, 0, amount*7), nil
	case "m":
		return now.AddDate(0, amount, 0), nil
	case "y":
		return now.AddDate(amount, 0, 0), nil
	}
	return now, nil
}
