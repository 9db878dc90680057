package domain

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var trackingParams = map[string]struct{}{
	"fbclid":  {},
	"gclid":   {},
	"mc_cid":  {},
	"mc_eid":  {},
	"ref_src": {},
}

// NormalizeURL canonicalizes a submitted URL so that the same page reached
// through different tracking links maps to one record.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("url is empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("url has no host")
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	if u.RawQuery != "" {
		q := u.Query()
		for key := range q {
			lk := strings.ToLower(key)
			if _, drop := trackingParams[lk]; drop || strings.HasPrefix(lk, "utm_") {
				q.Del(key)
			}
		}
		u.RawQuery = q.Encode()
	}

	if len(u.Path) > 1 {
		u.Path = strings.TrimRight(u.Path, "/")
		if u.Path == "" {
			u.Path = "/"
		}
		u.RawPath = ""
	}

	return u.String(), nil
}

// NormalizeName is the catalog dedup key: lowercase, single spaces.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

var (
	ordinalSuffix  = regexp.MustCompile(`(?i)\b(\d{1,2})(st|nd|rd|th)\b`)
	leadingWeekday = regexp.MustCompile(
		`(?i)^(?:monday|tuesday|wednesday|thursday|friday|saturday|sunday|mon|tues?|wed|thu(?:rs?)?|fri|sat|sun)\b\.?,?\s+`)
	// "Sept", "Dec." and similar abbreviations, rewritten to the layout form.
	monthAbbrev = regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|jun|jul|aug|sep|oct|nov|dec)t?\.`)
	septAbbrev  = regexp.MustCompile(`(?i)\b(sep)t\b`)
)

// dateOnlyLayouts are tried in order; the first match wins.
var dateOnlyLayouts = []string{
	"2006-1-2",
	"1/2/2006",
	"1-2-2006",
	"2006/1/2",
	"January 2, 2006",
	"Jan 2, 2006",
	"January 2 2006",
	"Jan 2 2006",
	"2 January 2006",
	"2 Jan 2006",
	"2 January, 2006",
	"2 Jan, 2006",
}

// ParseDeadline parses a free-text deadline. Date-only values resolve to the
// last second of that day in loc. The second return is false when no known
// format matches; callers must treat that as "not expired".
func ParseDeadline(s string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}
	s = strings.Join(strings.Fields(s), " ")
	if !Specified(s) {
		return time.Time{}, false
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}

	s = leadingWeekday.ReplaceAllString(s, "")
	s = ordinalSuffix.ReplaceAllString(s, "$1")
	s = monthAbbrev.ReplaceAllString(s, "$1")
	s = septAbbrev.ReplaceAllString(s, "$1")
	s = strings.TrimRight(s, ".")

	for _, layout := range dateOnlyLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err != nil {
			continue
		}
		return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, loc), true
	}
	return time.Time{}, false
}

var amountPattern = regexp.MustCompile(`(?i)(\d[\d,]*(?:\.\d+)?)\s*(k\b|million\b)?`)

// ParseAmount returns the first number in s. Thousands separators are
// dropped, a k suffix multiplies by 1000 and "million" by 1e6.
func ParseAmount(s string) (float64, bool) {
	m := amountPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0, false
	}
	switch strings.ToLower(m[2]) {
	case "k":
		v *= 1e3
	case "million":
		v *= 1e6
	}
	return v, true
}

// IsExpired reports whether the deadline is known to be strictly before now.
func IsExpired(deadline string, now time.Time, loc *time.Location) bool {
	t, ok := ParseDeadline(deadline, loc)
	if !ok {
		return false
	}
	return t.Before(now)
}
