package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNormalizeURLStripsTracking(t *testing.T) {
	got, err := NormalizeURL("  HTTPS://Example.EDU/award/?utm_source=x&fbclid=1&id=7#apply ")
	if err != nil {
		t.Fatalf("NormalizeURL: %v", err)
	}
	if got != "https://example.edu/award?id=7" {
		t.Fatalf("NormalizeURL got %q", got)
	}
}

func TestNormalizeURLRejectsNonHTTP(t *testing.T) {
	for _, raw := range []string{"", "ftp://example.com/x", "example.com/x", "https://"} {
		if _, err := NormalizeURL(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestNormalizeURLKeepsRootSlash(t *testing.T) {
	got, err := NormalizeURL("https://example.edu/")
	if err != nil {
		t.Fatalf("NormalizeURL: %v", err)
	}
	if got != "https://example.edu/" {
		t.Fatalf("NormalizeURL got %q", got)
	}
}

func TestNormalizeName(t *testing.T) {
	if got := NormalizeName("  ABC   Scholarship\t"); got != "abc scholarship" {
		t.Fatalf("NormalizeName got %q", got)
	}
}

func TestParseDeadlineFormats(t *testing.T) {
	loc := time.UTC
	cases := map[string]time.Time{
		"2020-01-01":             time.Date(2020, 1, 1, 23, 59, 59, 0, loc),
		"3/15/2025":              time.Date(2025, 3, 15, 23, 59, 59, 0, loc),
		"03-15-2025":             time.Date(2025, 3, 15, 23, 59, 59, 0, loc),
		"March 15, 2025":         time.Date(2025, 3, 15, 23, 59, 59, 0, loc),
		"Mar 1st, 2025":          time.Date(2025, 3, 1, 23, 59, 59, 0, loc),
		"Friday, March 14, 2025": time.Date(2025, 3, 14, 23, 59, 59, 0, loc),
		"15 March 2025":          time.Date(2025, 3, 15, 23, 59, 59, 0, loc),
		"2025-03-15T12:00:00Z":   time.Date(2025, 3, 15, 12, 0, 0, 0, loc),
		"Sept 5, 2019":           time.Date(2019, 9, 5, 23, 59, 59, 0, loc),
		"Sept. 5, 2019":          time.Date(2019, 9, 5, 23, 59, 59, 0, loc),
		"31 Dec. 2019":           time.Date(2019, 12, 31, 23, 59, 59, 0, loc),
		"31 Dec., 2019":          time.Date(2019, 12, 31, 23, 59, 59, 0, loc),
		"Thurs. Jan 9 2025":      time.Date(2025, 1, 9, 23, 59, 59, 0, loc),
	}
	for in, want := range cases {
		got, ok := ParseDeadline(in, loc)
		if !ok {
			t.Fatalf("ParseDeadline(%q) not parsed", in)
		}
		if !got.Equal(want) {
			t.Fatalf("ParseDeadline(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseDeadlineUnparsable(t *testing.T) {
	for _, in := range []string{"rolling", "", NotSpecified, "sometime in spring"} {
		if _, ok := ParseDeadline(in, time.UTC); ok {
			t.Fatalf("expected %q to be unparsable", in)
		}
	}
}

func TestParseDeadlineOnlyStripsRealWeekdays(t *testing.T) {
	// "Sunday" is stripped; "Sunset" is not a weekday and blocks parsing.
	if _, ok := ParseDeadline("Sunday March 2 2025", time.UTC); !ok {
		t.Fatalf("expected leading weekday to be stripped")
	}
	if _, ok := ParseDeadline("Sunset March 2 2025", time.UTC); ok {
		t.Fatalf("word starting with a weekday prefix must not be stripped")
	}
}

func TestIsExpired(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	if !IsExpired("2020-01-01", now, time.UTC) {
		t.Fatalf("2020-01-01 should be expired")
	}
	if IsExpired("rolling", now, time.UTC) {
		t.Fatalf("unparsable deadline must not expire")
	}
	sameDay := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	if IsExpired("2025-01-01", sameDay, time.UTC) {
		t.Fatalf("deadline day itself should not be expired")
	}
}

func TestParseAmount(t *testing.T) {
	cases := map[string]float64{
		"$5,000":             5000,
		"Up to $2,500.50/yr": 2500.5,
		"$10k":               10000,
		"1000":               1000,
		"$1.5 million":       1500000,
		"$2 Million award":   2000000,
		"$3K":                3000,
	}
	for in, want := range cases {
		got, ok := ParseAmount(in)
		if !ok || got != want {
			t.Fatalf("ParseAmount(%q) = %v,%v want %v", in, got, ok, want)
		}
	}
	if _, ok := ParseAmount("varies"); ok {
		t.Fatalf("expected no amount in free text")
	}
}

func TestRequirementsAcceptsStringOrList(t *testing.T) {
	var rec struct {
		Requirements Requirements `json:"requirements"`
	}
	if err := json.Unmarshal([]byte(`{"requirements":"GPA 3.0"}`), &rec); err != nil {
		t.Fatalf("unmarshal string: %v", err)
	}
	if len(rec.Requirements) != 1 || rec.Requirements[0] != "GPA 3.0" {
		t.Fatalf("unexpected requirements %#v", rec.Requirements)
	}
	if err := json.Unmarshal([]byte(`{"requirements":["a"," ","b"]}`), &rec); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(rec.Requirements) != 2 {
		t.Fatalf("expected blank entries dropped, got %#v", rec.Requirements)
	}
}

func TestBatchRunSummary(t *testing.T) {
	run := BatchRun{Results: []LinkOutcome{
		{Outcome: OutcomeAdded},
		{Outcome: OutcomeSkipped},
		{Outcome: OutcomeFailed},
		{Outcome: OutcomeFailed},
		{Outcome: OutcomeNotScholarship},
	}}
	s := run.Summary()
	if s.Total != 5 || s.Added != 1 || s.Skipped != 1 || s.Failed != 2 || s.NotScholarship != 1 {
		t.Fatalf("unexpected summary %+v", s)
	}
}
