package extraction

import (
	"testing"
	"time"

	"github.com/mcroberts-scholars/scholarship-harvester/internal/domain"
)

func TestRuleExtractFullPage(t *testing.T) {
	text := domain.JoinSections([]domain.Section{
		{Label: domain.SectionTitle, Text: "Apply now - Example Foundation"},
		{Label: domain.SectionMetaDescription, Text: "The Example Foundation supports first-generation students."},
		{Label: domain.SectionHeading, Text: "About us"},
		{Label: domain.SectionHeading, Text: "Pathways STEM Grant"},
		{Label: domain.SectionParagraph, Text: "Each recipient receives €3,000 per year."},
		{Label: domain.SectionParagraph, Text: "Applications are due 2030-04-30."},
		{Label: domain.SectionListItem, Text: "Applicants must be enrolled in a STEM program"},
		{Label: domain.SectionListItem, Text: "Campus map"},
		{Label: domain.SectionListItem, Text: "Minimum GPA of 3.2"},
	})

	got := ruleExtract(text)
	if got.Name != "Pathways STEM Grant" {
		t.Fatalf("unexpected name %q", got.Name)
	}
	if got.Amount != "€3,000" {
		t.Fatalf("unexpected amount %q", got.Amount)
	}
	if got.Deadline != "2030-04-30" {
		t.Fatalf("unexpected deadline %q", got.Deadline)
	}
	if got.Description != "The Example Foundation supports first-generation students." {
		t.Fatalf("unexpected description %q", got.Description)
	}
	if len(got.Requirements) != 2 {
		t.Fatalf("unexpected requirements %#v", got.Requirements)
	}
	if !IsSufficient(got) {
		t.Fatalf("expected sufficient result")
	}
}

func TestRuleExtractFallsBackToTitle(t *testing.T) {
	got := ruleExtract("TITLE: Merit Award 2030 | State University\n\nPARAGRAPH: Nothing else here.")
	if got.Name != "Merit Award 2030" {
		t.Fatalf("unexpected name %q", got.Name)
	}
	if domain.Specified(got.Amount) || domain.Specified(got.Deadline) || got.HasRequirements() {
		t.Fatalf("expected sentinels, got %#v", got)
	}
}

func TestRuleExtractIgnoresDatesWithoutDeadlineKeyword(t *testing.T) {
	got := ruleExtract("PARAGRAPH: Posted on January 3, 2024 by staff")
	if domain.Specified(got.Deadline) {
		t.Fatalf("date without deadline keyword should be ignored, got %q", got.Deadline)
	}
}

func TestIsSufficient(t *testing.T) {
	base := domain.NewExtractionResult()

	cases := []struct {
		name string
		mod  func(r *domain.ExtractionResult)
		want bool
	}{
		{name: "nothing", mod: func(*domain.ExtractionResult) {}, want: false},
		{name: "name only", mod: func(r *domain.ExtractionResult) { r.Name = "Big Grant" }, want: false},
		{name: "name and amount", mod: func(r *domain.ExtractionResult) {
			r.Name, r.Amount = "Big Grant", "$500"
		}, want: false},
		{name: "name amount deadline", mod: func(r *domain.ExtractionResult) {
			r.Name, r.Amount, r.Deadline = "Big Grant", "$500", "May 1, 2030"
		}, want: true},
		{name: "name requirements description", mod: func(r *domain.ExtractionResult) {
			r.Name, r.Description = "Big Grant", "Support for nurses"
			r.Requirements = domain.Requirements{"Must be a nurse"}
		}, want: true},
		{name: "trivial name", mod: func(r *domain.ExtractionResult) {
			r.Name, r.Amount, r.Deadline = "Go", "$500", "May 1, 2030"
		}, want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := base
			tc.mod(&r)
			if got := IsSufficient(r); got != tc.want {
				t.Fatalf("IsSufficient = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRuleExtractedDeadlinesParse(t *testing.T) {
	cases := map[string]time.Time{
		"Application deadline: Sept 5, 2019.":    time.Date(2019, 9, 5, 0, 0, 0, 0, time.UTC),
		"Deadline is Sept. 5th, 2019":            time.Date(2019, 9, 5, 0, 0, 0, 0, time.UTC),
		"Deadline: 31 Dec. 2019":                 time.Date(2019, 12, 31, 0, 0, 0, 0, time.UTC),
		"Submit by 1st March, 2030":              time.Date(2030, 3, 1, 0, 0, 0, 0, time.UTC),
		"Due 2030/04/30 at noon":                 time.Date(2030, 4, 30, 0, 0, 0, 0, time.UTC),
		"Deadline: 4-30-2030":                    time.Date(2030, 4, 30, 0, 0, 0, 0, time.UTC),
		"The closing date is February 28th 2031": time.Date(2031, 2, 28, 0, 0, 0, 0, time.UTC),
	}
	for text, want := range cases {
		got := ruleExtract("PARAGRAPH: " + text)
		if !domain.Specified(got.Deadline) {
			t.Fatalf("no deadline extracted from %q", text)
		}
		parsed, ok := domain.ParseDeadline(got.Deadline, time.UTC)
		if !ok {
			t.Fatalf("extracted deadline %q from %q does not parse", got.Deadline, text)
		}
		if parsed.Year() != want.Year() || parsed.Month() != want.Month() || parsed.Day() != want.Day() {
			t.Fatalf("deadline %q parsed as %v, want %v", got.Deadline, parsed, want)
		}
	}
}

func TestRuleExtractedAmountsParse(t *testing.T) {
	cases := map[string]float64{
		"Awards of $1.5 million are shared":  1500000,
		"Winners receive $5k":                5000,
		"A prize of £2,500.50 is paid":       2500.5,
		"Each scholar gets 1,000 dollars":    1000,
		"Funding up to 750 USD per semester": 750,
	}
	for text, want := range cases {
		got := ruleExtract("PARAGRAPH: " + text)
		if !domain.Specified(got.Amount) {
			t.Fatalf("no amount extracted from %q", text)
		}
		v, ok := domain.ParseAmount(got.Amount)
		if !ok || v != want {
			t.Fatalf("amount %q from %q parsed as %v,%v want %v", got.Amount, text, v, ok, want)
		}
	}
}
