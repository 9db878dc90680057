package extraction

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/mcroberts-scholars/scholarship-harvester/internal/domain"
)

const (
	minNameLen         = 4
	minDescriptionLen  = 40
	maxDescriptionLen  = 500
	maxRequirements    = 10
	sufficientFieldMin = 2
)

var (
	nameKeywords        = []string{"scholarship", "grant", "award", "fellowship", "bursary"}
	deadlineKeywords    = []string{"deadline", "due", "submit by", "apply by", "closes", "closing date"}
	requirementKeywords = []string{"must", "eligib", "require", "minimum", "applicants", "open to"}

	amountPattern = regexp.MustCompile(
		`(?i)(?:[$£€₹]\s?\d[\d,]*(?:\.\d{1,2})?(?:\s?(?:k\b|million\b))?)|(?:\b\d[\d,]*(?:\.\d{1,2})?\s?(?:usd|dollars)\b)`)

	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}\b`),
		regexp.MustCompile(`(?i)\b\d{1,2}(?:st|nd|rd|th)?\s+(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?,?\s+\d{4}\b`),
		regexp.MustCompile(`\b\d{4}[-/]\d{1,2}[-/]\d{1,2}\b`),
		regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{4}\b`),
	}
)

// ruleExtract runs the heuristic pass over linearized page text. Fields it
// cannot find are left as domain.NotSpecified.
func ruleExtract(pageText string) domain.ExtractionResult {
	sections := domain.SplitSections(pageText)
	out := domain.NewExtractionResult()

	if name := findName(sections); name != "" {
		out.Name = name
	}
	if amount := findAmount(sections); amount != "" {
		out.Amount = amount
	}
	if deadline := findDeadline(sections); deadline != "" {
		out.Deadline = deadline
	}
	if desc := findDescription(sections); desc != "" {
		out.Description = desc
	}
	out.Requirements = findRequirements(sections)
	return out
}

// IsSufficient reports whether a result can be trusted without the AI
// fallback: a non-trivial name plus at least two of amount, deadline,
// requirements and description.
func IsSufficient(r domain.ExtractionResult) bool {
	if !domain.Specified(r.Name) || utf8.RuneCountInString(strings.TrimSpace(r.Name)) < minNameLen {
		return false
	}
	present := 0
	for _, v := range []string{r.Amount, r.Deadline, r.Description} {
		if domain.Specified(v) {
			present++
		}
	}
	if r.HasRequirements() {
		present++
	}
	return present >= sufficientFieldMin
}

func findName(sections []domain.Section) string {
	var title string
	for _, s := range sections {
		switch s.Label {
		case domain.SectionHeading:
			if containsAny(s.Text, nameKeywords) {
				return s.Text
			}
		case domain.SectionTitle:
			if title == "" {
				title = trimTitleSuffix(s.Text)
			}
		}
	}
	return title
}

// trimTitleSuffix drops a trailing " | Site" or " - Site" from page titles.
func trimTitleSuffix(title string) string {
	for _, sep := range []string{" | ", " – ", " - "} {
		if i := strings.LastIndex(title, sep); i > 0 {
			head := strings.TrimSpace(title[:i])
			if utf8.RuneCountInString(head) >= minNameLen {
				return head
			}
		}
	}
	return strings.TrimSpace(title)
}

func findAmount(sections []domain.Section) string {
	for _, s := range sections {
		if m := amountPattern.FindString(s.Text); m != "" {
			return strings.TrimSpace(m)
		}
	}
	return ""
}

func findDeadline(sections []domain.Section) string {
	for _, s := range sections {
		if !containsAny(s.Text, deadlineKeywords) {
			continue
		}
		for _, re := range datePatterns {
			if m := re.FindString(s.Text); m != "" {
				return strings.TrimSpace(m)
			}
		}
	}
	return ""
}

func findDescription(sections []domain.Section) string {
	for _, s := range sections {
		if s.Label == domain.SectionMetaDescription {
			return truncate(s.Text, maxDescriptionLen)
		}
	}
	for _, s := range sections {
		if s.Label == domain.SectionParagraph && utf8.RuneCountInString(s.Text) >= minDescriptionLen {
			return truncate(s.Text, maxDescriptionLen)
		}
	}
	return ""
}

func findRequirements(sections []domain.Section) domain.Requirements {
	var out domain.Requirements
	for _, s := range sections {
		if s.Label != domain.SectionListItem || !containsAny(s.Text, requirementKeywords) {
			continue
		}
		out = append(out, s.Text)
		if len(out) == maxRequirements {
			break
		}
	}
	return out
}

func containsAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:max])) + "…"
}
