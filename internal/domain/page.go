package domain

import "strings"

// Section labels used when a page is linearized into plain text. Each section
// is written as "LABEL: text" and sections are separated by a blank line.
const (
	SectionTitle           = "TITLE"
	SectionMetaDescription = "META DESCRIPTION"
	SectionHeading         = "HEADING"
	SectionParagraph       = "PARAGRAPH"
	SectionListItem        = "LIST ITEM"
	SectionText            = "TEXT"

	sectionSeparator = "\n\n"
)

// Section is one labelled block of page text.
type Section struct {
	Label string
	Text  string
}

// PageContent is the fetched and linearized form of one URL.
type PageContent struct {
	URL   string
	Title string
	Text  string
}

// JoinSections renders sections into the linearized text form.
func JoinSections(sections []Section) string {
	parts := make([]string, 0, len(sections))
	for _, s := range sections {
		if s.Text == "" {
			continue
		}
		parts = append(parts, s.Label+": "+s.Text)
	}
	return strings.Join(parts, sectionSeparator)
}

var sectionLabels = []string{
	SectionMetaDescription,
	SectionTitle,
	SectionHeading,
	SectionParagraph,
	SectionListItem,
	SectionText,
}

// SplitSections parses linearized text back into sections. Blocks without a
// known label are kept as TEXT.
func SplitSections(text string) []Section {
	var out []Section
	for _, block := range strings.Split(text, sectionSeparator) {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		sec := Section{Label: SectionText, Text: block}
		for _, label := range sectionLabels {
			if rest, ok := strings.CutPrefix(block, label+":"); ok {
				sec = Section{Label: label, Text: strings.TrimSpace(rest)}
				break
			}
		}
		out = append(out, sec)
	}
	return out
}
