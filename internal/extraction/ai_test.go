package extraction

import (
	"errors"
	"strings"
	"testing"

	"github.com/mcroberts-scholars/scholarship-harvester/internal/domain"
)

func TestParseReplyEmbeddedInProse(t *testing.T) {
	reply, err := parseReply(`Sure! {"name": "Ocean Fellowship", "amount": 1500.5, "deadline": null, "requirements": [1, "Essay", {"k":"v"}]} Hope this helps.`)
	if err != nil {
		t.Fatalf("parseReply: %v", err)
	}
	if !reply.IsScholarship {
		t.Fatalf("is_scholarship should default to true")
	}
	d := reply.Data
	if d.Name != "Ocean Fellowship" || d.Amount != "1500.5" || d.Deadline != domain.NotSpecified {
		t.Fatalf("unexpected coercion %#v", d)
	}
	if len(d.Requirements) != 3 || d.Requirements[0] != "1" || d.Requirements[1] != "Essay" {
		t.Fatalf("unexpected requirements %#v", d.Requirements)
	}
}

func TestParseReplyStringBoolean(t *testing.T) {
	reply, err := parseReply("```\n{\"is_scholarship\": \"false\"}\n```")
	if err != nil {
		t.Fatalf("parseReply: %v", err)
	}
	if reply.IsScholarship {
		t.Fatalf("expected is_scholarship false")
	}
}

func TestParseReplyRejectsNonJSON(t *testing.T) {
	if _, err := parseReply("no structured data here"); !errors.Is(err, errNoJSON) {
		t.Fatalf("expected errNoJSON, got %v", err)
	}
	if _, err := parseReply("{not json}"); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestBuildPromptTruncatesPage(t *testing.T) {
	page := strings.Repeat("x", maxPromptChars+500)
	prompt := buildPrompt("https://example.edu", page)
	if strings.Count(prompt, "x") > maxPromptChars+10 {
		t.Fatalf("page text not truncated")
	}
	if !strings.Contains(prompt, `"is_scholarship"`) {
		t.Fatalf("prompt is missing the reply shape")
	}
}
