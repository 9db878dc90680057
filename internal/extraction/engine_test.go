package extraction

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/mcroberts-scholars/scholarship-harvester/internal/domain"
	"github.com/mcroberts-scholars/scholarship-harvester/pkg/providers"
)

type fakeCompleter struct {
	id    string
	reply string
	err   error
	calls *int
	last  *providers.CompletionRequest
}

func (f fakeCompleter) ID() string { return f.id }

func (f fakeCompleter) Complete(_ context.Context, req providers.CompletionRequest) (string, error) {
	if f.calls != nil {
		*f.calls++
	}
	if f.last != nil {
		*f.last = req
	}
	return f.reply, f.err
}

const nameAndAmountOnly = "TITLE: Bright Futures Scholarship | Example U\n\n" +
	"HEADING: Bright Futures Scholarship\n\n" +
	"PARAGRAPH: Win $2,500 toward tuition."

func TestExtractInvokesAIWhenRulesInsufficient(t *testing.T) {
	calls := 0
	var req providers.CompletionRequest
	reg := providers.NewCompleterRegistry(fakeCompleter{
		id:    "groq",
		calls: &calls,
		last:  &req,
		reply: "Here you go:\n```json\n" +
			`{"is_scholarship": true, "name": "Bright Futures", "amount": 9999, "deadline": "May 1, 2030", "description": "n/a", "requirements": ["Must be enrolled full time", ""]}` +
			"\n```",
	})
	engine := NewEngine([]providers.Provider{{ID: "groq"}}, reg, nil)

	rules := ruleExtract(nameAndAmountOnly)
	if rules.Name != "Bright Futures Scholarship" || rules.Amount != "$2,500" {
		t.Fatalf("unexpected rule pass %#v", rules)
	}
	if IsSufficient(rules) {
		t.Fatalf("name plus amount alone must not be sufficient")
	}

	res := engine.Extract(context.Background(), "https://example.edu/award", nameAndAmountOnly)
	if !res.OK {
		t.Fatalf("expected ok, got reason %q err %v", res.Reason, res.Err)
	}
	if calls != 1 {
		t.Fatalf("expected one ai call, got %d", calls)
	}
	if !strings.Contains(req.Prompt, "https://example.edu/award") || req.System == "" {
		t.Fatalf("unexpected prompt %#v", req)
	}
	if res.Method != MethodMerged || res.ProviderID != "groq" {
		t.Fatalf("unexpected method %s provider %s", res.Method, res.ProviderID)
	}
	if res.Data.Name != "Bright Futures Scholarship" || res.Data.Amount != "$2,500" {
		t.Fatalf("rule values must win: %#v", res.Data)
	}
	if res.Data.Deadline != "May 1, 2030" || res.Data.Description != domain.NotSpecified {
		t.Fatalf("unexpected merged data %#v", res.Data)
	}
	if len(res.Data.Requirements) != 1 || res.Data.Requirements[0] != "Must be enrolled full time" {
		t.Fatalf("unexpected requirements %#v", res.Data.Requirements)
	}
}

func TestExtractSkipsAIWhenRulesSufficient(t *testing.T) {
	calls := 0
	reg := providers.NewCompleterRegistry(fakeCompleter{id: "groq", calls: &calls})
	engine := NewEngine([]providers.Provider{{ID: "groq"}}, reg, nil)

	text := nameAndAmountOnly + "\n\nTEXT: Application deadline: March 15th, 2030"
	res := engine.Extract(context.Background(), "https://example.edu/award", text)
	if !res.OK || res.Method != MethodRules {
		t.Fatalf("expected rule result, got %#v", res)
	}
	if res.Data.Deadline != "March 15th, 2030" {
		t.Fatalf("unexpected deadline %q", res.Data.Deadline)
	}
	if calls != 0 {
		t.Fatalf("ai should not be called, got %d calls", calls)
	}
}

func TestExtractNotScholarship(t *testing.T) {
	reg := providers.NewCompleterRegistry(fakeCompleter{
		id:    "groq",
		reply: `{"is_scholarship": false, "name": "Not specified"}`,
	})
	engine := NewEngine([]providers.Provider{{ID: "groq"}}, reg, nil)

	res := engine.Extract(context.Background(), "https://example.com/blog", "TITLE: Ten tips for spring\n\nPARAGRAPH: Plant early.")
	if res.OK || res.Reason != domain.ReasonNotScholarship {
		t.Fatalf("expected not_scholarship, got %#v", res)
	}
	var ee *domain.ExtractionError
	if !errors.As(res.Error(), &ee) || ee.Retryable() {
		t.Fatalf("not_scholarship must be terminal, got %v", res.Error())
	}
}

func TestExtractFallsThroughProvidersThenReportsUnavailable(t *testing.T) {
	firstCalls, secondCalls := 0, 0
	reg := providers.NewCompleterRegistry(
		fakeCompleter{id: "groq", err: providers.ErrRateLimited, calls: &firstCalls},
		fakeCompleter{id: "mistral", reply: "I cannot help with that.", calls: &secondCalls},
	)
	engine := NewEngine([]providers.Provider{{ID: "groq"}, {ID: "mistral"}}, reg, nil)

	res := engine.Extract(context.Background(), "https://example.edu/award", nameAndAmountOnly)
	if res.OK || res.Reason != domain.ReasonAIUnavailable {
		t.Fatalf("expected ai_unavailable, got %#v", res)
	}
	if firstCalls != 1 || secondCalls != 1 {
		t.Fatalf("expected both providers tried, got %d/%d", firstCalls, secondCalls)
	}
	if !errors.Is(res.Err, providers.ErrRateLimited) || !errors.Is(res.Err, errNoJSON) {
		t.Fatalf("expected joined provider errors, got %v", res.Err)
	}
	var ee *domain.ExtractionError
	if !errors.As(res.Error(), &ee) || !ee.Retryable() {
		t.Fatalf("ai_unavailable must be retryable")
	}
}

func TestExtractSecondProviderSucceeds(t *testing.T) {
	reg := providers.NewCompleterRegistry(
		fakeCompleter{id: "groq", err: providers.ErrProviderUnavailable},
		fakeCompleter{id: "claude", reply: `{"name":"x","deadline":"2030-01-01","requirements":"Must be 18"}`},
	)
	engine := NewEngine([]providers.Provider{{ID: "groq"}, {ID: "claude"}}, reg, nil)

	res := engine.Extract(context.Background(), "https://example.edu/award", nameAndAmountOnly)
	if !res.OK || res.ProviderID != "claude" {
		t.Fatalf("expected claude result, got %#v", res)
	}
	if res.Data.Requirements.String() != "Must be 18" {
		t.Fatalf("single string requirements not coerced: %#v", res.Data.Requirements)
	}
}

func TestExtractWithoutProviders(t *testing.T) {
	engine := NewEngine(nil, nil, nil)
	res := engine.Extract(context.Background(), "https://example.edu/award", nameAndAmountOnly)
	if res.OK || res.Reason != domain.ReasonAIUnavailable {
		t.Fatalf("expected ai_unavailable, got %#v", res)
	}
}

func TestExtractEmptyPage(t *testing.T) {
	engine := NewEngine(nil, nil, nil)
	res := engine.Extract(context.Background(), "https://example.edu/award", "  ")
	if res.OK || res.Reason != domain.ReasonContentFetchFailed {
		t.Fatalf("expected content_fetch_failed, got %#v", res)
	}
}
