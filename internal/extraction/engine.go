package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mcroberts-scholars/scholarship-harvester/internal/domain"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/logger"
	"github.com/mcroberts-scholars/scholarship-harvester/pkg/providers"
)

// Method records which pass produced a result.
type Method string

const (
	MethodRules  Method = "rules"
	MethodMerged Method = "rules+ai"
)

// Result is the outcome of one extraction. When OK is false, Reason is one
// of domain.ReasonNotScholarship, domain.ReasonAIUnavailable or
// domain.ReasonContentFetchFailed.
type Result struct {
	OK         bool
	Data       domain.ExtractionResult
	Reason     string
	Method     Method
	ProviderID string
	Err        error
}

// Error returns the failure as a *domain.ExtractionError, or nil.
func (r Result) Error() error {
	if r.OK {
		return nil
	}
	return &domain.ExtractionError{Reason: r.Reason, Err: r.Err}
}

// Engine turns page text into a scholarship record.
type Engine struct {
	providers []providers.Provider
	registry  providers.CompleterRegistry
	log       logger.Logger
}

// NewEngine builds an engine that falls back to the given providers in order.
// An empty provider list disables the AI fallback.
func NewEngine(enabled []providers.Provider, reg providers.CompleterRegistry, log logger.Logger) *Engine {
	return &Engine{
		providers: enabled,
		registry:  reg,
		log:       logger.Ensure(log),
	}
}

// Extract runs the rule pass and, when its result is insufficient, the AI
// fallback. It never writes to storage.
func (e *Engine) Extract(ctx context.Context, url, pageText string) Result {
	if strings.TrimSpace(pageText) == "" {
		return Result{Reason: domain.ReasonContentFetchFailed, Err: errors.New("page has no text")}
	}

	rules := ruleExtract(pageText)
	if IsSufficient(rules) {
		e.log.DebugObj("rule extraction sufficient", "extraction", map[string]any{
			"url":  url,
			"name": rules.Name,
		})
		return Result{OK: true, Data: rules, Method: MethodRules}
	}

	reply, providerID, err := e.askAI(ctx, url, pageText)
	if err != nil {
		e.log.WarnObj("ai extraction unavailable", "extraction", map[string]any{
			"url":   url,
			"error": err.Error(),
		})
		return Result{Reason: domain.ReasonAIUnavailable, Err: err}
	}
	if !reply.IsScholarship {
		return Result{Reason: domain.ReasonNotScholarship, ProviderID: providerID, Method: MethodMerged}
	}

	merged := merge(rules, reply.Data)
	if !domain.Specified(merged.Name) || len([]rune(strings.TrimSpace(merged.Name))) < minNameLen {
		return Result{Reason: domain.ReasonNotScholarship, ProviderID: providerID, Method: MethodMerged}
	}

	e.log.DebugObj("ai extraction merged", "extraction", map[string]any{
		"url":         url,
		"name":        merged.Name,
		"provider_id": providerID,
	})
	return Result{OK: true, Data: merged, Method: MethodMerged, ProviderID: providerID}
}

// askAI tries each enabled provider in order until one returns a parseable reply.
func (e *Engine) askAI(ctx context.Context, url, pageText string) (aiReply, string, error) {
	if len(e.providers) == 0 || e.registry == nil {
		return aiReply{}, "", errors.New("no ai providers configured")
	}

	req := providers.CompletionRequest{System: systemPrompt, Prompt: buildPrompt(url, pageText)}
	var errs []error
	for _, cfg := range e.providers {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		completer, err := e.registry.CompleterFor(cfg)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		raw, err := completer.Complete(ctx, req)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		reply, err := parseReply(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("provider %s: %w", cfg.ID, err))
			continue
		}
		return reply, cfg.ID, nil
	}
	return aiReply{}, "", errors.Join(errs...)
}

// merge keeps rule values and fills the gaps from the AI reply.
func merge(rules, ai domain.ExtractionResult) domain.ExtractionResult {
	out := rules
	if !domain.Specified(out.Name) {
		out.Name = ai.Name
	}
	if !domain.Specified(out.Deadline) {
		out.Deadline = ai.Deadline
	}
	if !domain.Specified(out.Amount) {
		out.Amount = ai.Amount
	}
	if !domain.Specified(out.Description) {
		out.Description = ai.Description
	}
	if !out.HasRequirements() {
		out.Requirements = ai.Requirements
	}
	return out
}
