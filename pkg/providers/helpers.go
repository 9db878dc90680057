package providers

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/time/rate"
)

func responseSnippet(body []byte) string {
	const maxLen = 512
	s := strings.TrimSpace(string(body))
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	if s == "" {
		return "<empty>"
	}
	return s
}

// newLimiter spaces calls by the provider's request delay.
func newLimiter(cfg Provider) *rate.Limiter {
	return rate.NewLimiter(rate.Every(cfg.RequestDelay()), 1)
}

func waitTurn(ctx context.Context, limiter *rate.Limiter, providerID string) error {
	if limiter == nil {
		return nil
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %s: wait for rate limiter: %v", ErrRateLimited, providerID, err)
	}
	return nil
}

// classifyStatus maps a non-2xx status to the provider error taxonomy.
func classifyStatus(providerID string, status int, body []byte) error {
	if status == 429 {
		return fmt.Errorf("%w: %s returned status 429: %s", ErrRateLimited, providerID, responseSnippet(body))
	}
	return fmt.Errorf("%w: %s returned status %d: %s", ErrProviderUnavailable, providerID, status, responseSnippet(body))
}
