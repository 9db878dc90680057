package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLoggerWritesObjectField(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	log := New(zap.New(core))

	log.InfoObj("link stored", "link", map[string]any{"url": "https://example.edu"})
	log.DebugObj("debug", "k", 1)

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	link, ok := fields["link"].(map[string]any)
	if !ok || link["url"] != "https://example.edu" {
		t.Fatalf("unexpected field %#v", fields["link"])
	}
}

func TestEnsureReturnsNopForNil(t *testing.T) {
	log := Ensure(nil)
	if _, ok := log.(NopLogger); !ok {
		t.Fatalf("expected NopLogger, got %T", log)
	}
	log.ErrorObj("ignored", "k", nil)
}

func TestPackageHelpersNoopBeforeInit(t *testing.T) {
	S = nil
	InfoObj("x", "k", 1)
	if err := Close(); err != nil {
		t.Fatalf("Close without init: %v", err)
	}
}
