package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Package providers contains the AI completion provider configs (YAML/JSON)
// and their clients.

const (
	TypeOpenAIChat = "openai_chat"
	TypeAnthropic  = "anthropic"

	defaultRequestDelayMs = 1000
	defaultTimeoutSeconds = 30
	defaultMaxTokens      = 1024
	defaultTemperature    = 0.1
)

type Provider struct {
	ID             string         `json:"id" yaml:"id"`
	Name           string         `json:"name" yaml:"name"`
	Type           string         `json:"type" yaml:"type"`
	BaseURL        string         `json:"base_url" yaml:"base_url"`
	Model          string         `json:"model" yaml:"model"`
	APIKeyEnv      string         `json:"api_key_env" yaml:"api_key_env"`
	Enabled        *bool          `json:"enabled" yaml:"enabled"`
	RequestDelayMs int            `json:"request_delay_ms" yaml:"request_delay_ms"`
	TimeoutSeconds int            `json:"timeout_seconds" yaml:"timeout_seconds"`
	MaxTokens      int            `json:"max_tokens" yaml:"max_tokens"`
	Temperature    *float64       `json:"temperature" yaml:"temperature"`
	Config         map[string]any `json:"config" yaml:"config"`
}

type registryFile struct {
	Providers []Provider `json:"providers" yaml:"providers"`
}

// Registry holds the provider definitions in file order.
type Registry struct {
	mu        sync.RWMutex
	providers []Provider
	idx       map[string]Provider
}

// NewRegistry builds a registry from in-memory definitions.
func NewRegistry(list []Provider) (*Registry, error) {
	reg := &Registry{
		providers: make([]Provider, 0, len(list)),
		idx:       make(map[string]Provider, len(list)),
	}
	for i := range list {
		p := sanitizeProvider(list[i])
		if err := validateProvider(p); err != nil {
			return nil, fmt.Errorf("provider[%d]: %w", i, err)
		}
		if _, exists := reg.idx[p.ID]; exists {
			return nil, fmt.Errorf("duplicate provider id %q", p.ID)
		}
		reg.providers = append(reg.providers, p)
		reg.idx[p.ID] = p
	}
	return reg, nil
}

// LoadRegistry loads the provider registry from file.
func LoadRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("providers file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open providers file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read providers file: %w", err)
	}

	parsed, err := parseRegistry(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}

	if len(parsed.Providers) == 0 {
		return nil, errors.New("providers file contains no providers entries")
	}
	return NewRegistry(parsed.Providers)
}

// All returns a copy of the loaded providers in file order.
func (r *Registry) All() []Provider {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Provider, len(r.providers))
	copy(out, r.providers)
	return out
}

// Enabled returns the enabled providers in file order.
func (r *Registry) Enabled() []Provider {
	var out []Provider
	for _, p := range r.All() {
		if p.EnabledValue() {
			out = append(out, p)
		}
	}
	return out
}

// ByID returns the provider entry for the given id, if loaded.
func (r *Registry) ByID(id string) (Provider, bool) {
	id = strings.TrimSpace(id)
	if r == nil || id == "" {
		return Provider{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.idx[id]
	return p, ok
}

func parseRegistry(data []byte, ext string) (registryFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))

	decoders := []struct {
		name string
		ext  string
		fn   unmarshalFn
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		if reg, err := unmarshalRegistry(d.name, data, d.fn); err == nil {
			return reg, nil
		}
	}

	return registryFile{}, errors.New("providers file format not recognized (expected YAML or JSON)")
}

type unmarshalFn func([]byte, any) error

func unmarshalRegistry(name string, data []byte, fn unmarshalFn) (registryFile, error) {
	var reg registryFile
	if err := fn(data, &reg); err != nil {
		return registryFile{}, fmt.Errorf("decode %s providers: %w", name, err)
	}
	return reg, nil
}

func sanitizeProvider(p Provider) Provider {
	p.ID = strings.TrimSpace(p.ID)
	p.Name = strings.TrimSpace(p.Name)
	p.Type = strings.ToLower(strings.TrimSpace(p.Type))
	p.BaseURL = strings.TrimRight(strings.TrimSpace(p.BaseURL), "/")
	p.Model = strings.TrimSpace(p.Model)
	p.APIKeyEnv = strings.TrimSpace(p.APIKeyEnv)

	if p.Config == nil {
		p.Config = map[string]any{}
	}
	if p.Enabled == nil {
		def := true
		p.Enabled = &def
	}
	if p.RequestDelayMs <= 0 {
		p.RequestDelayMs = defaultRequestDelayMs
	}
	if p.TimeoutSeconds <= 0 {
		p.TimeoutSeconds = defaultTimeoutSeconds
	}
	if p.MaxTokens <= 0 {
		p.MaxTokens = defaultMaxTokens
	}
	if p.Temperature == nil {
		t := defaultTemperature
		p.Temperature = &t
	}
	if p.Name == "" {
		p.Name = p.ID
	}

	return p
}

func validateProvider(p Provider) error {
	if p.ID == "" {
		return errors.New("id is required")
	}
	if p.Type == "" {
		return fmt.Errorf("type is required for provider %q", p.ID)
	}
	if p.Type != TypeOpenAIChat && p.Type != TypeAnthropic {
		return fmt.Errorf("unsupported type %q for provider %q", p.Type, p.ID)
	}
	if p.Model == "" {
		return fmt.Errorf("model is required for provider %q", p.ID)
	}
	if p.Type == TypeOpenAIChat && p.BaseURL == "" {
		return fmt.Errorf("base_url is required for provider %q", p.ID)
	}
	if p.APIKeyEnv == "" {
		return fmt.Errorf("api_key_env is required for provider %q", p.ID)
	}
	return nil
}

// EnabledValue returns enabled flag defaulting to true.
func (p Provider) EnabledValue() bool {
	if p.Enabled == nil {
		return true
	}
	return *p.Enabled
}

// RequestDelay returns the minimum spacing between calls to the provider.
func (p Provider) RequestDelay() time.Duration {
	if p.RequestDelayMs <= 0 {
		return time.Duration(defaultRequestDelayMs) * time.Millisecond
	}
	return time.Duration(p.RequestDelayMs) * time.Millisecond
}

// Timeout returns the per-call timeout.
func (p Provider) Timeout() time.Duration {
	if p.TimeoutSeconds <= 0 {
		return time.Duration(defaultTimeoutSeconds) * time.Second
	}
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// TemperatureValue returns the sampling temperature.
func (p Provider) TemperatureValue() float64 {
	if p.Temperature == nil {
		return defaultTemperature
	}
	return *p.Temperature
}

// APIKey reads the provider key from the environment.
func (p Provider) APIKey() string {
	if p.APIKeyEnv == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(p.APIKeyEnv))
}
