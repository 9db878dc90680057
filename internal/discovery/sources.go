package discovery

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultItemSelector   = "a[href]"
	defaultRequestDelayMs = 2000
)

type sourcesFile struct {
	Sources []Source `json:"sources" yaml:"sources"`
}

// Source is a listing page that links to individual scholarship pages.
// ItemSelector picks the listing entries; LinkSelector picks the anchor
// inside each entry (empty means the entry itself or its first anchor).
type Source struct {
	Name           string `json:"name" yaml:"name"`
	URL            string `json:"url" yaml:"url"`
	ItemSelector   string `json:"item_selector" yaml:"item_selector"`
	LinkSelector   string `json:"link_selector" yaml:"link_selector"`
	Enabled        *bool  `json:"enabled" yaml:"enabled"`
	RequestDelayMs int    `json:"request_delay_ms" yaml:"request_delay_ms"`
}

// EnabledValue returns the enabled flag, defaulting to false so new
// sources are opt-in.
func (s Source) EnabledValue() bool {
	return s.Enabled != nil && *s.Enabled
}

// RequestDelay is the pause after fetching this source.
func (s Source) RequestDelay() time.Duration {
	return time.Duration(s.RequestDelayMs) * time.Millisecond
}

// LoadSources reads and validates a sources file.
func LoadSources(path string) ([]Source, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("sources file path is empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}

	var file sourcesFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(raw, &file)
	default:
		err = yaml.Unmarshal(raw, &file)
	}
	if err != nil {
		return nil, fmt.Errorf("decode sources file: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Sources))
	out := make([]Source, 0, len(file.Sources))
	for i, src := range file.Sources {
		src = sanitizeSource(src)
		if err := validateSource(src); err != nil {
			return nil, fmt.Errorf("sources[%d]: %w", i, err)
		}
		key := strings.ToLower(src.Name)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("duplicate source name %q", src.Name)
		}
		seen[key] = struct{}{}
		out = append(out, src)
	}
	return out, nil
}

func sanitizeSource(s Source) Source {
	s.Name = strings.TrimSpace(s.Name)
	s.URL = strings.TrimSpace(s.URL)
	s.ItemSelector = strings.TrimSpace(s.ItemSelector)
	s.LinkSelector = strings.TrimSpace(s.LinkSelector)
	if s.ItemSelector == "" {
		s.ItemSelector = defaultItemSelector
	}
	if s.RequestDelayMs <= 0 {
		s.RequestDelayMs = defaultRequestDelayMs
	}
	return s
}

func validateSource(s Source) error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if !strings.HasPrefix(s.URL, "http://") && !strings.HasPrefix(s.URL, "https://") {
		return fmt.Errorf("source %q: url must be http(s)", s.Name)
	}
	return nil
}

// Enabled filters the enabled sources.
func Enabled(sources []Source) []Source {
	out := make([]Source, 0, len(sources))
	for _, s := range sources {
		if s.EnabledValue() {
			out = append(out, s)
		}
	}
	return out
}
