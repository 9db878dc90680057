package providers

import "strings"

// ConfigString returns the trimmed string value for key from provider.Config or a fallback.
func ConfigString(cfg Provider, key, fallback string) string {
	if cfg.Config != nil {
		if raw, ok := cfg.Config[key]; ok {
			if val, ok := raw.(string); ok {
				if trimmed := strings.TrimSpace(val); trimmed != "" {
					return trimmed
				}
			}
		}
	}
	return fallback
}

// ConfigBool returns the boolean value for key from provider.Config or a fallback.
func ConfigBool(cfg Provider, key string, fallback bool) bool {
	if cfg.Config != nil {
		if raw, ok := cfg.Config[key]; ok {
			if val, ok := raw.(bool); ok {
				return val
			}
		}
	}
	return fallback
}

const (
	// ConfigJSONModeKey asks OpenAI-compatible APIs for a JSON object reply.
	ConfigJSONModeKey = "json_mode"
	// ConfigChatPathKey overrides the chat completions path.
	ConfigChatPathKey = "chat_path"
	// ConfigOrganizationKey sets the OpenAI-Organization header.
	ConfigOrganizationKey = "organization"
)

// Headers builds the extra request headers from a provider config (skips empty values).
func Headers(cfg Provider) map[string]string {
	headers := make(map[string]string, 1)
	if v := ConfigString(cfg, ConfigOrganizationKey, ""); v != "" {
		headers["OpenAI-Organization"] = v
	}
	return headers
}
