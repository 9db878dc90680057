package extraction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/mcroberts-scholars/scholarship-harvester/internal/domain"
)

const maxPromptChars = 12000

const systemPrompt = `You extract scholarship details from web pages. Use only information that is explicitly stated on the page.
Never guess or invent values. When a field is not stated, use the exact string "Not specified".
Reply with a single JSON object and nothing else.`

var errNoJSON = errors.New("reply contains no JSON object")

// buildPrompt renders the user prompt for one page.
func buildPrompt(url, pageText string) string {
	if utf8.RuneCountInString(pageText) > maxPromptChars {
		pageText = string([]rune(pageText)[:maxPromptChars])
	}

	var sb strings.Builder
	sb.WriteString("Extract the scholarship described on this page.\n\n")
	sb.WriteString("URL: ")
	sb.WriteString(url)
	sb.WriteString("\n\nReturn JSON with exactly these keys:\n")
	sb.WriteString(`{
  "is_scholarship": true or false,
  "name": "official scholarship name",
  "deadline": "application deadline as written on the page",
  "amount": "award amount as written on the page",
  "description": "one or two sentence summary",
  "requirements": ["each eligibility requirement as a separate string"]
}`)
	sb.WriteString("\n\nSet is_scholarship to false when the page does not describe a scholarship, grant, fellowship or award.\n\n")
	sb.WriteString("PAGE CONTENT:\n")
	sb.WriteString(pageText)
	return sb.String()
}

// aiReply is the coerced form of a model reply.
type aiReply struct {
	IsScholarship bool
	Data          domain.ExtractionResult
}

// parseReply locates the JSON object in a model reply and coerces it into
// the fixed extraction shape. Unknown keys are ignored.
func parseReply(raw string) (aiReply, error) {
	body, err := locateJSON(raw)
	if err != nil {
		return aiReply{}, err
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return aiReply{}, fmt.Errorf("decode reply: %w", err)
	}

	reply := aiReply{IsScholarship: true, Data: domain.NewExtractionResult()}
	if v, ok := fields["is_scholarship"]; ok {
		reply.IsScholarship = coerceBool(v, true)
	}
	reply.Data.Name = sentinel(coerceString(fields["name"]))
	reply.Data.Deadline = sentinel(coerceString(fields["deadline"]))
	reply.Data.Amount = sentinel(coerceString(fields["amount"]))
	reply.Data.Description = sentinel(coerceString(fields["description"]))
	reply.Data.Requirements = coerceList(fields["requirements"])
	return reply, nil
}

// locateJSON returns the object inside a ```json fence, or the outermost
// {...} span embedded in prose.
func locateJSON(raw string) ([]byte, error) {
	text := strings.TrimSpace(raw)
	if start := strings.Index(text, "```"); start >= 0 {
		rest := text[start+3:]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
			rest = rest[nl+1:]
		}
		if end := strings.Index(rest, "```"); end >= 0 {
			text = strings.TrimSpace(rest[:end])
		}
	}

	open := strings.IndexByte(text, '{')
	closing := strings.LastIndexByte(text, '}')
	if open < 0 || closing <= open {
		return nil, errNoJSON
	}
	return []byte(text[open : closing+1]), nil
}

func coerceString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if s := coerceString(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	case map[string]any:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

func coerceList(v any) domain.Requirements {
	var items []any
	switch t := v.(type) {
	case []any:
		items = t
	case nil:
		return nil
	default:
		items = []any{t}
	}

	var out domain.Requirements
	for _, item := range items {
		if s := sentinel(coerceString(item)); domain.Specified(s) {
			out = append(out, s)
		}
	}
	return out
}

func coerceBool(v any, fallback bool) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(t)); err == nil {
			return b
		}
	}
	return fallback
}

// sentinel maps empty and placeholder values to domain.NotSpecified.
func sentinel(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "not specified", "n/a", "na", "none", "null", "unknown", "not stated", "not available":
		return domain.NotSpecified
	}
	return s
}
