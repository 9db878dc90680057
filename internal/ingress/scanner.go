package ingress

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/mcroberts-scholars/scholarship-harvester/internal/domain"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/logger"
	"github.com/mcroberts-scholars/scholarship-harvester/internal/storage"
)

// Reasons a message is not scanned.
const (
	IgnoreChannel   = "channel_not_watched"
	IgnoreBot       = "bot_author"
	IgnoreNoLinks   = "no_links"
	IgnoreDuplicate = "duplicate_message"
)

var urlPattern = regexp.MustCompile(`https?://[^\s<>"'` + "`" + `]+`)

// ChatMessage is the part of a chat message the scanner needs.
type ChatMessage struct {
	ID          string `json:"id"`
	ChannelID   string `json:"channel_id"`
	AuthorID    string `json:"author_id"`
	AuthorIsBot bool   `json:"author_is_bot"`
	Content     string `json:"content"`
}

// ScanResult reports what a scan did with one message.
type ScanResult struct {
	MessageID    string               `json:"message_id"`
	Ignored      bool                 `json:"ignored"`
	IgnoreReason string               `json:"ignore_reason,omitempty"`
	URLs         []string             `json:"urls,omitempty"`
	Results      []domain.StoreResult `json:"results,omitempty"`
}

// MessageScanner turns chat messages into link submissions.
type MessageScanner struct {
	submitter Submitter
	seen      storage.SeenSet
	channels  map[string]struct{}
	log       logger.Logger
}

// NewMessageScanner builds a scanner. An empty channel list watches every channel.
func NewMessageScanner(submitter Submitter, seen storage.SeenSet, channels []string, log logger.Logger) *MessageScanner {
	set := make(map[string]struct{}, len(channels))
	for _, c := range channels {
		if c = strings.TrimSpace(c); c != "" {
			set[c] = struct{}{}
		}
	}
	return &MessageScanner{
		submitter: submitter,
		seen:      seen,
		channels:  set,
		log:       logger.Ensure(log),
	}
}

// Scan submits every URL found in msg. A message id is processed at most once
// within the seen-set TTL.
func (m *MessageScanner) Scan(ctx context.Context, msg ChatMessage) (ScanResult, error) {
	res := ScanResult{MessageID: msg.ID}

	if len(m.channels) > 0 {
		if _, ok := m.channels[msg.ChannelID]; !ok {
			return ignored(res, IgnoreChannel), nil
		}
	}
	if msg.AuthorIsBot {
		return ignored(res, IgnoreBot), nil
	}

	urls := ExtractURLs(msg.Content)
	if len(urls) == 0 {
		return ignored(res, IgnoreNoLinks), nil
	}

	if m.seen != nil && msg.ID != "" {
		fresh, err := m.seen.MarkSeen(ctx, "message:"+msg.ID)
		if err != nil {
			return res, fmt.Errorf("mark message seen: %w", err)
		}
		if !fresh {
			return ignored(res, IgnoreDuplicate), nil
		}
	}

	res.URLs = urls
	source := "message:" + msg.ID
	var errs []error
	for _, u := range urls {
		r, err := m.submitter.Submit(ctx, Submission{URL: u, Actor: msg.AuthorID, Source: source})
		if err != nil {
			errs = append(errs, err)
			r = domain.StoreResult{URL: u, Reason: err.Error()}
		}
		res.Results = append(res.Results, r)
	}

	m.log.DebugObj("message scanned", "message_scan", map[string]any{
		"message_id": msg.ID,
		"channel_id": msg.ChannelID,
		"urls":       len(urls),
	})
	return res, errors.Join(errs...)
}

func ignored(res ScanResult, reason string) ScanResult {
	res.Ignored = true
	res.IgnoreReason = reason
	return res
}

// ExtractURLs returns the distinct http(s) URLs in text in order of
// appearance, without <...> wrappers or trailing punctuation.
func ExtractURLs(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		u := trimTrailing(m)
		if u == "" || strings.HasSuffix(u, "://") {
			continue
		}
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

func trimTrailing(u string) string {
	for u != "" {
		last := u[len(u)-1]
		switch {
		case strings.IndexByte(".,;:!?*_~", last) >= 0:
			u = u[:len(u)-1]
		case last == ')' && strings.Count(u, "(") < strings.Count(u, ")"):
			u = u[:len(u)-1]
		case last == ']' && strings.Count(u, "[") < strings.Count(u, "]"):
			u = u[:len(u)-1]
		default:
			return u
		}
	}
	return u
}
