package proxy

import (
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

const (
	activityCapacity   = 200
	activityPreviewMax = 280
)

// ActivityPreview is a short summary of one generation request, kept in
// memory for operators. Full bodies are never stored.
type ActivityPreview struct {
	ID            int    `json:"id"`
	Timestamp     string `json:"timestamp"`
	RequestID     string `json:"request_id,omitempty"`
	Surface       string `json:"surface"` // custom | legacy
	RequestPath   string `json:"request_path"`
	Model         string `json:"model"`
	Injected      bool   `json:"injected"`
	LastRole      string `json:"last_role,omitempty"`
	PromptPreview string `json:"prompt_preview"`
	MessageCount  int    `json:"message_count"`
	UserAgent     string `json:"user_agent,omitempty"`
}

// activityLog keeps the most recent activityCapacity previews.
type activityLog struct {
	mu       sync.Mutex
	nextID   int
	previews []ActivityPreview
}

func (a *activityLog) add(p ActivityPreview) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.nextID++
	p.ID = a.nextID
	p.Timestamp = time.Now().Format(time.RFC3339)
	a.previews = append(a.previews, p)
	if len(a.previews) > activityCapacity {
		a.previews = a.previews[len(a.previews)-activityCapacity:]
	}
}

// snapshot returns the previews newest first.
func (a *activityLog) snapshot() []ActivityPreview {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]ActivityPreview, len(a.previews))
	for i, p := range a.previews {
		out[len(a.previews)-1-i] = p
	}
	return out
}

// recordLegacyActivity summarizes a raw chat or generate body as the client
// sent it. Bodies that are not JSON are recorded with an empty preview.
func (a *activityLog) recordLegacyActivity(requestID, path string, body []byte, injected bool, headers http.Header) {
	preview := ActivityPreview{
		RequestID:   requestID,
		Surface:     "legacy",
		RequestPath: path,
		Model:       strings.TrimSpace(gjson.GetBytes(body, "model").String()),
		Injected:    injected,
		UserAgent:   trimPreview(headers.Get("User-Agent"), 180),
	}

	if messages := gjson.GetBytes(body, "messages"); messages.IsArray() {
		for _, msg := range messages.Array() {
			if role := strings.TrimSpace(msg.Get("role").String()); role != "" {
				preview.LastRole = role
			}
			if text := extractMessageText(msg.Get("content")); text != "" {
				preview.PromptPreview = text
			}
			preview.MessageCount++
		}
	} else if prompt := gjson.GetBytes(body, "prompt"); prompt.Type == gjson.String {
		preview.PromptPreview = prompt.String()
	}
	preview.PromptPreview = trimPreview(preview.PromptPreview, activityPreviewMax)

	a.add(preview)
}

func (a *activityLog) recordChatActivity(requestID, model string, received int, sent []ChatMessage, headers http.Header) {
	preview := ActivityPreview{
		RequestID:    requestID,
		Surface:      "custom",
		RequestPath:  "/chat",
		Model:        model,
		Injected:     true,
		MessageCount: received,
		UserAgent:    trimPreview(headers.Get("User-Agent"), 180),
	}
	if len(sent) > 0 {
		last := sent[len(sent)-1]
		preview.LastRole = last.Role
		preview.PromptPreview = trimPreview(last.Content, activityPreviewMax)
	}
	a.add(preview)
}

// extractMessageText flattens string content or an array of
// {"type":"text","text":...} parts.
func extractMessageText(content gjson.Result) string {
	if !content.Exists() {
		return ""
	}
	if content.Type == gjson.String {
		return strings.TrimSpace(content.String())
	}
	if content.IsArray() {
		parts := make([]string, 0, len(content.Array()))
		for _, part := range content.Array() {
			if strings.TrimSpace(part.Get("type").String()) == "text" {
				txt := strings.TrimSpace(part.Get("text").String())
				if txt != "" {
					parts = append(parts, txt)
				}
			}
		}
		return strings.Join(parts, "\n")
	}
	return ""
}

func trimPreview(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	// never split a multi-byte character
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return strings.TrimSpace(s[:max]) + " ..."
}
