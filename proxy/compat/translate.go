package compat

import (
	"strings"

	"github.com/tidwall/gjson"
)

// CanonicalRequest is a lightweight, operation-agnostic summary used for
// logging proxied requests.
type CanonicalRequest struct {
	Operation    Operation `json:"operation"`
	Model        string    `json:"model,omitempty"`
	Stream       bool      `json:"stream"`
	MessageCount int       `json:"message_count,omitempty"`
	HasPrompt    bool      `json:"has_prompt,omitempty"`
	ValidJSON    bool      `json:"valid_json"`
}

func ToCanonical(op Operation, body []byte) CanonicalRequest {
	c := CanonicalRequest{Operation: op}
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return c
	}
	c.ValidJSON = true

	c.Model = strings.TrimSpace(gjson.GetBytes(body, "model").String())
	if c.Model == "" {
		// pull/push/delete/show historically used "name"
		c.Model = strings.TrimSpace(gjson.GetBytes(body, "name").String())
	}

	// the runtime streams unless told otherwise
	stream := gjson.GetBytes(body, "stream")
	c.Stream = !stream.Exists() || stream.Bool()

	switch op {
	case OpChat:
		c.MessageCount = int(gjson.GetBytes(body, "messages.#").Int())
	case OpGenerate:
		c.HasPrompt = gjson.GetBytes(body, "prompt").Exists()
	}
	return c
}
