package proxy

import (
	"bytes"
	"encoding/json"

	"github.com/Ltamann/tbg-ollama-bff/proxy/compat"
	"github.com/tidwall/gjson"
)

// PromptInjector applies the fixed system directive. Injection is
// unconditional: client supplied system content never overrides it.
type PromptInjector struct {
	directive string
}

func NewPromptInjector(directive string) PromptInjector {
	return PromptInjector{directive: directive}
}

func (pi PromptInjector) Directive() string {
	return pi.directive
}

// InjectIntoMessages drops every system message and prepends the directive.
// The remaining messages keep their relative order.
func (pi PromptInjector) InjectIntoMessages(messages []ChatMessage) []ChatMessage {
	out := make([]ChatMessage, 0, len(messages)+1)
	out = append(out, ChatMessage{Role: RoleSystem, Content: pi.directive})
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			continue
		}
		out = append(out, msg)
	}
	return out
}

// InjectIntoPrompt prefixes the directive. A raw prompt has no structured
// system segment, so nothing is stripped and repeated calls stack prefixes.
func (pi PromptInjector) InjectIntoPrompt(prompt string) string {
	return pi.directive + "\n\n" + prompt
}

// SingleTurn keeps only the most recent user message and pairs it with the
// directive, discarding history and any client system message.
func (pi PromptInjector) SingleTurn(messages []ChatMessage) ([]ChatMessage, error) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return []ChatMessage{
				{Role: RoleSystem, Content: pi.directive},
				{Role: RoleUser, Content: messages[i].Content},
			}, nil
		}
	}
	return nil, ErrMissingUserMessage
}

// InjectBody applies injection to a raw legacy request body. It reports
// false, with body returned untouched, when nothing was injected: the body
// is not JSON, or the field for kind is absent or of an unexpected type.
func (pi PromptInjector) InjectBody(kind compat.Injection, body []byte) ([]byte, bool) {
	if kind == compat.InjectNone {
		return body, false
	}

	doc, err := compat.DecodeDocument(body)
	if err != nil {
		return body, false
	}

	switch kind {
	case compat.InjectPrompt:
		prompt, ok := doc.Prompt()
		if !ok {
			return body, false
		}
		doc, err = doc.SetPrompt(pi.InjectIntoPrompt(prompt))
	case compat.InjectMessages:
		messages, ok := doc.Messages()
		if !ok {
			return body, false
		}
		var raw []byte
		raw, err = pi.injectIntoRawMessages(messages)
		if err == nil {
			doc, err = doc.SetMessagesRaw(raw)
		}
	default:
		return body, false
	}
	if err != nil {
		return body, false
	}
	return doc.Bytes(), true
}

// injectIntoRawMessages is InjectIntoMessages over undecoded elements so
// extra per-message fields (images, tool_calls, ...) pass through as sent.
func (pi PromptInjector) injectIntoRawMessages(messages []gjson.Result) ([]byte, error) {
	directive, err := json.Marshal(ChatMessage{Role: RoleSystem, Content: pi.directive})
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteByte('[')
	buf.Write(directive)
	for _, msg := range messages {
		if msg.Get("role").String() == RoleSystem {
			continue
		}
		buf.WriteByte(',')
		buf.WriteString(msg.Raw)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}
