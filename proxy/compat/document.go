package compat

import (
	"errors"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var ErrNotJSON = errors.New("request body is not valid JSON")

// Document is an untyped JSON request body. Only the "prompt" and
// "messages" fields are ever inspected; edits rewrite those fields in place
// so every other byte, including field order and unknown fields, survives.
type Document struct {
	raw []byte
}

// DecodeDocument validates body. Callers take the passthrough branch on
// ErrNotJSON instead of rejecting the request.
func DecodeDocument(body []byte) (Document, error) {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return Document{}, ErrNotJSON
	}
	return Document{raw: body}, nil
}

func (d Document) Bytes() []byte {
	return d.raw
}

// Prompt returns the "prompt" field when it is a JSON string.
func (d Document) Prompt() (string, bool) {
	res := gjson.GetBytes(d.raw, "prompt")
	if res.Type != gjson.String {
		return "", false
	}
	return res.String(), true
}

// Messages returns the elements of the "messages" field when it is an array.
func (d Document) Messages() ([]gjson.Result, bool) {
	res := gjson.GetBytes(d.raw, "messages")
	if !res.IsArray() {
		return nil, false
	}
	return res.Array(), true
}

func (d Document) SetPrompt(prompt string) (Document, error) {
	out, err := sjson.SetBytes(d.raw, "prompt", prompt)
	if err != nil {
		return d, err
	}
	return Document{raw: out}, nil
}

// SetMessagesRaw replaces "messages" with an already encoded JSON array.
func (d Document) SetMessagesRaw(messages []byte) (Document, error) {
	out, err := sjson.SetRawBytes(d.raw, "messages", messages)
	if err != nil {
		return d, err
	}
	return Document{raw: out}, nil
}
