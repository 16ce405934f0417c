package bloom

import (
	"encoding/json"
	"strings"
)

// richTextNode is one element of the editor's serialized message payload,
// e.g. [{"type": "text", "text": "actual text"}].
type richTextNode struct {
	Type string  `json:"type"`
	Text *string `json:"text"`
}

// textObject is the bare {"text": "..."} payload shape.
type textObject struct {
	Text *string `json:"text"`
}

// ExtractText pulls the plain text out of a raw message payload. The payload
// may be a JSON array of rich-text nodes, a JSON object with a text field, or
// a plain string. Parse failures and unknown shapes fall back to the raw
// value unchanged; this never fails.
func ExtractText(raw string) string {
	trimmed := strings.TrimSpace(raw)

	switch {
	case strings.HasPrefix(trimmed, "["):
		var nodes []richTextNode
		if err := json.Unmarshal([]byte(trimmed), &nodes); err != nil {
			return raw
		}
		if len(nodes) == 0 || nodes[0].Text == nil {
			return raw
		}
		return *nodes[0].Text

	case strings.HasPrefix(trimmed, "{"):
		var obj textObject
		if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
			return raw
		}
		if obj.Text == nil {
			return raw
		}
		return *obj.Text

	default:
		return raw
	}
}
