package messenger

import (
	"regexp"
	"strings"
)

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// normalizeLabel strips non-alphanumeric characters and upper-cases
// the rest, producing a machine-readable payload token from a display
// title.
func normalizeLabel(s string) string {
	return strings.ToUpper(nonAlnum.ReplaceAllString(s, ""))
}

// formatButtons fills in defaults for flat button lists: untyped
// buttons become postback entries with payload BUTTON_<normalized
// title>. Explicit fields win.
func formatButtons(buttons []Button) []Button {
	out := make([]Button, len(buttons))
	for i, b := range buttons {
		if b.Type == "" {
			b.Type = "postback"
		}
		if b.Type == "postback" && b.Payload == "" {
			b.Payload = "BUTTON_" + normalizeLabel(b.Title)
		}
		out[i] = b
	}
	return out
}

// formatQuickReplies mirrors button formatting for quick-reply
// options: missing content types default to text and missing payloads
// to QUICK_REPLY_<normalized title>. Explicit fields win.
func formatQuickReplies(replies []QuickReply) []QuickReply {
	out := make([]QuickReply, len(replies))
	for i, r := range replies {
		if r.ContentType == "" {
			r.ContentType = "text"
		}
		if r.Payload == "" {
			r.Payload = "QUICK_REPLY_" + normalizeLabel(r.Title)
		}
		out[i] = r
	}
	return out
}
