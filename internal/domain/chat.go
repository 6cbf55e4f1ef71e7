package domain

import "context"

// Chat message roles.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// ChatMessage is one role-tagged message in a completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Completer turns an ordered message list (guides followed by one user
// message) into a reply. Implementations never fail: on any transport
// or parse error they return a fixed fallback string instead.
type Completer interface {
	Complete(ctx context.Context, messages []ChatMessage) string
}
