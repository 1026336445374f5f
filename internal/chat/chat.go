// Package chat is the chat-transport collaborator edge.
package chat

import "context"

// SendOptions tweaks outbound message rendering.
type SendOptions struct {
	Markdown       bool
	DisablePreview bool
}

// Transport delivers assistant output to a chat. Inbound traffic
// (commands, callbacks) is owned by the bot layer, which calls into the
// orchestrator façade or enqueues jobs.
type Transport interface {
	// SendMessage delivers plain text to a chat.
	SendMessage(ctx context.Context, chatID int64, text string, opts SendOptions) error
	// SendActionConfirmation delivers an approval card with approve/reject
	// affordances for the given pending action and returns the message id.
	SendActionConfirmation(ctx context.Context, chatID int64, actionID, text string) (int64, error)
}
