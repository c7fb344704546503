package session

import (
	"context"
)

// Store persists conversation context between agent runs. The chat
// identity is taken from the chatmodel context, so callers pass only the
// request context.
type Store interface {
	// Load returns the stored context for the current chat, or a fresh
	// empty context when none exists.
	Load(ctx context.Context) (*Context, error)
	// Save replaces the stored context for the current chat.
	Save(ctx context.Context, sc *Context) error
	// Reset removes the stored context for the current chat.
	Reset(ctx context.Context) error
}
