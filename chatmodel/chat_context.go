package chatmodel

import (
	"context"
	"strconv"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xdb/pkg/flake"
)

// ErrInvalidChatContext is returned when a context does not carry chat values.
var ErrInvalidChatContext = errors.New("invalid chat context")

// ChatContext carries per-conversation identity through the agent loop:
// the tenant, the chat session, and a run ID unique to a single request.
type ChatContext interface {
	GetTenantID() string
	GetChatID() string
	// SetChatID rebinds the context to another chat session.
	SetChatID(chatID string)
	// RunID identifies a single agent run within the chat.
	RunID() string
	// AppData returns immutable app data
	AppData() any
	// GetMetadata retrieves metadata by key
	GetMetadata(key string) (value any, ok bool)
	// SetMetadata sets metadata by key
	SetMetadata(key string, value any)
}

type chatContext struct {
	tenantID string
	chatID   string
	runID    string
	metadata sync.Map
	appData  any
}

func (c *chatContext) GetTenantID() string {
	return c.tenantID
}

func (c *chatContext) GetChatID() string {
	return c.chatID
}

func (c *chatContext) SetChatID(chatID string) {
	c.chatID = chatID
}

func (c *chatContext) RunID() string {
	return c.runID
}

func (c *chatContext) AppData() any {
	return c.appData
}

func (c *chatContext) GetMetadata(key string) (value any, ok bool) {
	return c.metadata.Load(key)
}

func (c *chatContext) SetMetadata(key string, value any) {
	c.metadata.Store(key, value)
}

// NewChatContext creates a ChatContext. Empty tenant or chat IDs are replaced
// with generated ones; the run ID is always generated.
func NewChatContext(tenantID, chatID string, appData any) ChatContext {
	return &chatContext{
		tenantID: values.StringsCoalesce(tenantID, NewChatID()),
		chatID:   values.StringsCoalesce(chatID, NewChatID()),
		runID:    NewChatID(),
		appData:  appData,
	}
}

type contextKey int

const (
	keyContext contextKey = iota
)

// WithChatContext returns a new context with ChatContext value
func WithChatContext(ctx context.Context, chatCtx ChatContext) context.Context {
	return context.WithValue(ctx, keyContext, chatCtx)
}

// GetChatContext retrieves the ChatContext from the context
func GetChatContext(ctx context.Context) ChatContext {
	if v, ok := ctx.Value(keyContext).(ChatContext); ok {
		return v
	}
	return nil
}

// SetChatID rebinds the ChatContext in ctx to another chat session.
func SetChatID(ctx context.Context, chatID string) (context.Context, error) {
	v, ok := ctx.Value(keyContext).(ChatContext)
	if !ok {
		return ctx, errors.WithStack(ErrInvalidChatContext)
	}
	v.SetChatID(chatID)
	return ctx, nil
}

// GetTenantAndChatID returns the tenant and chat IDs from the context,
// or an error when the context does not carry a ChatContext.
func GetTenantAndChatID(ctx context.Context) (string, string, error) {
	v, ok := ctx.Value(keyContext).(ChatContext)
	if !ok {
		return "", "", errors.WithStack(ErrInvalidChatContext)
	}
	return v.GetTenantID(), v.GetChatID(), nil
}

// NewFromContext returns a fresh background context carrying the same
// ChatContext, detached from the parent's cancellation and deadlines.
func NewFromContext(ctx context.Context) context.Context {
	if v, ok := ctx.Value(keyContext).(ChatContext); ok {
		return context.WithValue(context.Background(), keyContext, v)
	}
	return context.Background()
}

// GetChatID retrieves the chat ID from the provided context.
// If the context does not contain a ChatContext, it returns an empty string.
func GetChatID(ctx context.Context) string {
	if v, ok := ctx.Value(keyContext).(ChatContext); ok {
		return v.GetChatID()
	}
	return ""
}

// NewChatID generates a new chat ID using the flake ID generator.
func NewChatID() string {
	return strconv.FormatUint(flake.DefaultIDGenerator.NextID(), 10)
}
