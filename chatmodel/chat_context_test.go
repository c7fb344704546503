package chatmodel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChatContext(t *testing.T) {
	t.Parallel()

	type profile struct{ Allergies []string }
	app := &profile{Allergies: []string{"peanut"}}

	c := NewChatContext("acme", "chat-42", app)
	require.NotNil(t, c)
	assert.Equal(t, "acme", c.GetTenantID())
	assert.Equal(t, "chat-42", c.GetChatID())
	assert.Same(t, app, c.AppData())
	assert.NotEmpty(t, c.RunID())

	c.SetChatID("chat-43")
	assert.Equal(t, "chat-43", c.GetChatID())

	// Empty IDs are filled in, and every context gets its own run ID.
	d := NewChatContext("", "", nil)
	assert.NotEmpty(t, d.GetTenantID())
	assert.NotEmpty(t, d.GetChatID())
	e := NewChatContext(d.GetTenantID(), d.GetChatID(), nil)
	assert.NotEqual(t, d.RunID(), e.RunID())
}

func TestChatContext_Metadata(t *testing.T) {
	t.Parallel()

	c := NewChatContext("acme", "chat-42", nil)

	_, ok := c.GetMetadata("cart")
	assert.False(t, ok)

	c.SetMetadata("cart", []string{"pad thai"})
	v, ok := c.GetMetadata("cart")
	require.True(t, ok)
	assert.Equal(t, []string{"pad thai"}, v)

	c.SetMetadata("cart", []string{"pad thai", "spring rolls"})
	v, _ = c.GetMetadata("cart")
	assert.Len(t, v, 2)
}

func TestWithChatContext(t *testing.T) {
	t.Parallel()

	c := NewChatContext("acme", "chat-42", nil)
	ctx := WithChatContext(context.Background(), c)

	assert.Equal(t, c, GetChatContext(ctx))
	assert.Equal(t, "chat-42", GetChatID(ctx))

	tenant, chat, err := GetTenantAndChatID(ctx)
	require.NoError(t, err)
	assert.Equal(t, "acme", tenant)
	assert.Equal(t, "chat-42", chat)

	ctx, err = SetChatID(ctx, "chat-99")
	require.NoError(t, err)
	assert.Equal(t, "chat-99", GetChatID(ctx))
}

func TestChatContext_Missing(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	assert.Nil(t, GetChatContext(ctx))
	assert.Empty(t, GetChatID(ctx))

	_, _, err := GetTenantAndChatID(ctx)
	assert.ErrorIs(t, err, ErrInvalidChatContext)

	_, err = SetChatID(ctx, "chat-1")
	assert.ErrorIs(t, err, ErrInvalidChatContext)
}

func TestNewFromContext(t *testing.T) {
	t.Parallel()

	c := NewChatContext("acme", "chat-42", nil)
	parent, cancel := context.WithCancel(WithChatContext(context.Background(), c))

	detached := NewFromContext(parent)
	cancel()

	// The chat identity survives, the parent's cancellation does not.
	assert.Equal(t, c, GetChatContext(detached))
	assert.NoError(t, detached.Err())

	// Without a chat context there is nothing to carry over.
	assert.Nil(t, GetChatContext(NewFromContext(context.Background())))
}

func TestNewChatID(t *testing.T) {
	t.Parallel()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewChatID()
		assert.NotEmpty(t, id)
		assert.False(t, seen[id], "duplicate chat ID %s", id)
		seen[id] = true
	}
}
