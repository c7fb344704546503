package session_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orderpilot-ai/orderpilot/chatmodel"
	"github.com/orderpilot-ai/orderpilot/session"
)

func chatContext(ctx context.Context, tenantID, chatID string) context.Context {
	return chatmodel.WithChatContext(ctx, chatmodel.NewChatContext(tenantID, chatID, nil))
}

func TestMemoryStore(t *testing.T) {
	st := session.NewMemoryStore()
	ctx := context.Background()

	expErr := "invalid chat context"
	_, err := st.Load(ctx)
	assert.EqualError(t, err, expErr)
	assert.EqualError(t, st.Save(ctx, &session.Context{}), expErr)
	assert.EqualError(t, st.Reset(ctx), expErr)

	ctx = chatContext(ctx, "tenant1", "chat1")

	// unknown chat loads as a fresh empty context
	sc, err := st.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, sc)
	assert.True(t, sc.Empty())

	sc.AddressID = "addr-1"
	sc.Restaurants = []session.Entry{{ID: "rest-1", Name: "Sushi Go"}}
	require.NoError(t, st.Save(ctx, sc))

	loaded, err := st.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "addr-1", loaded.AddressID)
	require.Len(t, loaded.Restaurants, 1)

	// the store hands out copies, not shared state
	loaded.AddressID = "addr-9"
	again, err := st.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "addr-1", again.AddressID)

	// another chat is isolated
	otherCtx := chatContext(context.Background(), "tenant1", "chat2")
	other, err := st.Load(otherCtx)
	require.NoError(t, err)
	assert.True(t, other.Empty())

	require.NoError(t, st.Reset(ctx))
	sc, err = st.Load(ctx)
	require.NoError(t, err)
	assert.True(t, sc.Empty())
}
