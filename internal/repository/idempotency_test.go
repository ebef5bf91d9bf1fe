package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryIdempotency(t *testing.T) {
	ctx := context.Background()
	now := base
	m := NewMemoryIdempotency()
	m.now = func() time.Time { return now }

	id, ok, err := m.Reserve(ctx, "k1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, id)

	// рассылка еще идет
	id, ok, err = m.Reserve(ctx, "k1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, id)

	require.NoError(t, m.Complete(ctx, "k1", "alert-1", time.Minute))
	id, ok, err = m.Reserve(ctx, "k1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "alert-1", id)

	now = now.Add(2 * time.Minute)
	_, ok, err = m.Reserve(ctx, "k1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, m.Release(ctx, "k1"))
	_, ok, _ = m.Reserve(ctx, "k1", time.Minute)
	assert.True(t, ok)
}
