package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "run_start", map[string]string{"run_id": "r1"})
	require.NoError(t, err)
	assert.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(context.Background(), "site_done", "payload")
	require.NoError(t, err)
	assert.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "run_start", msgs[0].Kind)
	assert.JSONEq(t, `{"run_id":"r1"}`, string(msgs[0].Data))
	assert.Equal(t, `"payload"`, string(msgs[1].Data))

	msgs[0].Kind = "modified"
	assert.Equal(t, "run_start", pub.Messages()[0].Kind, "Messages must return a copy")
}

func TestPublisherRejectsBadPayload(t *testing.T) {
	t.Parallel()

	_, err := New().Publish(context.Background(), "x", func() {})
	require.Error(t, err)
	assert.Empty(t, New().Messages())
}
