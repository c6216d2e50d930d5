package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishRequiresPublisher(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Publish(context.Background(), map[string]int{"count": 1})
	require.ErrorContains(t, err, "not configured")
	require.NoError(t, New(nil).Close())
}

func TestDialValidatesArguments(t *testing.T) {
	t.Parallel()

	_, err := Dial(context.Background(), "", "snapshots")
	require.Error(t, err)
	_, err = Dial(context.Background(), "project", "")
	require.Error(t, err)
}
