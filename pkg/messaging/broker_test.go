package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInProcessBroker_PublishSubscribe(t *testing.T) {
	b := NewInProcessBroker()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := b.Subscribe(ctx, "appointments")
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, "appointments", []byte(`{"type":"appointment.confirmed"}`)))
	require.NoError(t, b.Publish(ctx, "other", []byte(`ignored`)))

	select {
	case msg := <-ch:
		assert.JSONEq(t, `{"type":"appointment.confirmed"}`, string(msg))
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
	assert.Empty(t, ch)
}

func TestInProcessBroker_CancelClosesSubscription(t *testing.T) {
	b := NewInProcessBroker()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := b.Subscribe(ctx, "appointments")
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}
}

func TestInProcessBroker_Closed(t *testing.T) {
	b := NewInProcessBroker()
	require.NoError(t, b.Close())

	assert.ErrorIs(t, b.Publish(context.Background(), "t", nil), ErrClosed)
	assert.ErrorIs(t, b.Ping(context.Background()), ErrClosed)
	_, err := b.Subscribe(context.Background(), "t")
	assert.ErrorIs(t, err, ErrClosed)
}
