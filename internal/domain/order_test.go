package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrder(t *testing.T) {
	t.Parallel()

	t.Run("valid order starts pending payment", func(t *testing.T) {
		t.Parallel()
		order, err := NewOrder("alice", 49.90)
		require.NoError(t, err)
		assert.Equal(t, "alice", order.CustomerName)
		assert.Equal(t, 49.90, order.TotalAmount)
		assert.Equal(t, OrderStatusPendingPayment, order.Status)
		assert.False(t, order.IsTerminal())
		assert.False(t, order.CreatedAt.IsZero())
	})

	t.Run("zero amount rejected", func(t *testing.T) {
		t.Parallel()
		_, err := NewOrder("alice", 0)
		assert.ErrorIs(t, err, ErrInvalidOrderAmount)
	})

	t.Run("negative amount rejected", func(t *testing.T) {
		t.Parallel()
		_, err := NewOrder("alice", -10)
		assert.ErrorIs(t, err, ErrInvalidOrderAmount)
	})
}

func TestOrderTransitions(t *testing.T) {
	t.Parallel()

	t.Run("pending to paid", func(t *testing.T) {
		t.Parallel()
		order, err := NewOrder("bob", 100)
		require.NoError(t, err)
		require.NoError(t, order.MarkPaid())
		assert.Equal(t, OrderStatusPaid, order.Status)
		assert.True(t, order.IsTerminal())
	})

	t.Run("pending to cancelled", func(t *testing.T) {
		t.Parallel()
		order, err := NewOrder("bob", 100)
		require.NoError(t, err)
		require.NoError(t, order.MarkCancelled())
		assert.Equal(t, OrderStatusCancelled, order.Status)
		assert.True(t, order.IsTerminal())
	})

	t.Run("repeating a terminal status is a no-op", func(t *testing.T) {
		t.Parallel()
		order, err := NewOrder("bob", 100)
		require.NoError(t, err)
		require.NoError(t, order.MarkPaid())
		require.NoError(t, order.MarkPaid())
		assert.Equal(t, OrderStatusPaid, order.Status)

		other, err := NewOrder("bob", 100)
		require.NoError(t, err)
		require.NoError(t, other.MarkCancelled())
		require.NoError(t, other.MarkCancelled())
		assert.Equal(t, OrderStatusCancelled, other.Status)
	})

	t.Run("crossing terminal statuses is rejected", func(t *testing.T) {
		t.Parallel()
		paid, err := NewOrder("bob", 100)
		require.NoError(t, err)
		require.NoError(t, paid.MarkPaid())
		assert.ErrorIs(t, paid.MarkCancelled(), ErrOrderFinalized)
		assert.Equal(t, OrderStatusPaid, paid.Status)

		cancelled, err := NewOrder("bob", 100)
		require.NoError(t, err)
		require.NoError(t, cancelled.MarkCancelled())
		assert.ErrorIs(t, cancelled.MarkPaid(), ErrOrderFinalized)
		assert.Equal(t, OrderStatusCancelled, cancelled.Status)
	})
}
