package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(OrderStatusPending, OrderStatusConfirmed))
	assert.True(t, CanTransition(OrderStatusPending, OrderStatusCancelled))
	assert.True(t, CanTransition(OrderStatusConfirmed, OrderStatusShipped))
	assert.True(t, CanTransition(OrderStatusConfirmed, OrderStatusCancelled))
	assert.True(t, CanTransition(OrderStatusShipped, OrderStatusDelivered))

	assert.False(t, CanTransition(OrderStatusShipped, OrderStatusCancelled))
	assert.False(t, CanTransition(OrderStatusDelivered, OrderStatusPending))
	assert.False(t, CanTransition(OrderStatusCancelled, OrderStatusConfirmed))
	assert.False(t, CanTransition(OrderStatusPending, OrderStatusDelivered))
}

func TestEnumHelpers(t *testing.T) {
	assert.True(t, IsOrderStatus("shipped"))
	assert.False(t, IsOrderStatus("lost"))
	assert.True(t, IsPaymentMethod(PaymentCashOnDelivery))
	assert.False(t, IsPaymentMethod("barter"))
}
