package di

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/RLASH18/abg-prime-v2/internal/platform/config"
	"github.com/RLASH18/abg-prime-v2/internal/platform/notifications"
)

func TestBuildPaymentManagerRequiresProvider(t *testing.T) {
	t.Parallel()

	_, err := buildPaymentManager(config.PaymentsConfig{Provider: "paymongo"}, zap.NewNop(), nil)
	require.Error(t, err)
}

func TestBuildPaymentManagerRegistersConfiguredProviders(t *testing.T) {
	t.Parallel()

	manager, err := buildPaymentManager(config.PaymentsConfig{
		Provider:          "paymongo",
		PayMongoSecretKey: "sk_test_123",
		StripeAPIKey:      "sk_test_stripe",
	}, zap.NewNop(), nil)
	require.NoError(t, err)
	require.NotNil(t, manager)
}

func TestBuildMessagingFallsBackToLogSender(t *testing.T) {
	t.Parallel()

	c := &Container{Logger: zap.NewNop()}
	require.NoError(t, c.buildMessaging(context.Background()))

	_, ok := c.Infra.Notifier.(*notifications.LogSender)
	assert.True(t, ok, "expected log sender, got %T", c.Infra.Notifier)
	assert.Nil(t, c.Infra.Events)
	assert.Empty(t, c.closers)
}

func TestCloseRunsClosersInReverse(t *testing.T) {
	t.Parallel()

	var order []string
	c := &Container{closers: []func(context.Context) error{
		func(context.Context) error { order = append(order, "client"); return nil },
		func(context.Context) error { order = append(order, "topic"); return nil },
	}}
	require.NoError(t, c.Close(context.Background()))
	assert.Equal(t, []string{"topic", "client"}, order)
	assert.Nil(t, c.closers)
}
