package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RLASH18/abg-prime-v2/internal/domain"
	"github.com/RLASH18/abg-prime-v2/internal/services"
)

type recordingPublisher struct {
	payload any
	attrs   map[string]string
	err     error
}

func (p *recordingPublisher) Publish(_ context.Context, payload any, attrs map[string]string) (string, error) {
	p.payload = payload
	p.attrs = attrs
	return "msg-1", p.err
}

func confirmedOrder() domain.Order {
	return domain.Order{
		ID:             7,
		UserID:         11,
		CustomerEmail:  "buyer@example.com",
		Status:         domain.OrderStatusConfirmed,
		PaymentMethod:  domain.PaymentMethodGCash,
		DeliveryMethod: domain.DeliveryMethodPickup,
		TotalAmount:    decimal.RequireFromString("1234.5"),
		Items: []domain.OrderItem{
			{ItemID: 3, ItemName: "Claw Hammer", Quantity: 2, UnitPrice: decimal.RequireFromString("450")},
			{ItemID: 4, ItemName: "Paint Brush", Quantity: 1, UnitPrice: decimal.RequireFromString("334.5")},
		},
		CreatedAt: time.Date(2025, time.December, 14, 8, 0, 0, 0, time.UTC),
	}
}

func TestPubSubSenderPublishesConfirmation(t *testing.T) {
	t.Parallel()

	publisher := &recordingPublisher{}
	sender, err := NewPubSubSender(publisher)
	require.NoError(t, err)
	sender.newID = func() string { return "01JFCONFIRM" }

	err = sender.NotifyOrderConfirmation(context.Background(), services.OrderConfirmation{
		UserID:  11,
		Subject: "Order Confirmation - Order #0007",
		Order:   confirmedOrder(),
	})
	require.NoError(t, err)

	payload, ok := publisher.payload.(ConfirmationPayload)
	require.True(t, ok)
	assert.Equal(t, "0007", payload.OrderNumber)
	assert.Equal(t, "buyer@example.com", payload.Email)
	assert.Equal(t, "1234.50", payload.Total)
	assert.Equal(t, "PHP 1,234.50", payload.TotalFormatted)
	require.Len(t, payload.Items, 2)
	assert.Equal(t, "900.00", payload.Items[0].Subtotal)
	assert.Equal(t, "2025-12-14T08:00:00Z", payload.PlacedAt)
	assert.Equal(t, map[string]string{
		"eventId":   "01JFCONFIRM",
		"eventType": "order.confirmation",
		"orderId":   "7",
		"userId":    "11",
	}, publisher.attrs)
}

func TestPubSubSenderWrapsPublishFailure(t *testing.T) {
	t.Parallel()

	boom := errors.New("topic not found")
	sender, err := NewPubSubSender(&recordingPublisher{err: boom})
	require.NoError(t, err)

	err = sender.NotifyOrderConfirmation(context.Background(), services.OrderConfirmation{Order: confirmedOrder()})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "0007")
}

func TestLogSenderRecordsConfirmation(t *testing.T) {
	t.Parallel()

	var (
		event  string
		fields map[string]any
	)
	sender := NewLogSender(func(_ context.Context, e string, f map[string]any) {
		event, fields = e, f
	})
	require.NoError(t, sender.NotifyOrderConfirmation(context.Background(), services.OrderConfirmation{
		UserID: 11,
		Order:  confirmedOrder(),
	}))
	assert.Equal(t, "notification.confirmation.logged", event)
	assert.Equal(t, "PHP 1,234.50", fields["total"])
}

func TestNewPubSubSenderRequiresPublisher(t *testing.T) {
	t.Parallel()

	_, err := NewPubSubSender(nil)
	require.Error(t, err)
}
