package notifications

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/RLASH18/abg-prime-v2/internal/domain"
	"github.com/RLASH18/abg-prime-v2/internal/services"
)

const confirmationEventType = "order.confirmation"

// Publisher is the subset of jobs.PubSubPublisher the sender relies on.
type Publisher interface {
	Publish(ctx context.Context, payload any, attrs map[string]string) (string, error)
}

// ConfirmationItem is one order line in the published payload.
type ConfirmationItem struct {
	ItemID    int64  `json:"item_id"`
	Name      string `json:"name"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Subtotal  string `json:"subtotal"`
}

// ConfirmationPayload is the message consumed by the mail worker.
type ConfirmationPayload struct {
	EventID         string             `json:"event_id"`
	Type            string             `json:"type"`
	Subject         string             `json:"subject"`
	UserID          int64              `json:"user_id"`
	Email           string             `json:"email"`
	OrderID         int64              `json:"order_id"`
	OrderNumber     string             `json:"order_number"`
	Status          string             `json:"status"`
	PaymentMethod   string             `json:"payment_method"`
	DeliveryMethod  string             `json:"delivery_method"`
	DeliveryAddress string             `json:"delivery_address,omitempty"`
	Total           string             `json:"total"`
	TotalFormatted  string             `json:"total_formatted"`
	Items           []ConfirmationItem `json:"items"`
	PlacedAt        string             `json:"placed_at"`
}

// PubSubSender publishes order confirmations to a Pub/Sub topic.
type PubSubSender struct {
	publisher Publisher
	printer   *message.Printer
	newID     func() string
}

var _ services.Notifier = (*PubSubSender)(nil)

func NewPubSubSender(publisher Publisher) (*PubSubSender, error) {
	if publisher == nil {
		return nil, errors.New("notifications: publisher is required")
	}
	return &PubSubSender{
		publisher: publisher,
		printer:   message.NewPrinter(language.English),
		newID:     func() string { return ulid.Make().String() },
	}, nil
}

func (s *PubSubSender) NotifyOrderConfirmation(ctx context.Context, notification services.OrderConfirmation) error {
	payload := s.buildPayload(notification)
	if _, err := s.publisher.Publish(ctx, payload, map[string]string{
		"eventId":   payload.EventID,
		"eventType": payload.Type,
		"orderId":   strconv.FormatInt(payload.OrderID, 10),
		"userId":    strconv.FormatInt(payload.UserID, 10),
	}); err != nil {
		return fmt.Errorf("notifications: publish confirmation for order %s: %w", payload.OrderNumber, err)
	}
	return nil
}

func (s *PubSubSender) buildPayload(notification services.OrderConfirmation) ConfirmationPayload {
	order := notification.Order
	items := make([]ConfirmationItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, ConfirmationItem{
			ItemID:    item.ItemID,
			Name:      item.ItemName,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice.StringFixed(2),
			Subtotal:  item.Subtotal().StringFixed(2),
		})
	}
	email := notification.Email
	if email == "" {
		email = order.CustomerEmail
	}
	return ConfirmationPayload{
		EventID:         s.newID(),
		Type:            confirmationEventType,
		Subject:         notification.Subject,
		UserID:          notification.UserID,
		Email:           email,
		OrderID:         order.ID,
		OrderNumber:     order.Number(),
		Status:          string(order.Status),
		PaymentMethod:   string(order.PaymentMethod),
		DeliveryMethod:  string(order.DeliveryMethod),
		DeliveryAddress: order.DeliveryAddress,
		Total:           order.TotalAmount.StringFixed(2),
		TotalFormatted:  FormatAmount(s.printer, order.TotalAmount),
		Items:           items,
		PlacedAt:        order.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// FormatAmount renders amount with thousands grouping, e.g. "PHP 1,234.50".
func FormatAmount(printer *message.Printer, amount decimal.Decimal) string {
	if printer == nil {
		printer = message.NewPrinter(language.English)
	}
	return domain.Currency + " " + printer.Sprintf("%.2f", amount.Round(2).InexactFloat64())
}
