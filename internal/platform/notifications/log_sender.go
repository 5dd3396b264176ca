package notifications

import (
	"context"

	"github.com/RLASH18/abg-prime-v2/internal/services"
)

// LogSender records confirmations in the log instead of publishing them. It is used when no topic is
// configured.
type LogSender struct {
	log func(ctx context.Context, event string, fields map[string]any)
}

var _ services.Notifier = (*LogSender)(nil)

func NewLogSender(log func(ctx context.Context, event string, fields map[string]any)) *LogSender {
	if log == nil {
		log = func(context.Context, string, map[string]any) {}
	}
	return &LogSender{log: log}
}

func (s *LogSender) NotifyOrderConfirmation(ctx context.Context, notification services.OrderConfirmation) error {
	s.log(ctx, "notification.confirmation.logged", map[string]any{
		"orderId": notification.Order.ID,
		"userId":  notification.UserID,
		"email":   notification.Email,
		"subject": notification.Subject,
		"total":   FormatAmount(nil, notification.Order.TotalAmount),
	})
	return nil
}
