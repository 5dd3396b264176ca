package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/RLASH18/abg-prime-v2/internal/domain"
	"github.com/RLASH18/abg-prime-v2/internal/repositories"
)

// StockLedger moves quantities between stock pools. Every method participates in the caller's
// transaction when invoked with a transactional context.
type StockLedger interface {
	// Level reads price and availability without locking.
	Level(ctx context.Context, source domain.StockSource) (domain.StockLevel, error)
	// Reserve locks the stock row and fails with ErrInsufficientStock when it cannot cover qty.
	Reserve(ctx context.Context, source domain.StockSource, qty int) (domain.StockLevel, error)
	// Commit decrements the pool with a conditional update.
	Commit(ctx context.Context, source domain.StockSource, qty int) error
	// Restore returns qty units to the pool.
	Restore(ctx context.Context, source domain.StockSource, qty int) error
}

// CartService manages per-user cart lines.
type CartService interface {
	AddToCart(ctx context.Context, cmd AddToCartCommand) (domain.CartLine, error)
	UpdateQuantity(ctx context.Context, cmd UpdateCartQuantityCommand) (domain.CartLine, error)
	RemoveFromCart(ctx context.Context, userID, lineID int64) error
	ClearCart(ctx context.Context, userID int64) error
	ToggleSelection(ctx context.Context, userID, lineID int64) (domain.CartLine, error)
	ToggleAllSelection(ctx context.Context, userID int64, selected bool) error
	GetCart(ctx context.Context, userID int64) (CartView, error)
	Total(ctx context.Context, userID int64) (decimal.Decimal, error)
	SelectedTotal(ctx context.Context, userID int64) (decimal.Decimal, error)
	SelectedLines(ctx context.Context, userID int64) ([]domain.CartLine, error)
}

// CheckoutService converts selected cart lines into orders and reacts to gateway callbacks.
type CheckoutService interface {
	Summary(ctx context.Context, userID int64) (CheckoutSummary, error)
	ProcessCheckout(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error)
	// HandlePaymentCallback confirms or cancels a pending gateway order. Non-pending orders are left
	// alone. Orders settled in cash never go through a callback.
	HandlePaymentCallback(ctx context.Context, cmd PaymentCallbackCommand) (domain.Order, error)
}

// OrderService owns the order status state machine.
type OrderService interface {
	ListOrders(ctx context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error)
	GetOrder(ctx context.Context, orderID int64) (domain.Order, error)
	UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (domain.Order, error)
}

// BillingService creates and settles order billings.
type BillingService interface {
	// EnsureBilling creates an unpaid billing for the order if none exists.
	EnsureBilling(ctx context.Context, order domain.Order) (domain.Billing, bool, error)
	MarkPaid(ctx context.Context, orderID int64) (domain.Billing, error)
	MarkCancelled(ctx context.Context, orderID int64) error
	GetByOrder(ctx context.Context, orderID int64) (domain.Billing, error)
}

// DeliveryService tracks shipments for delivery-method orders.
type DeliveryService interface {
	// EnsureDelivery creates a scheduled delivery when the order ships to an address.
	EnsureDelivery(ctx context.Context, order domain.Order) (domain.Delivery, bool, error)
	// SyncFromOrder moves the delivery to the status mapped from the order status, if it differs.
	SyncFromOrder(ctx context.Context, orderID int64, status domain.OrderStatus) error
	UpdateStatus(ctx context.Context, cmd UpdateDeliveryCommand) (domain.Delivery, error)
	GetDelivery(ctx context.Context, deliveryID int64) (DeliveryView, error)
}

// DamagedItemService manages discounted damaged stock pools.
type DamagedItemService interface {
	MarkAsDamaged(ctx context.Context, cmd MarkDamagedCommand) (domain.DamagedItem, error)
	UpdateDamagedItem(ctx context.Context, cmd UpdateDamagedItemCommand) (domain.DamagedItem, error)
	DeleteDamagedItem(ctx context.Context, damagedItemID int64) error
}

// InventoryService exposes item catalogue helpers.
type InventoryService interface {
	NextItemCode(ctx context.Context, category string) (string, error)
	CreateItem(ctx context.Context, cmd CreateItemCommand) (domain.Item, error)
	ListLowStock(ctx context.Context, limit int) ([]domain.Item, error)
}

// Notifier delivers customer notifications. Failures never abort the workflow that triggered them.
type Notifier interface {
	NotifyOrderConfirmation(ctx context.Context, notification OrderConfirmation) error
}

// OrderConfirmation is sent once an order enters the confirmed status.
type OrderConfirmation struct {
	UserID  int64
	Email   string
	Subject string
	Order   domain.Order
}

// ProofLinker turns a stored proof-of-delivery path into a short-lived download link.
type ProofLinker interface {
	ProofURL(ctx context.Context, path string) (string, time.Time, error)
}

// AddToCartCommand adds qty units from the item or, when DamagedItemID is set, from its damaged pool.
type AddToCartCommand struct {
	UserID        int64
	ItemID        int64
	Quantity      int
	DamagedItemID *int64
}

type UpdateCartQuantityCommand struct {
	UserID   int64
	LineID   int64
	Quantity int
}

// CartView is the customer's cart with derived totals.
type CartView struct {
	Lines         []domain.CartLine
	Total         decimal.Decimal
	SelectedTotal decimal.Decimal
	Count         int
}

// CheckoutSummary lists the selected lines and their totals.
type CheckoutSummary struct {
	Lines     []domain.CartLine
	Subtotal  decimal.Decimal
	Total     decimal.Decimal
	ItemCount int
}

type CheckoutCommand struct {
	UserID          int64
	Email           string
	PaymentMethod   domain.PaymentMethod
	DeliveryMethod  domain.DeliveryMethod
	DeliveryAddress string
	IdempotencyKey  string
}

// CheckoutResult carries the created order and, for gateway payments, where to send the customer.
type CheckoutResult struct {
	Order       domain.Order
	CheckoutURL string
}

// RequiresRedirect reports whether the customer must complete payment at the gateway.
func (r CheckoutResult) RequiresRedirect() bool {
	return r.CheckoutURL != ""
}

// PaymentOutcome is the gateway's verdict for a checkout session.
type PaymentOutcome string

const (
	PaymentOutcomeSucceeded PaymentOutcome = "succeeded"
	PaymentOutcomeFailed    PaymentOutcome = "failed"
)

// PaymentCallbackCommand reports a gateway outcome for an order. Browser redirects must name the
// order's owner in UserID; only signature-checked webhooks may set Verified instead.
type PaymentCallbackCommand struct {
	OrderID   int64
	UserID    int64
	Verified  bool
	Outcome   PaymentOutcome
	SessionID string
	PaymentID string
}

type UpdateOrderStatusCommand struct {
	OrderID int64
	Status  domain.OrderStatus
	ActorID int64
	// OnlyFrom, when set, turns the update into a no-op unless the locked order is still in that status.
	OnlyFrom domain.OrderStatus
	// PaymentID records the gateway payment reference alongside the status change.
	PaymentID string
}

// UpdateDeliveryCommand changes delivery status. Empty optional fields leave stored values untouched.
type UpdateDeliveryCommand struct {
	DeliveryID      int64
	Status          domain.DeliveryStatus
	DriverName      string
	ScheduledDate   *time.Time
	Remarks         string
	ProofOfDelivery string
	// SkipOrderSync updates the delivery alone without moving the order.
	SkipOrderSync bool
	ActorID       int64
}

// DeliveryView decorates a delivery with a signed proof link when one is stored.
type DeliveryView struct {
	Delivery       domain.Delivery
	ProofURL       string
	ProofExpiresAt time.Time
}

type MarkDamagedCommand struct {
	ItemID         int64
	Quantity       int
	DiscountAmount decimal.Decimal
	Status         domain.DamagedItemStatus
	Remarks        string
}

type UpdateDamagedItemCommand struct {
	DamagedItemID int64
	Status        *domain.DamagedItemStatus
	Remarks       *string
}

type CreateItemCommand struct {
	Name             string
	Brand            string
	Category         string
	Description      string
	UnitPrice        decimal.Decimal
	Quantity         int
	RestockThreshold *int
}
