package repositories

import (
	"context"
	"time"

	domain "github.com/RLASH18/abg-prime-v2/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Items() ItemRepository
	DamagedItems() DamagedItemRepository
	Carts() CartRepository
	Orders() OrderRepository
	Billings() BillingRepository
	Deliveries() DeliveryRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations in a transactional boundary. Repositories invoked with
// the context passed to fn participate in the same transaction.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ItemRepository persists inventory items and their on-hand quantity.
type ItemRepository interface {
	FindByID(ctx context.Context, itemID int64) (domain.Item, error)
	// FindForUpdate reads the item and, inside a transaction, holds a row lock until commit.
	FindForUpdate(ctx context.Context, itemID int64) (domain.Item, error)
	Insert(ctx context.Context, item domain.Item) (domain.Item, error)
	LatestByCategory(ctx context.Context, category string) (domain.Item, error)
	ListLowStock(ctx context.Context, limit int) ([]domain.Item, error)
	// DecrementStock subtracts qty only when at least qty units remain. A shortfall returns a
	// *StockError with StockErrorInsufficient.
	DecrementStock(ctx context.Context, itemID int64, qty int) error
	IncrementStock(ctx context.Context, itemID int64, qty int) error
}

// DamagedItemRepository persists discounted damaged stock pools.
type DamagedItemRepository interface {
	FindByID(ctx context.Context, damagedItemID int64) (domain.DamagedItem, error)
	FindForUpdate(ctx context.Context, damagedItemID int64) (domain.DamagedItem, error)
	Insert(ctx context.Context, damaged domain.DamagedItem) (domain.DamagedItem, error)
	Update(ctx context.Context, damaged domain.DamagedItem) error
	Delete(ctx context.Context, damagedItemID int64) error
	DecrementStock(ctx context.Context, damagedItemID int64, qty int) error
	IncrementStock(ctx context.Context, damagedItemID int64, qty int) error
}

// CartRepository persists per-user cart lines.
type CartRepository interface {
	ListByUser(ctx context.Context, userID int64) ([]domain.CartLine, error)
	ListSelected(ctx context.Context, userID int64) ([]domain.CartLine, error)
	FindByID(ctx context.Context, userID, lineID int64) (domain.CartLine, error)
	// FindMatching returns the line for (user, item, damaged item); a nil damagedItemID matches
	// regular stock only.
	FindMatching(ctx context.Context, userID, itemID int64, damagedItemID *int64) (domain.CartLine, error)
	Insert(ctx context.Context, line domain.CartLine) (domain.CartLine, error)
	Update(ctx context.Context, line domain.CartLine) error
	Delete(ctx context.Context, userID, lineID int64) error
	DeleteByUser(ctx context.Context, userID int64) error
	// DeleteLines removes the listed lines owned by userID and reports how many went.
	DeleteLines(ctx context.Context, userID int64, lineIDs []int64) (int64, error)
	SetSelectedAll(ctx context.Context, userID int64, selected bool) error
}

// OrderRepository persists orders together with their item snapshots.
type OrderRepository interface {
	// Insert stores the order and its items, returning them with assigned ids.
	Insert(ctx context.Context, order domain.Order) (domain.Order, error)
	FindByID(ctx context.Context, orderID int64) (domain.Order, error)
	FindForUpdate(ctx context.Context, orderID int64) (domain.Order, error)
	UpdateStatus(ctx context.Context, orderID int64, status domain.OrderStatus, updatedAt time.Time) error
	SetPaymentSession(ctx context.Context, orderID int64, sessionID string) error
	SetPaymentID(ctx context.Context, orderID int64, paymentID string) error
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// BillingRepository persists order billings.
type BillingRepository interface {
	FindByOrderID(ctx context.Context, orderID int64) (domain.Billing, error)
	Insert(ctx context.Context, billing domain.Billing) (domain.Billing, error)
	Update(ctx context.Context, billing domain.Billing) error
	// LatestNumberOn returns the highest billing number created on the given calendar day. Inside a
	// transaction it must see rows committed after the transaction began.
	LatestNumberOn(ctx context.Context, day time.Time) (string, error)
}

// DeliveryRepository persists deliveries for delivery-method orders.
type DeliveryRepository interface {
	FindByID(ctx context.Context, deliveryID int64) (domain.Delivery, error)
	FindByOrderID(ctx context.Context, orderID int64) (domain.Delivery, error)
	Insert(ctx context.Context, delivery domain.Delivery) (domain.Delivery, error)
	Update(ctx context.Context, delivery domain.Delivery) error
}

// HealthRepository reports dependency health for readiness probes.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// OrderListFilter narrows admin order listings.
type OrderListFilter struct {
	Status         *domain.OrderStatus
	PaymentMethod  *domain.PaymentMethod
	DeliveryMethod *domain.DeliveryMethod
	UserID         *int64
	Pagination     domain.Pagination
}
