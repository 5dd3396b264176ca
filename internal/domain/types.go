package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pagination defines keyset paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage wraps a page of results and the token for the next page, if any.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// PaymentMethod enumerates how a customer settles an order.
type PaymentMethod string

const (
	// PaymentMethodCash is settled at pickup or on delivery.
	PaymentMethodCash PaymentMethod = "cash"
	// PaymentMethodGCash is settled through a hosted gateway session.
	PaymentMethodGCash PaymentMethod = "gcash"
	// PaymentMethodBankTransfer is settled through a hosted gateway session.
	PaymentMethodBankTransfer PaymentMethod = "bank_transfer"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodGCash, PaymentMethodBankTransfer:
		return true
	}
	return false
}

// RequiresGateway reports whether checkout must redirect the customer to a payment gateway.
func (m PaymentMethod) RequiresGateway() bool {
	return m == PaymentMethodGCash || m == PaymentMethodBankTransfer
}

// DeliveryMethod enumerates fulfilment options.
type DeliveryMethod string

const (
	DeliveryMethodPickup   DeliveryMethod = "pickup"
	DeliveryMethodDelivery DeliveryMethod = "delivery"
)

// Valid reports whether m is a known delivery method.
func (m DeliveryMethod) Valid() bool {
	return m == DeliveryMethodPickup || m == DeliveryMethodDelivery
}

// DamagedItemStatus tracks the disposition of damaged stock.
type DamagedItemStatus string

const (
	DamagedItemStatusDamaged    DamagedItemStatus = "damaged"
	DamagedItemStatusResellable DamagedItemStatus = "resellable"
	DamagedItemStatusDisposed   DamagedItemStatus = "disposed"
)

// Valid reports whether s is a known damaged item status.
func (s DamagedItemStatus) Valid() bool {
	switch s {
	case DamagedItemStatusDamaged, DamagedItemStatusResellable, DamagedItemStatusDisposed:
		return true
	}
	return false
}

// BillingStatus tracks settlement of an order's bill.
type BillingStatus string

const (
	BillingStatusUnpaid    BillingStatus = "unpaid"
	BillingStatusPaid      BillingStatus = "paid"
	BillingStatusCancelled BillingStatus = "cancelled"
)

// Item is a sellable inventory record.
type Item struct {
	ID               int64
	Code             string
	Name             string
	Brand            string
	Category         string
	Description      string
	UnitPrice        decimal.Decimal
	Quantity         int
	RestockThreshold int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsLowStock reports whether the on-hand quantity has reached the restock threshold.
func (i Item) IsLowStock() bool {
	return i.Quantity <= i.RestockThreshold
}

// DamagedItem is a reduced-quality pool of an Item sold at a discount.
type DamagedItem struct {
	ID                 int64
	ItemID             int64
	Quantity           int
	DiscountedPrice    decimal.Decimal
	DiscountPercentage decimal.Decimal
	Status             DamagedItemStatus
	Remarks            string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Purchasable reports whether customers may add the damaged stock to a cart.
func (d DamagedItem) Purchasable() bool {
	return d.Status == DamagedItemStatusResellable
}

// CartLine is a single (user, item, damaged item) row in a customer's cart.
type CartLine struct {
	ID            int64
	UserID        int64
	ItemID        int64
	DamagedItemID *int64
	ItemName      string
	Quantity      int
	Price         decimal.Decimal
	Selected      bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Source identifies the stock pool backing the line.
func (l CartLine) Source() StockSource {
	if l.DamagedItemID != nil {
		return DamagedItemSource(l.ItemID, *l.DamagedItemID)
	}
	return ItemSource(l.ItemID)
}

// Subtotal is the captured price multiplied by the quantity.
func (l CartLine) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// SumLines totals quantity × captured price across lines.
func SumLines(lines []CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Subtotal())
	}
	return total
}

// Order is a placed customer order.
type Order struct {
	ID               int64
	UserID           int64
	CustomerEmail    string
	Status           OrderStatus
	PaymentMethod    PaymentMethod
	DeliveryMethod   DeliveryMethod
	DeliveryAddress  string
	TotalAmount      decimal.Decimal
	PaymentSessionID string
	PaymentID        string
	Items            []OrderItem
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Number renders the customer-facing order number, e.g. "0042".
func (o Order) Number() string {
	return FormatOrderNumber(o.ID)
}

// OrderItem is an immutable snapshot of a cart line at purchase time.
type OrderItem struct {
	ID            int64
	OrderID       int64
	ItemID        int64
	DamagedItemID *int64
	ItemName      string
	Quantity      int
	UnitPrice     decimal.Decimal
}

// Subtotal is the unit price multiplied by the quantity.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Billing records the amount owed for an order.
type Billing struct {
	ID        int64
	OrderID   int64
	Number    string
	Amount    decimal.Decimal
	Status    BillingStatus
	PaidAt    *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Delivery tracks the shipment of a delivery-method order.
type Delivery struct {
	ID                 int64
	OrderID            int64
	Status             DeliveryStatus
	ScheduledDate      time.Time
	ActualDeliveryDate *time.Time
	DriverName         string
	Remarks            string
	ProofOfDelivery    string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
