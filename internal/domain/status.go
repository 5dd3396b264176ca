package domain

import (
	"fmt"
	"slices"
	"strings"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusAssembled OrderStatus = "assembled"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// DeliveryStatus is the lifecycle state of a delivery.
type DeliveryStatus string

const (
	DeliveryStatusScheduled   DeliveryStatus = "scheduled"
	DeliveryStatusRescheduled DeliveryStatus = "rescheduled"
	DeliveryStatusInTransit   DeliveryStatus = "in_transit"
	DeliveryStatusDelivered   DeliveryStatus = "delivered"
	DeliveryStatusFailed      DeliveryStatus = "failed"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:   {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed: {OrderStatusAssembled, OrderStatusCancelled},
	OrderStatusAssembled: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:   {OrderStatusDelivered, OrderStatusCancelled},
	OrderStatusDelivered: {OrderStatusPaid, OrderStatusCancelled},
}

// Edges only a delivery update may drive: a failed or rescheduled run sends a shipped
// order back to assembled, and a delivery completed without an in-transit scan skips shipped.
var deliverySyncTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusShipped:   {OrderStatusAssembled},
	OrderStatusAssembled: {OrderStatusDelivered},
}

var deliveryTransitions = map[DeliveryStatus][]DeliveryStatus{
	DeliveryStatusScheduled:   {DeliveryStatusRescheduled, DeliveryStatusInTransit, DeliveryStatusDelivered, DeliveryStatusFailed},
	DeliveryStatusRescheduled: {DeliveryStatusRescheduled, DeliveryStatusInTransit, DeliveryStatusDelivered, DeliveryStatusFailed},
	DeliveryStatusInTransit:   {DeliveryStatusRescheduled, DeliveryStatusDelivered, DeliveryStatusFailed},
	DeliveryStatusFailed:      {DeliveryStatusScheduled, DeliveryStatusRescheduled},
}

var orderToDelivery = map[OrderStatus]DeliveryStatus{
	OrderStatusAssembled: DeliveryStatusScheduled,
	OrderStatusShipped:   DeliveryStatusInTransit,
	OrderStatusDelivered: DeliveryStatusDelivered,
}

var deliveryToOrder = map[DeliveryStatus]OrderStatus{
	DeliveryStatusScheduled:   OrderStatusAssembled,
	DeliveryStatusRescheduled: OrderStatusAssembled,
	DeliveryStatusInTransit:   OrderStatusShipped,
	DeliveryStatusDelivered:   OrderStatusDelivered,
	DeliveryStatusFailed:      OrderStatusAssembled,
}

// ParseOrderStatus normalises raw input into a known order status.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	status := OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	return status, status.Valid()
}

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusAssembled, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusPaid, OrderStatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusPaid || s == OrderStatusCancelled
}

// CanTransitionTo reports whether the order state machine permits s → target.
func (s OrderStatus) CanTransitionTo(target OrderStatus) bool {
	return slices.Contains(orderTransitions[s], target)
}

// CanSyncTo reports whether a delivery update may move an order from s to target.
func (s OrderStatus) CanSyncTo(target OrderStatus) bool {
	return s.CanTransitionTo(target) || slices.Contains(deliverySyncTransitions[s], target)
}

// NextOrderStatuses lists the statuses reachable from s in one step.
func NextOrderStatuses(s OrderStatus) []OrderStatus {
	return slices.Clone(orderTransitions[s])
}

// ParseDeliveryStatus normalises raw input into a known delivery status.
func ParseDeliveryStatus(raw string) (DeliveryStatus, bool) {
	status := DeliveryStatus(strings.ToLower(strings.TrimSpace(raw)))
	return status, status.Valid()
}

// Valid reports whether s is a known delivery status.
func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryStatusScheduled, DeliveryStatusRescheduled, DeliveryStatusInTransit,
		DeliveryStatusDelivered, DeliveryStatusFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether a delivery may move from s to target.
func (s DeliveryStatus) CanTransitionTo(target DeliveryStatus) bool {
	return slices.Contains(deliveryTransitions[s], target)
}

// DeliveryStatusFor maps an order status onto the delivery status it implies.
func DeliveryStatusFor(status OrderStatus) (DeliveryStatus, bool) {
	mapped, ok := orderToDelivery[status]
	return mapped, ok
}

// OrderStatusFor maps a delivery status onto the order status it implies.
func OrderStatusFor(status DeliveryStatus) (OrderStatus, bool) {
	mapped, ok := deliveryToOrder[status]
	return mapped, ok
}

// ShouldSync reports whether propagating target onto current would change anything.
func ShouldSync[S ~string](current, target S) bool {
	return current != target
}

// FormatOrderNumber zero-pads an order id to at least four digits.
func FormatOrderNumber(id int64) string {
	return fmt.Sprintf("%04d", id)
}
