package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle status of an order as reported by the remote API.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// IsTerminal reports whether no further payment transitions are expected.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusPaid || s == OrderStatusCancelled
}

// Order represents a customer order held by the remote API.
type Order struct {
	ID               string          `json:"id"`
	Status           OrderStatus     `json:"status"`
	TotalAmount      decimal.Decimal `json:"totalAmount"`
	CreatedAt        time.Time       `json:"createdAt"`
	AddressID        *string         `json:"addressId,omitempty"`
	Address          *GuestAddress   `json:"address,omitempty"`
	Items            []OrderItem     `json:"items"`
	InvoiceID        string          `json:"invoiceId,omitempty"`
	DeliveryDate     string          `json:"deliveryDate,omitempty"`
	DeliveryTimeSlot string          `json:"deliveryTimeSlot,omitempty"`
}

// OrderItem represents a line item in an order.
type OrderItem struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// Subtotal returns quantity times unit price.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// CreateOrderRequest is the payload for POST /orders.
// Exactly one of AddressID or Address is set.
type CreateOrderRequest struct {
	AddressID        *string            `json:"addressId,omitempty"`
	Address          *GuestAddress      `json:"address,omitempty"`
	DeliveryDate     string             `json:"deliveryDate"`
	DeliveryTimeSlot string             `json:"deliveryTimeSlot"`
	Items            []OrderItemRequest `json:"items,omitempty"`
	Name             string             `json:"name,omitempty"`
	Phone            string             `json:"phone,omitempty"`
	Email            string             `json:"email,omitempty"`
}

// OrderItemRequest represents a single cart line sent with a guest order.
type OrderItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// ContactInfo is the contact block of the checkout form.
type ContactInfo struct {
	Name  string `json:"name" validate:"required"`
	Phone string `json:"phone" validate:"required,len=8,number"`
	Email string `json:"email" validate:"required,contains=@"`
}

// OrderPath is the storefront page showing an order.
func OrderPath(orderID string) string {
	return "/orders/" + orderID
}
