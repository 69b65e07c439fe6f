package models

import (
	"time"
)

type OrderStatus string

const (
	StatusProcessing     OrderStatus = "processing"
	StatusOutForDelivery OrderStatus = "out-for-delivery"
	StatusDelivered      OrderStatus = "delivered"
	StatusCancelled      OrderStatus = "cancelled"
)

// OrderStatuses lists every status an order can hold, in lifecycle order.
var OrderStatuses = []OrderStatus{
	StatusProcessing,
	StatusOutForDelivery,
	StatusDelivered,
	StatusCancelled,
}

// ParseOrderStatus returns the canonical status for s, or false when s is not one.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	for _, status := range OrderStatuses {
		if string(status) == s {
			return status, true
		}
	}
	return "", false
}

// IsTerminal reports whether no further transitions are allowed.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// GeoPoint is stored longitude first, matching GeoJSON coordinate order.
type GeoPoint struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
}

type LineItem struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  float64 `json:"quantity"`
}

type Order struct {
	ID           string      `json:"id"`
	OwnerID      string      `json:"ownerId"`
	Items        []LineItem  `json:"items"`
	Subtotal     float64     `json:"subtotal"`
	DeliveryFee  float64     `json:"deliveryFee"`
	Total        float64     `json:"total"`
	Location     GeoPoint    `json:"location"`
	Address      string      `json:"address,omitempty"`
	Status       OrderStatus `json:"status"`
	DeliveryTime *time.Time  `json:"deliveryTime,omitempty"`
	Archived     bool        `json:"archived"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// OwnerSummary aggregates one owner's order history.
type OwnerSummary struct {
	OwnerID         string       `json:"ownerId"`
	User            *UserSummary `json:"user,omitempty"`
	TotalOrders     int          `json:"totalOrders"`
	DeliveredOrders int          `json:"deliveredOrders"`
	CancelledOrders int          `json:"cancelledOrders"`
	TotalSpent      float64      `json:"totalSpent"`
	AvgOrderValue   float64      `json:"avgOrderValue"`
}

type UserSummary struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Mobile string `json:"mobile,omitempty"`
	Email  string `json:"email,omitempty"`
}
