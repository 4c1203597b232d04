package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderStatus tracks the order lifecycle.
type OrderStatus string

const (
	OrderStatusFilled   OrderStatus = "filled"
	OrderStatusPartial  OrderStatus = "partial"
	OrderStatusRejected OrderStatus = "rejected"
	OrderStatusFailed   OrderStatus = "failed"
)

// OrderResult wraps the venue response after a market order submission.
type OrderResult struct {
	OrderID        string
	Status         OrderStatus
	FilledQuantity float64
	FilledPrice    float64
	Fee            float64
	Message        string
	SubmittedAt    time.Time
}
