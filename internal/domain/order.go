package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide is the side sent to the OMS.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "B"
	OrderSideSell OrderSide = "S"
)

// OrderType is the execution style of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderParams carries what the OMS needs to create an order.
type OrderParams struct {
	AlgoInstanceID int64           `json:"algoInstanceId"`
	Exchange       string          `json:"exchange"`
	Symbol         string          `json:"symbol"`
	Side           OrderSide       `json:"side"`
	Type           OrderType       `json:"type"`
	Quantity       decimal.Decimal `json:"quantity"`
	Price          decimal.Decimal `json:"price"`
	// ExecutionID is sent as the client order id so fills and history
	// lookups can be matched back to the arbitrage execution.
	ExecutionID int64 `json:"arbitrageExecutionId,omitempty"`
}

// Order is an order accepted by the OMS.
type Order struct {
	OrderParams
	ID              int64     `json:"id"`
	ExchangeOrderID string    `json:"exchangeOrderId"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Order states reported on fill events.
const (
	OrderStateOpen    = "open"
	OrderStateFilled  = "filled"
	OrderStatePartial = "partial"
)

// OrderFill is the event published by the OMS when an order executes.
type OrderFill struct {
	Order            Order           `json:"order"`
	Status           string          `json:"status"`
	QuantityExecuted decimal.Decimal `json:"quantityExecuted"`
	AvgPrice         decimal.Decimal `json:"avgPrice"`
}

// OrderHistory is one row of the exchange's order history.
type OrderHistory struct {
	OrderID          int64           `json:"OrderId"`
	ClientOrderID    int64           `json:"ClientOrderId"`
	Side             string          `json:"Side"`
	Price            decimal.Decimal `json:"Price"`
	Quantity         decimal.Decimal `json:"Quantity"`
	QuantityExecuted decimal.Decimal `json:"QuantityExecuted"`
	AvgPrice         decimal.Decimal `json:"AvgPrice"`
	OrderState       string          `json:"OrderState"`
	ReceiveTime      int64           `json:"ReceiveTime"`
}
