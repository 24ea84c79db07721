package api

import "github.com/uhyunpark/simex/pkg/app/core/order"

// API request and response types for REST endpoints and WebSocket messages

// ==============================
// REST Request Types
// ==============================

// PlaceOrderRequest is the body of POST /orders
type PlaceOrderRequest struct {
	UserID   string `json:"user_id"`
	Side     string `json:"side"` // "Buy" or "Sell", case-insensitive
	Symbol   string `json:"symbol"`
	Price    int64  `json:"price"`
	Quantity int64  `json:"quantity"`
}

// ==============================
// REST Response Types
// ==============================

type UserCreatedResponse struct {
	UserID string `json:"user_id"`
}

type UserExistsResponse struct {
	Exists bool `json:"exists"`
}

type BalanceResponse struct {
	Balance int64 `json:"balance"`
}

type HoldingsResponse struct {
	Stocks map[string]int64 `json:"stocks"`
}

type AssetBalanceResponse struct {
	Symbol  string `json:"symbol"`
	Balance int64  `json:"balance"`
}

type PlaceOrderResponse struct {
	OrderID int64 `json:"order"`
}

type CancelOrderResponse struct {
	Cancelled bool `json:"cancelled"`
}

type OrderStatusResponse struct {
	Opened bool `json:"opened"`
}

type OpenOrdersResponse struct {
	Orders []order.Order `json:"orders"`
}

type TradesResponse struct {
	Trades []order.Trade `json:"trades"`
}

type PriceResponse struct {
	Symbol string `json:"symbol"`
	Price  int64  `json:"price"`
}

// StateResponse summarizes the exchange; Digest is a 0x-prefixed Keccak-256 hash
type StateResponse struct {
	Digest     string `json:"digest"`
	Trades     int    `json:"trades"`
	OpenOrders int    `json:"open_orders"`
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by clients to manage channel subscriptions
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// WSAck confirms a subscription change
type WSAck struct {
	Type     string   `json:"type"` // "subscribed" or "unsubscribed"
	Channels []string `json:"channels"`
}

// TradeUpdate is pushed on "trades" and "trades:{symbol}"
type TradeUpdate struct {
	Type      string      `json:"type"` // always "trade"
	Trade     order.Trade `json:"trade"`
	Timestamp int64       `json:"timestamp"` // Unix milliseconds
}
