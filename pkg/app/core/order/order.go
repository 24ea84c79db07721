package order

import (
	"fmt"
	"strings"
)

type Side int8

const (
	Buy  Side = 1
	Sell Side = -1
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "Buy"
	case Sell:
		return "Sell"
	default:
		return "unknown"
	}
}

// ParseSide accepts "Buy"/"Sell" in any letter case
func ParseSide(s string) (Side, error) {
	switch {
	case strings.EqualFold(s, "buy"):
		return Buy, nil
	case strings.EqualFold(s, "sell"):
		return Sell, nil
	}
	return 0, fmt.Errorf("invalid side %q: want Buy or Sell", s)
}

func (s Side) MarshalText() ([]byte, error) {
	if s != Buy && s != Sell {
		return nil, fmt.Errorf("invalid side value %d", int8(s))
	}
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(b []byte) error {
	side, err := ParseSide(string(b))
	if err != nil {
		return err
	}
	*s = side
	return nil
}

// Order is a limit order resting in the ledger's open set.
// Price is in currency units per unit of quantity; both are integers.
type Order struct {
	ID       int64  `json:"id"`
	UserID   string `json:"user_id"`
	Side     Side   `json:"side"`
	Symbol   string `json:"symbol"`
	Price    int64  `json:"price"`
	Quantity int64  `json:"quantity"`
}

// WithQuantity returns a copy carrying the same id and terms with a new quantity.
// Residuals of partial fills are built this way.
func (o Order) WithQuantity(qty int64) Order {
	o.Quantity = qty
	return o
}

func (o Order) IsBuy() bool { return o.Side == Buy }

// Trade is one settled fill between a buy order and a sell order.
type Trade struct {
	Symbol      string `json:"symbol"`
	Price       int64  `json:"price"`
	Quantity    int64  `json:"quantity"`
	BuyOrderID  int64  `json:"buy_order_id"`
	SellOrderID int64  `json:"sell_order_id"`
}

// Involves reports whether the order id took part in the trade on either side
func (t Trade) Involves(orderID int64) bool {
	return t.BuyOrderID == orderID || t.SellOrderID == orderID
}

// Notional returns price × quantity
func (t Trade) Notional() int64 {
	return t.Price * t.Quantity
}
