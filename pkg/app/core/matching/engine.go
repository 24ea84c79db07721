// Package matching owns per-user asset holdings and the trade log, and runs
// the matching pass that pairs open orders from a Book into trades.
//
// An Engine is not safe for concurrent use; exchange.Exchange serializes it
// together with the ledger it matches against.
package matching

import (
	"sort"

	"github.com/uhyunpark/simex/pkg/app/core/order"
)

// Book is the part of the ledger a matching pass reads and mutates:
// cash balances and the open-order set.
type Book interface {
	Balance(userID string) (int64, bool)
	AdjustBalance(userID string, delta int64)
	OpenOrders() []order.Order
	RemoveOrder(orderID int64)
	RestoreOrder(o order.Order)
}

type Engine struct {
	holdings map[string]map[string]int64 // user id -> symbol -> quantity
	trades   []order.Trade               // append-only
}

func NewEngine() *Engine {
	return &Engine{
		holdings: make(map[string]map[string]int64),
	}
}

// AssetBalance returns the user's holding of symbol, or false if the user never held it
func (e *Engine) AssetBalance(userID, symbol string) (int64, bool) {
	userHoldings, ok := e.holdings[userID]
	if !ok {
		return 0, false
	}
	q, ok := userHoldings[symbol]
	return q, ok
}

// AdjustAssetBalance creates the (user, symbol) entry at zero if absent and adds delta.
// There is no negativity check; callers validate first.
func (e *Engine) AdjustAssetBalance(userID, symbol string, delta int64) {
	userHoldings, ok := e.holdings[userID]
	if !ok {
		userHoldings = make(map[string]int64)
		e.holdings[userID] = userHoldings
	}
	userHoldings[symbol] += delta
}

// Holdings returns a copy of every holding of the user (nil if none)
func (e *Engine) Holdings(userID string) map[string]int64 {
	userHoldings, ok := e.holdings[userID]
	if !ok {
		return nil
	}
	out := make(map[string]int64, len(userHoldings))
	for sym, q := range userHoldings {
		out[sym] = q
	}
	return out
}

// Holders returns ids of users with at least one holding record, sorted
func (e *Engine) Holders() []string {
	users := make([]string, 0, len(e.holdings))
	for u := range e.holdings {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

// LastPrice returns the price of the most recent trade in symbol
func (e *Engine) LastPrice(symbol string) (int64, bool) {
	for i := len(e.trades) - 1; i >= 0; i-- {
		if e.trades[i].Symbol == symbol {
			return e.trades[i].Price, true
		}
	}
	return 0, false
}

// TradesForSymbol returns trades in symbol, oldest first
func (e *Engine) TradesForSymbol(symbol string) []order.Trade {
	out := make([]order.Trade, 0)
	for _, t := range e.trades {
		if t.Symbol == symbol {
			out = append(out, t)
		}
	}
	return out
}

// TradesForOrder returns trades where the order was buyer or seller, oldest first
func (e *Engine) TradesForOrder(orderID int64) []order.Trade {
	out := make([]order.Trade, 0)
	for _, t := range e.trades {
		if t.Involves(orderID) {
			out = append(out, t)
		}
	}
	return out
}

// Trades returns a copy of the whole trade log
func (e *Engine) Trades() []order.Trade {
	out := make([]order.Trade, len(e.trades))
	copy(out, e.trades)
	return out
}

func (e *Engine) TradeCount() int {
	return len(e.trades)
}
