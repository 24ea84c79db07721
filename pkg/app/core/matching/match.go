package matching

import (
	"math"
	"sort"

	"github.com/uhyunpark/simex/pkg/app/core/order"
)

// HaltReason says why a matching pass stopped walking the book
type HaltReason int8

const (
	HaltNone                 HaltReason = iota // one side of the book ran out
	HaltNoCross                                // current buy price below current sell price
	HaltSymbolMismatch                         // paired orders are for different symbols
	HaltInsufficientFunds                      // buyer unknown or cash below notional; buy evicted
	HaltInsufficientHoldings                   // seller holding below sell quantity; sell evicted
	HaltEmptyFill                              // executed quantity was not positive
)

func (r HaltReason) String() string {
	switch r {
	case HaltNone:
		return "exhausted"
	case HaltNoCross:
		return "no_cross"
	case HaltSymbolMismatch:
		return "symbol_mismatch"
	case HaltInsufficientFunds:
		return "insufficient_funds"
	case HaltInsufficientHoldings:
		return "insufficient_holdings"
	case HaltEmptyFill:
		return "empty_fill"
	default:
		return "unknown"
	}
}

// PassResult reports what one matching pass did. It carries no state of its own;
// every effect has already been applied to the book and the engine.
type PassResult struct {
	Trades  []order.Trade // trades appended during this pass, in order
	Evicted []int64       // orders removed from the book for lack of funds or holdings
	Halt    HaltReason
}

// RunMatchingPass pairs open orders from book and settles them.
//
// Buys are walked from the lowest limit price up and sells from the highest
// down, one pair per step. The pass stops at the first pair that does not
// cross or fails to execute. This is not best-price priority; the ordering and
// the halt rule are part of the exchange's observable behavior.
func (e *Engine) RunMatchingPass(book Book) PassResult {
	var buys, sells []order.Order
	for _, o := range book.OpenOrders() {
		switch o.Side {
		case order.Buy:
			buys = append(buys, o)
		case order.Sell:
			sells = append(sells, o)
		}
	}

	// stable so equal prices keep the book's enumeration (ascending id)
	sort.SliceStable(buys, func(i, j int) bool { return buys[i].Price < buys[j].Price })
	sort.SliceStable(sells, func(i, j int) bool { return sells[i].Price > sells[j].Price })

	var res PassResult
	i, j := 0, 0
	for i < len(buys) && j < len(sells) {
		buy, sell := buys[i], sells[j]
		if buy.Price < sell.Price {
			res.Halt = HaltNoCross
			break
		}

		trade, reason, ok := e.executeTrade(buy, sell, book)
		if !ok {
			switch reason {
			case HaltInsufficientFunds:
				res.Evicted = append(res.Evicted, buy.ID)
			case HaltInsufficientHoldings:
				res.Evicted = append(res.Evicted, sell.ID)
			}
			res.Halt = reason
			break
		}
		res.Trades = append(res.Trades, trade)
		i++
		j++
	}

	return res
}

// executeTrade settles one buy/sell pair at the buy order's price.
// On failure nothing is transferred; an underfunded side is evicted from the book.
func (e *Engine) executeTrade(buy, sell order.Order, book Book) (order.Trade, HaltReason, bool) {
	if buy.Symbol != sell.Symbol {
		return order.Trade{}, HaltSymbolMismatch, false
	}

	executed := min(buy.Quantity, sell.Quantity)
	if executed <= 0 {
		return order.Trade{}, HaltEmptyFill, false
	}
	notional, ok := mulInt64(executed, buy.Price)
	if !ok {
		book.RemoveOrder(buy.ID)
		return order.Trade{}, HaltInsufficientFunds, false
	}

	cash, known := book.Balance(buy.UserID)
	if !known || cash < notional {
		book.RemoveOrder(buy.ID)
		return order.Trade{}, HaltInsufficientFunds, false
	}

	// the seller must cover the whole remaining sell quantity, not just this fill
	held, holds := e.AssetBalance(sell.UserID, sell.Symbol)
	if !holds || held < sell.Quantity {
		book.RemoveOrder(sell.ID)
		return order.Trade{}, HaltInsufficientHoldings, false
	}

	book.AdjustBalance(buy.UserID, -notional)
	book.AdjustBalance(sell.UserID, notional)
	e.AdjustAssetBalance(buy.UserID, buy.Symbol, executed)
	e.AdjustAssetBalance(sell.UserID, sell.Symbol, -executed)

	trade := order.Trade{
		Symbol:      buy.Symbol,
		Price:       buy.Price,
		Quantity:    executed,
		BuyOrderID:  buy.ID,
		SellOrderID: sell.ID,
	}
	e.trades = append(e.trades, trade)

	book.RemoveOrder(buy.ID)
	book.RemoveOrder(sell.ID)
	if rest := buy.Quantity - executed; rest > 0 {
		book.RestoreOrder(buy.WithQuantity(rest))
	}
	if rest := sell.Quantity - executed; rest > 0 {
		book.RestoreOrder(sell.WithQuantity(rest))
	}

	return trade, HaltNone, true
}

// mulInt64 returns a*b and false if the product overflows int64
func mulInt64(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, false
	}
	p := a * b
	if p/b != a {
		return 0, false
	}
	return p, true
}
