package matching

import (
	"fmt"
	"testing"

	"github.com/uhyunpark/simex/pkg/app/core/ledger"
	"github.com/uhyunpark/simex/pkg/app/core/order"
)

// deepBook seeds 100 resting buys below 1000 and 100 resting sells above 1100
func deepBook(b *testing.B) (*ledger.Ledger, *Engine) {
	b.Helper()
	l := ledger.New()
	e := NewEngine()
	for i := 0; i < 100; i++ {
		buyer, seller := fmt.Sprintf("buyer-%d", i), fmt.Sprintf("seller-%d", i)
		l.RegisterUser(buyer)
		l.AdjustBalance(buyer, 1<<40)
		l.RegisterUser(seller)
		e.AdjustAssetBalance(seller, "HYPL", 1<<40)

		l.SubmitOrder(order.Order{UserID: buyer, Side: order.Buy, Symbol: "HYPL", Price: int64(1000 - i), Quantity: 100})
		l.SubmitOrder(order.Order{UserID: seller, Side: order.Sell, Symbol: "HYPL", Price: int64(1100 + i), Quantity: 100})
	}
	return l, e
}

// BenchmarkPassNoCross measures a pass over a deep book that does not cross
func BenchmarkPassNoCross(b *testing.B) {
	l, e := deepBook(b)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		e.RunMatchingPass(l)
	}
}

// BenchmarkPassCrossingPair measures placing one crossing pair and matching it
func BenchmarkPassCrossingPair(b *testing.B) {
	l := ledger.New()
	e := NewEngine()
	l.RegisterUser("buyer")
	l.RegisterUser("seller")
	l.AdjustBalance("buyer", 1<<50)
	e.AdjustAssetBalance("seller", "HYPL", 1<<40)
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		l.SubmitOrder(order.Order{UserID: "buyer", Side: order.Buy, Symbol: "HYPL", Price: 1050, Quantity: 10})
		l.SubmitOrder(order.Order{UserID: "seller", Side: order.Sell, Symbol: "HYPL", Price: 1050, Quantity: 10})
		e.RunMatchingPass(l)
	}
}
