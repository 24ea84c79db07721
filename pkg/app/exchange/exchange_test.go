package exchange

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/uhyunpark/simex/pkg/app/core/matching"
	"github.com/uhyunpark/simex/pkg/app/core/order"
	"github.com/uhyunpark/simex/pkg/metrics"
)

// fakeClock hands out a shared tick channel; each receive is one interval
type fakeClock struct {
	ticks chan time.Time
	now   time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{ticks: make(chan time.Time), now: time.Unix(0, 0)}
}

func (c *fakeClock) After(time.Duration) <-chan time.Time { return c.ticks }
func (c *fakeClock) Now() time.Time                       { return c.now }

// tick blocks until the loop has picked up the tick
func (c *fakeClock) tick(t *testing.T) {
	t.Helper()
	select {
	case c.ticks <- c.now:
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not wait for tick")
	}
}

func newFunded(t *testing.T, cash map[string]int64, shares map[string]map[string]int64) *Exchange {
	t.Helper()
	ex := New(nil, nil)
	for user, amount := range cash {
		ex.RegisterUser(user)
		if _, err := ex.Deposit(user, amount); err != nil {
			t.Fatalf("deposit %s: %v", user, err)
		}
	}
	for user, held := range shares {
		for sym, q := range held {
			if _, err := ex.CreditAsset(user, sym, q); err != nil {
				t.Fatalf("credit %s %s: %v", user, sym, err)
			}
		}
	}
	return ex
}

// totals sums cash and per-symbol holdings under both locks
func (e *Exchange) totals() (int64, map[string]int64) {
	e.ledgerMu.RLock()
	defer e.ledgerMu.RUnlock()
	e.engineMu.RLock()
	defer e.engineMu.RUnlock()

	var cash int64
	for _, u := range e.ledger.Users() {
		b, _ := e.ledger.Balance(u)
		cash += b
	}
	shares := make(map[string]int64)
	for _, u := range e.engine.Holders() {
		for sym, q := range e.engine.Holdings(u) {
			shares[sym] += q
		}
	}
	return cash, shares
}

func TestDepositWithdraw(t *testing.T) {
	ex := New(nil, nil)
	ex.RegisterUser("alice")

	if _, err := ex.Deposit("bob", 10); !errors.Is(err, ErrUnknownUser) {
		t.Errorf("deposit to unknown user: err = %v", err)
	}
	if _, err := ex.Deposit("alice", -1); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("negative deposit: err = %v", err)
	}

	b, err := ex.Deposit("alice", 100)
	if err != nil || b != 100 {
		t.Fatalf("Deposit = %d, %v", b, err)
	}

	tests := []struct {
		name    string
		user    string
		amount  int64
		want    int64
		wantErr error
	}{
		{"too much", "alice", 101, 100, ErrInsufficientBalance},
		{"unknown", "bob", 1, 0, ErrUnknownUser},
		{"partial", "alice", 40, 60, nil},
		{"exact", "alice", 60, 0, nil},
		{"empty", "alice", 1, 0, ErrInsufficientBalance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ex.Withdraw(tt.user, tt.amount)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Withdraw err = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Withdraw = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCreditDebitAsset(t *testing.T) {
	ex := New(nil, nil)
	ex.RegisterUser("alice")

	if _, err := ex.CreditAsset("ghost", "AAPL", 5); !errors.Is(err, ErrUnknownUser) {
		t.Errorf("credit unknown user: err = %v", err)
	}
	if _, ok := ex.AssetBalance("ghost", "AAPL"); ok {
		t.Error("credit to unknown user created a holding")
	}
	if _, err := ex.DebitAsset("alice", "AAPL", 1); !errors.Is(err, ErrInsufficientHoldings) {
		t.Errorf("debit without holding: err = %v", err)
	}

	q, err := ex.CreditAsset("alice", "AAPL", 10)
	if err != nil || q != 10 {
		t.Fatalf("CreditAsset = %d, %v", q, err)
	}
	if _, err := ex.DebitAsset("alice", "AAPL", 11); !errors.Is(err, ErrInsufficientHoldings) {
		t.Errorf("overdraw: err = %v", err)
	}
	q, err = ex.DebitAsset("alice", "AAPL", 4)
	if err != nil || q != 6 {
		t.Fatalf("DebitAsset = %d, %v", q, err)
	}

	h := ex.Holdings("alice")
	if len(h) != 1 || h["AAPL"] != 6 {
		t.Errorf("Holdings = %v", h)
	}
}

func TestPlaceOrderMatchesImmediately(t *testing.T) {
	ex := newFunded(t,
		map[string]int64{"alice": 1000, "bob": 0},
		map[string]map[string]int64{"bob": {"AAPL": 10}})

	var mu sync.Mutex
	var seen []order.Trade
	ex.OnTrade(func(tr order.Trade) {
		mu.Lock()
		seen = append(seen, tr)
		mu.Unlock()
	})

	sellID, res := ex.PlaceOrder(order.Order{UserID: "bob", Side: order.Sell, Symbol: "AAPL", Price: 90, Quantity: 10})
	if len(res.Trades) != 0 || res.Halt != matching.HaltNone {
		t.Fatalf("lone sell: %+v", res)
	}

	buyID, res := ex.PlaceOrder(order.Order{UserID: "alice", Side: order.Buy, Symbol: "AAPL", Price: 100, Quantity: 4})
	if len(res.Trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(res.Trades))
	}
	want := order.Trade{Symbol: "AAPL", Price: 100, Quantity: 4, BuyOrderID: buyID, SellOrderID: sellID}
	if res.Trades[0] != want {
		t.Errorf("trade = %+v, want %+v", res.Trades[0], want)
	}

	if b, _ := ex.Balance("alice"); b != 600 {
		t.Errorf("alice cash = %d, want 600", b)
	}
	if b, _ := ex.Balance("bob"); b != 400 {
		t.Errorf("bob cash = %d, want 400", b)
	}
	if q, _ := ex.AssetBalance("alice", "AAPL"); q != 4 {
		t.Errorf("alice AAPL = %d, want 4", q)
	}
	if ex.HasOrder(buyID) {
		t.Error("filled buy still open")
	}
	if !ex.HasOrder(sellID) {
		t.Error("residual sell not reinserted")
	}
	if p, ok := ex.LastPrice("AAPL"); !ok || p != 100 {
		t.Errorf("LastPrice = %d, %v", p, ok)
	}
	if got := ex.TradesForOrder(sellID); len(got) != 1 {
		t.Errorf("TradesForOrder(sell) = %d trades", len(got))
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0] != want {
		t.Errorf("OnTrade saw %+v", seen)
	}
}

func TestSubmitOrderDefersMatching(t *testing.T) {
	ex := newFunded(t,
		map[string]int64{"alice": 1000, "bob": 0},
		map[string]map[string]int64{"bob": {"AAPL": 1}})

	ex.SubmitOrder(order.Order{UserID: "bob", Side: order.Sell, Symbol: "AAPL", Price: 50, Quantity: 1})
	ex.SubmitOrder(order.Order{UserID: "alice", Side: order.Buy, Symbol: "AAPL", Price: 50, Quantity: 1})
	if n := len(ex.Trades()); n != 0 {
		t.Fatalf("SubmitOrder matched: %d trades", n)
	}
	if n := len(ex.OpenOrders()); n != 2 {
		t.Fatalf("open orders = %d, want 2", n)
	}

	res := ex.RunMatchingPass()
	if len(res.Trades) != 1 || len(ex.OpenOrders()) != 0 {
		t.Errorf("pass = %+v, open = %d", res, len(ex.OpenOrders()))
	}
}

func TestCancelOrder(t *testing.T) {
	ex := newFunded(t, map[string]int64{"alice": 10}, nil)
	id := ex.SubmitOrder(order.Order{UserID: "alice", Side: order.Buy, Symbol: "AAPL", Price: 1, Quantity: 1})

	if !ex.CancelOrder(id) {
		t.Error("first cancel should report the order was open")
	}
	if ex.CancelOrder(id) {
		t.Error("second cancel should report nothing was open")
	}
	if ex.CancelOrder(999) {
		t.Error("cancel of unknown id reported open")
	}
}

func TestMetricsTrackPasses(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	ex := New(nil, m)
	ex.RegisterUser("alice")
	ex.RegisterUser("bob")
	_, _ = ex.Deposit("alice", 100)
	_, _ = ex.CreditAsset("bob", "AAPL", 1)

	ex.PlaceOrder(order.Order{UserID: "bob", Side: order.Sell, Symbol: "AAPL", Price: 10, Quantity: 1})
	ex.PlaceOrder(order.Order{UserID: "alice", Side: order.Buy, Symbol: "AAPL", Price: 10, Quantity: 1})
	// unfunded buyer is evicted
	ex.PlaceOrder(order.Order{UserID: "carol", Side: order.Buy, Symbol: "AAPL", Price: 10, Quantity: 1})
	ex.PlaceOrder(order.Order{UserID: "bob", Side: order.Sell, Symbol: "AAPL", Price: 10, Quantity: 1})

	if got := testutil.ToFloat64(m.OrdersPlaced); got != 4 {
		t.Errorf("orders placed = %v, want 4", got)
	}
	if got := testutil.ToFloat64(m.Trades.WithLabelValues("AAPL")); got != 1 {
		t.Errorf("trades = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.OrdersEvicted); got < 1 {
		t.Errorf("evicted = %v, want at least 1", got)
	}
	if got := testutil.ToFloat64(m.Users); got != 2 {
		t.Errorf("users = %v, want 2", got)
	}
}

func TestConcurrentTradingConservesCashAndShares(t *testing.T) {
	const (
		traders = 8
		rounds  = 50
	)
	cash := make(map[string]int64)
	shares := make(map[string]map[string]int64)
	users := make([]string, traders)
	for i := range users {
		users[i] = string(rune('a' + i))
		cash[users[i]] = 100_000
		shares[users[i]] = map[string]int64{"AAPL": 500, "MSFT": 500}
	}
	ex := newFunded(t, cash, shares)
	cash0, shares0 := ex.totals()

	var wg sync.WaitGroup
	for i, u := range users {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				side := order.Buy
				if (i+r)%2 == 0 {
					side = order.Sell
				}
				sym := "AAPL"
				if r%3 == 0 {
					sym = "MSFT"
				}
				id, _ := ex.PlaceOrder(order.Order{UserID: u, Side: side, Symbol: sym, Price: int64(95 + r%10), Quantity: int64(1 + r%4)})
				if r%7 == 0 {
					ex.CancelOrder(id)
				}
				_, _ = ex.Withdraw(u, 0)
				_ = ex.StateDigest()
			}
		}(i, u)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for r := 0; r < rounds; r++ {
			ex.RunMatchingPass()
		}
	}()
	wg.Wait()

	cash1, shares1 := ex.totals()
	if cash1 != cash0 {
		t.Errorf("cash total changed: %d -> %d", cash0, cash1)
	}
	for sym, q := range shares0 {
		if shares1[sym] != q {
			t.Errorf("%s total changed: %d -> %d", sym, q, shares1[sym])
		}
	}
	for _, u := range users {
		if b, _ := ex.Balance(u); b < 0 {
			t.Errorf("%s cash went negative: %d", u, b)
		}
	}
	if len(ex.Trades()) == 0 {
		t.Error("expected some trades")
	}
}

func TestStateDigest(t *testing.T) {
	build := func() *Exchange {
		ex := newFunded(t,
			map[string]int64{"alice": 500, "bob": 0},
			map[string]map[string]int64{"bob": {"AAPL": 5, "MSFT": 2}})
		ex.PlaceOrder(order.Order{UserID: "bob", Side: order.Sell, Symbol: "AAPL", Price: 20, Quantity: 5})
		ex.PlaceOrder(order.Order{UserID: "alice", Side: order.Buy, Symbol: "AAPL", Price: 25, Quantity: 3})
		return ex
	}

	a, b := build(), build()
	if a.StateDigest() != b.StateDigest() {
		t.Fatal("identical histories produced different digests")
	}

	before := a.StateDigest()
	a.CancelOrder(0)
	if a.StateDigest() == before {
		t.Error("cancel did not change digest")
	}

	if New(nil, nil).StateDigest() == before {
		t.Error("empty exchange shares digest with populated one")
	}
}

func TestStats(t *testing.T) {
	ex := newFunded(t, map[string]int64{"alice": 10, "bob": 10}, nil)
	ex.SubmitOrder(order.Order{UserID: "alice", Side: order.Buy, Symbol: "AAPL", Price: 1, Quantity: 1})

	got := ex.Stats()
	want := Stats{Users: 2, OpenOrders: 1, Trades: 0, NextOrderID: 1}
	if got != want {
		t.Errorf("Stats = %+v, want %+v", got, want)
	}
}

func TestRunMatcherRunsPassPerTick(t *testing.T) {
	ex := newFunded(t,
		map[string]int64{"alice": 100, "bob": 0},
		map[string]map[string]int64{"bob": {"AAPL": 1}})
	ex.SubmitOrder(order.Order{UserID: "bob", Side: order.Sell, Symbol: "AAPL", Price: 10, Quantity: 1})
	ex.SubmitOrder(order.Order{UserID: "alice", Side: order.Buy, Symbol: "AAPL", Price: 10, Quantity: 1})

	clock := newFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ex.RunMatcher(ctx, time.Second, clock) }()

	clock.tick(t)
	clock.tick(t) // accepted only after the first pass returned

	if n := len(ex.Trades()); n != 1 {
		t.Errorf("trades after tick = %d, want 1", n)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("RunMatcher returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("RunMatcher did not stop")
	}
}
