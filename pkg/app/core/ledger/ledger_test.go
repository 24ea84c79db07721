package ledger

import (
	"testing"

	"github.com/uhyunpark/simex/pkg/app/core/order"
)

func newOrder(user string, side order.Side, symbol string, price, qty int64) order.Order {
	return order.Order{UserID: user, Side: side, Symbol: symbol, Price: price, Quantity: qty}
}

func TestRegisterUserStartsAtZero(t *testing.T) {
	l := New()
	l.RegisterUser("alice")

	b, ok := l.Balance("alice")
	if !ok {
		t.Fatal("registered user should be known")
	}
	if b != 0 {
		t.Errorf("balance = %d, want 0", b)
	}
}

func TestRegisterUserTwiceResetsBalance(t *testing.T) {
	l := New()
	l.RegisterUser("alice")
	l.AdjustBalance("alice", 500)
	l.RegisterUser("alice")

	if b, _ := l.Balance("alice"); b != 0 {
		t.Errorf("balance after re-registration = %d, want 0", b)
	}
}

func TestBalanceUnknownUserIsAbsent(t *testing.T) {
	l := New()
	if _, ok := l.Balance("ghost"); ok {
		t.Error("unknown user should have no balance")
	}
	if l.HasUser("ghost") {
		t.Error("HasUser(ghost) = true")
	}
}

func TestAdjustBalance(t *testing.T) {
	l := New()
	l.RegisterUser("alice")

	tests := []struct {
		name  string
		delta int64
		want  int64
	}{
		{"credit", 1000, 1000},
		{"debit", -300, 700},
		{"debit below zero is allowed", -900, -200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l.AdjustBalance("alice", tt.delta)
			if b, _ := l.Balance("alice"); b != tt.want {
				t.Errorf("balance = %d, want %d", b, tt.want)
			}
		})
	}
}

func TestAdjustBalanceUnknownUserIsNoop(t *testing.T) {
	l := New()
	l.AdjustBalance("ghost", 100)

	if _, ok := l.Balance("ghost"); ok {
		t.Error("adjusting an unknown user must not create an account")
	}
}

func TestSubmitOrderAssignsIncreasingIDs(t *testing.T) {
	l := New()

	var prev int64 = -1
	for i := 0; i < 5; i++ {
		id := l.SubmitOrder(newOrder("alice", order.Buy, "AAPL", 100, 1))
		if id != int64(i) {
			t.Errorf("order %d got id %d", i, id)
		}
		if id <= prev {
			t.Errorf("id %d not greater than previous %d", id, prev)
		}
		prev = id
	}
}

func TestSubmitOrderIgnoresCallerID(t *testing.T) {
	l := New()
	o := newOrder("alice", order.Sell, "AAPL", 100, 1)
	o.ID = 42

	id := l.SubmitOrder(o)
	if id != 0 {
		t.Fatalf("id = %d, want 0", id)
	}
	stored, ok := l.Order(0)
	if !ok || stored.ID != 0 {
		t.Errorf("stored order = %+v, ok=%v", stored, ok)
	}
	if l.HasOrder(42) {
		t.Error("caller-supplied id must not be used")
	}
}

func TestCancelledIDsAreNotReused(t *testing.T) {
	l := New()
	first := l.SubmitOrder(newOrder("alice", order.Buy, "AAPL", 100, 1))
	l.CancelOrder(first)

	second := l.SubmitOrder(newOrder("alice", order.Buy, "AAPL", 100, 1))
	if second == first {
		t.Errorf("id %d reused after cancel", first)
	}
}

func TestCancelOrder(t *testing.T) {
	l := New()
	id := l.SubmitOrder(newOrder("alice", order.Buy, "AAPL", 100, 1))

	l.CancelOrder(999) // unknown id
	if !l.HasOrder(id) {
		t.Fatal("cancelling an unknown id must not touch other orders")
	}

	l.CancelOrder(id)
	if l.HasOrder(id) {
		t.Error("order still open after cancel")
	}

	l.CancelOrder(id) // second cancel is a no-op
	if l.OpenOrderCount() != 0 {
		t.Errorf("open orders = %d, want 0", l.OpenOrderCount())
	}
}

func TestRestoreOrderKeepsID(t *testing.T) {
	l := New()
	id := l.SubmitOrder(newOrder("alice", order.Buy, "AAPL", 100, 10))
	o, _ := l.Order(id)

	l.RemoveOrder(id)
	l.RestoreOrder(o.WithQuantity(6))

	got, ok := l.Order(id)
	if !ok {
		t.Fatal("residual not open")
	}
	if got.Quantity != 6 {
		t.Errorf("residual quantity = %d, want 6", got.Quantity)
	}
	if l.NextOrderID() != 1 {
		t.Errorf("restore must not advance ids, next = %d", l.NextOrderID())
	}
}

func TestOpenOrdersSortedByID(t *testing.T) {
	l := New()
	for i := 0; i < 10; i++ {
		l.SubmitOrder(newOrder("alice", order.Sell, "AAPL", int64(100-i), 1))
	}
	l.CancelOrder(3)

	orders := l.OpenOrders()
	if len(orders) != 9 {
		t.Fatalf("len = %d, want 9", len(orders))
	}
	for i := 1; i < len(orders); i++ {
		if orders[i-1].ID >= orders[i].ID {
			t.Fatalf("not sorted at %d: %d >= %d", i, orders[i-1].ID, orders[i].ID)
		}
	}
}

func TestUsersSorted(t *testing.T) {
	l := New()
	l.RegisterUser("carol")
	l.RegisterUser("alice")
	l.RegisterUser("bob")

	got := l.Users()
	want := []string{"alice", "bob", "carol"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Users() = %v, want %v", got, want)
		}
	}
}
