// Package ledger holds user cash balances and the book of open orders.
//
// A Ledger is a sequential state machine and is not safe for concurrent use.
// Share it only through exchange.Exchange, which serializes access.
package ledger

import (
	"sort"

	"github.com/uhyunpark/simex/pkg/app/core/order"
)

// Ledger owns cash accounts and the open-order set
type Ledger struct {
	balances   map[string]int64      // user id -> cash balance (smallest currency unit)
	openOrders map[int64]order.Order // order id -> open order
	nextID     int64                 // next id handed out by SubmitOrder
}

func New() *Ledger {
	return &Ledger{
		balances:   make(map[string]int64),
		openOrders: make(map[int64]order.Order),
	}
}

// RegisterUser creates a cash account with zero balance.
// Registering an existing user resets the balance to zero.
func (l *Ledger) RegisterUser(userID string) {
	l.balances[userID] = 0
}

func (l *Ledger) HasUser(userID string) bool {
	_, ok := l.balances[userID]
	return ok
}

// Balance returns the user's cash balance, or false if the user is unknown
func (l *Ledger) Balance(userID string) (int64, bool) {
	b, ok := l.balances[userID]
	return b, ok
}

// AdjustBalance adds delta to a known user's balance. Unknown users are ignored.
// No sufficiency or overflow check is done here; callers validate first.
func (l *Ledger) AdjustBalance(userID string, delta int64) {
	b, ok := l.balances[userID]
	if !ok {
		return
	}
	l.balances[userID] = b + delta
}

// Users returns the registered user ids in ascending order
func (l *Ledger) Users() []string {
	users := make([]string, 0, len(l.balances))
	for u := range l.balances {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

// SubmitOrder assigns the next order id, stores the order as open and returns the id.
// Ids start at 0 and are never reused.
func (l *Ledger) SubmitOrder(o order.Order) int64 {
	o.ID = l.nextID
	l.nextID++
	l.openOrders[o.ID] = o
	return o.ID
}

// NextOrderID returns the id the next submitted order will receive
func (l *Ledger) NextOrderID() int64 {
	return l.nextID
}

// CancelOrder removes the order from the open set. Unknown ids are a no-op.
// Ownership is not checked.
func (l *Ledger) CancelOrder(orderID int64) {
	delete(l.openOrders, orderID)
}

// RemoveOrder evicts an open order (filled or rejected during matching)
func (l *Ledger) RemoveOrder(orderID int64) {
	delete(l.openOrders, orderID)
}

// RestoreOrder puts an order back into the open set under its existing id.
// Used for the residual of a partial fill; it never allocates a new id.
func (l *Ledger) RestoreOrder(o order.Order) {
	l.openOrders[o.ID] = o
}

func (l *Ledger) HasOrder(orderID int64) bool {
	_, ok := l.openOrders[orderID]
	return ok
}

// Order returns the open order with the given id
func (l *Ledger) Order(orderID int64) (order.Order, bool) {
	o, ok := l.openOrders[orderID]
	return o, ok
}

// OpenOrders returns a snapshot of the open set sorted by ascending id
func (l *Ledger) OpenOrders() []order.Order {
	out := make([]order.Order, 0, len(l.openOrders))
	for _, o := range l.openOrders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}

func (l *Ledger) OpenOrderCount() int {
	return len(l.openOrders)
}
