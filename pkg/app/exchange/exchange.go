// Package exchange wires one ledger and one matching engine behind a single
// coordinator so concurrent callers see every operation as atomic.
//
// Lock order is always ledgerMu then engineMu. Operations that need only one
// side take only that lock; matching and the check-then-act transport helpers
// take both.
package exchange

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/uhyunpark/simex/pkg/app/core/ledger"
	"github.com/uhyunpark/simex/pkg/app/core/matching"
	"github.com/uhyunpark/simex/pkg/app/core/order"
	"github.com/uhyunpark/simex/pkg/metrics"
	"github.com/uhyunpark/simex/pkg/util"
)

var (
	ErrUnknownUser          = errors.New("user not found")
	ErrInsufficientBalance  = errors.New("balance too low")
	ErrInsufficientHoldings = errors.New("not enough holdings")
	ErrInvalidAmount        = errors.New("amount must not be negative")
)

type Exchange struct {
	ledgerMu sync.RWMutex
	ledger   *ledger.Ledger

	engineMu sync.RWMutex
	engine   *matching.Engine

	subsMu  sync.RWMutex
	onTrade []func(order.Trade)

	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
}

// New creates an empty exchange. logger and m may be nil.
func New(logger *zap.SugaredLogger, m *metrics.Metrics) *Exchange {
	if m == nil {
		m = metrics.New(nil)
	}
	return &Exchange{
		ledger:  ledger.New(),
		engine:  matching.NewEngine(),
		logger:  util.OrNop(logger),
		metrics: m,
	}
}

// OnTrade registers fn to be called for every trade, after the pass that
// produced it has released its locks.
func (e *Exchange) OnTrade(fn func(order.Trade)) {
	e.subsMu.Lock()
	e.onTrade = append(e.onTrade, fn)
	e.subsMu.Unlock()
}

// ============================================================================
// Ledger operations
// ============================================================================

func (e *Exchange) RegisterUser(userID string) {
	e.ledgerMu.Lock()
	e.ledger.RegisterUser(userID)
	users := len(e.ledger.Users())
	e.ledgerMu.Unlock()

	e.metrics.Users.Set(float64(users))
	e.logger.Debugw("user_registered", "user", userID)
}

func (e *Exchange) HasUser(userID string) bool {
	e.ledgerMu.RLock()
	defer e.ledgerMu.RUnlock()
	return e.ledger.HasUser(userID)
}

// Balance returns the cash balance, or false if the user is unknown
func (e *Exchange) Balance(userID string) (int64, bool) {
	e.ledgerMu.RLock()
	defer e.ledgerMu.RUnlock()
	return e.ledger.Balance(userID)
}

// AdjustBalance applies delta to a known user's cash; unknown users are ignored
func (e *Exchange) AdjustBalance(userID string, delta int64) {
	e.ledgerMu.Lock()
	defer e.ledgerMu.Unlock()
	e.ledger.AdjustBalance(userID, delta)
}

// Deposit credits amount and returns the new balance
func (e *Exchange) Deposit(userID string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, ErrInvalidAmount
	}

	e.ledgerMu.Lock()
	defer e.ledgerMu.Unlock()

	if !e.ledger.HasUser(userID) {
		return 0, ErrUnknownUser
	}
	e.ledger.AdjustBalance(userID, amount)
	b, _ := e.ledger.Balance(userID)
	return b, nil
}

// Withdraw debits amount if the balance covers it and returns the new balance
func (e *Exchange) Withdraw(userID string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, ErrInvalidAmount
	}

	e.ledgerMu.Lock()
	defer e.ledgerMu.Unlock()

	b, ok := e.ledger.Balance(userID)
	if !ok {
		return 0, ErrUnknownUser
	}
	if b < amount {
		return b, fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, b, amount)
	}
	e.ledger.AdjustBalance(userID, -amount)
	return b - amount, nil
}

// SubmitOrder stores the order as open and returns its id without matching
func (e *Exchange) SubmitOrder(o order.Order) int64 {
	e.ledgerMu.Lock()
	id := e.ledger.SubmitOrder(o)
	open := e.ledger.OpenOrderCount()
	e.ledgerMu.Unlock()

	e.metrics.OrdersPlaced.Inc()
	e.metrics.OpenOrders.Set(float64(open))
	return id
}

// CancelOrder removes an open order and reports whether it was open
func (e *Exchange) CancelOrder(orderID int64) bool {
	e.ledgerMu.Lock()
	was := e.ledger.HasOrder(orderID)
	e.ledger.CancelOrder(orderID)
	open := e.ledger.OpenOrderCount()
	e.ledgerMu.Unlock()

	if was {
		e.metrics.OrdersCancelled.Inc()
		e.metrics.OpenOrders.Set(float64(open))
		e.logger.Debugw("order_cancelled", "order", orderID)
	}
	return was
}

func (e *Exchange) HasOrder(orderID int64) bool {
	e.ledgerMu.RLock()
	defer e.ledgerMu.RUnlock()
	return e.ledger.HasOrder(orderID)
}

// OpenOrders returns a snapshot of open orders sorted by id
func (e *Exchange) OpenOrders() []order.Order {
	e.ledgerMu.RLock()
	defer e.ledgerMu.RUnlock()
	return e.ledger.OpenOrders()
}

// ============================================================================
// Engine operations
// ============================================================================

func (e *Exchange) AssetBalance(userID, symbol string) (int64, bool) {
	e.engineMu.RLock()
	defer e.engineMu.RUnlock()
	return e.engine.AssetBalance(userID, symbol)
}

func (e *Exchange) AdjustAssetBalance(userID, symbol string, delta int64) {
	e.engineMu.Lock()
	defer e.engineMu.Unlock()
	e.engine.AdjustAssetBalance(userID, symbol, delta)
}

func (e *Exchange) Holdings(userID string) map[string]int64 {
	e.engineMu.RLock()
	defer e.engineMu.RUnlock()
	return e.engine.Holdings(userID)
}

// CreditAsset adds amount of symbol to a registered user and returns the new holding
func (e *Exchange) CreditAsset(userID, symbol string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, ErrInvalidAmount
	}

	e.ledgerMu.RLock()
	defer e.ledgerMu.RUnlock()
	e.engineMu.Lock()
	defer e.engineMu.Unlock()

	if !e.ledger.HasUser(userID) {
		return 0, ErrUnknownUser
	}
	e.engine.AdjustAssetBalance(userID, symbol, amount)
	q, _ := e.engine.AssetBalance(userID, symbol)
	return q, nil
}

// DebitAsset removes amount of symbol from a registered user if the holding covers it
func (e *Exchange) DebitAsset(userID, symbol string, amount int64) (int64, error) {
	if amount < 0 {
		return 0, ErrInvalidAmount
	}

	e.ledgerMu.RLock()
	defer e.ledgerMu.RUnlock()
	e.engineMu.Lock()
	defer e.engineMu.Unlock()

	if !e.ledger.HasUser(userID) {
		return 0, ErrUnknownUser
	}
	q, ok := e.engine.AssetBalance(userID, symbol)
	if !ok || q < amount {
		return q, fmt.Errorf("%w: have %d %s, need %d", ErrInsufficientHoldings, q, symbol, amount)
	}
	e.engine.AdjustAssetBalance(userID, symbol, -amount)
	return q - amount, nil
}

// LastPrice returns the price of the latest trade in symbol
func (e *Exchange) LastPrice(symbol string) (int64, bool) {
	e.engineMu.RLock()
	defer e.engineMu.RUnlock()
	return e.engine.LastPrice(symbol)
}

func (e *Exchange) TradesForSymbol(symbol string) []order.Trade {
	e.engineMu.RLock()
	defer e.engineMu.RUnlock()
	return e.engine.TradesForSymbol(symbol)
}

func (e *Exchange) TradesForOrder(orderID int64) []order.Trade {
	e.engineMu.RLock()
	defer e.engineMu.RUnlock()
	return e.engine.TradesForOrder(orderID)
}

func (e *Exchange) Trades() []order.Trade {
	e.engineMu.RLock()
	defer e.engineMu.RUnlock()
	return e.engine.Trades()
}

// ============================================================================
// Matching
// ============================================================================

// RunMatchingPass runs one pass with exclusive access to both ledger and engine
func (e *Exchange) RunMatchingPass() matching.PassResult {
	start := time.Now()

	e.ledgerMu.Lock()
	e.engineMu.Lock()
	res := e.engine.RunMatchingPass(e.ledger)
	open := e.ledger.OpenOrderCount()
	e.engineMu.Unlock()
	e.ledgerMu.Unlock()

	e.afterPass(res, open, time.Since(start))
	return res
}

// PlaceOrder submits the order and immediately runs one matching pass,
// both under the same critical section.
func (e *Exchange) PlaceOrder(o order.Order) (int64, matching.PassResult) {
	start := time.Now()

	e.ledgerMu.Lock()
	e.engineMu.Lock()
	id := e.ledger.SubmitOrder(o)
	res := e.engine.RunMatchingPass(e.ledger)
	open := e.ledger.OpenOrderCount()
	e.engineMu.Unlock()
	e.ledgerMu.Unlock()

	e.metrics.OrdersPlaced.Inc()
	e.logger.Debugw("order_placed",
		"order", id, "user", o.UserID, "side", o.Side.String(),
		"symbol", o.Symbol, "price", o.Price, "qty", o.Quantity)
	e.afterPass(res, open, time.Since(start))
	return id, res
}

func (e *Exchange) afterPass(res matching.PassResult, open int, took time.Duration) {
	e.metrics.Passes.WithLabelValues(res.Halt.String()).Inc()
	e.metrics.PassDuration.Observe(took.Seconds())
	e.metrics.OpenOrders.Set(float64(open))
	e.metrics.OrdersEvicted.Add(float64(len(res.Evicted)))

	if len(res.Trades) == 0 && len(res.Evicted) == 0 {
		return
	}
	e.logger.Infow("matching_pass",
		"trades", len(res.Trades),
		"evicted", res.Evicted,
		"halt", res.Halt.String(),
		"open_orders", open)

	for _, t := range res.Trades {
		e.metrics.Trades.WithLabelValues(t.Symbol).Inc()
		e.metrics.TradeVolume.WithLabelValues(t.Symbol).Add(float64(t.Quantity))
	}

	e.subsMu.RLock()
	subs := make([]func(order.Trade), len(e.onTrade))
	copy(subs, e.onTrade)
	e.subsMu.RUnlock()

	for _, t := range res.Trades {
		for _, fn := range subs {
			fn(t)
		}
	}
}

// Stats is a point-in-time summary used by the state endpoint
type Stats struct {
	Users       int
	OpenOrders  int
	Trades      int
	NextOrderID int64
}

func (e *Exchange) Stats() Stats {
	e.ledgerMu.RLock()
	defer e.ledgerMu.RUnlock()
	e.engineMu.RLock()
	defer e.engineMu.RUnlock()

	return Stats{
		Users:       len(e.ledger.Users()),
		OpenOrders:  e.ledger.OpenOrderCount(),
		Trades:      e.engine.TradeCount(),
		NextOrderID: e.ledger.NextOrderID(),
	}
}
