package exchange

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/uhyunpark/simex/pkg/app/core/order"
)

// OrderGenerator creates random limit orders for simulated traders
type OrderGenerator struct {
	traders   []string
	symbols   []string
	basePrice int64
	spread    int64 // prices land in [basePrice-spread, basePrice+spread]
	maxQty    int64
	generated int
	rng       *rand.Rand
}

// NewOrderGenerator creates a generator for numTraders traders named
// trader_1..trader_N. A zero seed uses the current time.
func NewOrderGenerator(numTraders int, symbols []string, basePrice, spread int64, seed int64) *OrderGenerator {
	traders := make([]string, numTraders)
	for i := 0; i < numTraders; i++ {
		traders[i] = fmt.Sprintf("trader_%d", i+1)
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if spread < 0 {
		spread = 0
	}

	return &OrderGenerator{
		traders:   traders,
		symbols:   symbols,
		basePrice: basePrice,
		spread:    spread,
		maxQty:    10,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

func (g *OrderGenerator) Traders() []string {
	out := make([]string, len(g.traders))
	copy(out, g.traders)
	return out
}

// GenerateOrder creates a random buy or sell with equal probability
func (g *OrderGenerator) GenerateOrder() order.Order {
	side := order.Buy
	if g.rng.Intn(2) == 1 {
		side = order.Sell
	}

	price := g.basePrice
	if g.spread > 0 {
		price += g.rng.Int63n(2*g.spread+1) - g.spread
	}
	if price < 1 {
		price = 1
	}

	g.generated++
	return order.Order{
		UserID:   g.traders[g.rng.Intn(len(g.traders))],
		Side:     side,
		Symbol:   g.symbols[g.rng.Intn(len(g.symbols))],
		Price:    price,
		Quantity: g.rng.Int63n(g.maxQty) + 1,
	}
}

// GenerateBatch creates count random orders
func (g *OrderGenerator) GenerateBatch(count int) []order.Order {
	batch := make([]order.Order, count)
	for i := range batch {
		batch[i] = g.GenerateOrder()
	}
	return batch
}

// PickCancel returns an order id to cancel roughly one time in ten
func (g *OrderGenerator) PickCancel(open []order.Order) (int64, bool) {
	if len(open) == 0 || g.rng.Intn(100) >= 10 {
		return 0, false
	}
	return open[g.rng.Intn(len(open))].ID, true
}

func (g *OrderGenerator) Generated() int { return g.generated }
