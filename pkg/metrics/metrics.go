package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "simex"

// Metrics groups the exchange's Prometheus collectors
type Metrics struct {
	OrdersPlaced    prometheus.Counter
	OrdersCancelled prometheus.Counter
	OrdersEvicted   prometheus.Counter
	Trades          *prometheus.CounterVec // by symbol
	TradeVolume     *prometheus.CounterVec // executed quantity by symbol
	Passes          *prometheus.CounterVec // by halt reason
	PassDuration    prometheus.Histogram
	OpenOrders      prometheus.Gauge
	Users           prometheus.Gauge
}

// New creates the collectors and registers them on reg.
// A nil reg leaves them unregistered, which tests use.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OrdersPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_placed_total",
			Help:      "Orders accepted into the open book.",
		}),
		OrdersCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_cancelled_total",
			Help:      "Cancel requests that removed an open order.",
		}),
		OrdersEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_evicted_total",
			Help:      "Orders removed by the matcher for insufficient cash or holdings.",
		}),
		Trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Trades recorded.",
		}, []string{"symbol"}),
		TradeVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trade_quantity_total",
			Help:      "Executed quantity.",
		}, []string{"symbol"}),
		Passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matching_passes_total",
			Help:      "Matching passes run, by the reason the pass stopped.",
		}, []string{"halt"}),
		PassDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "matching_pass_seconds",
			Help:      "Wall time of a matching pass including lock wait.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		OpenOrders: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_orders",
			Help:      "Orders currently open.",
		}),
		Users: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "users",
			Help:      "Registered users.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.OrdersPlaced,
			m.OrdersCancelled,
			m.OrdersEvicted,
			m.Trades,
			m.TradeVolume,
			m.Passes,
			m.PassDuration,
			m.OpenOrders,
			m.Users,
		)
	}
	return m
}
