package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/simex/pkg/app/core/order"
	"github.com/uhyunpark/simex/pkg/app/exchange"
	"github.com/uhyunpark/simex/pkg/util"
)

// Config holds transport settings
type Config struct {
	CORSOrigins      []string
	DepositIncrement int64 // amount credited by POST /users/{user}/balance/add
}

// Server handles REST API and WebSocket connections
type Server struct {
	ex       *exchange.Exchange
	cfg      Config
	router   *mux.Router
	hub      *Hub
	gatherer prometheus.Gatherer
	logger   *zap.SugaredLogger
}

// NewServer creates an API server and subscribes it to the exchange's trades.
// gatherer may be nil, in which case /metrics is not served.
func NewServer(ex *exchange.Exchange, cfg Config, gatherer prometheus.Gatherer, logger *zap.SugaredLogger) *Server {
	logger = util.OrNop(logger)
	s := &Server{
		ex:       ex,
		cfg:      cfg,
		router:   mux.NewRouter(),
		hub:      NewHub(logger),
		gatherer: gatherer,
		logger:   logger,
	}

	ex.OnTrade(s.BroadcastTrade)
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// User endpoints
	api.HandleFunc("/users", s.handleCreateUser).Methods("POST")
	api.HandleFunc("/users/{user}/exists", s.handleUserExists).Methods("GET")
	api.HandleFunc("/users/{user}/balance", s.handleGetBalance).Methods("GET")
	api.HandleFunc("/users/{user}/balance/add", s.handleAddBalance).Methods("POST")
	api.HandleFunc("/users/{user}/balance/remove/{amount}", s.handleRemoveBalance).Methods("POST")
	api.HandleFunc("/users/{user}/stocks", s.handleGetHoldings).Methods("GET")
	api.HandleFunc("/users/{user}/stocks/{symbol}", s.handleGetAssetBalance).Methods("GET")
	api.HandleFunc("/users/{user}/stocks/{symbol}/add/{amount}", s.handleAddAsset).Methods("POST")
	api.HandleFunc("/users/{user}/stocks/{symbol}/remove/{amount}", s.handleRemoveAsset).Methods("POST")

	// Order endpoints
	api.HandleFunc("/orders", s.handlePlaceOrder).Methods("POST")
	api.HandleFunc("/orders", s.handleOpenOrders).Methods("GET")
	api.HandleFunc("/orders/{id}/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/orders/{id}/status", s.handleOrderStatus).Methods("GET")
	api.HandleFunc("/orders/{id}/trades", s.handleOrderTrades).Methods("GET")

	// Market endpoints
	api.HandleFunc("/markets/{symbol}/trades", s.handleMarketTrades).Methods("GET")
	api.HandleFunc("/markets/{symbol}/price", s.handleLastPrice).Methods("GET")

	api.HandleFunc("/state", s.handleState).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}
}

// Handler returns the router wrapped with CORS handling
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start runs the WebSocket hub and serves HTTP on addr until ctx is cancelled
func (s *Server) Start(ctx context.Context, addr string) error {
	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("api_listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		s.logger.Infow("api_stopped")
		return nil
	}
}

// ==============================
// User Handlers
// ==============================

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	s.ex.RegisterUser(id)
	s.logger.Infow("user_created", "user", id)
	respondJSON(w, UserCreatedResponse{UserID: id})
}

func (s *Server) handleUserExists(w http.ResponseWriter, r *http.Request) {
	user := mux.Vars(r)["user"]
	respondJSON(w, UserExistsResponse{Exists: s.ex.HasUser(user)})
}

// unknown users report a zero balance
func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	user := mux.Vars(r)["user"]
	b, _ := s.ex.Balance(user)
	respondJSON(w, BalanceResponse{Balance: b})
}

func (s *Server) handleAddBalance(w http.ResponseWriter, r *http.Request) {
	user := mux.Vars(r)["user"]

	b, err := s.ex.Deposit(user, s.cfg.DepositIncrement)
	if err != nil {
		s.respondExchangeError(w, err)
		return
	}
	s.logger.Infow("balance_added", "user", user, "amount", s.cfg.DepositIncrement, "balance", b)
	respondJSON(w, BalanceResponse{Balance: b})
}

func (s *Server) handleRemoveBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	amount, ok := parseAmount(w, vars["amount"])
	if !ok {
		return
	}

	b, err := s.ex.Withdraw(vars["user"], amount)
	if err != nil {
		s.respondExchangeError(w, err)
		return
	}
	s.logger.Infow("balance_removed", "user", vars["user"], "amount", amount, "balance", b)
	respondJSON(w, BalanceResponse{Balance: b})
}

func (s *Server) handleGetHoldings(w http.ResponseWriter, r *http.Request) {
	user := mux.Vars(r)["user"]
	stocks := s.ex.Holdings(user)
	if stocks == nil {
		stocks = map[string]int64{}
	}
	respondJSON(w, HoldingsResponse{Stocks: stocks})
}

func (s *Server) handleGetAssetBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if !s.ex.HasUser(vars["user"]) {
		respondError(w, http.StatusNotFound, "User not found", "")
		return
	}

	q, _ := s.ex.AssetBalance(vars["user"], vars["symbol"])
	respondJSON(w, AssetBalanceResponse{Symbol: vars["symbol"], Balance: q})
}

func (s *Server) handleAddAsset(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	amount, ok := parseAmount(w, vars["amount"])
	if !ok {
		return
	}

	q, err := s.ex.CreditAsset(vars["user"], vars["symbol"], amount)
	if err != nil {
		s.respondExchangeError(w, err)
		return
	}
	s.logger.Infow("asset_added", "user", vars["user"], "symbol", vars["symbol"], "amount", amount)
	respondJSON(w, AssetBalanceResponse{Symbol: vars["symbol"], Balance: q})
}

func (s *Server) handleRemoveAsset(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	amount, ok := parseAmount(w, vars["amount"])
	if !ok {
		return
	}

	q, err := s.ex.DebitAsset(vars["user"], vars["symbol"], amount)
	if err != nil {
		s.respondExchangeError(w, err)
		return
	}
	s.logger.Infow("asset_removed", "user", vars["user"], "symbol", vars["symbol"], "amount", amount)
	respondJSON(w, AssetBalanceResponse{Symbol: vars["symbol"], Balance: q})
}

// ==============================
// Order Handlers
// ==============================

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	side, err := order.ParseSide(req.Side)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid side", err.Error())
		return
	}
	switch {
	case req.Quantity <= 0:
		respondError(w, http.StatusBadRequest, "invalid quantity", "quantity must be positive")
		return
	case req.Price < 0:
		respondError(w, http.StatusBadRequest, "invalid price", "price must not be negative")
		return
	case strings.TrimSpace(req.Symbol) == "":
		respondError(w, http.StatusBadRequest, "missing symbol", "")
		return
	}

	id, res := s.ex.PlaceOrder(order.Order{
		UserID:   req.UserID,
		Side:     side,
		Symbol:   req.Symbol,
		Price:    req.Price,
		Quantity: req.Quantity,
	})
	s.logger.Infow("order_submitted",
		"order", id, "user", req.UserID, "side", side.String(),
		"symbol", req.Symbol, "price", req.Price, "qty", req.Quantity,
		"trades", len(res.Trades), "halt", res.Halt.String())

	respondJSON(w, PlaceOrderResponse{OrderID: id})
}

func (s *Server) handleOpenOrders(w http.ResponseWriter, r *http.Request) {
	orders := s.ex.OpenOrders()
	if orders == nil {
		orders = []order.Order{}
	}
	respondJSON(w, OpenOrdersResponse{Orders: orders})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := parseOrderID(w, mux.Vars(r)["id"])
	if !ok {
		return
	}

	cancelled := s.ex.CancelOrder(id)
	s.logger.Infow("order_cancel", "order", id, "cancelled", cancelled)
	respondJSON(w, CancelOrderResponse{Cancelled: cancelled})
}

func (s *Server) handleOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := parseOrderID(w, mux.Vars(r)["id"])
	if !ok {
		return
	}
	respondJSON(w, OrderStatusResponse{Opened: s.ex.HasOrder(id)})
}

func (s *Server) handleOrderTrades(w http.ResponseWriter, r *http.Request) {
	id, ok := parseOrderID(w, mux.Vars(r)["id"])
	if !ok {
		return
	}
	respondJSON(w, TradesResponse{Trades: nonNil(s.ex.TradesForOrder(id))})
}

// ==============================
// Market Handlers
// ==============================

func (s *Server) handleMarketTrades(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	respondJSON(w, TradesResponse{Trades: nonNil(s.ex.TradesForSymbol(symbol))})
}

func (s *Server) handleLastPrice(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	price, ok := s.ex.LastPrice(symbol)
	if !ok {
		respondError(w, http.StatusNotFound, "no trades", "symbol "+symbol+" has never traded")
		return
	}
	respondJSON(w, PriceResponse{Symbol: symbol, Price: price})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	stats := s.ex.Stats()
	respondJSON(w, StateResponse{
		Digest:     s.ex.StateDigest().Hex(),
		Trades:     stats.Trades,
		OpenOrders: stats.OpenOrders,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Broadcast Methods (called from the exchange)
// ==============================

// BroadcastTrade pushes a trade to "trades" and "trades:{symbol}" subscribers
func (s *Server) BroadcastTrade(t order.Trade) {
	update := TradeUpdate{
		Type:      "trade",
		Trade:     t,
		Timestamp: time.Now().UnixMilli(),
	}
	s.hub.BroadcastToChannel("trades", update)
	s.hub.BroadcastToChannel("trades:"+t.Symbol, update)
}

// ==============================
// Helper Functions
// ==============================

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}

// respondExchangeError maps exchange sentinel errors to HTTP statuses
func (s *Server) respondExchangeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, exchange.ErrUnknownUser):
		respondError(w, http.StatusNotFound, "User not found", "")
	case errors.Is(err, exchange.ErrInsufficientBalance):
		respondError(w, http.StatusBadRequest, "Balance too low", err.Error())
	case errors.Is(err, exchange.ErrInsufficientHoldings):
		respondError(w, http.StatusBadRequest, "Not enough tokens", err.Error())
	case errors.Is(err, exchange.ErrInvalidAmount):
		respondError(w, http.StatusBadRequest, "invalid amount", err.Error())
	default:
		s.logger.Errorw("unexpected_exchange_error", "err", err)
		respondError(w, http.StatusInternalServerError, "internal error", "")
	}
}

func parseAmount(w http.ResponseWriter, raw string) (int64, bool) {
	amount, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || amount < 0 {
		respondError(w, http.StatusBadRequest, "invalid amount", "amount must be a non-negative integer")
		return 0, false
	}
	return amount, true
}

func parseOrderID(w http.ResponseWriter, raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id", err.Error())
		return 0, false
	}
	return id, true
}

func nonNil(trades []order.Trade) []order.Trade {
	if trades == nil {
		return []order.Trade{}
	}
	return trades
}
