// Package websocket serves the materialized books to local consumers: a
// websocket push of aggregated books and stats, plus small JSON endpoints.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"marketsync/internal/aggregation"
	"marketsync/internal/config"
	"marketsync/internal/logger"
	"marketsync/internal/orderbook"
	"marketsync/internal/types"
)

type MessageType string

const (
	MessageTypeOrderbook MessageType = "orderbook"
	MessageTypeStats     MessageType = "stats"
)

// BookSource provides the books to publish
type BookSource interface {
	OrderBook(symbol string) (orderbook.Snapshot, bool)
	OrderBookStats(symbol string) (types.Stats, bool)
	OrderBookSymbols() []string
}

// ClientMessage represents messages sent from client to server
type ClientMessage struct {
	Type string  `json:"type"`
	Tick float64 `json:"tick,omitempty"`
}

type OrderbookMessage struct {
	Type      MessageType  `json:"type"`
	Exchange  string       `json:"exchange"`
	Symbol    string       `json:"symbol"`
	Tick      float64      `json:"tick"`
	Bids      []PriceLevel `json:"bids"`
	Asks      []PriceLevel `json:"asks"`
	Timestamp int64        `json:"timestamp"`
}

type StatsMessage struct {
	Type                MessageType `json:"type"`
	Exchange            string      `json:"exchange"`
	Symbol              string      `json:"symbol"`
	BestBid             string      `json:"bestBid"`
	BestAsk             string      `json:"bestAsk"`
	MidPrice            string      `json:"midPrice"`
	Spread              string      `json:"spread"`
	BidLiquidity05Pct   string      `json:"bidLiquidity05Pct"`
	AskLiquidity05Pct   string      `json:"askLiquidity05Pct"`
	DeltaLiquidity05Pct string      `json:"deltaLiquidity05Pct"`
	BidLiquidity2Pct    string      `json:"bidLiquidity2Pct"`
	AskLiquidity2Pct    string      `json:"askLiquidity2Pct"`
	DeltaLiquidity2Pct  string      `json:"deltaLiquidity2Pct"`
	BidLiquidity10Pct   string      `json:"bidLiquidity10Pct"`
	AskLiquidity10Pct   string      `json:"askLiquidity10Pct"`
	DeltaLiquidity10Pct string      `json:"deltaLiquidity10Pct"`
	TotalBidsQty        string      `json:"totalBidsQty"`
	TotalAsksQty        string      `json:"totalAsksQty"`
	TotalDelta          string      `json:"totalDelta"`
	Timestamp           int64       `json:"timestamp"`
}

type PriceLevel struct {
	Price      string `json:"price"`
	Quantity   string `json:"quantity"`
	Cumulative string `json:"cumulative"`
}

type Server struct {
	source     BookSource
	exchange   string
	port       string
	interval   time.Duration
	upgrader   websocket.Upgrader
	clients    map[*websocket.Conn]bool
	clientsMux sync.RWMutex
	broadcast  chan interface{}
	aggregator *aggregation.Aggregator
	router     *mux.Router
	log        *logger.Entry
}

func NewServer(source BookSource, exchange string, cfg config.ServerConfig, tick types.TickLevel, log *logger.Log) *Server {
	interval := cfg.PushInterval
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	if !types.IsValidTickLevel(tick) {
		tick = types.Tick1
	}
	s := &Server{
		source:     source,
		exchange:   exchange,
		port:       cfg.Port,
		interval:   interval,
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan interface{}, 100),
		aggregator: aggregation.New(tick),
		log:        log.WithComponent("push"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	r := mux.NewRouter()
	r.HandleFunc("/ws", s.handleWebSocket)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/books/{symbol}", s.handleBook).Methods(http.MethodGet)
	s.router = r
	return s
}

// Handler returns the HTTP routes
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx ends
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{Addr: ":" + s.port, Handler: s.router}
	go s.Run(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.WithField("port", s.port).Info("websocket server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Run pushes books to connected clients until ctx ends
func (s *Server) Run(ctx context.Context) {
	go s.broadcastMessages(ctx)
	s.startDataPush(ctx)
}

// TickLevel returns the aggregation tick in use
func (s *Server) TickLevel() types.TickLevel {
	return s.aggregator.GetTickLevel()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.clientsMux.RLock()
	clients := len(s.clients)
	s.clientsMux.RUnlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"books":   s.source.OrderBookSymbols(),
		"clients": clients,
	})
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	snap, ok := s.source.OrderBook(symbol)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no book for " + symbol})
		return
	}
	writeJSON(w, http.StatusOK, s.buildOrderbookMessage(snap, time.Now().UnixMilli()))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade error")
		return
	}

	s.clientsMux.Lock()
	s.clients[conn] = true
	s.clientsMux.Unlock()

	log := s.log.WithField("remote", r.RemoteAddr)
	log.Info("client connected")

	defer func() {
		s.clientsMux.Lock()
		delete(s.clients, conn)
		s.clientsMux.Unlock()
		conn.Close()
		log.Info("client disconnected")
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			break
		}

		var clientMsg ClientMessage
		if err := json.Unmarshal(message, &clientMsg); err != nil {
			log.WithError(err).Debug("error parsing client message")
			continue
		}

		s.handleClientMessage(clientMsg)
	}
}

func (s *Server) handleClientMessage(msg ClientMessage) {
	switch msg.Type {
	case "set_tick":
		s.setTickLevel(msg.Tick)
	case "tick_up":
		s.log.WithField("tick", float64(s.aggregator.StepTickLevel(true))).Info("tick level changed")
	case "tick_down":
		s.log.WithField("tick", float64(s.aggregator.StepTickLevel(false))).Info("tick level changed")
	default:
		s.log.WithField("type", msg.Type).Debug("unknown message type")
	}
}

func (s *Server) setTickLevel(tick float64) {
	tickLevel := types.TickLevel(tick)
	if !types.IsValidTickLevel(tickLevel) {
		s.log.WithField("tick", tick).Warn("invalid tick level")
		return
	}
	s.aggregator.SetTickLevel(tickLevel)
	s.log.WithField("tick", tick).Info("tick level changed")
}

func (s *Server) broadcastMessages(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.broadcast:
			s.clientsMux.RLock()
			var failed []*websocket.Conn
			for client := range s.clients {
				if err := client.WriteJSON(msg); err != nil {
					s.log.WithError(err).Debug("error writing to client")
					failed = append(failed, client)
				}
			}
			s.clientsMux.RUnlock()

			if len(failed) > 0 {
				s.clientsMux.Lock()
				for _, client := range failed {
					client.Close()
					delete(s.clients, client)
				}
				s.clientsMux.Unlock()
			}
		}
	}
}

func (s *Server) startDataPush(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.clientsMux.RLock()
		hasClients := len(s.clients) > 0
		s.clientsMux.RUnlock()
		if !hasClients {
			continue
		}

		timestamp := time.Now().UnixMilli()
		for _, symbol := range s.source.OrderBookSymbols() {
			snap, ok := s.source.OrderBook(symbol)
			if !ok {
				continue
			}
			s.enqueue(ctx, s.buildOrderbookMessage(snap, timestamp))
			if stats, ok := s.source.OrderBookStats(symbol); ok {
				s.enqueue(ctx, s.buildStatsMessage(symbol, stats, timestamp))
			}
		}
	}
}

func (s *Server) enqueue(ctx context.Context, msg interface{}) {
	select {
	case s.broadcast <- msg:
	case <-ctx.Done():
	}
}

func (s *Server) buildOrderbookMessage(snap orderbook.Snapshot, timestamp int64) OrderbookMessage {
	aggregatedBids, aggregatedAsks := s.aggregator.AggregateSnapshot(snap)
	return OrderbookMessage{
		Type:      MessageTypeOrderbook,
		Exchange:  s.exchange,
		Symbol:    snap.Symbol,
		Tick:      float64(s.aggregator.GetTickLevel()),
		Bids:      cumulative(aggregatedBids),
		Asks:      cumulative(aggregatedAsks),
		Timestamp: timestamp,
	}
}

// cumulative converts levels to wire format with running totals
func cumulative(levels []types.PriceLevel) []PriceLevel {
	out := make([]PriceLevel, 0, len(levels))
	total := decimal.Zero
	for _, level := range levels {
		total = total.Add(level.Amount)
		out = append(out, PriceLevel{
			Price:      level.Price.String(),
			Quantity:   level.Amount.String(),
			Cumulative: total.String(),
		})
	}
	return out
}

func (s *Server) buildStatsMessage(symbol string, stats types.Stats, timestamp int64) StatsMessage {
	return StatsMessage{
		Type:                MessageTypeStats,
		Exchange:            s.exchange,
		Symbol:              symbol,
		BestBid:             stats.BestBid.String(),
		BestAsk:             stats.BestAsk.String(),
		MidPrice:            stats.MidPrice.String(),
		Spread:              stats.Spread.String(),
		BidLiquidity05Pct:   stats.BidLiquidity05Pct.String(),
		AskLiquidity05Pct:   stats.AskLiquidity05Pct.String(),
		DeltaLiquidity05Pct: stats.DeltaLiquidity05Pct.String(),
		BidLiquidity2Pct:    stats.BidLiquidity2Pct.String(),
		AskLiquidity2Pct:    stats.AskLiquidity2Pct.String(),
		DeltaLiquidity2Pct:  stats.DeltaLiquidity2Pct.String(),
		BidLiquidity10Pct:   stats.BidLiquidity10Pct.String(),
		AskLiquidity10Pct:   stats.AskLiquidity10Pct.String(),
		DeltaLiquidity10Pct: stats.DeltaLiquidity10Pct.String(),
		TotalBidsQty:        stats.TotalBidsQty.String(),
		TotalAsksQty:        stats.TotalAsksQty.String(),
		TotalDelta:          stats.TotalDelta.String(),
		Timestamp:           timestamp,
	}
}
