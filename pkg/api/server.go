package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/aschplatform/aschex/pkg/app/core/order"
	"github.com/aschplatform/aschex/pkg/app/exchange"
	"github.com/aschplatform/aschex/pkg/host"
)

// BlockSource reports the dev chain's current height and timestamp. The
// node advances it on a fixed tick; every inbound call is stamped with the
// value current at arrival.
type BlockSource interface {
	Block() (height int64, unix int64)
}

// Server handles REST API and WebSocket connections, routing every
// state-changing call through the host dispatcher.
type Server struct {
	disp   *host.Dispatcher
	blocks BlockSource
	router *mux.Router
	hub    *Hub
	txLog  *os.File // call log file, optional
}

// NewServer creates a new API server over a dispatcher.
func NewServer(disp *host.Dispatcher, blocks BlockSource) *Server {
	txLogPath := os.Getenv("TX_LOG_FILE")
	var txLog *os.File
	if txLogPath != "" {
		os.MkdirAll(filepath.Dir(txLogPath), 0755)
		f, err := os.OpenFile(txLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			log.Printf("[api] WARNING: failed to open tx log file %s: %v", txLogPath, err)
		} else {
			log.Printf("[api] call log: %s", txLogPath)
			txLog = f
		}
	}

	s := &Server{
		disp:   disp,
		blocks: blocks,
		router: mux.NewRouter(),
		hub:    NewHub(),
		txLog:  txLog,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Read endpoints
	api.HandleFunc("/name", s.handleGetName).Methods("GET")
	api.HandleFunc("/balances/{address}/{asset}", s.handleGetBalance).Methods("GET")
	api.HandleFunc("/fees/{asset}", s.handleGetFeePool).Methods("GET")
	api.HandleFunc("/orders/{id}/filled", s.handleGetFilled).Methods("GET")

	// State-changing endpoints
	api.HandleFunc("/deposits", s.handleDeposit).Methods("POST")
	api.HandleFunc("/withdrawals", s.handleWithdraw).Methods("POST")
	api.HandleFunc("/cancels", s.handleCancel).Methods("POST")
	api.HandleFunc("/deals", s.handleDeal).Methods("POST")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Health check
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start starts the API server. readTimeout of zero means no limit.
func (s *Server) Start(addr string, readTimeout time.Duration) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	srv := &http.Server{
		Addr:        addr,
		Handler:     c.Handler(s.router),
		ReadTimeout: readTimeout,
	}

	log.Printf("[api] server starting on %s", addr)
	return srv.ListenAndServe()
}

// ctxFor stamps a call with the sender and the current block facts.
func (s *Server) ctxFor(sender string, body []byte) host.TxContext {
	height, unix := s.blocks.Block()
	sum := sha256.Sum256(body)
	return host.TxContext{
		SenderAddress: sender,
		BlockHeight:   height,
		BlockTime:     unix,
		TxID:          hex.EncodeToString(sum[:8]),
	}
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetName(w http.ResponseWriter, r *http.Request) {
	out, err := s.disp.Invoke(host.Call{Method: "getName"})
	if err != nil {
		respondContractError(w, err)
		return
	}
	respondJSON(w, map[string]any{"name": out})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	address, asset := vars["address"], vars["asset"]

	args, _ := json.Marshal(map[string]string{"address": address, "asset": asset})
	out, err := s.disp.Invoke(host.Call{Method: "getUserBalance", Args: args})
	if err != nil {
		respondContractError(w, err)
		return
	}
	respondJSON(w, BalanceInfo{Address: address, Asset: asset, Balance: out.(uint64)})
}

func (s *Server) handleGetFeePool(w http.ResponseWriter, r *http.Request) {
	asset := mux.Vars(r)["asset"]

	args, _ := json.Marshal(map[string]string{"asset": asset})
	out, err := s.disp.Invoke(host.Call{Method: "getFeePool", Args: args})
	if err != nil {
		respondContractError(w, err)
		return
	}
	respondJSON(w, FeePoolInfo{Asset: asset, FeePool: out.(uint64)})
}

func (s *Server) handleGetFilled(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	args, _ := json.Marshal(map[string]string{"orderId": id})
	out, err := s.disp.Invoke(host.Call{Method: "getFilled", Args: args})
	if err != nil {
		respondContractError(w, err)
		return
	}
	respondJSON(w, FilledInfo{OrderID: id, Filled: out.(uint64)})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read body", err.Error())
		return
	}
	var req DepositRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.Address == "" {
		respondError(w, http.StatusBadRequest, "missing address", "")
		return
	}

	ctx := s.ctxFor(req.Address, body)
	// The dev node's rail is a no-op, so the deposit value rides the call.
	if _, err := s.disp.Invoke(host.Call{Method: "deposit", Ctx: ctx, Value: req.Amount, Args: body}); err != nil {
		respondContractError(w, err)
		return
	}

	s.logCall("DEPOSIT", ctx.TxID, map[string]any{
		"address": req.Address, "asset": req.Asset, "amount": req.Amount,
	})
	respondJSON(w, SubmitResponse{Status: "ok", TxID: ctx.TxID})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read body", err.Error())
		return
	}
	var req WithdrawRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.Address == "" {
		respondError(w, http.StatusBadRequest, "missing address", "")
		return
	}

	ctx := s.ctxFor(req.Address, body)
	if _, err := s.disp.Invoke(host.Call{Method: "withdraw", Ctx: ctx, Args: body}); err != nil {
		respondContractError(w, err)
		return
	}

	s.logCall("WITHDRAW", ctx.TxID, map[string]any{
		"address": req.Address, "asset": req.Asset, "amount": req.Amount,
	})
	respondJSON(w, SubmitResponse{Status: "ok", TxID: ctx.TxID})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read body", err.Error())
		return
	}
	var req CancelRequest
	if err := json.Unmarshal(body, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.Address == "" {
		respondError(w, http.StatusBadRequest, "missing address", "")
		return
	}

	ctx := s.ctxFor(req.Address, body)
	if _, err := s.disp.Invoke(host.Call{Method: "cancel", Ctx: ctx, Args: body}); err != nil {
		respondContractError(w, err)
		return
	}

	s.logCall("CANCEL", ctx.TxID, map[string]any{
		"address": req.Address, "salt": req.Salt, "ids": len(req.IDs),
	})
	respondJSON(w, SubmitResponse{Status: "ok", TxID: ctx.TxID})
}

func (s *Server) handleDeal(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read body", err.Error())
		return
	}
	var d order.Deal
	if err := json.Unmarshal(body, &d); err != nil {
		respondError(w, http.StatusBadRequest, "invalid deal body", err.Error())
		return
	}

	// Deals are self-authorizing: every order carries its own signature, so
	// the sender slot carries the taker's address.
	ctx := s.ctxFor(d.TakerOrder.Address, body)
	out, err := s.disp.Invoke(host.Call{Method: "deal", Ctx: ctx, Args: body})
	if err != nil {
		respondContractError(w, err)
		return
	}
	res := out.(order.Result)

	log.Printf("[api] deal settled: tx=%s base=%d quote=%d", ctx.TxID, res.TotalDealBase, res.TotalDealQuote)

	s.logCall("DEAL", ctx.TxID, map[string]any{
		"pair":   d.TakerOrder.Pair,
		"taker":  d.TakerOrder.ID,
		"makers": len(d.MakerOrders),
		"base":   res.TotalDealBase,
		"quote":  res.TotalDealQuote,
	})
	s.broadcastDeal(&d, res, ctx)

	respondJSON(w, DealResponse{
		Status:         "settled",
		TxID:           ctx.TxID,
		TotalDealQuote: res.TotalDealQuote,
		TotalDealBase:  res.TotalDealBase,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Broadcast Methods
// ==============================

// broadcastDeal pushes a settlement notice to WebSocket subscribers of the
// deal's pair channel.
func (s *Server) broadcastDeal(d *order.Deal, res order.Result, ctx host.TxContext) {
	update := DealUpdate{
		Type:           "deal",
		Pair:           d.TakerOrder.Pair,
		TakerSide:      d.TakerOrder.Side.String(),
		TakerOrderID:   d.TakerOrder.ID,
		Makers:         len(d.MakerOrders),
		TotalDealQuote: res.TotalDealQuote,
		TotalDealBase:  res.TotalDealBase,
		Height:         ctx.BlockHeight,
		Timestamp:      ctx.BlockTime,
	}
	s.hub.BroadcastToChannel("deals:"+d.TakerOrder.Pair, update)
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

// respondContractError maps the contract's error taxonomy onto HTTP status
// codes and surfaces the kind to the caller.
func respondContractError(w http.ResponseWriter, err error) {
	kind := exchange.KindOf(err)
	status := http.StatusBadRequest
	switch kind {
	case exchange.KindFunds, exchange.KindState:
		status = http.StatusConflict
	case exchange.KindArithmetic:
		status = http.StatusUnprocessableEntity
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := ErrorResponse{Error: "call rejected", Message: err.Error()}
	if kind != 0 {
		resp.Kind = kind.String()
	}
	json.NewEncoder(w).Encode(resp)
}

// logCall writes a call event to the log file, one JSON object per line.
func (s *Server) logCall(eventType, txID string, data map[string]any) {
	if s.txLog == nil {
		return
	}

	entry := map[string]any{
		"timestamp": time.Now().Format(time.RFC3339),
		"event":     eventType,
		"tx":        txID,
		"data":      data,
	}

	jsonData, err := json.Marshal(entry)
	if err != nil {
		log.Printf("[api] failed to marshal call log entry: %v", err)
		return
	}

	s.txLog.Write(jsonData)
	s.txLog.Write([]byte("\n"))
}
