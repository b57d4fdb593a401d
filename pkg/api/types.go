package api

// API request/response types for REST endpoints and WebSocket messages

// ==============================
// REST Request Types
// ==============================

// DepositRequest credits a user balance on the dev node. The address field
// selects the sender; the rest of the body is forwarded to the contract.
type DepositRequest struct {
	Address string `json:"address"`
	Asset   string `json:"asset"`
	Amount  uint64 `json:"amount,string"`
}

// WithdrawRequest debits a user balance back over the transfer rail.
type WithdrawRequest struct {
	Address string `json:"address"`
	Asset   string `json:"asset"`
	Amount  uint64 `json:"amount,string"`
}

// CancelRequest invalidates orders, either by salt watermark or by IDs.
type CancelRequest struct {
	Address string   `json:"address"`
	Salt    uint32   `json:"salt"`
	IDs     []string `json:"ids"`
}

// ==============================
// REST Response Types
// ==============================

// BalanceInfo is one (address, asset) ledger entry.
type BalanceInfo struct {
	Address string `json:"address"`
	Asset   string `json:"asset"`
	Balance uint64 `json:"balance,string"`
}

// FeePoolInfo reports the accrued protocol fee for an asset.
type FeePoolInfo struct {
	Asset   string `json:"asset"`
	FeePool uint64 `json:"feePool,string"`
}

// FilledInfo reports the cumulative fill recorded for an order ID.
type FilledInfo struct {
	OrderID string `json:"orderId"`
	Filled  uint64 `json:"filled,string"`
}

// DealResponse is the result of a settled deal.
type DealResponse struct {
	Status         string `json:"status"` // "settled"
	TxID           string `json:"txId"`
	TotalDealQuote uint64 `json:"totalDealQuote,string"`
	TotalDealBase  uint64 `json:"totalDealBase,string"`
}

// SubmitResponse acknowledges a state-changing call.
type SubmitResponse struct {
	Status string `json:"status"` // "ok"
	TxID   string `json:"txId"`
}

// ErrorResponse is returned for all errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by a client to manage channel subscriptions.
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["deals:XAS/USDT"]
}

// DealUpdate is broadcast on every settled deal to "deals:<pair>".
type DealUpdate struct {
	Type           string `json:"type"` // "deal"
	Pair           string `json:"pair"`
	TakerSide      string `json:"takerSide"`
	TakerOrderID   string `json:"takerOrderId"`
	Makers         int    `json:"makers"`
	TotalDealQuote uint64 `json:"totalDealQuote,string"`
	TotalDealBase  uint64 `json:"totalDealBase,string"`
	Height         int64  `json:"height"`
	Timestamp      int64  `json:"timestamp"` // Unix seconds
}
