// Package ordergateway correlates plugin-originated order requests with
// TradeGate responses and exposes a C-ABI-shaped surface (primitive
// arguments, a callback function value) so dynamically loaded plugins can
// place and cancel orders without awareness of the host's async runtime.
//
// Grounded on original_source/src/exchange_trade.rs's pending-request map
// and the plugin ABI table in §6 (place_fn/cancel_fn signatures).
package ordergateway

import (
	"encoding/json"
	"strconv"
	"strings"
	"sync"

	"tradehost/internal/logging"
)

// ErrorCodeMalformed is used when a venue response contains neither
// result.orderId nor error.code.
const ErrorCodeMalformed int64 = -9998

// OrderResult is the normalized, plugin-facing outcome of a place or
// cancel request.
type OrderResult struct {
	Success   bool
	OrderID   int64
	ErrorCode int64
}

// Callback is invoked at most once per request, on a goroutine detached
// from TradeGate's socket reader.
type Callback func(OrderResult)

// Sender is the subset of tradegate.Gate the gateway depends on, kept as
// an interface so this package never imports tradegate's connection
// internals.
type Sender interface {
	NextID() uint64
	Send(id uint64, method string, params map[string]string)
}

// Gateway is the correlator: a concurrent map from request id to the
// callback awaiting its response, plus the Sender it forwards onto.
type Gateway struct {
	sender Sender
	logger *logging.Logger

	mu      sync.Mutex
	pending map[uint64]Callback
}

// New creates a Gateway that forwards onto sender.
func New(sender Sender, logger *logging.Logger) *Gateway {
	if logger == nil {
		logger = logging.Default()
	}
	return &Gateway{
		sender:  sender,
		logger:  logger.WithComponent("ordergateway"),
		pending: make(map[uint64]Callback),
	}
}

// PlaceParams carries everything an order.place request needs. TimeInForce
// and PositionSide are only meaningful (and only sent) for limit orders.
type PlaceParams struct {
	Symbol       string
	Side         string // "BUY" | "SELL"
	OrderType    string // "LIMIT" | "MARKET"
	Quantity     string
	Price        string // limit only
	ReduceOnly   bool
	TimeInForce  string // defaults to "GTC" for limit orders
	PositionSide string // defaults to "BOTH"
}

// Place is the C-ABI-shaped place entry point: primitive arguments plus a
// callback, returning immediately once the request is registered and
// handed to the sender. It never blocks on the venue's response.
func (g *Gateway) Place(p PlaceParams, cb Callback) {
	params := map[string]string{
		"symbol":   upper(p.Symbol),
		"side":     p.Side,
		"type":     p.OrderType,
		"quantity": p.Quantity,
	}
	if p.ReduceOnly {
		params["reduceOnly"] = "true"
	}
	if p.OrderType == "LIMIT" {
		params["price"] = p.Price
		timeInForce := p.TimeInForce
		if timeInForce == "" {
			timeInForce = "GTC"
		}
		positionSide := p.PositionSide
		if positionSide == "" {
			positionSide = "BOTH"
		}
		params["timeInForce"] = timeInForce
		params["positionSide"] = positionSide
	}

	g.dispatch("order.place", params, cb)
}

// Cancel is the C-ABI-shaped cancel entry point.
func (g *Gateway) Cancel(symbol string, orderID int64, cb Callback) {
	params := map[string]string{
		"symbol":  upper(symbol),
		"orderId": itoa(orderID),
	}
	g.dispatch("order.cancel", params, cb)
}

// dispatch registers cb under a freshly assigned id before handing the
// payload to the sender's outbound queue; registration happens first so
// a response racing ahead of the enqueue can never be missed.
func (g *Gateway) dispatch(method string, params map[string]string, cb Callback) {
	id := g.sender.NextID()

	g.mu.Lock()
	g.pending[id] = cb
	g.mu.Unlock()

	g.sender.Send(id, method, params)
}

// Deliver implements tradegate.ResponseSink. It normalizes the venue's
// raw response and invokes the matching callback exactly once, on a
// goroutine detached from the caller (TradeGate's socket reader).
func (g *Gateway) Deliver(id uint64, raw json.RawMessage) {
	cb, ok := g.remove(id)
	if !ok {
		return
	}
	result := normalize(raw)
	go cb(result)
}

// DeliverDisconnected implements tradegate.ResponseSink: every id swept
// from TradeGate's inflight set on disconnect gets a synthetic failure.
func (g *Gateway) DeliverDisconnected(ids []uint64) {
	for _, id := range ids {
		cb, ok := g.remove(id)
		if !ok {
			continue
		}
		go cb(OrderResult{Success: false, ErrorCode: disconnectedErrorCode, OrderID: -1})
	}
}

// disconnectedErrorCode is the error code surfaced to a plugin callback
// when its request was inflight at disconnect time. It is distinct from
// the venue's own error-code space (which is non-negative in practice)
// and from ErrorCodeMalformed, so callers can distinguish "the venue
// rejected this" from "we never got to ask".
const disconnectedErrorCode int64 = -9999

func (g *Gateway) remove(id uint64) (Callback, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cb, ok := g.pending[id]
	if ok {
		delete(g.pending, id)
	}
	return cb, ok
}

type venueResponse struct {
	Result *struct {
		OrderID int64 `json:"orderId"`
	} `json:"result"`
	Error *struct {
		Code int64 `json:"code"`
	} `json:"error"`
}

func normalize(raw json.RawMessage) OrderResult {
	var resp venueResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return OrderResult{Success: false, ErrorCode: ErrorCodeMalformed}
	}
	switch {
	case resp.Result != nil:
		return OrderResult{Success: true, OrderID: resp.Result.OrderID}
	case resp.Error != nil:
		return OrderResult{Success: false, ErrorCode: resp.Error.Code}
	default:
		return OrderResult{Success: false, ErrorCode: ErrorCodeMalformed}
	}
}

func upper(s string) string { return strings.ToUpper(s) }

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
