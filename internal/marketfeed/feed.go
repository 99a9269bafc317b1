// Package marketfeed connects to the venue's public WebSocket, carries
// subscribe/unsubscribe commands for book-top and trade streams, and
// publishes parsed events onto the shared bus.
//
// Grounded on the reference codebase's user-data-stream and
// kline-subscription-manager files for its connect/reconnect/read-loop
// shape, and on original_source/src/exchange_data.rs for the exact
// algorithm: substring-sniffed dispatch, the 5s read timeout / two
// consecutive timeouts dead-connection rule, and the 3s reconnect delay.
package marketfeed

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"tradehost/internal/event"
	"tradehost/internal/eventbus"
	"tradehost/internal/logging"
)

const (
	readTimeout        = 5 * time.Second
	maxDeadTimeouts    = 2
	reconnectDelay     = 3 * time.Second
	cmdQueueCapacity   = 256
)

// Feed is one connection to the venue's public WebSocket.
type Feed struct {
	wsURL     string
	bus       *eventbus.Bus
	cmdCh     chan Command
	connected atomic.Bool
	logger    *logging.Logger
}

// New creates a Feed that will publish parsed events onto bus.
func New(wsURL string, bus *eventbus.Bus, logger *logging.Logger) *Feed {
	if logger == nil {
		logger = logging.Default()
	}
	return &Feed{
		wsURL:  wsURL,
		bus:    bus,
		cmdCh:  make(chan Command, cmdQueueCapacity),
		logger: logger.WithComponent("marketfeed"),
	}
}

// IsConnected reports whether the socket is currently established.
func (f *Feed) IsConnected() bool {
	return f.connected.Load()
}

// SubscribeBookTicker enqueues a book-top subscription for symbol.
func (f *Feed) SubscribeBookTicker(symbol string) {
	f.enqueue(Command{Method: MethodSubscribe, Stream: StreamBookTicker, Symbol: strings.ToLower(symbol)})
}

// UnsubscribeBookTicker enqueues a book-top unsubscription for symbol.
func (f *Feed) UnsubscribeBookTicker(symbol string) {
	f.enqueue(Command{Method: MethodUnsubscribe, Stream: StreamBookTicker, Symbol: strings.ToLower(symbol)})
}

// SubscribeTrades enqueues a trade subscription for symbol.
func (f *Feed) SubscribeTrades(symbol string) {
	f.enqueue(Command{Method: MethodSubscribe, Stream: StreamTrade, Symbol: strings.ToLower(symbol)})
}

// UnsubscribeTrades enqueues a trade unsubscription for symbol.
func (f *Feed) UnsubscribeTrades(symbol string) {
	f.enqueue(Command{Method: MethodUnsubscribe, Stream: StreamTrade, Symbol: strings.ToLower(symbol)})
}

func (f *Feed) enqueue(cmd Command) {
	f.cmdCh <- cmd
}

// Run drives the connect/read/write loop until ctx is cancelled. Callers
// typically invoke this in its own goroutine at startup.
func (f *Feed) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		f.runOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (f *Feed) runOnce(ctx context.Context) {
	f.logger.Info("connecting to market feed")
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		f.logger.Error("market feed connect failed", "error", err)
		f.connected.Store(false)
		return
	}
	defer conn.Close()

	f.connected.Store(true)
	f.logger.Info("market feed connected")

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		f.readLoop(conn)
	}()

	f.writeLoop(ctx, conn, readerDone)
	f.connected.Store(false)
	<-readerDone
}

func (f *Feed) writeLoop(ctx context.Context, conn *websocket.Conn, readerDone <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-readerDone:
			return
		case cmd := <-f.cmdCh:
			if err := conn.WriteJSON(cmd.toJSON()); err != nil {
				f.logger.Error("market feed write failed", "error", err)
				return
			}
		}
	}
}

func (f *Feed) readLoop(conn *websocket.Conn) {
	consecutiveTimeouts := 0
	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				consecutiveTimeouts++
				if consecutiveTimeouts >= maxDeadTimeouts {
					f.logger.Warn("market feed dead after consecutive timeouts, dropping connection")
					return
				}
				f.enqueue(Command{Method: MethodListSubscriptions})
				continue
			}
			f.logger.Warn("market feed read error, dropping connection", "error", err)
			return
		}
		consecutiveTimeouts = 0
		f.handleText(data)
	}
}

type rawBookTicker struct {
	Symbol   string `json:"s"`
	BidPrice string `json:"b"`
	AskPrice string `json:"a"`
	BidQty   string `json:"B"`
	AskQty   string `json:"A"`
	Time     int64  `json:"E"`
}

type rawTrade struct {
	Symbol  string `json:"s"`
	Price   string `json:"p"`
	Qty     string `json:"q"`
	IsMaker bool   `json:"m"`
	Time    int64  `json:"E"`
}

func (f *Feed) handleText(data []byte) {
	arrivalNs := uint64(time.Now().UnixNano())
	txt := string(data)

	switch {
	case strings.Contains(txt, `"bookTicker"`):
		var bt rawBookTicker
		if err := json.Unmarshal(data, &bt); err != nil {
			f.logger.Error("bookTicker parse error", "error", err)
			return
		}
		e := event.NewBookTop(bt.Symbol, parseFloat(bt.BidPrice), parseFloat(bt.AskPrice), parseFloat(bt.BidQty), parseFloat(bt.AskQty), bt.Time, arrivalNs)
		f.bus.Publish(e)

	case strings.Contains(txt, `"trade"`):
		var tr rawTrade
		if err := json.Unmarshal(data, &tr); err != nil {
			f.logger.Error("trade parse error", "error", err)
			return
		}
		qty := parseFloat(tr.Qty)
		if tr.IsMaker {
			qty = -qty
		}
		e := event.NewTrade(tr.Symbol, parseFloat(tr.Price), qty, tr.Time, arrivalNs)
		f.bus.Publish(e)
	}
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
