// Package tradegate maintains the single authenticated WebSocket used for
// outbound order operations: it signs and sends requests built by
// OrderGateway and routes venue responses back by request id. It never
// interprets a response's business meaning — that normalization is
// OrderGateway's job.
//
// Grounded on original_source/src/exchange_trade.rs (outbound queue,
// inflight set, backlog-on-reconnect, disconnect sweep, 2s reconnect, 15s
// ping loop) and this codebase's own websocket connection-state idiom for
// the Go reconnect-loop shape.
package tradegate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"tradehost/internal/clocksync"
	"tradehost/internal/logging"
	"tradehost/internal/wireauth"
)

const (
	reconnectDelay   = 2 * time.Second
	pingInterval     = 15 * time.Second
	outboundCapacity = 1024
	controlCapacity  = 16
	recvWindow       = "5000"
)

// ErrDisconnected names the disconnected condition. The disconnect sweep
// itself reports only the swept ids, through DeliverDisconnected.
var ErrDisconnected = errors.New("tradegate: disconnected")

// ResponseSink receives venue responses and the disconnect sweep. It is
// implemented by OrderGateway; TradeGate never inspects response bodies
// beyond extracting the id.
type ResponseSink interface {
	Deliver(id uint64, raw json.RawMessage)
	DeliverDisconnected(ids []uint64)
}

// Gate is the authenticated order WebSocket. One Gate per venue
// credential the host trades under.
type Gate struct {
	wsURL  string
	apiKey string
	secret string
	clock  *clocksync.Sync
	sink   ResponseSink
	log    zerolog.Logger

	nextID uint64
	idMu   sync.Mutex

	outbound chan Command
	control  chan []byte

	mu        sync.Mutex
	backlog   []Command
	inflight  map[uint64]struct{}
	connected bool
}

// New creates a Gate. apiKey/secret authenticate every outbound request;
// clock supplies the ClockSync-adjusted timestamp; sink is notified of
// every response and of the disconnect sweep.
func New(wsURL, apiKey, secret string, clock *clocksync.Sync, sink ResponseSink) *Gate {
	return &Gate{
		wsURL:    wsURL,
		apiKey:   apiKey,
		secret:   secret,
		clock:    clock,
		sink:     sink,
		log:      logging.Zerolog("tradegate"),
		outbound: make(chan Command, outboundCapacity),
		control:  make(chan []byte, controlCapacity),
		inflight: make(map[uint64]struct{}),
	}
}

// NextID assigns the next monotonic request id. Callers must assign and
// register a pending callback under this id before calling Send, so
// registration order is the ordering source of truth (§4.4).
func (g *Gate) NextID() uint64 {
	g.idMu.Lock()
	defer g.idMu.Unlock()
	g.nextID++
	return g.nextID
}

// Send signs params and enqueues the resulting Command under id, assigned
// beforehand via NextID. apiKey, timestamp and recvWindow are injected;
// the caller provides every other field (symbol, side, type, quantity,
// and for limit orders price/timeInForce/positionSide).
func (g *Gate) Send(id uint64, method string, params map[string]string) {
	p := cloneParams(params)
	p["apiKey"] = g.apiKey
	p["timestamp"] = strconv.FormatInt(g.clock.Now(), 10)
	p["recvWindow"] = recvWindow

	_, signature := wireauth.Sign(p, g.secret)
	p["signature"] = signature

	g.enqueue(Command{ID: id, Method: method, Params: p})
}

func (g *Gate) enqueue(cmd Command) {
	select {
	case g.outbound <- cmd:
	default:
		g.log.Warn().Uint64("id", cmd.ID).Msg("outbound queue full, command dropped")
	}
}

// IsConnected reports whether the socket is currently established.
func (g *Gate) IsConnected() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connected
}

// Run drives the connect/reconnect loop until ctx is cancelled.
func (g *Gate) Run(ctx context.Context) {
	for ctx.Err() == nil {
		if err := g.runOnce(ctx); err != nil {
			g.log.Warn().Err(err).Msg("trade gate connection ended")
		}
		g.sweepDisconnected()
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (g *Gate) runOnce(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, g.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	conn.SetPingHandler(func(appData string) error {
		select {
		case g.control <- []byte(appData):
		default:
		}
		return nil
	})

	g.setConnected(true)
	defer g.setConnected(false)
	g.log.Info().Msg("trade gate connected")

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	readErrCh := make(chan error, 1)
	go func() {
		readErrCh <- g.readLoop(conn)
		cancel()
	}()

	writeErr := g.writeLoop(connCtx, conn)
	cancel()
	conn.Close()
	<-readErrCh

	if writeErr != nil {
		return writeErr
	}
	return nil
}

func (g *Gate) setConnected(v bool) {
	g.mu.Lock()
	g.connected = v
	g.mu.Unlock()
}

// writeLoop owns the socket's write half exclusively. It drains the
// backlog (payloads that were dequeued but never successfully written on
// the previous connection) before resuming the normal outbound queue,
// per the Connected:Draining -> Connected:Normal transition. Control
// messages (pong replies) jump the queue.
func (g *Gate) writeLoop(ctx context.Context, conn *websocket.Conn) error {
	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	for {
		if cmd, ok := g.nextBacklogEntry(); ok {
			if err := g.writeCommand(conn, cmd); err != nil {
				g.returnToBacklog(cmd)
				return err
			}
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case appData := <-g.control:
			if err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second)); err != nil {
				return fmt.Errorf("write pong: %w", err)
			}
		case cmd := <-g.outbound:
			if err := g.writeCommand(conn, cmd); err != nil {
				g.returnToBacklog(cmd)
				return err
			}
		case <-pingTicker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return fmt.Errorf("write ping: %w", err)
			}
		}
	}
}

func (g *Gate) writeCommand(conn *websocket.Conn, cmd Command) error {
	data, err := json.Marshal(cmd.toWire())
	if err != nil {
		// A marshal failure is a programmer error in param constrution,
		// not a wire failure; drop the command rather than poison the
		// connection loop.
		g.log.Error().Err(err).Uint64("id", cmd.ID).Msg("failed to marshal outbound command")
		return nil
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	g.markInflight(cmd.ID)
	return nil
}

func (g *Gate) nextBacklogEntry() (Command, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.backlog) == 0 {
		return Command{}, false
	}
	cmd := g.backlog[0]
	g.backlog = g.backlog[1:]
	return cmd, true
}

func (g *Gate) returnToBacklog(cmd Command) {
	g.mu.Lock()
	g.backlog = append([]Command{cmd}, g.backlog...)
	g.mu.Unlock()
}

func (g *Gate) markInflight(id uint64) {
	g.mu.Lock()
	g.inflight[id] = struct{}{}
	g.mu.Unlock()
}

type wireResponse struct {
	ID uint64 `json:"id"`
}

func (g *Gate) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var resp wireResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			g.log.Warn().Err(err).Msg("failed to parse trade gate response, dropping frame")
			continue
		}
		g.clearInflight(resp.ID)
		g.sink.Deliver(resp.ID, json.RawMessage(data))
	}
}

func (g *Gate) clearInflight(id uint64) {
	g.mu.Lock()
	delete(g.inflight, id)
	g.mu.Unlock()
}

// sweepDisconnected removes every still-inflight id and reports it to the
// sink with a synthetic disconnected error. Backlog entries are left
// untouched: they were never observed by the venue and are retried on
// the next connection.
func (g *Gate) sweepDisconnected() {
	g.mu.Lock()
	ids := make([]uint64, 0, len(g.inflight))
	for id := range g.inflight {
		ids = append(ids, id)
	}
	g.inflight = make(map[uint64]struct{})
	g.mu.Unlock()

	if len(ids) > 0 {
		g.sink.DeliverDisconnected(ids)
	}
}
