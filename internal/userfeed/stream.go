// Package userfeed maintains one private WebSocket per credential: it
// acquires and refreshes the venue's session token, reconnects with
// exponential backoff, and classifies incoming frames into OrderUpdate /
// AccountUpdate events.
//
// Grounded on original_source/src/user_data/manager.rs (hash_key,
// StreamHandle/UserDataManager shape, the 1s-60s backoff, the 30s
// unsolicited-pong loop, the 30-minute listenKey refresh) and this
// codebase's own user-data-stream file for the Go connect/readLoop idiom.
package userfeed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tradehost/internal/eventbus"
	"tradehost/internal/logging"
	"tradehost/internal/wireauth"
)

const (
	pongInterval    = 30 * time.Second
	refreshInterval = 30 * time.Minute
	backoffInitial  = time.Second
	backoffCap      = 60 * time.Second
)

// Credentials is the (apiKey, secretKey) pair a Stream authenticates with.
type Credentials struct {
	APIKey    string
	SecretKey string
}

// Stream is one credential's private WebSocket lifecycle.
type Stream struct {
	hash     string
	creds    Credentials
	restBase string
	wsBase   string
	bus      *eventbus.Bus
	logger   *logging.Logger

	mu            sync.Mutex
	connected     bool
	activeRest    *restClient
	activeKey     string

	cancel context.CancelFunc
	done   chan struct{}
}

func newStream(creds Credentials, restBase, wsBase string, bus *eventbus.Bus, logger *logging.Logger) *Stream {
	return &Stream{
		hash:     wireauth.CredentialHash(creds.APIKey),
		creds:    creds,
		restBase: restBase,
		wsBase:   wsBase,
		bus:      bus,
		logger:   logger.WithComponent("userfeed").WithField("credential_hash", wireauth.CredentialHash(creds.APIKey)),
		done:     make(chan struct{}),
	}
}

// Hash returns the credential hash identifying this stream.
func (s *Stream) Hash() string { return s.hash }

// IsConnected reports whether the socket is currently established.
func (s *Stream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Stream) start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	go func() {
		defer close(s.done)
		s.run(ctx)
	}()
}

// stop cancels the run loop, waits for it to exit, and best-effort deletes
// the currently held listenKey so the venue frees it immediately instead of
// waiting out its expiry.
func (s *Stream) stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.done

	s.mu.Lock()
	rest, key := s.activeRest, s.activeKey
	s.mu.Unlock()
	if rest != nil && key != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rest.deleteListenKey(ctx); err != nil {
			s.logger.Warn("failed to delete listen key on disconnect", "error", err)
		}
	}
}

func (s *Stream) run(ctx context.Context) {
	backoff := wireauth.NewBackoff(backoffInitial, backoffCap)
	rest := newRESTClient(s.restBase, s.creds.APIKey)

	for ctx.Err() == nil {
		listenKey, err := rest.createListenKey(ctx)
		if err != nil {
			s.logger.Error("failed to acquire listen key", "error", err)
			s.wait(ctx, backoff.Next())
			continue
		}
		s.mu.Lock()
		s.activeRest, s.activeKey = rest, listenKey
		s.mu.Unlock()

		if err := s.runConnection(ctx, rest, listenKey, backoff); err != nil {
			s.logger.Warn("user feed connection ended", "error", err)
		}

		s.setConnected(false)
		if ctx.Err() != nil {
			return
		}
		s.wait(ctx, backoff.Next())
	}
}

func (s *Stream) wait(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func (s *Stream) setConnected(v bool) {
	s.mu.Lock()
	s.connected = v
	s.mu.Unlock()
}

func (s *Stream) runConnection(ctx context.Context, rest *restClient, listenKey string, backoff *wireauth.Backoff) error {
	url := fmt.Sprintf("%s/%s", s.wsBase, listenKey)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	s.setConnected(true)
	s.logger.Info("user feed connected")
	backoff.Reset()

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.pongLoop(connCtx, conn)
	}()
	go func() {
		defer wg.Done()
		s.refreshLoop(connCtx, rest)
	}()

	err = s.readLoop(conn)
	cancel()
	wg.Wait()
	return err
}

func (s *Stream) pongLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pongInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PongMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Stream) refreshLoop(ctx context.Context, rest *restClient) {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := rest.keepAliveListenKey(ctx); err != nil {
				s.logger.Error("listen key refresh failed", "error", err)
			}
		}
	}
}

func (s *Stream) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		e, ok := parseMessage(data)
		if !ok {
			if detail, isMarginCall := parseMarginCall(data); isMarginCall {
				s.logMarginCall(detail)
			}
			continue
		}
		s.bus.Publish(e)
	}
}

// logMarginCall surfaces MARGIN_CALL frames at warn level with per-
// position detail; the frame is never published onto the bus (see
// parseMessage).
func (s *Stream) logMarginCall(d MarginCallDetail) {
	if len(d.Positions) == 0 {
		s.logger.Warn("margin call received", "cross_wallet_balance", d.CrossWalletBalance)
		return
	}
	for _, p := range d.Positions {
		s.logger.Warn("margin call received",
			"symbol", p.Symbol,
			"position_side", p.PositionSide,
			"position_amount", p.PositionAmount,
			"margin_type", p.MarginType,
			"mark_price", p.MarkPrice,
			"unrealized_pnl", p.UnrealizedPnL,
			"maintenance_margin", p.MaintenanceMargin,
			"cross_wallet_balance", d.CrossWalletBalance)
	}
}
