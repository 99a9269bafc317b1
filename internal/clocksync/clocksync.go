// Package clocksync estimates and holds the signed offset between local
// wall clock and the venue's server time, used by TradeGate to stamp
// outbound request timestamps. Grounded on the rtt/2 midpoint algorithm
// from the original trading host's exchange_trade.rs sync_time routine.
package clocksync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"tradehost/internal/logging"
)

// fallbackOffsetMs is installed when the initial sync fails; empirically
// safer than 0 against venue clock drift (the venue tends to run ahead).
const fallbackOffsetMs int64 = -1000

// TimeSource is the minimal collaborator ClockSync needs: a GET that
// returns the venue's server time in milliseconds. Implemented by
// RESTTimeSource below; abstracted here so tests can supply a fake.
type TimeSource interface {
	ServerTimeMs(ctx context.Context) (int64, error)
}

// Sync holds a single shared atomic offset, in milliseconds, applied to
// every locally generated timestamp that crosses the wire.
type Sync struct {
	offsetMs atomic.Int64
	source   TimeSource
	log      zerolog.Logger
}

// New creates a Sync with offset 0. Call Start to perform the initial
// measurement before relying on Offset().
func New(source TimeSource) *Sync {
	return &Sync{
		source: source,
		log:    logging.Zerolog("clocksync"),
	}
}

// Start performs the one-shot initial sync. On failure the fallback
// offset is installed and a nil error is returned (clock sync failure is
// not fatal to host startup).
func (s *Sync) Start(ctx context.Context) error {
	if err := s.syncOnce(ctx); err != nil {
		s.offsetMs.Store(fallbackOffsetMs)
		s.log.Warn().Err(err).Int64("fallback_offset_ms", fallbackOffsetMs).Msg("initial clock sync failed, using fallback offset")
		return nil
	}
	return nil
}

// Resync re-measures the offset; intended to be called periodically by a
// caller-owned ticker. Errors are logged and otherwise ignored: the prior
// offset remains in effect.
func (s *Sync) Resync(ctx context.Context) {
	if err := s.syncOnce(ctx); err != nil {
		s.log.Warn().Err(err).Msg("periodic clock resync failed, keeping previous offset")
	}
}

func (s *Sync) syncOnce(ctx context.Context) error {
	tBefore := time.Now().UnixMilli()
	serverMs, err := s.source.ServerTimeMs(ctx)
	if err != nil {
		return fmt.Errorf("fetch server time: %w", err)
	}
	tAfter := time.Now().UnixMilli()

	rtt := tAfter - tBefore
	localMidpoint := tBefore + rtt/2
	offset := serverMs - localMidpoint

	s.offsetMs.Store(offset)
	s.log.Info().Int64("rtt_ms", rtt).Int64("offset_ms", offset).Msg("clock sync updated")
	return nil
}

// Offset returns the current offset in milliseconds. Safe for concurrent
// use with unbounded writers (a single atomic load, no tearing).
func (s *Sync) Offset() int64 {
	return s.offsetMs.Load()
}

// Now returns the local wall clock adjusted by the current offset,
// suitable for timestamps sent to the venue.
func (s *Sync) Now() int64 {
	return time.Now().UnixMilli() + s.Offset()
}

// RESTTimeSource implements TimeSource against the venue's GET /fapi/v1/time.
type RESTTimeSource struct {
	BaseURL string
	Client  *http.Client
}

func NewRESTTimeSource(baseURL string) *RESTTimeSource {
	return &RESTTimeSource{BaseURL: baseURL, Client: &http.Client{Timeout: 5 * time.Second}}
}

func (r *RESTTimeSource) ServerTimeMs(ctx context.Context) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.BaseURL+"/fapi/v1/time", nil)
	if err != nil {
		return 0, err
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var body struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode server time: %w", err)
	}
	return body.ServerTime, nil
}
