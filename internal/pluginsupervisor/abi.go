package pluginsupervisor

import (
	"encoding/json"
	"fmt"
	"plugin"
	"sync/atomic"
	"time"

	"tradehost/internal/event"
	"tradehost/internal/ordergateway"
)

const maxSymbolLen = 16

// PluginConfig is the flat record passed by value into a plugin's run
// entry point: symbol, a pointer to its JSON params, a pointer to the
// shared stop flag, and a reserved field kept for ABI stability.
type PluginConfig struct {
	Symbol    [maxSymbolLen]byte
	SymbolLen uint8
	Params    json.RawMessage
	StopFlag  *atomic.Bool
	Reserved  uint64
}

func (c PluginConfig) SymbolString() string { return string(c.Symbol[:c.SymbolLen]) }

func newPluginConfig(symbol string, params json.RawMessage, stopFlag *atomic.Bool) PluginConfig {
	var c PluginConfig
	n := len(symbol)
	if n > maxSymbolLen {
		n = maxSymbolLen
	}
	copy(c.Symbol[:n], symbol[:n])
	c.SymbolLen = uint8(n)
	c.Params = params
	c.StopFlag = stopFlag
	return c
}

// SyncReceiver is the plugin-facing side of an Instance's bounded sync
// queue: both the market and (optional) user bridges write into the same
// channel, and the plugin drains it with a bounded-wait receive so it can
// poll the stop flag between events.
type SyncReceiver struct {
	ch chan event.Event
}

// Recv blocks for at most the caller-supplied duration, returning ok=false
// on timeout (not an error — the plugin is expected to re-check its stop
// flag and call Recv again).
func (r *SyncReceiver) Recv(timeout time.Duration) (event.Event, bool) {
	select {
	case e, open := <-r.ch:
		if !open {
			return event.Event{}, false
		}
		return e, true
	case <-time.After(timeout):
		return event.Event{}, false
	}
}

// PlaceFunc is the plugin-facing place entry point, bound to one
// Gateway/credential pair for the instance's lifetime.
type PlaceFunc func(ordergateway.PlaceParams, ordergateway.Callback)

// CancelFunc is the plugin-facing cancel entry point.
type CancelFunc func(symbol string, orderID int64, cb ordergateway.Callback)

// RunFunc is the Go analogue of the plugin ABI's exported `run` symbol.
type RunFunc func(*SyncReceiver, PlaceFunc, CancelFunc, PluginConfig) int32

// StopFunc is the Go analogue of the plugin ABI's optional `stop` symbol.
type StopFunc func()

// artifact is a resolved plugin's entry points plus the *plugin.Plugin
// itself, kept alive for as long as any goroutine holds a reference to
// this struct (the worker closure holds one for its entire lifetime).
type artifact struct {
	handle *plugin.Plugin
	run    RunFunc
	stop   StopFunc // nil if the plugin does not export one
}

// loadArtifact opens the shared object at path and resolves its run
// (required) and stop (optional) symbols, asserting them against the Go
// function-signature types documented in the Plugin ABI.
func loadArtifact(path string) (*artifact, error) {
	handle, err := plugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open plugin %s: %w", path, err)
	}

	runSym, err := handle.Lookup("Run")
	if err != nil {
		return nil, fmt.Errorf("resolve Run symbol in %s: %w", path, err)
	}
	run, ok := runSym.(func(*SyncReceiver, PlaceFunc, CancelFunc, PluginConfig) int32)
	if !ok {
		return nil, fmt.Errorf("plugin %s exports Run with the wrong signature", path)
	}

	var stop StopFunc
	if stopSym, err := handle.Lookup("Stop"); err == nil {
		if s, ok := stopSym.(func()); ok {
			stop = s
		}
	}

	return &artifact{handle: handle, run: RunFunc(run), stop: stop}, nil
}
