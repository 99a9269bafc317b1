// Package pluginsupervisor loads dynamically built strategy artifacts and
// runs each on a dedicated worker goroutine, bridging the shared
// EventBus into a per-instance bounded sync queue the plugin drains with
// a timed receive.
//
// Grounded on original_source/src/strategies/manager.rs's registry/
// bridge/stop-timeout shape, adapted from its DashMap + 5s-timeout
// original into a mutex-guarded map with the 10s/100ms-poll stop
// protocol this host specifies.
package pluginsupervisor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"tradehost/internal/event"
	"tradehost/internal/eventbus"
	"tradehost/internal/instancelock"
	"tradehost/internal/logging"
	"tradehost/internal/ordergateway"
	"tradehost/internal/userfeed"
)

// ErrAlreadyRunning is returned by Start when instance_id is already live.
var ErrAlreadyRunning = errors.New("pluginsupervisor: instance already running")

// ErrNotFound is returned by Stop for an unknown instance id.
var ErrNotFound = errors.New("pluginsupervisor: instance not found")

// ErrLocked is returned by Start when another host already holds the
// instance lock for this instance id.
var ErrLocked = errors.New("pluginsupervisor: instance locked by another host")

const (
	cleanupInterval  = time.Second
	stopPollInterval = 100 * time.Millisecond
	stopTimeout      = 10 * time.Second
)

// credentialParams is the minimal shape pluginsupervisor looks for inside
// a plugin's raw params to decide whether to open a user bridge.
type credentialParams struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
}

// Supervisor owns every live plugin instance.
type Supervisor struct {
	bus       *eventbus.Bus
	userFeeds *userfeed.Registry
	gateway   *ordergateway.Gateway
	lock      *instancelock.Lock
	logger    *logging.Logger

	mu        sync.Mutex
	instances map[string]*instance

	cleanupCancel func()
	cleanupDone   chan struct{}

	// loadArtifact is overridable in tests so the ABI's reliance on a
	// real compiled .so (plugin.Open) doesn't leak into unit tests.
	loadArtifact func(path string) (*artifact, error)
}

// New creates a Supervisor and starts its background cleanup task. bus
// supplies market data, userFeeds resolves per-credential subscriptions,
// gateway is bound into every instance's place/cancel functions. lock may
// be nil, in which case every Start succeeds locally with no cross-host
// coordination (matching instancelock.Lock's own disabled behavior).
func New(bus *eventbus.Bus, userFeeds *userfeed.Registry, gateway *ordergateway.Gateway, lock *instancelock.Lock, logger *logging.Logger) *Supervisor {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Supervisor{
		bus:       bus,
		userFeeds: userFeeds,
		gateway:   gateway,
		lock:      lock,
		logger:    logger.WithComponent("pluginsupervisor"),
		instances: make(map[string]*instance),
	}
	s.loadArtifact = loadArtifact
	s.startCleanupTask()
	return s
}

func instanceID(strategyID, symbol string) string {
	return strategyID + ":" + strings.ToUpper(symbol)
}

// Start loads artifactPath and runs it against symbol under strategyID.
// params is passed through to the plugin verbatim as raw JSON; if it
// carries an api_key this instance also gets a user-event bridge.
func (s *Supervisor) Start(strategyID, symbol, artifactPath string, params json.RawMessage) error {
	id := instanceID(strategyID, symbol)

	if s.lock != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		acquired, err := s.lock.Acquire(ctx, id)
		cancel()
		if err != nil {
			s.logger.Warn("instance lock acquire failed, proceeding without cross-host coordination", "instance_id", id, "error", err)
		} else if !acquired {
			return fmt.Errorf("%s: %w", id, ErrLocked)
		}
	}

	s.mu.Lock()
	if _, ok := s.instances[id]; ok {
		s.mu.Unlock()
		s.releaseLock(id)
		return fmt.Errorf("%s: %w", id, ErrAlreadyRunning)
	}
	// Reserve the slot immediately so two concurrent Start calls for the
	// same id can't both pass the check above.
	s.instances[id] = nil
	s.mu.Unlock()

	inst, err := s.build(id, strategyID, symbol, artifactPath, params)
	if err != nil {
		s.mu.Lock()
		delete(s.instances, id)
		s.mu.Unlock()
		s.releaseLock(id)
		return err
	}

	s.mu.Lock()
	s.instances[id] = inst
	s.mu.Unlock()

	s.logger.Info("plugin instance started", "instance_id", id, "artifact", artifactPath)
	return nil
}

func (s *Supervisor) build(id, strategyID, symbol, artifactPath string, params json.RawMessage) (*instance, error) {
	art, err := s.loadArtifact(artifactPath)
	if err != nil {
		return nil, err
	}

	var stopFlag atomic.Bool
	inst := &instance{
		id:         id,
		strategyID: strategyID,
		symbol:     symbol,
		stopFlag:   &stopFlag,
		queue:      make(chan event.Event, syncQueueCapacity),
		artifact:   art,
		done:       make(chan struct{}),
	}

	inst.marketSub = s.bus.Subscribe()
	go bridge(inst.marketSub, inst.queue, inst.stopFlag, &inst.dropCount, func(total int64) {
		s.logger.Warn("plugin instance dropping market events", "instance_id", id, "dropped", total)
	})

	if creds, ok := parseCredentials(params); ok {
		hash := s.userFeeds.Connect(userfeed.Credentials{APIKey: creds.APIKey, SecretKey: creds.SecretKey})
		if _, ok := s.userFeeds.Lookup(hash); ok {
			inst.userSub = s.bus.Subscribe()
			go bridge(inst.userSub, inst.queue, inst.stopFlag, &inst.dropCount, func(total int64) {
				s.logger.Warn("plugin instance dropping user events", "instance_id", id, "dropped", total)
			})
		}
	}

	config := newPluginConfig(symbol, params, inst.stopFlag)
	receiver := &SyncReceiver{ch: inst.queue}
	placeFn := PlaceFunc(s.gateway.Place)
	cancelFn := CancelFunc(s.gateway.Cancel)

	go func() {
		defer close(inst.done)
		defer inst.finished.Store(true)
		code := art.run(receiver, placeFn, cancelFn, config)
		inst.exitCode = code
		s.logger.Info("plugin instance worker returned", "instance_id", id, "exit_code", code)
	}()

	return inst, nil
}

func parseCredentials(params json.RawMessage) (credentialParams, bool) {
	if len(params) == 0 {
		return credentialParams{}, false
	}
	var c credentialParams
	if err := json.Unmarshal(params, &c); err != nil {
		return credentialParams{}, false
	}
	if c.APIKey == "" {
		return credentialParams{}, false
	}
	return c, true
}

// Stop sets the stop flag, aborts the instance's bridges, and waits up to
// stopTimeout for the cleanup task to remove it from the registry. If the
// timer elapses the instance is forcibly removed; the worker continues
// winding down on its own and the artifact stays alive until it exits.
func (s *Supervisor) Stop(id string) error {
	s.mu.Lock()
	inst, ok := s.instances[id]
	s.mu.Unlock()
	if !ok || inst == nil {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}

	inst.stopFlag.Store(true)
	s.abortBridges(inst)

	deadline := time.Now().Add(stopTimeout)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		_, stillPresent := s.instances[id]
		s.mu.Unlock()
		if !stillPresent {
			s.releaseLock(id)
			return nil
		}
		time.Sleep(stopPollInterval)
	}

	s.logger.Warn("plugin instance did not drain in time, forcibly removing", "instance_id", id)
	s.mu.Lock()
	delete(s.instances, id)
	s.mu.Unlock()
	s.releaseLock(id)
	return nil
}

// releaseLock drops the cross-host instance lock for id, if one is
// configured. Failures are logged and otherwise ignored: the lock's own
// TTL bounds how long a missed release can strand another host.
func (s *Supervisor) releaseLock(id string) {
	if s.lock == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.lock.Release(ctx, id); err != nil {
		s.logger.Warn("instance lock release failed", "instance_id", id, "error", err)
	}
}

// StopAll stops every instance belonging to strategyID and returns the
// ids it stopped.
func (s *Supervisor) StopAll(strategyID string) []string {
	prefix := strategyID + ":"
	s.mu.Lock()
	var ids []string
	for id := range s.instances {
		if strings.HasPrefix(id, prefix) {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	for _, id := range ids {
		_ = s.Stop(id)
	}
	return ids
}

// List returns the ids of every currently live instance.
func (s *Supervisor) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.instances))
	for id, inst := range s.instances {
		if inst != nil {
			out = append(out, id)
		}
	}
	return out
}

func (s *Supervisor) abortBridges(inst *instance) {
	if inst.marketSub != nil {
		inst.marketSub.Close()
	}
	if inst.userSub != nil {
		inst.userSub.Close()
	}
}

// startCleanupTask launches the background loop that scans every live
// instance once per second, removing any whose worker has finished.
func (s *Supervisor) startCleanupTask() {
	done := make(chan struct{})
	stop := make(chan struct{})
	s.cleanupDone = done
	s.cleanupCancel = func() { close(stop) }

	go func() {
		defer close(done)
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.sweepFinished()
			}
		}
	}()
}

func (s *Supervisor) sweepFinished() {
	s.mu.Lock()
	var drained []string
	for id, inst := range s.instances {
		if inst == nil {
			continue
		}
		if inst.finished.Load() {
			s.abortBridges(inst)
			delete(s.instances, id)
			drained = append(drained, id)
		}
	}
	s.mu.Unlock()

	for _, id := range drained {
		s.releaseLock(id)
	}
}

// Close stops the cleanup task. It does not stop any live instance.
func (s *Supervisor) Close() {
	if s.cleanupCancel != nil {
		s.cleanupCancel()
	}
	if s.cleanupDone != nil {
		<-s.cleanupDone
	}
}
