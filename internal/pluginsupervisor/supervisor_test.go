package pluginsupervisor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradehost/internal/event"
	"tradehost/internal/eventbus"
	"tradehost/internal/instancelock"
	"tradehost/internal/ordergateway"
	"tradehost/internal/userfeed"
)

// countingRun is a fake plugin entry point that counts every event it
// receives and returns once the stop flag is observed.
func countingRun(count *int) RunFunc {
	return func(recv *SyncReceiver, place PlaceFunc, cancel CancelFunc, cfg PluginConfig) int32 {
		for !cfg.StopFlag.Load() {
			if _, ok := recv.Recv(20 * time.Millisecond); ok {
				*count++
			}
		}
		return 0
	}
}

func fakeLoader(run RunFunc) func(string) (*artifact, error) {
	return func(path string) (*artifact, error) {
		return &artifact{run: run}, nil
	}
}

type fakeSender struct{ id uint64 }

func (f *fakeSender) NextID() uint64 {
	f.id++
	return f.id
}
func (f *fakeSender) Send(id uint64, method string, params map[string]string) {}

func newTestSupervisor(t *testing.T, run RunFunc) (*Supervisor, *eventbus.Bus) {
	bus := eventbus.New(64, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	reg := userfeed.NewRegistry(ctx, "http://127.0.0.1:1", "ws://127.0.0.1:1", bus, nil, nil)
	gw := ordergateway.New(&fakeSender{}, nil)
	sup := New(bus, reg, gw, nil, nil)
	sup.loadArtifact = fakeLoader(run)
	t.Cleanup(sup.Close)
	return sup, bus
}

func TestStartAndStopExerciseInstanceLockPerInstance(t *testing.T) {
	var count int
	bus := eventbus.New(64, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	reg := userfeed.NewRegistry(ctx, "http://127.0.0.1:1", "ws://127.0.0.1:1", bus, nil, nil)
	gw := ordergateway.New(&fakeSender{}, nil)
	lock := instancelock.New(instancelock.Config{Enabled: false}, nil)
	sup := New(bus, reg, gw, lock, nil)
	sup.loadArtifact = fakeLoader(countingRun(&count))
	t.Cleanup(sup.Close)

	require.NoError(t, sup.Start("strat1", "btcusdt", "/fake/path.so", nil))
	require.NoError(t, sup.Stop("strat1:BTCUSDT"))

	// A disabled lock always reports the instance id free, so the same
	// id can be started again once stopped.
	require.NoError(t, sup.Start("strat1", "btcusdt", "/fake/path.so", nil))
	require.NoError(t, sup.Stop("strat1:BTCUSDT"))
}

func TestStartRejectsDuplicateInstanceID(t *testing.T) {
	var count int
	sup, _ := newTestSupervisor(t, countingRun(&count))

	require.NoError(t, sup.Start("strat1", "btcusdt", "/fake/path.so", nil))
	err := sup.Start("strat1", "BTCUSDT", "/fake/path.so", nil)
	require.ErrorIs(t, err, ErrAlreadyRunning)

	require.NoError(t, sup.Stop("strat1:BTCUSDT"))
}

func TestInstanceIDIsUppercaseSymbol(t *testing.T) {
	var count int
	sup, _ := newTestSupervisor(t, countingRun(&count))

	require.NoError(t, sup.Start("strat1", "ethusdt", "/fake/path.so", nil))
	list := sup.List()
	require.Len(t, list, 1)
	assert.Equal(t, "strat1:ETHUSDT", list[0])
	require.NoError(t, sup.Stop("strat1:ETHUSDT"))
}

func TestMarketBridgeForwardsBusEventsToPlugin(t *testing.T) {
	var count int
	sup, bus := newTestSupervisor(t, countingRun(&count))

	require.NoError(t, sup.Start("strat1", "btcusdt", "/fake/path.so", nil))

	for i := 0; i < 5; i++ {
		bus.Publish(event.NewBookTop("BTCUSDT", 100, 101, 1, 1, 0, 0))
	}

	require.Eventually(t, func() bool { return count >= 5 }, time.Second, 10*time.Millisecond)
	require.NoError(t, sup.Stop("strat1:BTCUSDT"))
}

func TestStopRemovesInstanceAfterWorkerExits(t *testing.T) {
	var count int
	sup, _ := newTestSupervisor(t, countingRun(&count))

	require.NoError(t, sup.Start("strat1", "btcusdt", "/fake/path.so", nil))
	require.NoError(t, sup.Stop("strat1:BTCUSDT"))

	assert.Empty(t, sup.List())
	assert.ErrorIs(t, sup.Stop("strat1:BTCUSDT"), ErrNotFound)
}

func TestStopAllStopsOnlyMatchingStrategy(t *testing.T) {
	var count int
	sup, _ := newTestSupervisor(t, countingRun(&count))

	require.NoError(t, sup.Start("strat1", "btcusdt", "/fake/path.so", nil))
	require.NoError(t, sup.Start("strat1", "ethusdt", "/fake/path.so", nil))
	require.NoError(t, sup.Start("strat2", "btcusdt", "/fake/path.so", nil))

	stopped := sup.StopAll("strat1")
	assert.ElementsMatch(t, []string{"strat1:BTCUSDT", "strat1:ETHUSDT"}, stopped)

	remaining := sup.List()
	require.Len(t, remaining, 1)
	assert.Equal(t, "strat2:BTCUSDT", remaining[0])

	require.NoError(t, sup.Stop("strat2:BTCUSDT"))
}

func TestStartOpensUserBridgeWhenParamsCarryAPIKey(t *testing.T) {
	var count int
	run := func(recv *SyncReceiver, place PlaceFunc, cancel CancelFunc, cfg PluginConfig) int32 {
		for !cfg.StopFlag.Load() {
			if _, ok := recv.Recv(20 * time.Millisecond); ok {
				count++
			}
		}
		return 0
	}
	sup, _ := newTestSupervisor(t, run)

	params, _ := json.Marshal(map[string]string{"api_key": "k1", "secret_key": "s1"})
	require.NoError(t, sup.Start("strat1", "btcusdt", "/fake/path.so", params))

	sup.mu.Lock()
	inst := sup.instances["strat1:BTCUSDT"]
	sup.mu.Unlock()
	require.NotNil(t, inst)
	assert.NotNil(t, inst.userSub)

	require.NoError(t, sup.Stop("strat1:BTCUSDT"))
}
