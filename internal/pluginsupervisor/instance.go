package pluginsupervisor

import (
	"sync/atomic"
	"time"

	"tradehost/internal/event"
	"tradehost/internal/eventbus"
)

const (
	syncQueueCapacity = 8192
	bridgeRecvTimeout = 100 * time.Millisecond
)

// instance is the running state of one loaded plugin, keyed by
// "strategyID:UPPER(symbol)". The artifact is kept alive by the worker
// goroutine's closure; release happens strictly after the worker returns.
type instance struct {
	id         string
	strategyID string
	symbol     string

	stopFlag *atomic.Bool
	queue    chan event.Event

	marketSub *eventbus.Subscription
	userSub   *eventbus.Subscription // nil if the plugin has no credential

	artifact *artifact

	done     chan struct{}
	exitCode int32
	finished atomic.Bool

	dropCount int64
}

// bridge forwards every event from sub into dst until the stop flag is
// set or sub is closed, dropping on a full queue rather than blocking the
// bus. Each wait is capped at bridgeRecvTimeout so the stop flag is
// checked promptly even when the bus is idle.
func bridge(sub *eventbus.Subscription, dst chan event.Event, stopFlag *atomic.Bool, dropCount *int64, onDrop func(total int64)) {
	for {
		if stopFlag.Load() {
			return
		}
		select {
		case e, ok := <-sub.Chan():
			if !ok {
				return
			}
			select {
			case dst <- e:
			default:
				n := atomic.AddInt64(dropCount, 1)
				if onDrop != nil && n%1000 == 0 {
					onDrop(n)
				}
			}
		case <-time.After(bridgeRecvTimeout):
		}
	}
}
