package ordergateway

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu       sync.Mutex
	nextID   uint64
	sent     map[uint64]map[string]string
	methods  map[uint64]string
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: make(map[uint64]map[string]string), methods: make(map[uint64]string)}
}

func (f *fakeSender) NextID() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	return f.nextID
}

func (f *fakeSender) Send(id uint64, method string, params map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[id] = params
	f.methods[id] = method
}

func waitForCallback(t *testing.T, ch <-chan OrderResult) OrderResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(time.Second):
		t.Fatal("callback never invoked")
		return OrderResult{}
	}
}

func TestPlaceLimitOrderIncludesLimitOnlyFields(t *testing.T) {
	sender := newFakeSender()
	gw := New(sender, nil)

	gw.Place(PlaceParams{Symbol: "btcusdt", Side: "BUY", OrderType: "LIMIT", Quantity: "1.0", Price: "100.0"}, func(OrderResult) {})

	require.Len(t, sender.sent, 1)
	var params map[string]string
	for _, p := range sender.sent {
		params = p
	}
	assert.Equal(t, "BTCUSDT", params["symbol"])
	assert.Equal(t, "100.0", params["price"])
	assert.Equal(t, "GTC", params["timeInForce"])
	assert.Equal(t, "BOTH", params["positionSide"])
}

func TestPlaceMarketOrderOmitsLimitOnlyFields(t *testing.T) {
	sender := newFakeSender()
	gw := New(sender, nil)

	gw.Place(PlaceParams{Symbol: "ETHUSDT", Side: "SELL", OrderType: "MARKET", Quantity: "2.0"}, func(OrderResult) {})

	var params map[string]string
	for _, p := range sender.sent {
		params = p
	}
	_, hasPrice := params["price"]
	_, hasTIF := params["timeInForce"]
	assert.False(t, hasPrice)
	assert.False(t, hasTIF)
}

func TestDeliverSuccessNormalization(t *testing.T) {
	sender := newFakeSender()
	gw := New(sender, nil)

	ch := make(chan OrderResult, 1)
	gw.Place(PlaceParams{Symbol: "BTCUSDT", Side: "BUY", OrderType: "MARKET", Quantity: "1"}, func(r OrderResult) { ch <- r })

	var id uint64
	for k := range sender.sent {
		id = k
	}
	gw.Deliver(id, json.RawMessage(`{"id":1,"result":{"orderId":555}}`))

	r := waitForCallback(t, ch)
	assert.True(t, r.Success)
	assert.Equal(t, int64(555), r.OrderID)
	assert.Equal(t, int64(0), r.ErrorCode)
}

func TestDeliverErrorNormalization(t *testing.T) {
	sender := newFakeSender()
	gw := New(sender, nil)

	ch := make(chan OrderResult, 1)
	gw.Place(PlaceParams{Symbol: "BTCUSDT", Side: "BUY", OrderType: "MARKET", Quantity: "1"}, func(r OrderResult) { ch <- r })

	var id uint64
	for k := range sender.sent {
		id = k
	}
	gw.Deliver(id, json.RawMessage(`{"id":1,"error":{"code":-2010}}`))

	r := waitForCallback(t, ch)
	assert.False(t, r.Success)
	assert.Equal(t, int64(-2010), r.ErrorCode)
}

func TestDeliverMalformedNormalization(t *testing.T) {
	sender := newFakeSender()
	gw := New(sender, nil)

	ch := make(chan OrderResult, 1)
	gw.Cancel("BTCUSDT", 42, func(r OrderResult) { ch <- r })

	var id uint64
	for k := range sender.sent {
		id = k
	}
	gw.Deliver(id, json.RawMessage(`{"id":1}`))

	r := waitForCallback(t, ch)
	assert.False(t, r.Success)
	assert.Equal(t, ErrorCodeMalformed, r.ErrorCode)
}

func TestDeliverInvokesCallbackAtMostOnce(t *testing.T) {
	sender := newFakeSender()
	gw := New(sender, nil)

	var calls int
	var mu sync.Mutex
	done := make(chan struct{}, 2)
	gw.Place(PlaceParams{Symbol: "BTCUSDT", Side: "BUY", OrderType: "MARKET", Quantity: "1"}, func(OrderResult) {
		mu.Lock()
		calls++
		mu.Unlock()
		done <- struct{}{}
	})

	var id uint64
	for k := range sender.sent {
		id = k
	}
	gw.Deliver(id, json.RawMessage(`{"id":1,"result":{"orderId":1}}`))
	gw.Deliver(id, json.RawMessage(`{"id":1,"result":{"orderId":1}}`)) // duplicate, entry already gone

	<-done
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls)
}

func TestDeliverDisconnectedSurfacesSyntheticFailure(t *testing.T) {
	sender := newFakeSender()
	gw := New(sender, nil)

	ch := make(chan OrderResult, 1)
	gw.Place(PlaceParams{Symbol: "BTCUSDT", Side: "BUY", OrderType: "MARKET", Quantity: "1"}, func(r OrderResult) { ch <- r })

	var id uint64
	for k := range sender.sent {
		id = k
	}
	gw.DeliverDisconnected([]uint64{id})

	r := waitForCallback(t, ch)
	assert.False(t, r.Success)
	assert.Equal(t, disconnectedErrorCode, r.ErrorCode)
	assert.Equal(t, int64(-1), r.OrderID)
}

func TestCancelBuildsOrderIDParam(t *testing.T) {
	sender := newFakeSender()
	gw := New(sender, nil)

	gw.Cancel("btcusdt", 777, func(OrderResult) {})

	var params map[string]string
	var method string
	for id, p := range sender.sent {
		params = p
		method = sender.methods[id]
	}
	assert.Equal(t, "order.cancel", method)
	assert.Equal(t, "BTCUSDT", params["symbol"])
	assert.Equal(t, "777", params["orderId"])
}
