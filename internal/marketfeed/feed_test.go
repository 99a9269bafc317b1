package marketfeed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradehost/internal/event"
	"tradehost/internal/eventbus"
)

func newTestFeed() (*Feed, *eventbus.Subscription) {
	bus := eventbus.New(16, nil)
	f := New("wss://example.invalid/ws", bus, nil)
	sub := bus.Subscribe()
	return f, sub
}

func TestHandleTextBookTicker(t *testing.T) {
	f, sub := newTestFeed()
	defer sub.Close()

	msg := []byte(`{"e":"bookTicker","s":"BTCUSDT","b":"100.5","B":"1.0","a":"100.6","A":"2.0","E":1700000000000}`)
	f.handleText(msg)

	e := <-sub.Chan()
	require.Equal(t, event.KindBookTop, e.Kind)
	assert.Equal(t, "BTCUSDT", e.BookTop.SymbolString())
	assert.Equal(t, 100.5, e.BookTop.BidPrice)
	assert.Equal(t, 100.6, e.BookTop.AskPrice)
}

func TestHandleTextTradeNegatesQtyWhenMaker(t *testing.T) {
	f, sub := newTestFeed()
	defer sub.Close()

	msg := []byte(`{"e":"trade","s":"ETHUSDT","p":"2000","q":"0.5","m":true,"E":1700000000001}`)
	f.handleText(msg)

	e := <-sub.Chan()
	require.Equal(t, event.KindTrade, e.Kind)
	assert.Equal(t, -0.5, e.Trade.Qty)
}

func TestHandleTextTradeKeepsQtyPositiveWhenTaker(t *testing.T) {
	f, sub := newTestFeed()
	defer sub.Close()

	msg := []byte(`{"e":"trade","s":"ETHUSDT","p":"2000","q":"0.5","m":false,"E":1700000000001}`)
	f.handleText(msg)

	e := <-sub.Chan()
	assert.Equal(t, 0.5, e.Trade.Qty)
}

func TestHandleTextIgnoresUnknownFrame(t *testing.T) {
	f, sub := newTestFeed()
	defer sub.Close()

	f.handleText([]byte(`{"e":"somethingElse"}`))

	select {
	case <-sub.Chan():
		t.Fatal("expected no event published")
	default:
	}
}

func TestCommandToJSON(t *testing.T) {
	cmd := Command{Method: MethodSubscribe, Stream: StreamBookTicker, Symbol: "btcusdt"}
	wire := cmd.toJSON()
	assert.Equal(t, MethodSubscribe, wire.Method)
	assert.Equal(t, []string{"btcusdt@bookTicker"}, wire.Params)
	assert.Equal(t, 1, wire.ID)

	list := Command{Method: MethodListSubscriptions}
	wireList := list.toJSON()
	assert.Nil(t, wireList.Params)
	assert.Equal(t, 1, wireList.ID)
}
