package userfeed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradehost/internal/event"
)

func TestParseMessageOrderTradeUpdate(t *testing.T) {
	msg := []byte(`{"e":"ORDER_TRADE_UPDATE","E":1700000000000,"o":{"s":"BTCUSDT","c":"cid-1","S":"BUY","X":"FILLED","i":42,"q":"1.0","p":"100.0","ap":"99.5","z":"1.0","n":"0.01","T":1700000000100}}`)

	e, ok := parseMessage(msg)
	require.True(t, ok)
	require.Equal(t, event.KindOrderUpdate, e.Kind)
	assert.Equal(t, "BTCUSDT", e.OrderUpdate.SymbolString())
	assert.Equal(t, "cid-1", e.OrderUpdate.ClientIDString())
	assert.Equal(t, int64(42), e.OrderUpdate.OrderID)
	assert.Equal(t, event.StatusFilled, e.OrderUpdate.Status)
	assert.Equal(t, event.SideBuy, e.OrderUpdate.Side)
}

func TestParseMessageAccountUpdate(t *testing.T) {
	msg := []byte(`{"e":"ACCOUNT_UPDATE","E":1700000000200,"a":{"m":"ORDER","B":[{"a":"USDT","wb":"100.0","cw":"100.0","bc":"0"}]}}`)

	e, ok := parseMessage(msg)
	require.True(t, ok)
	require.Equal(t, event.KindAccountUpdate, e.Kind)
	assert.Equal(t, uint8(1), e.AccountUpdate.BalancesCount)
}

func TestParseMessageAccountUpdateSuppressedWhenEmpty(t *testing.T) {
	msg := []byte(`{"e":"ACCOUNT_UPDATE","E":1700000000200,"a":{"m":"ORDER","B":[]}}`)

	_, ok := parseMessage(msg)
	assert.False(t, ok)
}

func TestParseMessageMarginCallDropped(t *testing.T) {
	msg := []byte(`{"e":"MARGIN_CALL","E":1700000000200}`)

	_, ok := parseMessage(msg)
	assert.False(t, ok)
}

func TestParseMarginCallExtractsPositionDetail(t *testing.T) {
	msg := []byte(`{"e":"MARGIN_CALL","E":1700000000200,"cw":"1000.5","p":[{"s":"BTCUSDT","ps":"LONG","pa":"0.5","mt":"cross","mp":"42000.0","up":"-150.25","mm":"50.0"}]}`)

	detail, ok := parseMarginCall(msg)
	require.True(t, ok)
	assert.Equal(t, int64(1700000000200), detail.EventTime)
	assert.Equal(t, 1000.5, detail.CrossWalletBalance)
	require.Len(t, detail.Positions, 1)
	p := detail.Positions[0]
	assert.Equal(t, "BTCUSDT", p.Symbol)
	assert.Equal(t, "LONG", p.PositionSide)
	assert.Equal(t, 0.5, p.PositionAmount)
	assert.Equal(t, "cross", p.MarginType)
	assert.Equal(t, 42000.0, p.MarkPrice)
	assert.Equal(t, -150.25, p.UnrealizedPnL)
	assert.Equal(t, 50.0, p.MaintenanceMargin)
}

func TestParseMarginCallFalseForOtherKinds(t *testing.T) {
	msg := []byte(`{"e":"ORDER_TRADE_UPDATE","E":1700000000000,"o":{"s":"BTCUSDT"}}`)

	_, ok := parseMarginCall(msg)
	assert.False(t, ok)
}

func TestParseMessageUnknownKindDropped(t *testing.T) {
	msg := []byte(`{"e":"LISTEN_KEY_EXPIRED"}`)

	_, ok := parseMessage(msg)
	assert.False(t, ok)
}

func TestParseMessageMalformedDropped(t *testing.T) {
	_, ok := parseMessage([]byte(`not json`))
	assert.False(t, ok)
}
