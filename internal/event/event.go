// Package event defines the fixed-layout record exchanged between the
// connection managers, the broadcast bus and loaded strategy plugins.
//
// An Event is a plain value type: fixed-size byte arrays carry symbols and
// client ids so that a copy never touches the heap and no ownership crosses
// the plugin boundary. Go has no tagged union, so the four payload variants
// are represented as named fields on one struct; only the field matching
// Kind is meaningful. Callers must not read a field that does not match Kind.
package event

// Kind discriminates which payload of an Event is populated.
type Kind uint8

const (
	KindBookTop       Kind = 0
	KindTrade         Kind = 1
	KindOrderUpdate   Kind = 2
	KindAccountUpdate Kind = 3
)

func (k Kind) String() string {
	switch k {
	case KindBookTop:
		return "BookTop"
	case KindTrade:
		return "Trade"
	case KindOrderUpdate:
		return "OrderUpdate"
	case KindAccountUpdate:
		return "AccountUpdate"
	default:
		return "Unknown"
	}
}

const (
	maxSymbolLen   = 16
	maxClientIDLen = 32
	maxAssetLen    = 8
	maxBalances    = 10
)

// BookTop is the top-of-book payload for KindBookTop.
type BookTop struct {
	Symbol    [maxSymbolLen]byte
	SymbolLen uint8
	BidPrice  float64
	AskPrice  float64
	BidQty    float64
	AskQty    float64
	EventTime int64 // venue event time, ms
}

func (b BookTop) SymbolString() string { return string(b.Symbol[:b.SymbolLen]) }

// Trade is the public-trade payload for KindTrade.
type Trade struct {
	Symbol    [maxSymbolLen]byte
	SymbolLen uint8
	Price     float64
	Qty       float64 // signed; sign = taker side
	EventTime int64
}

func (t Trade) SymbolString() string { return string(t.Symbol[:t.SymbolLen]) }

// OrderStatus is the single-byte status code on an OrderUpdate.
type OrderStatus byte

const (
	StatusNew             OrderStatus = 'N'
	StatusPartiallyFilled OrderStatus = 'P'
	StatusFilled          OrderStatus = 'F'
	StatusCanceled        OrderStatus = 'C'
	StatusRejected        OrderStatus = 'R'
	StatusExpired         OrderStatus = 'E'
)

// Side is the single-byte side code shared by OrderUpdate.
type Side byte

const (
	SideBuy  Side = 'B'
	SideSell Side = 'S'
)

// OrderUpdate is the private order-state-change payload for KindOrderUpdate.
type OrderUpdate struct {
	Symbol         [maxSymbolLen]byte
	SymbolLen      uint8
	ClientID       [maxClientIDLen]byte
	ClientIDLen    uint8
	OrderID        int64
	Price          float64
	Qty            float64
	AccumulatedQty float64
	AvgPrice       float64
	Commission     float64
	Status         OrderStatus
	Side           Side
	EventTime      int64
	TradeTime      int64
}

func (o OrderUpdate) SymbolString() string   { return string(o.Symbol[:o.SymbolLen]) }
func (o OrderUpdate) ClientIDString() string { return string(o.ClientID[:o.ClientIDLen]) }

// ReasonCode enumerates why an AccountUpdate was emitted (§6 reason table).
type ReasonCode uint8

const (
	ReasonUnknown            ReasonCode = 0
	ReasonDeposit            ReasonCode = 1
	ReasonWithdraw           ReasonCode = 2
	ReasonOrder              ReasonCode = 3
	ReasonFundingFee         ReasonCode = 4
	ReasonWithdrawReject     ReasonCode = 5
	ReasonAdjustment         ReasonCode = 6
	ReasonInsuranceClear     ReasonCode = 7
	ReasonAdminDeposit       ReasonCode = 8
	ReasonAdminWithdraw      ReasonCode = 9
	ReasonMarginTransfer     ReasonCode = 10
	ReasonMarginTypeChange   ReasonCode = 11
	ReasonAssetTransfer      ReasonCode = 12
	ReasonOptionsPremiumFee  ReasonCode = 13
	ReasonOptionsSettleProfit ReasonCode = 14
	ReasonAutoExchange       ReasonCode = 15
)

var reasonByVenueString = map[string]ReasonCode{
	"DEPOSIT":              ReasonDeposit,
	"WITHDRAW":             ReasonWithdraw,
	"ORDER":                ReasonOrder,
	"FUNDING_FEE":          ReasonFundingFee,
	"WITHDRAW_REJECT":      ReasonWithdrawReject,
	"ADJUSTMENT":           ReasonAdjustment,
	"INSURANCE_CLEAR":      ReasonInsuranceClear,
	"ADMIN_DEPOSIT":        ReasonAdminDeposit,
	"ADMIN_WITHDRAW":       ReasonAdminWithdraw,
	"MARGIN_TRANSFER":      ReasonMarginTransfer,
	"MARGIN_TYPE_CHANGE":   ReasonMarginTypeChange,
	"ASSET_TRANSFER":       ReasonAssetTransfer,
	"OPTIONS_PREMIUM_FEE":  ReasonOptionsPremiumFee,
	"OPTIONS_SETTLE_PROFIT": ReasonOptionsSettleProfit,
	"AUTO_EXCHANGE":        ReasonAutoExchange,
}

// ReasonFromVenueString maps a venue "m" reason string to its numeric code,
// defaulting to ReasonUnknown for anything not in the table.
func ReasonFromVenueString(s string) ReasonCode {
	if code, ok := reasonByVenueString[s]; ok {
		return code
	}
	return ReasonUnknown
}

// BalanceItem is one entry in an AccountUpdate's balances array.
type BalanceItem struct {
	Asset              [maxAssetLen]byte
	AssetLen           uint8
	WalletBalance      float64
	CrossWalletBalance float64
	BalanceChange      float64
}

func (b BalanceItem) AssetString() string { return string(b.Asset[:b.AssetLen]) }

// AccountUpdate is the private balance-change payload for KindAccountUpdate.
type AccountUpdate struct {
	EventTime     int64
	Reason        ReasonCode
	BalancesCount uint8
	Balances      [maxBalances]BalanceItem
}

// Event is the fixed-layout record published on the bus. ArrivalTimeNs is
// stamped by the producing feed at JSON-receipt time for BookTop/Trade;
// it is zero for private events since those are not latency-measured here.
type Event struct {
	Kind          Kind
	ArrivalTimeNs uint64

	BookTop       BookTop
	Trade         Trade
	OrderUpdate   OrderUpdate
	AccountUpdate AccountUpdate
}

// truncate copies src into dst, truncating (never erroring) if src is
// longer than dst, and returns the copied length.
func truncate(dst []byte, src string) uint8 {
	n := len(src)
	if n > len(dst) {
		n = len(dst)
	}
	copy(dst[:n], src[:n])
	return uint8(n)
}

// NewBookTop builds a BookTop Event, truncating the symbol if it overflows
// the fixed buffer.
func NewBookTop(symbol string, bid, ask, bidQty, askQty float64, eventTimeMs int64, arrivalNs uint64) Event {
	var e Event
	e.Kind = KindBookTop
	e.ArrivalTimeNs = arrivalNs
	e.BookTop.SymbolLen = truncate(e.BookTop.Symbol[:], symbol)
	e.BookTop.BidPrice = bid
	e.BookTop.AskPrice = ask
	e.BookTop.BidQty = bidQty
	e.BookTop.AskQty = askQty
	e.BookTop.EventTime = eventTimeMs
	return e
}

// NewTrade builds a Trade Event. qty is already signed by the caller
// (negative for maker-side fills per the venue's taker convention).
func NewTrade(symbol string, price, signedQty float64, eventTimeMs int64, arrivalNs uint64) Event {
	var e Event
	e.Kind = KindTrade
	e.ArrivalTimeNs = arrivalNs
	e.Trade.SymbolLen = truncate(e.Trade.Symbol[:], symbol)
	e.Trade.Price = price
	e.Trade.Qty = signedQty
	e.Trade.EventTime = eventTimeMs
	return e
}

// NewOrderUpdate builds an OrderUpdate Event, truncating symbol/client id.
func NewOrderUpdate(symbol, clientID string, orderID int64, price, qty, accumulatedQty, avgPrice, commission float64, status OrderStatus, side Side, eventTimeMs, tradeTimeMs int64) Event {
	var e Event
	e.Kind = KindOrderUpdate
	e.OrderUpdate.SymbolLen = truncate(e.OrderUpdate.Symbol[:], symbol)
	e.OrderUpdate.ClientIDLen = truncate(e.OrderUpdate.ClientID[:], clientID)
	e.OrderUpdate.OrderID = orderID
	e.OrderUpdate.Price = price
	e.OrderUpdate.Qty = qty
	e.OrderUpdate.AccumulatedQty = accumulatedQty
	e.OrderUpdate.AvgPrice = avgPrice
	e.OrderUpdate.Commission = commission
	e.OrderUpdate.Status = status
	e.OrderUpdate.Side = side
	e.OrderUpdate.EventTime = eventTimeMs
	e.OrderUpdate.TradeTime = tradeTimeMs
	return e
}

// NewAccountUpdate builds an AccountUpdate Event from up to maxBalances
// items; extra items are truncated and BalancesCount reflects the
// truncated length. The caller is responsible for suppressing the event
// entirely when items is empty (see userfeed).
func NewAccountUpdate(eventTimeMs int64, reason ReasonCode, items []BalanceItem) Event {
	var e Event
	e.Kind = KindAccountUpdate
	e.AccountUpdate.EventTime = eventTimeMs
	e.AccountUpdate.Reason = reason
	n := len(items)
	if n > maxBalances {
		n = maxBalances
	}
	copy(e.AccountUpdate.Balances[:n], items[:n])
	e.AccountUpdate.BalancesCount = uint8(n)
	return e
}

// NewBalanceItem builds a BalanceItem, truncating the asset name.
func NewBalanceItem(asset string, wallet, crossWallet, change float64) BalanceItem {
	var b BalanceItem
	b.AssetLen = truncate(b.Asset[:], asset)
	b.WalletBalance = wallet
	b.CrossWalletBalance = crossWallet
	b.BalanceChange = change
	return b
}

// StatusFromVenueString collapses a venue order-status string to its
// single-byte code by taking the first character.
func StatusFromVenueString(s string) OrderStatus {
	if len(s) == 0 {
		return StatusRejected
	}
	return OrderStatus(s[0])
}

// SideFromVenueString maps "BUY"/"SELL" to the single-byte side code.
func SideFromVenueString(s string) Side {
	if len(s) > 0 && s[0] == 'S' {
		return SideSell
	}
	return SideBuy
}
