package userfeed

import (
	"encoding/json"
	"strconv"

	"tradehost/internal/event"
)

// envelope is just enough of the private stream's outer shape to
// dispatch on the event kind, grounded on original_source's parse_message.
type envelope struct {
	EventType string `json:"e"`
}

type orderTradeUpdate struct {
	Order struct {
		Symbol        string `json:"s"`
		ClientOrderID string `json:"c"`
		Side          string `json:"S"`
		OrderStatus   string `json:"X"`
		OrderID       int64  `json:"i"`
		OrigQty       string `json:"q"`
		Price         string `json:"p"`
		AvgPrice      string `json:"ap"`
		FilledQty     string `json:"z"`
		Commission    string `json:"n"`
		TradeTime     int64  `json:"T"`
	} `json:"o"`
	EventTime int64 `json:"E"`
}

type balanceWire struct {
	Asset         string `json:"a"`
	WalletBalance string `json:"wb"`
	CrossBalance  string `json:"cw"`
	BalanceChange string `json:"bc"`
}

type accountUpdateWire struct {
	Account struct {
		Reason   string        `json:"m"`
		Balances []balanceWire `json:"B"`
	} `json:"a"`
	EventTime int64 `json:"E"`
}

// parseMessage classifies a private-stream frame and returns the Event to
// publish, or ok=false if the frame should be dropped (unknown kind, or a
// classified kind that this codebase deliberately suppresses).
func parseMessage(data []byte) (event.Event, bool) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return event.Event{}, false
	}

	switch env.EventType {
	case "ORDER_TRADE_UPDATE":
		return parseOrderTradeUpdate(data)
	case "ACCOUNT_UPDATE":
		return parseAccountUpdate(data)
	case "MARGIN_CALL":
		// Never published: doing so would require a fifth Event
		// discriminator, breaking the strict four-variant union the
		// plugin ABI and testable properties depend on. The caller
		// extracts and logs position detail via parseMarginCall instead.
		return event.Event{}, false
	default:
		return event.Event{}, false
	}
}

func parseOrderTradeUpdate(data []byte) (event.Event, bool) {
	var w orderTradeUpdate
	if err := json.Unmarshal(data, &w); err != nil {
		return event.Event{}, false
	}
	o := w.Order
	e := event.NewOrderUpdate(
		o.Symbol,
		o.ClientOrderID,
		o.OrderID,
		parseFloat(o.Price),
		parseFloat(o.OrigQty),
		parseFloat(o.FilledQty),
		parseFloat(o.AvgPrice),
		parseFloat(o.Commission),
		event.StatusFromVenueString(o.OrderStatus),
		event.SideFromVenueString(o.Side),
		w.EventTime,
		o.TradeTime,
	)
	return e, true
}

func parseAccountUpdate(data []byte) (event.Event, bool) {
	var w accountUpdateWire
	if err := json.Unmarshal(data, &w); err != nil {
		return event.Event{}, false
	}
	if len(w.Account.Balances) == 0 {
		// Empty balances array suppresses the event entirely.
		return event.Event{}, false
	}

	items := make([]event.BalanceItem, 0, len(w.Account.Balances))
	for _, b := range w.Account.Balances {
		items = append(items, event.NewBalanceItem(b.Asset, parseFloat(b.WalletBalance), parseFloat(b.CrossBalance), parseFloat(b.BalanceChange)))
	}

	e := event.NewAccountUpdate(w.EventTime, event.ReasonFromVenueString(w.Account.Reason), items)
	return e, true
}

type marginCallPositionWire struct {
	Symbol            string `json:"s"`
	PositionSide      string `json:"ps"`
	PositionAmount    string `json:"pa"`
	MarginType        string `json:"mt"`
	MarkPrice         string `json:"mp"`
	UnrealizedPnL     string `json:"up"`
	MaintenanceMargin string `json:"mm"`
}

type marginCallWire struct {
	EventTime          int64                    `json:"E"`
	CrossWalletBalance string                   `json:"cw"`
	Positions          []marginCallPositionWire `json:"p"`
}

// MarginCallPosition is one position's detail inside a MARGIN_CALL frame,
// extracted for diagnostic logging only; it never crosses the plugin
// boundary as an Event (see parseMessage).
type MarginCallPosition struct {
	Symbol            string
	PositionSide      string
	PositionAmount    float64
	MarginType        string
	MarkPrice         float64
	UnrealizedPnL     float64
	MaintenanceMargin float64
}

// MarginCallDetail is the position-level detail of a MARGIN_CALL frame,
// grounded on original_source/src/user_data/parser.rs's parse_margin_call.
type MarginCallDetail struct {
	EventTime          int64
	CrossWalletBalance float64
	Positions          []MarginCallPosition
}

// parseMarginCall extracts position detail from a MARGIN_CALL frame for
// diagnostic logging. It returns ok=false for any other frame kind.
func parseMarginCall(data []byte) (MarginCallDetail, bool) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil || env.EventType != "MARGIN_CALL" {
		return MarginCallDetail{}, false
	}

	var w marginCallWire
	if err := json.Unmarshal(data, &w); err != nil {
		return MarginCallDetail{}, false
	}

	positions := make([]MarginCallPosition, 0, len(w.Positions))
	for _, p := range w.Positions {
		positions = append(positions, MarginCallPosition{
			Symbol:            p.Symbol,
			PositionSide:      p.PositionSide,
			PositionAmount:    parseFloat(p.PositionAmount),
			MarginType:        p.MarginType,
			MarkPrice:         parseFloat(p.MarkPrice),
			UnrealizedPnL:     parseFloat(p.UnrealizedPnL),
			MaintenanceMargin: parseFloat(p.MaintenanceMargin),
		})
	}

	return MarginCallDetail{
		EventTime:          w.EventTime,
		CrossWalletBalance: parseFloat(w.CrossWalletBalance),
		Positions:          positions,
	}, true
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
