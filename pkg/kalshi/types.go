package kalshi

import "time"

// Side is the contract side of an order.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// OrderAction is the direction of an order.
type OrderAction string

const (
	ActionBuy  OrderAction = "buy"
	ActionSell OrderAction = "sell"
)

// Market is a Kalshi binary market. Prices are integer cents, 1-99.
type Market struct {
	Ticker         string    `json:"ticker"`
	EventTicker    string    `json:"event_ticker"`
	Title          string    `json:"title"`
	Subtitle       string    `json:"subtitle"`
	Category       string    `json:"category"`
	Status         string    `json:"status"`
	YesBid         int64     `json:"yes_bid"`
	YesAsk         int64     `json:"yes_ask"`
	NoBid          int64     `json:"no_bid"`
	NoAsk          int64     `json:"no_ask"`
	LastPrice      int64     `json:"last_price"`
	Volume         int64     `json:"volume"`
	OpenInterest   int64     `json:"open_interest"`
	Liquidity      int64     `json:"liquidity"`
	CloseTime      time.Time `json:"close_time"`
	ExpirationTime time.Time `json:"expiration_time"`
	Result         string    `json:"result"`
}

// PriceLevel is one level of an orderbook side: [price_cents, contracts].
type PriceLevel [2]int64

// Price returns the level price in cents.
func (l PriceLevel) Price() int64 { return l[0] }

// Size returns the number of resting contracts at the level.
func (l PriceLevel) Size() int64 { return l[1] }

// Orderbook is the resting liquidity for a market. Kalshi reports both
// sides as bids: a NO bid at price p is equivalent to a YES ask at 100-p.
type Orderbook struct {
	Ticker    string       `json:"-"`
	Yes       []PriceLevel `json:"yes"`
	No        []PriceLevel `json:"no"`
	Timestamp time.Time    `json:"-"`
}

// BestYesBid returns the highest YES bid in cents, or 0 if none.
func (ob *Orderbook) BestYesBid() int64 {
	var best int64
	for _, l := range ob.Yes {
		if l.Price() > best {
			best = l.Price()
		}
	}
	return best
}

// BestYesAsk returns the lowest YES ask in cents, derived from NO bids,
// or 0 if there is no resting NO liquidity.
func (ob *Orderbook) BestYesAsk() int64 {
	var bestNo int64
	for _, l := range ob.No {
		if l.Price() > bestNo {
			bestNo = l.Price()
		}
	}
	if bestNo == 0 {
		return 0
	}
	return 100 - bestNo
}

// MidYes returns the YES midpoint in cents, or 0 if either side is empty.
func (ob *Orderbook) MidYes() float64 {
	bid, ask := ob.BestYesBid(), ob.BestYesAsk()
	if bid == 0 || ask == 0 {
		return 0
	}
	return float64(bid+ask) / 2
}

// OrderRequest is the payload for placing an order.
type OrderRequest struct {
	Ticker      string      `json:"ticker"`
	Side        Side        `json:"side"`
	Action      OrderAction `json:"action"`
	Type        string      `json:"type"`
	Count       int64       `json:"count"`
	YesPrice    int64       `json:"yes_price,omitempty"`
	NoPrice     int64       `json:"no_price,omitempty"`
	TimeInForce string      `json:"time_in_force,omitempty"`
	ClientOrder string      `json:"client_order_id,omitempty"`
}

// Order is an order as reported by the exchange.
type Order struct {
	OrderID     string      `json:"order_id"`
	ClientOrder string      `json:"client_order_id"`
	Ticker      string      `json:"ticker"`
	Side        Side        `json:"side"`
	Action      OrderAction `json:"action"`
	Type        string      `json:"type"`
	Status      string      `json:"status"`
	YesPrice    int64       `json:"yes_price"`
	NoPrice     int64       `json:"no_price"`
	Count       int64       `json:"count"`
	FilledCount int64       `json:"filled_count"`
	CreatedTime time.Time   `json:"created_time"`
}

// Position is a portfolio position in one market.
type Position struct {
	Ticker         string `json:"ticker"`
	Contracts      int64  `json:"position"` // positive = long YES, negative = long NO
	MarketExposure int64  `json:"market_exposure"`
	RealizedPnL    int64  `json:"realized_pnl"`
	TotalTraded    int64  `json:"total_traded"`
	RestingOrders  int64  `json:"resting_orders_count"`
}

// Balance is the account balance in cents.
type Balance struct {
	Cents int64 `json:"balance"`
}

// MarketsFilter narrows a market listing.
type MarketsFilter struct {
	EventTicker  string
	SeriesTicker string
	Status       string
	Category     string
	Tickers      string
	Limit        int
	Cursor       string
}
