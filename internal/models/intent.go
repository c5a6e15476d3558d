package models

// TradingIntent is the classified action category extracted from a
// free-text trade instruction. Immutable once produced by the parser.
type TradingIntent string

const (
	IntentMarketBuy     TradingIntent = "MARKET_BUY"
	IntentMarketSell    TradingIntent = "MARKET_SELL"
	IntentLimitBuy      TradingIntent = "LIMIT_BUY"
	IntentLimitSell     TradingIntent = "LIMIT_SELL"
	IntentAnalyze       TradingIntent = "ANALYZE"
	IntentSetStopLoss   TradingIntent = "SET_STOP_LOSS"
	IntentSetTakeProfit TradingIntent = "SET_TAKE_PROFIT"
)

// IsActionable reports whether the intent maps to an order that can be
// dispatched. ANALYZE and the risk-setting intents never dispatch orders.
func (i TradingIntent) IsActionable() bool {
	switch i {
	case IntentMarketBuy, IntentMarketSell, IntentLimitBuy, IntentLimitSell:
		return true
	}
	return false
}

// Side returns "BUY" or "SELL" for actionable intents, empty otherwise.
func (i TradingIntent) Side() string {
	switch i {
	case IntentMarketBuy, IntentLimitBuy:
		return "BUY"
	case IntentMarketSell, IntentLimitSell:
		return "SELL"
	}
	return ""
}

// TradeParameters are the parsed or user-supplied parameters of a trade.
// Optional fields are pointers so "absent" and "zero" stay distinguishable.
type TradeParameters struct {
	Asset      string   `json:"asset,omitempty"`
	Amount     *float64 `json:"amount,omitempty"`
	Price      *float64 `json:"price,omitempty"`
	StopLoss   *float64 `json:"stop_loss,omitempty"`
	TakeProfit *float64 `json:"take_profit,omitempty"`
	Slippage   *float64 `json:"slippage,omitempty"`
	Timeframe  string   `json:"timeframe,omitempty"`
	Strategy   string   `json:"strategy,omitempty"`
}
