package domain

// Direction of a trade idea.
type Direction string

const (
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// Strategy buckets. The bucket decides the entry order type: swing entries
// use patient limit orders (GTC), day-trade entries use market orders (DAY).
const (
	BucketSwing   = "SWING"
	BucketDay     = "DAY"
	BucketOptions = "OPTIONS"
	BucketSeeded  = "SEEDED" // journal rows recovered from broker state
)

// TradePlan is the price geometry of a candidate: where to get in, where to
// bail, where to take profit, and how much of the account to risk doing it.
type TradePlan struct {
	Entry       float64 `json:"entry"`
	StopLoss    float64 `json:"stop_loss"`
	TakeProfit  float64 `json:"take_profit"`
	RiskPercent float64 `json:"risk_percent"`
	IsCoreTrade bool    `json:"is_core_trade"`
}

// CondorLegs names the four option contracts of an iron condor.
// The long legs (wings) are protective, the short legs (body) earn the credit.
type CondorLegs struct {
	LongPut   string `json:"long_put"`
	ShortPut  string `json:"short_put"`
	ShortCall string `json:"short_call"`
	LongCall  string `json:"long_call"`
}

// Symbols returns the four leg symbols in a fixed order.
func (l CondorLegs) Symbols() []string {
	return []string{l.LongPut, l.ShortPut, l.ShortCall, l.LongCall}
}

// Candidate is a scored trade idea produced by the scanning subsystem.
// Immutable once received; this engine never generates or scores them.
type Candidate struct {
	SignalID   string      `json:"signal_id"`
	Symbol     string      `json:"symbol"`
	Bucket     string      `json:"bucket"`
	SetupName  string      `json:"setup_name"`
	Direction  Direction   `json:"direction"`
	Score      float64     `json:"score"`
	TradePlan  TradePlan   `json:"trade_plan"`
	CondorLegs *CondorLegs `json:"condor_legs,omitempty"`
}

// Signal is an inbound execution instruction (webhook payload).
type Signal struct {
	AuthToken string    `json:"auth_token"`
	SignalID  string    `json:"signal_id"`
	Candidate Candidate `json:"candidate"`
}
