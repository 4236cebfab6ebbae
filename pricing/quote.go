package pricing

import (
	"time"

	"github.com/wyfcoding/optiongreeks/datetime"
)

// DefaultRiskFreeRate 无风险利率缺省值。
const DefaultRiskFreeRate = 0.0433

// Scalar 可被有限差分扰动的行情标量。
type Scalar int

const (
	Spot Scalar = iota
	Vol
	Rate
)

func (s Scalar) String() string {
	switch s {
	case Spot:
		return "spot"
	case Vol:
		return "vol"
	case Rate:
		return "rate"
	}
	return "unknown"
}

// QuoteState 单个定价引擎独占的可变行情：标的价格、波动率、无风险利率、分红率与估值日。
// 所有 Set 方法在新值与当前值相同时跳过写入，并返回是否发生了变化。
type QuoteState struct {
	spot     float64
	vol      float64
	rate     float64
	dividend float64
	date     time.Time
	expiry   time.Time
}

// NewQuoteState 创建行情状态，估值日会被截断到日并钳制在到期日之前。
func NewQuoteState(asOf, expiry time.Time) *QuoteState {
	q := &QuoteState{rate: DefaultRiskFreeRate, expiry: datetime.DateOnly(expiry)}
	q.SetDate(asOf)
	return q
}

// Quote 行情状态的只读副本。
type Quote struct {
	Spot     float64   `json:"spot"`
	Vol      float64   `json:"vol"`
	Rate     float64   `json:"rate"`
	Dividend float64   `json:"dividend"`
	Date     time.Time `json:"date"`
}

// Snapshot 返回当前行情副本。
func (q *QuoteState) Snapshot() Quote {
	return Quote{Spot: q.spot, Vol: q.vol, Rate: q.rate, Dividend: q.dividend, Date: q.date}
}

func (q *QuoteState) Spot() float64     { return q.spot }
func (q *QuoteState) Vol() float64      { return q.vol }
func (q *QuoteState) Rate() float64     { return q.rate }
func (q *QuoteState) Dividend() float64 { return q.dividend }
func (q *QuoteState) Date() time.Time   { return q.date }
func (q *QuoteState) Expiry() time.Time { return q.expiry }
func (q *QuoteState) Expired() bool     { return !q.date.Before(q.expiry) }
func (q *QuoteState) YearsToExpiry() float64 {
	return datetime.YearFraction(q.date, q.expiry)
}

func (q *QuoteState) SetSpot(v float64) bool {
	if v == q.spot {
		return false
	}
	q.spot = v
	return true
}

// SetVol 负波动率按 0 处理。
func (q *QuoteState) SetVol(v float64) bool {
	if v < 0 {
		v = 0
	}
	if v == q.vol {
		return false
	}
	q.vol = v
	return true
}

func (q *QuoteState) SetRate(v float64) bool {
	if v == q.rate {
		return false
	}
	q.rate = v
	return true
}

func (q *QuoteState) SetDividend(v float64) bool {
	if v == q.dividend {
		return false
	}
	q.dividend = v
	return true
}

// SetDate 估值日截断到日，晚于到期日时钳制为到期日。
func (q *QuoteState) SetDate(d time.Time) bool {
	d = datetime.DateOnly(d)
	if !q.expiry.IsZero() && d.After(q.expiry) {
		d = q.expiry
	}
	if d.Equal(q.date) {
		return false
	}
	q.date = d
	return true
}

func (q *QuoteState) get(s Scalar) float64 {
	switch s {
	case Spot:
		return q.spot
	case Vol:
		return q.vol
	default:
		return q.rate
	}
}

// set 供有限差分使用，不做比较跳过与钳制以外的处理。
func (q *QuoteState) set(s Scalar, v float64) {
	switch s {
	case Spot:
		q.spot = v
	case Vol:
		q.SetVol(v)
	default:
		q.rate = v
	}
}

// floor 标量的下界，扰动越过下界时改用单侧差分。
func (s Scalar) floor() (float64, bool) {
	switch s {
	case Spot:
		return 0, true
	case Vol:
		return 0, true
	}
	return 0, false
}
