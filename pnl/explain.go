package pnl

import (
	"math"
	"time"

	"github.com/wyfcoding/optiongreeks/datetime"
	"github.com/wyfcoding/optiongreeks/logging"
	"github.com/wyfcoding/optiongreeks/xerrors"
)

// State 归因状态机。
type State int

const (
	AwaitingSnapshot State = iota
	Accumulating
	Computed
)

func (s State) String() string {
	switch s {
	case Accumulating:
		return "accumulating"
	case Computed:
		return "computed"
	}
	return "awaiting_snapshot"
}

// Explain 一个持仓的盈亏归因报告。Greek 项均以货币计，使用每对相邻快照中前一个快照的希腊值。
type Explain struct {
	ReportID   string    `json:"report_id"`
	ContractID string    `json:"contract_id"`
	From       time.Time `json:"from"`
	To         time.Time `json:"to"`
	Pairs      int       `json:"pairs"`
	Units      float64   `json:"units"`

	Delta             float64 `json:"delta"`
	Gamma             float64 `json:"gamma"`
	Speed             float64 `json:"speed"`
	Charm             float64 `json:"charm"`
	Color             float64 `json:"color"`
	Theta             float64 `json:"theta"`
	ThetaDecay        float64 `json:"theta_decay"`
	Vega              float64 `json:"vega"`
	Veta              float64 `json:"veta"`
	Vomma             float64 `json:"vomma"`
	Vanna             float64 `json:"vanna"`
	Zomma             float64 `json:"zomma"`
	SkewVannaRelative float64 `json:"skew_vanna_relative"`
	SkewVannaStrike   float64 `json:"skew_vanna_strike"`
	Rho               float64 `json:"rho"`

	Execution float64 `json:"execution"`
	Fee       float64 `json:"fee"`
	Total     float64 `json:"total"`

	Price1Theoretical float64 `json:"price1_theoretical"`
	Price1Deviation   float64 `json:"price1_deviation"`

	// NetHedgePL 与 HedgingError 由 Report 填充；Delta 项恰为 0 时 HedgingError 为 null 且 ZeroDeltaTerm 为 true。
	NetHedgePL    float64  `json:"net_hedge"`
	HedgingError  *float64 `json:"hedging_error_ratio"`
	ZeroDeltaTerm bool     `json:"zero_delta_term"`
}

// GreekTerms 按名称返回全部希腊值归因项。
func (e Explain) GreekTerms() map[string]float64 {
	return map[string]float64{
		"delta":               e.Delta,
		"gamma":               e.Gamma,
		"speed":               e.Speed,
		"charm":               e.Charm,
		"color":               e.Color,
		"theta":               e.Theta,
		"theta_decay":         e.ThetaDecay,
		"vega":                e.Vega,
		"veta":                e.Veta,
		"vomma":               e.Vomma,
		"vanna":               e.Vanna,
		"zomma":               e.Zomma,
		"skew_vanna_relative": e.SkewVannaRelative,
		"skew_vanna_strike":   e.SkewVannaStrike,
		"rho":                 e.Rho,
	}
}

// NetHedge Delta 完全对冲后的盈亏。
func (e Explain) NetHedge() float64 {
	return e.Total - e.Delta
}

// HedgingErrorRatio total / delta − 1；Delta 项恰为 0 时返回 ErrZeroDeltaTerm。
func (e Explain) HedgingErrorRatio() (float64, error) {
	if e.Delta == 0 {
		return 0, xerrors.ErrZeroDeltaTerm.WithContext("contract", e.ContractID)
	}
	return e.Total/e.Delta - 1, nil
}

// ExplainOption 归因选项。
type ExplainOption func(*Explainer)

// WithPremiumOnExpiry 到期时收取或支付的权利金计入 Theta 项。
func WithPremiumOnExpiry(v float64) ExplainOption {
	return func(x *Explainer) { x.premiumOnExpiry = v }
}

// WithLogger 设置记录非有限归因项的日志器。
func WithLogger(l *logging.Logger) ExplainOption {
	return func(x *Explainer) { x.logger = l }
}

// WithReportID 设置报告编号。
func WithReportID(id string) ExplainOption {
	return func(x *Explainer) { x.report.ReportID = id }
}

// Explainer 逐个消费快照并累加归因项。数量 Q 在构造时固定，期间的持仓变动不会被建模。
type Explainer struct {
	state           State
	pos             *Position
	q               float64
	prev            Snapshot
	first           Snapshot
	last            Snapshot
	unitSum         float64
	premiumOnExpiry float64
	report          Explain
	logger          *logging.Logger
}

// NewExplainer 从持仓的开仓成交取成交质量盈亏与手续费。
func NewExplainer(p *Position, opts ...ExplainOption) *Explainer {
	x := &Explainer{pos: p, q: p.Units()}
	x.report.ContractID = p.ContractID
	x.report.Units = x.q
	x.report.From, x.report.To = p.Window()
	x.report.Execution, _ = p.Open.ExecutionPnL().Float64()
	x.report.Fee, _ = p.Open.Fee.Float64()
	for _, opt := range opts {
		opt(x)
	}
	if x.logger == nil {
		x.logger = logging.Default()
	}
	return x
}

// State 返回当前状态。
func (x *Explainer) State() State { return x.state }

// Update 消费一个快照。区间外的快照被忽略；时间不递增返回 ErrSnapshotOrder；报告生成后不再接受快照。
func (x *Explainer) Update(s Snapshot) error {
	from, to := x.pos.Window()
	if s.Time.Before(from) || (!to.IsZero() && s.Time.After(to)) {
		return nil
	}
	switch x.state {
	case Computed:
		return xerrors.ErrInvalidInput.WithDetail("attribution for %s already computed", x.pos.ContractID)
	case AwaitingSnapshot:
		x.first, x.prev, x.last = s, s, s
		x.state = Accumulating
		return nil
	}
	if !s.Time.After(x.prev.Time) {
		return xerrors.ErrSnapshotOrder.WithContext("snap_id", s.SnapID())
	}
	x.accumulate(x.prev, s)
	x.prev, x.last = s, s
	return nil
}

// accumulate 左端点泰勒展开：所有项使用 s0 的希腊值。
func (x *Explainer) accumulate(s0, s1 Snapshot) {
	g := s0.Greeks
	q := x.q
	r := &x.report

	dS := s1.UnderlyingMid() - s0.UnderlyingMid()
	dT := datetime.YearFraction(s0.Time, s1.Time)
	dIV := 0.0
	if iv0, iv1 := s0.IVMid(), s1.IVMid(); iv0 != 0 && iv1 != 0 {
		dIV = iv1 - iv0
	}
	dR := 0.0
	dSkewRel := s1.Skew.Relative - s0.Skew.Relative
	dSkewStrike := s1.Skew.Strike - s0.Skew.Strike
	dS2 := dS * dS

	terms := [...]struct {
		name string
		dst  *float64
		v    float64
	}{
		{"delta", &r.Delta, g.Delta * dS},
		{"gamma", &r.Gamma, 0.5 * g.Gamma * dS2},
		{"speed", &r.Speed, g.Speed * dS2 * dS / 6},
		{"charm", &r.Charm, g.Charm * dS * dT},
		{"color", &r.Color, 0.5 * g.Color * dT * dS2},
		{"theta", &r.Theta, g.Theta * dT},
		{"theta_decay", &r.ThetaDecay, 0.5 * g.ThetaDecay * dT * dT},
		{"vega", &r.Vega, g.Vega * dIV},
		{"veta", &r.Veta, g.Veta * dIV * dT},
		{"vomma", &r.Vomma, 0.5 * g.Vomma * dIV * dIV},
		{"vanna", &r.Vanna, g.Vanna * dIV * dS},
		{"zomma", &r.Zomma, 0.5 * g.Zomma * dIV * dS2},
		{"skew_vanna_relative", &r.SkewVannaRelative, g.Vega * dSkewRel * dS},
		{"skew_vanna_strike", &r.SkewVannaStrike, g.Vega * dSkewStrike * dS},
	}
	for _, t := range terms {
		if math.IsNaN(t.v) || math.IsInf(t.v, 0) {
			x.logger.Warn("non-finite attribution term replaced with 0", "contract", x.pos.ContractID, "term", t.name, "snap_id", s1.SnapID(), "value", t.v)
			continue
		}
		*t.dst += q * t.v
		x.unitSum += t.v
	}
	// dR 恒为 0，每次重新计算而不累加
	r.Rho = q * g.Rho * dR
	r.Pairs++
}

// Report 汇总并返回报告，状态转为 Computed。
func (x *Explainer) Report() Explain {
	if x.state == Computed {
		return x.report
	}
	r := &x.report
	r.Theta += x.premiumOnExpiry

	total := r.Execution + r.Fee
	for _, v := range r.GreekTerms() {
		total += v
	}
	r.Total = total
	r.NetHedgePL = r.NetHedge()
	if ratio, err := r.HedgingErrorRatio(); err == nil {
		r.HedgingError = &ratio
	} else {
		r.ZeroDeltaTerm = true
	}

	if x.state == Accumulating {
		r.Price1Theoretical = x.first.Mid() + x.unitSum
		if mid := x.last.Mid(); mid != 0 {
			r.Price1Deviation = r.Price1Theoretical / mid
		}
		if r.To.IsZero() {
			r.To = x.last.Time
		}
	}
	x.state = Computed
	return x.report
}

// Attribute 对持仓区间内的快照历史做一次完整归因。
func Attribute(p *Position, snaps []Snapshot, opts ...ExplainOption) (Explain, error) {
	x := NewExplainer(p, opts...)
	for _, s := range snaps {
		if err := x.Update(s); err != nil {
			return Explain{}, err
		}
	}
	return x.Report(), nil
}

// AttributeHistory 从历史中取持仓区间内的快照做归因。
func AttributeHistory(p *Position, h *History, opts ...ExplainOption) (Explain, error) {
	from, to := p.Window()
	return Attribute(p, h.Between(from, to), opts...)
}
