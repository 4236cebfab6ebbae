package pnl

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/optiongreeks/pricing"
	"github.com/wyfcoding/optiongreeks/xerrors"
)

// BP 一个基点。
var BP = decimal.New(1, -4)

// Position 单个合约上的持仓。归因区间从开仓成交到平仓成交（未平仓时到最新快照）。
// Quantity 为当前净持仓；平仓后保留平仓前的净持仓，用于归因。
type Position struct {
	ContractID string  `json:"contract_id"`
	Underlying string  `json:"underlying"`
	Multiplier int     `json:"multiplier"`
	Quantity   int64   `json:"quantity"`
	Open       Trade   `json:"open"`
	Close      *Trade  `json:"close,omitempty"`
	Trades     []Trade `json:"trades,omitempty"`
}

// NewPosition 以开仓成交建立持仓。
func NewPosition(underlying string, open Trade) (*Position, error) {
	if err := open.Validate(); err != nil {
		return nil, err
	}
	return &Position{
		ContractID: open.ContractID,
		Underlying: underlying,
		Multiplier: open.Multiplier,
		Quantity:   open.SignedQuantity(),
		Open:       open,
		Trades:     []Trade{open},
	}, nil
}

// Apply 追加一笔成交。净持仓归零时记为平仓，之后的成交被拒绝。
func (p *Position) Apply(t Trade) error {
	if err := t.Validate(); err != nil {
		return err
	}
	switch {
	case t.ContractID != p.ContractID:
		return xerrors.ErrInvalidInput.WithDetail("trade for %s applied to position %s", t.ContractID, p.ContractID)
	case p.Closed():
		return xerrors.ErrInvalidInput.WithDetail("position %s is closed", p.ContractID)
	case t.Time.Before(p.Trades[len(p.Trades)-1].Time):
		return xerrors.ErrInvalidInput.WithDetail("trade at %v precedes the last fill", t.Time)
	}
	p.Trades = append(p.Trades, t)
	net := p.Quantity + t.SignedQuantity()
	if net == 0 {
		closing := t
		p.Close = &closing
		return nil
	}
	p.Quantity = net
	return nil
}

func (p *Position) clone() *Position {
	c := *p
	c.Trades = slices.Clone(p.Trades)
	if p.Close != nil {
		closing := *p.Close
		c.Close = &closing
	}
	return &c
}

// Closed 是否已平仓。
func (p *Position) Closed() bool { return p.Close != nil }

// Window 归因区间；未平仓时 to 为零值，表示截至最新快照。
func (p *Position) Window() (from, to time.Time) {
	from = p.Open.Time
	if p.Close != nil {
		to = p.Close.Time
	}
	return from, to
}

// Units 持仓数量 × 合约乘数。
func (p *Position) Units() float64 {
	return float64(p.Quantity * int64(p.Multiplier))
}

// Risk 以货币计的持仓风险指标。
type Risk struct {
	DeltaTotal    decimal.Decimal `json:"delta_total"`
	GammaTotal    decimal.Decimal `json:"gamma_total"`
	ThetaTotal    decimal.Decimal `json:"theta_total"` // 每自然日
	VegaTotal     decimal.Decimal `json:"vega_total"`
	TaylorTerm    decimal.Decimal `json:"taylor_term"`
	Delta100BpUSD decimal.Decimal `json:"delta_100bp_usd"`
	Gamma100BpUSD decimal.Decimal `json:"gamma_100bp_usd"`
}

// Risk 按希腊值与标的中间价计算风险指标。
// TaylorTerm = 乘数 × 数量 × 标的中间价，Delta100BpUSD 为标的变动 1% 时的 Delta 盈亏，
// Gamma100BpUSD = ½ × TaylorTerm² × Gamma × (100BP)²。
func (p *Position) Risk(g pricing.GreeksSet, underlyingMid float64) Risk {
	units := decimal.NewFromInt(p.Quantity * int64(p.Multiplier))
	taylor := units.Mul(decimal.NewFromFloat(underlyingMid))
	hundredBP := BP.Mul(decimal.NewFromInt(100))

	tf, _ := taylor.Float64()
	hb, _ := hundredBP.Float64()
	return Risk{
		DeltaTotal:    decimal.NewFromFloat(g.Delta).Mul(units),
		GammaTotal:    decimal.NewFromFloat(g.Gamma).Mul(units),
		ThetaTotal:    decimal.NewFromFloat(g.ThetaPerDay()).Mul(units),
		VegaTotal:     decimal.NewFromFloat(g.Vega).Mul(units),
		TaylorTerm:    taylor,
		Delta100BpUSD: decimal.NewFromFloat(g.Delta).Mul(taylor).Mul(hundredBP),
		Gamma100BpUSD: decimal.NewFromFloat(0.5 * tf * tf * g.Gamma * hb * hb),
	}
}
