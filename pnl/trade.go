// Package pnl 维护持仓、成交与持仓快照历史，并把已实现盈亏按泰勒展开归因到各个希腊值。
package pnl

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/optiongreeks/pricing"
	"github.com/wyfcoding/optiongreeks/xerrors"
)

// Direction 成交方向。
type Direction int

const (
	Buy  Direction = 1
	Sell Direction = -1
)

func (d Direction) String() string {
	if d == Sell {
		return "sell"
	}
	return "buy"
}

// ParseDirection 解析 buy / sell。
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "b":
		return Buy, nil
	case "sell", "s":
		return Sell, nil
	}
	return 0, xerrors.ErrInvalidInput.WithDetail("unknown direction %q", s)
}

func (d Direction) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

func (d *Direction) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseDirection(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Trade 一笔成交。Quantity 为不带符号的合约张数，方向由 Direction 给出；
// Fee 为带符号的盈亏金额，支付的佣金为负数。
type Trade struct {
	ID         string          `json:"id"`
	ContractID string          `json:"contract_id"`
	Direction  Direction       `json:"direction"`
	Quantity   int64           `json:"quantity"`
	Multiplier int             `json:"multiplier"`
	FillPrice  decimal.Decimal `json:"fill_price"`
	Bid        decimal.Decimal `json:"bid"`
	Ask        decimal.Decimal `json:"ask"`
	Fee        decimal.Decimal `json:"fee"`
	Time       time.Time       `json:"time"`
}

// Validate 校验成交并补齐默认乘数。
func (t *Trade) Validate() error {
	switch {
	case t.ContractID == "":
		return xerrors.ErrInvalidInput.WithDetail("trade contract id is empty")
	case t.Direction != Buy && t.Direction != Sell:
		return xerrors.ErrInvalidInput.WithDetail("trade direction %d is unknown", t.Direction)
	case t.Quantity <= 0:
		return xerrors.ErrInvalidInput.WithDetail("trade quantity %d must be positive", t.Quantity)
	case t.Time.IsZero():
		return xerrors.ErrInvalidInput.WithDetail("trade time is missing")
	}
	if t.Multiplier <= 0 {
		t.Multiplier = pricing.DefaultMultiplier
	}
	return nil
}

// SignedQuantity 买为正，卖为负。
func (t Trade) SignedQuantity() int64 {
	return int64(t.Direction) * t.Quantity
}

// Mid 成交时的中间价。
func (t Trade) Mid() decimal.Decimal {
	return t.Bid.Add(t.Ask).Div(decimal.NewFromInt(2))
}

// ExecutionPnL 成交质量盈亏 |成交数量 × 乘数| × (成交价 − 成交时中间价)。
func (t Trade) ExecutionPnL() decimal.Decimal {
	units := decimal.NewFromInt(t.Quantity * int64(t.Multiplier)).Abs()
	return units.Mul(t.FillPrice.Sub(t.Mid()))
}
