package pricing

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/wyfcoding/optiongreeks/xerrors"
)

// BlackScholes 欧式期权的 Black-Scholes-Merton 解析模型，原生支持 Delta、Gamma 与 Vega。
type BlackScholes struct {
	norm distuv.Normal
}

// NewBlackScholes 创建解析模型。
func NewBlackScholes() *BlackScholes {
	return &BlackScholes{norm: distuv.UnitNormal}
}

func (m *BlackScholes) Name() string { return KindAnalytic.String() }

// d1d2 要求 Spot > 0, Vol > 0, T > 0。
func (m *BlackScholes) d1d2(in Inputs) (d1, d2 float64) {
	sqrtT := math.Sqrt(in.T)
	d1 = (math.Log(in.Spot/in.Strike) + (in.Rate-in.Dividend+0.5*in.Vol*in.Vol)*in.T) / (in.Vol * sqrtT)
	return d1, d1 - in.Vol*sqrtT
}

// degenerate 零波动或到期时按远期内在价值定价。
func degenerate(in Inputs) bool {
	return in.T <= 0 || in.Vol <= 0
}

// Value 计算理论价格。
func (m *BlackScholes) Value(in Inputs) (float64, error) {
	if !(in.Spot > 0) || !(in.Strike > 0) {
		return 0, xerrors.ErrModelEvaluation.WithDetail("spot %v and strike %v must be positive", in.Spot, in.Strike)
	}
	if in.T <= 0 {
		return payoff(in.Right, in.Spot, in.Strike), nil
	}
	qd := discount(in.Dividend, in.T)
	rd := discount(in.Rate, in.T)
	if in.Vol <= 0 {
		return payoff(in.Right, in.Spot*qd, in.Strike*rd), nil
	}

	d1, d2 := m.d1d2(in)
	if in.Right == Call {
		return in.Spot*qd*m.norm.CDF(d1) - in.Strike*rd*m.norm.CDF(d2), nil
	}
	return in.Strike*rd*m.norm.CDF(-d2) - in.Spot*qd*m.norm.CDF(-d1), nil
}

// Delta 原生 Delta；退化输入时返回远期是否价内的阶跃值。
func (m *BlackScholes) Delta(in Inputs) (float64, bool) {
	if !(in.Spot > 0) || !(in.Strike > 0) {
		return 0, false
	}
	qd := discount(in.Dividend, in.T)
	if degenerate(in) {
		fwd := in.Spot * qd
		strike := in.Strike * discount(in.Rate, math.Max(in.T, 0))
		switch {
		case in.Right == Call && fwd > strike:
			return qd, true
		case in.Right == Put && fwd < strike:
			return -qd, true
		}
		return 0, true
	}
	d1, _ := m.d1d2(in)
	if in.Right == Call {
		return qd * m.norm.CDF(d1), true
	}
	return qd * (m.norm.CDF(d1) - 1), true
}

// Gamma 原生 Gamma，退化输入时为 0。
func (m *BlackScholes) Gamma(in Inputs) (float64, bool) {
	if !(in.Spot > 0) || !(in.Strike > 0) {
		return 0, false
	}
	if degenerate(in) {
		return 0, true
	}
	d1, _ := m.d1d2(in)
	return discount(in.Dividend, in.T) * m.norm.Prob(d1) / (in.Spot * in.Vol * math.Sqrt(in.T)), true
}

// Vega 每单位波动率的价格敏感度（非每 1%）。
func (m *BlackScholes) Vega(in Inputs) float64 {
	if !(in.Spot > 0) || !(in.Strike > 0) || degenerate(in) {
		return 0
	}
	d1, _ := m.d1d2(in)
	return in.Spot * discount(in.Dividend, in.T) * m.norm.Prob(d1) * math.Sqrt(in.T)
}

// Bounds 欧式价格的无套利上下界。
func (m *BlackScholes) Bounds(in Inputs) (lo, hi float64) {
	qd := discount(in.Dividend, math.Max(in.T, 0))
	rd := discount(in.Rate, math.Max(in.T, 0))
	if in.Right == Call {
		return math.Max(in.Spot*qd-in.Strike*rd, 0), in.Spot * qd
	}
	return math.Max(in.Strike*rd-in.Spot*qd, 0), in.Strike * rd
}
