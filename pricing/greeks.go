package pricing

import (
	"time"

	"github.com/wyfcoding/optiongreeks/datetime"
)

// GreeksSet 一次引擎调用原子产生的希腊值集合，构造后不再修改。
// 波动率相关值按每单位波动率计，时间相关值按每年计。
type GreeksSet struct {
	ContractID       string    `json:"contract_id"`
	AsOf             time.Time `json:"as_of"`
	Spot             float64   `json:"spot"`
	HV               float64   `json:"hv"`
	TheoreticalPrice float64   `json:"theoretical_price"`

	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Speed float64 `json:"speed"` // d3V/dS3

	Vega  float64 `json:"vega"`
	Vomma float64 `json:"vomma"` // d2V/dIV2
	Vanna float64 `json:"vanna"` // d2V/dS dIV
	Zomma float64 `json:"zomma"` // d3V/dS2 dIV

	Theta      float64 `json:"theta"`
	ThetaDecay float64 `json:"theta_decay"` // d2V/dT2
	Charm      float64 `json:"charm"`       // d2V/dS dT
	Color      float64 `json:"color"`       // d3V/dS2 dT
	Veta       float64 `json:"veta"`        // d2V/dIV dT

	Rho float64 `json:"rho"`
}

// Get 按希腊值枚举读取字段。
func (g GreeksSet) Get(k Greek) float64 {
	switch k {
	case GreekDelta:
		return g.Delta
	case GreekGamma:
		return g.Gamma
	case GreekSpeed:
		return g.Speed
	case GreekVega:
		return g.Vega
	case GreekVomma:
		return g.Vomma
	case GreekVanna:
		return g.Vanna
	case GreekZomma:
		return g.Zomma
	case GreekTheta:
		return g.Theta
	case GreekThetaDecay:
		return g.ThetaDecay
	case GreekCharm:
		return g.Charm
	case GreekColor:
		return g.Color
	case GreekVeta:
		return g.Veta
	case GreekRho:
		return g.Rho
	}
	return 0
}

func (g *GreeksSet) set(k Greek, v float64) {
	switch k {
	case GreekDelta:
		g.Delta = v
	case GreekGamma:
		g.Gamma = v
	case GreekSpeed:
		g.Speed = v
	case GreekVega:
		g.Vega = v
	case GreekVomma:
		g.Vomma = v
	case GreekVanna:
		g.Vanna = v
	case GreekZomma:
		g.Zomma = v
	case GreekTheta:
		g.Theta = v
	case GreekThetaDecay:
		g.ThetaDecay = v
	case GreekCharm:
		g.Charm = v
	case GreekColor:
		g.Color = v
	case GreekVeta:
		g.Veta = v
	case GreekRho:
		g.Rho = v
	}
}

// ThetaPerDay 每自然日的 Theta。
func (g GreeksSet) ThetaPerDay() float64 {
	return g.Theta / datetime.DaysPerYear
}

// VegaPerPoint 波动率变动 1 个百分点对应的价格变化。
func (g GreeksSet) VegaPerPoint() float64 {
	return g.Vega / 100
}
