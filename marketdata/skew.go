package marketdata

import (
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// Side 报价方向。
type Side int

const (
	Bid Side = iota
	Ask
)

func (s Side) String() string {
	if s == Ask {
		return "ask"
	}
	return "bid"
}

// SmilePoint 微笑曲线上的一个 (行权价, 隐含波动率) 点。
type SmilePoint struct {
	Strike float64
	IV     float64
}

// Skew 标的价格变动引起的隐含波动率变化 dIV/dS，分别按两种惯例估计：
// Relative 假设微笑随标的平移（IV 是 K/S 的函数），Strike 假设微笑固定在行权价上。
type Skew struct {
	Relative float64 `json:"relative"`
	Strike   float64 `json:"strike"`
}

// EstimateSkew 对微笑点做线性回归并在 strike 处求 dIV/dS。有效点少于两个或行权价全部相同时返回 false。
func EstimateSkew(points []SmilePoint, spot, strike float64) (Skew, bool) {
	if !(spot > 0) {
		return Skew{}, false
	}
	ks := make([]float64, 0, len(points))
	ms := make([]float64, 0, len(points))
	ivs := make([]float64, 0, len(points))
	for _, p := range points {
		if p.IV <= 0 || p.Strike <= 0 {
			continue
		}
		ks = append(ks, p.Strike)
		ms = append(ms, p.Strike/spot)
		ivs = append(ivs, p.IV)
	}
	if len(ks) < 2 || stat.Variance(ks, nil) == 0 {
		return Skew{}, false
	}

	_, slopeK := stat.LinearRegression(ks, ivs, nil, false)
	_, slopeM := stat.LinearRegression(ms, ivs, nil, false)
	return Skew{
		Relative: -slopeM * strike / (spot * spot),
		Strike:   -slopeK,
	}, true
}

// CombineBidAsk 一侧为 0 时取另一侧，否则取平均。
func CombineBidAsk(bid, ask float64) float64 {
	switch {
	case bid == 0:
		return ask
	case ask == 0:
		return bid
	}
	return (bid + ask) / 2
}

// Combine 按 CombineBidAsk 合并买卖两侧的偏斜。
func Combine(bid, ask Skew) Skew {
	return Skew{
		Relative: CombineBidAsk(bid.Relative, ask.Relative),
		Strike:   CombineBidAsk(bid.Strike, ask.Strike),
	}
}

type surfaceKey struct {
	underlying string
	side       Side
}

// Surface 按标的和报价方向收集同一到期日附近合约的隐含波动率点，行权价相同的点被覆盖。
type Surface struct {
	mu     sync.RWMutex
	points map[surfaceKey]map[float64]float64
}

// NewSurface 创建空的波动率面。
func NewSurface() *Surface {
	return &Surface{points: make(map[surfaceKey]map[float64]float64)}
}

// Update 写入一个点；iv 为 0 表示该侧求解失败，会删除旧点。
func (s *Surface) Update(underlying string, side Side, strike, iv float64) {
	k := surfaceKey{underlying, side}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.points[k]
	if !ok {
		m = make(map[float64]float64)
		s.points[k] = m
	}
	if iv <= 0 {
		delete(m, strike)
		return
	}
	m[strike] = iv
}

// Smile 按行权价升序返回某一侧的微笑点。
func (s *Surface) Smile(underlying string, side Side) []SmilePoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := s.points[surfaceKey{underlying, side}]
	out := make([]SmilePoint, 0, len(m))
	for k, iv := range m {
		out = append(out, SmilePoint{Strike: k, IV: iv})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Strike < out[j].Strike })
	return out
}

// Skew 买卖两侧分别估计后合并；两侧都无法估计时返回零值。
func (s *Surface) Skew(underlying string, spot, strike float64) Skew {
	bid, _ := EstimateSkew(s.Smile(underlying, Bid), spot, strike)
	ask, _ := EstimateSkew(s.Smile(underlying, Ask), spot, strike)
	return Combine(bid, ask)
}
