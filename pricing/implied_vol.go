package pricing

import (
	"context"
	"math"

	"github.com/wyfcoding/optiongreeks/xerrors"
)

const (
	// DefaultIVAccuracy 隐含波动率求解的默认精度。
	DefaultIVAccuracy = 1e-4
	// DefaultNewtonIterations Newton-Raphson 最大迭代次数。
	DefaultNewtonIterations = 200

	minIV     = 1e-4
	maxIV     = 4.0
	initialIV = 0.3
	// IVFloor 买卖价隐含波动率的下限。
	IVFloor = 0.01
)

// SolveIV 在 [1e-4, 4] 区间内用带区间保护的 Newton 法反解欧式解析价格对应的波动率。
// Newton 步越出当前区间或 Vega 过小时退化为二分。
// 价格违反无套利边界或落在可达价格区间之外时返回 ErrInvalidInput，未在 maxIter 内收敛返回 ErrMathConvergence。
func SolveIV(m *BlackScholes, in Inputs, target, accuracy float64, maxIter int) (float64, error) {
	if in.T <= 0 {
		return 0, xerrors.ErrExpired
	}
	if !(target > 0) {
		return 0, xerrors.ErrInvalidInput.WithDetail("market price %v must be positive", target)
	}
	lo, hi := m.Bounds(in)
	if target < lo || target >= hi {
		return 0, xerrors.ErrInvalidInput.WithDetail("market price %v outside no-arbitrage bounds [%v, %v)", target, lo, hi)
	}

	priceAt := func(vol float64) float64 {
		in.Vol = vol
		v, _ := m.Value(in)
		return v
	}
	low, high := minIV, maxIV
	if priceAt(low) > target {
		return 0, xerrors.ErrInvalidInput.WithDetail("market price %v below minimum-volatility price", target)
	}
	if priceAt(high) < target {
		return 0, xerrors.ErrInvalidInput.WithDetail("market price %v above maximum-volatility price", target)
	}

	tol := accuracy * 1e-2
	sigma := initialIV
	for i := 0; i < maxIter; i++ {
		diff := priceAt(sigma) - target
		if diff > 0 {
			high = sigma
		} else {
			low = sigma
		}
		in.Vol = sigma
		vega := m.Vega(in)

		next := 0.5 * (low + high)
		if vega > 1e-12 {
			if n := sigma - diff/vega; n > low && n < high {
				next = n
			}
		}
		if math.Abs(next-sigma) < tol || high-low < tol {
			return next, nil
		}
		sigma = next
	}
	return 0, xerrors.ErrMathConvergence.WithDetail("implied vol not found in %d iterations", maxIter)
}

// IVQuote 买价、卖价与中间价对应的隐含波动率，求解失败的一侧为 0。
type IVQuote struct {
	Bid float64 `json:"bid"`
	Ask float64 `json:"ask"`
	Mid float64 `json:"mid"`
}

// IV 以 spot 为标的价格反解 price 对应的隐含波动率；求解失败返回 0，由调用方决定回退策略。
// 开启 WithTreeIV 时先用二叉树 Newton-Raphson，失败后使用解析解求解结果。
func (e *Engine) IV(ctx context.Context, price, spot, accuracy float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ivLocked(ctx, price, spot, accuracy)
}

func (e *Engine) ivLocked(ctx context.Context, price, spot, accuracy float64) float64 {
	if accuracy <= 0 {
		accuracy = e.opts.IVAccuracy
	}
	s0 := e.quote.spot
	defer func() { e.quote.spot = s0 }()
	if spot > 0 {
		e.quote.spot = spot
	}

	if e.opts.UseTreeIV {
		if v, ok := e.newtonRaphson(price, accuracy); ok {
			return v
		}
		e.logIV(ctx, "newton_raphson", price, e.quote.spot, xerrors.ErrMathConvergence)
	}
	v, err := SolveIV(e.analytic, e.inputs(), price, accuracy, e.opts.IVMaxIterations)
	if err != nil {
		e.logIV(ctx, "bracketed_newton", price, e.quote.spot, err)
		return 0
	}
	return v
}

// IVBidAsk 分别求买价、卖价与中间价 (bid+ask)/2 的隐含波动率，成功的结果不低于 IVFloor。
func (e *Engine) IVBidAsk(ctx context.Context, bid, ask, spot float64) IVQuote {
	e.mu.Lock()
	defer e.mu.Unlock()
	floor := func(v float64) float64 {
		if v == 0 {
			return 0
		}
		return math.Max(v, IVFloor)
	}
	var q IVQuote
	if bid > 0 {
		q.Bid = floor(e.ivLocked(ctx, bid, spot, 0))
	}
	if ask > 0 {
		q.Ask = floor(e.ivLocked(ctx, ask, spot, 0))
	}
	if bid > 0 && ask > 0 {
		q.Mid = floor(e.ivLocked(ctx, (bid+ask)/2, spot, 0))
	}
	return q
}

// NewtonRaphsonIV 在二叉树模型上迭代 guess -= (price(guess) - target) / vega(guess)，
// 波动率钳制在 [0, 4]，|price - target| < accuracy 时收敛；失败返回 (0, false)。
func (e *Engine) NewtonRaphsonIV(price, spot, accuracy float64) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if accuracy <= 0 {
		accuracy = e.opts.IVAccuracy
	}
	s0 := e.quote.spot
	defer func() { e.quote.spot = s0 }()
	if spot > 0 {
		e.quote.spot = spot
	}
	return e.newtonRaphson(price, accuracy)
}

func (e *Engine) newtonRaphson(target, accuracy float64) (float64, bool) {
	if e.quote.Expired() || !(target > 0) {
		return 0, false
	}
	v0 := e.quote.vol
	defer func() { e.quote.vol = v0 }()

	treePrice := func() (float64, error) { return evaluate(e.tree, e.inputs()) }
	guess := v0
	if guess <= 0 {
		guess = initialIV
	}
	for i := 0; i < e.opts.IVMaxIterations; i++ {
		e.quote.vol = guess
		p, err := treePrice()
		if err != nil {
			return 0, false
		}
		diff := p - target
		if math.Abs(diff) < accuracy {
			return guess, true
		}
		vega := e.firstOrder(Vol, e.opts.VolStep, treePrice)
		if vega == 0 || !finite(vega) {
			return 0, false
		}
		guess = math.Min(math.Max(guess-diff/vega, 0), maxIV)
	}
	return 0, false
}
