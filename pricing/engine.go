package pricing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wyfcoding/optiongreeks/logging"
	"github.com/wyfcoding/optiongreeks/xerrors"
)

var errNoSample = errors.New("no sample")

// Engine 单个合约的定价引擎，持有合约条款、独占的行情状态以及解析、二叉树两个模型。
// 每个希腊值在构造时绑定到一个求值闭包，有限差分的“扰动-求值-恢复”在 mu 保护下原子完成。
type Engine struct {
	mu       sync.Mutex
	terms    ContractTerms
	quote    *QuoteState
	analytic *BlackScholes
	tree     *BinomialTree
	opts     Options
	logger   *logging.Logger
	table    [greekCount]func() float64
}

// NewEngine 校验合约条款并创建引擎，估值日为 asOf。
func NewEngine(terms ContractTerms, asOf time.Time, opts ...Option) (*Engine, error) {
	if err := terms.Validate(); err != nil {
		return nil, err
	}
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	o.normalize()

	e := &Engine{
		terms:    terms,
		quote:    NewQuoteState(asOf, terms.Expiry),
		analytic: NewBlackScholes(),
		tree:     NewBinomialTree(o.TreeSteps, terms.Style == American),
		opts:     o,
		logger:   o.Logger.WithModule("pricing"),
	}
	e.quote.SetRate(o.RiskFreeRate)
	e.bind()
	return e, nil
}

// bind 建立希腊值到求值闭包的映射。
func (e *Engine) bind() {
	price := e.price
	e.table = [greekCount]func() float64{
		GreekDelta:      e.delta,
		GreekGamma:      e.gamma,
		GreekSpeed:      func() float64 { return e.firstOrder(Spot, e.opts.SpotStep, nested(e.gamma)) },
		GreekVega:       e.vega,
		GreekVomma:      func() float64 { return e.secondOrder(Vol, e.opts.VolStep, price) },
		GreekVanna:      func() float64 { return e.firstOrder(Spot, e.opts.SpotStep, nested(e.vega)) },
		GreekZomma:      func() float64 { return e.firstOrder(Vol, e.opts.VolStep, nested(e.gamma)) },
		GreekTheta:      func() float64 { return e.timeFirst(price) },
		GreekThetaDecay: func() float64 { return e.timeSecond(price) },
		GreekCharm:      func() float64 { return e.timeFirst(nested(e.delta)) },
		GreekColor:      func() float64 { return e.timeFirst(nested(e.gamma)) },
		GreekVeta:       func() float64 { return e.timeFirst(nested(e.vega)) },
		GreekRho:        func() float64 { return e.firstOrder(Rate, e.opts.RateStep, price) },
	}
}

// Terms 返回合约条款。
func (e *Engine) Terms() ContractTerms { return e.terms }

// Quote 返回当前行情副本。
func (e *Engine) Quote() Quote {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.quote.Snapshot()
}

// Model 返回引擎按行权方式选用的模型类别。
func (e *Engine) Model() ModelKind {
	return SelectModel(e.terms.Style, GreekDelta)
}

func (e *Engine) SetSpot(v float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.quote.SetSpot(v)
}

func (e *Engine) SetVol(v float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.quote.SetVol(v)
}

func (e *Engine) SetRate(v float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.quote.SetRate(v)
}

func (e *Engine) SetDividend(v float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.quote.SetDividend(v)
}

// SetDate 设置估值日，超过到期日时钳制为到期日。
func (e *Engine) SetDate(d time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.quote.SetDate(d)
}

// SetIndependents 同时设置标的价格与波动率，任一发生变化即返回 true。
func (e *Engine) SetIndependents(spot, vol float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	a := e.quote.SetSpot(spot)
	b := e.quote.SetVol(vol)
	return a || b
}

func (e *Engine) inputs() Inputs {
	return Inputs{
		Spot:     e.quote.spot,
		Strike:   e.terms.Strike,
		Vol:      e.quote.vol,
		Rate:     e.quote.rate,
		Dividend: e.quote.dividend,
		T:        e.quote.YearsToExpiry(),
		Right:    e.terms.Right,
	}
}

func (e *Engine) pricer(g Greek) Model {
	if SelectModel(e.terms.Style, g) == KindTree {
		return e.tree
	}
	return e.analytic
}

// price 以当前行情按所选模型求值，模型异常被转换为错误。
func (e *Engine) price() (float64, error) {
	m := e.pricer(GreekTheta)
	v, err := evaluate(m, e.inputs())
	if err != nil {
		e.logger.Debug("model evaluation failed", "contract", e.terms.ContractID, "model", m.Name(), "error", err)
		return 0, err
	}
	return v, nil
}

// native 调用模型的原生 Delta/Gamma，panic 视为不支持。
func native(fn func(Inputs) (float64, bool), in Inputs) (v float64, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			v, ok = 0, false
		}
	}()
	v, ok = fn(in)
	return v, ok && finite(v)
}

func (e *Engine) delta() float64 {
	if v, ok := native(e.pricer(GreekDelta).Delta, e.inputs()); ok {
		return v
	}
	return e.firstOrder(Spot, e.opts.SpotStep, e.price)
}

func (e *Engine) gamma() float64 {
	if v, ok := native(e.pricer(GreekGamma).Gamma, e.inputs()); ok {
		return v
	}
	return e.secondOrder(Spot, e.opts.SpotStep, e.price)
}

func (e *Engine) vega() float64 {
	return e.firstOrder(Vol, e.opts.VolStep, e.price)
}

// sanitize 非有限值替换为 0，记录告警并通知观察者。
func (e *Engine) sanitize(g Greek, v float64) float64 {
	if finite(v) {
		return v
	}
	e.logger.Warn("non-finite greek replaced with 0", "contract", e.terms.ContractID, "greek", g.String(), "value", v)
	e.opts.Observer.NonFinite(e.terms.ContractID, g.String())
	return 0
}

// Value 当前行情下的理论价格。模型求值失败时返回 0 与错误。
func (e *Engine) Value() (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, err := e.price()
	if err != nil {
		return 0, xerrors.ErrModelEvaluation.WithCause(err).WithContext("contract", e.terms.ContractID)
	}
	return v, nil
}

// Greek 计算单个希腊值。
func (e *Engine) Greek(g Greek) (float64, error) {
	if g < 0 || g >= greekCount {
		return 0, xerrors.ErrInvalidInput.WithDetail("unknown greek %d", int(g))
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sanitize(g, e.table[g]()), nil
}

// Greeks 在一次加锁内计算全部希腊值并返回不可变集合。
func (e *Engine) Greeks() GreeksSet {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.greeksLocked()
}

func (e *Engine) greeksLocked() GreeksSet {
	start := time.Now()
	gs := GreeksSet{
		ContractID: e.terms.ContractID,
		AsOf:       e.quote.date,
		Spot:       e.quote.spot,
	}
	if v, err := e.price(); err == nil {
		gs.TheoreticalPrice = v
	}
	for g := Greek(0); g < greekCount; g++ {
		gs.set(g, e.sanitize(g, e.table[g]()))
	}
	e.opts.Observer.GreeksComputed(e.terms.Style.String(), time.Since(start))
	return gs
}

// GreeksAt 在给定标的价格与波动率下计算全部希腊值，返回前恢复原行情。
func (e *Engine) GreeksAt(spot, vol float64) GreeksSet {
	e.mu.Lock()
	defer e.mu.Unlock()
	s0, v0 := e.quote.spot, e.quote.vol
	defer func() {
		e.quote.spot = s0
		e.quote.vol = v0
	}()
	e.quote.SetSpot(spot)
	e.quote.SetVol(vol)
	return e.greeksLocked()
}

// GreeksAsOf 在给定估值日计算全部希腊值，返回前恢复原估值日。
func (e *Engine) GreeksAsOf(d time.Time) GreeksSet {
	e.mu.Lock()
	defer e.mu.Unlock()
	d0 := e.quote.date
	defer func() { e.quote.date = d0 }()
	e.quote.SetDate(d)
	return e.greeksLocked()
}

// Sensitivity 对任一标量求 1 阶或 2 阶有限差分导数。
func (e *Engine) Sensitivity(s Scalar, order int) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h := e.step(s)
	var v float64
	switch order {
	case 1:
		v = e.firstOrder(s, h, e.price)
	case 2:
		v = e.secondOrder(s, h, e.price)
	default:
		return 0, xerrors.ErrInvalidInput.WithDetail("unsupported derivative order %d", order)
	}
	if !finite(v) {
		e.logger.Warn("non-finite sensitivity replaced with 0", "contract", e.terms.ContractID, "scalar", s.String(), "order", order)
		return 0, nil
	}
	return v, nil
}

func (e *Engine) step(s Scalar) float64 {
	switch s {
	case Spot:
		return e.opts.SpotStep
	case Vol:
		return e.opts.VolStep
	}
	return e.opts.RateStep
}

// PriceFair 以给定波动率求理论价格，不改变引擎行情。
func (e *Engine) PriceFair(vol float64) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v0 := e.quote.vol
	defer func() { e.quote.vol = v0 }()
	e.quote.SetVol(vol)
	v, err := e.price()
	return v, err == nil
}

// PriceAt 在给定标的价格与波动率下求理论价格，返回前恢复原行情。spot 不为正时沿用当前标的价格。
func (e *Engine) PriceAt(spot, vol float64) (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s0, v0 := e.quote.spot, e.quote.vol
	defer func() {
		e.quote.spot = s0
		e.quote.vol = v0
	}()
	if spot > 0 {
		e.quote.SetSpot(spot)
	}
	e.quote.SetVol(vol)
	v, err := e.price()
	return v, err == nil
}

// NativeDelta 与 NativeGamma 返回解析模型的闭式结果，用于与有限差分交叉校验。
func (e *Engine) NativeDelta() (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return native(e.analytic.Delta, e.inputs())
}

func (e *Engine) NativeGamma() (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return native(e.analytic.Gamma, e.inputs())
}

// logIV 记录隐含波动率求解失败。
func (e *Engine) logIV(ctx context.Context, method string, price, spot float64, err error) {
	e.opts.Observer.IVFailure(e.terms.ContractID, method)
	e.logger.DebugContext(ctx, "implied vol solve failed",
		"contract", e.terms.ContractID, "method", method, "price", price, "spot", spot, "error", err)
}
