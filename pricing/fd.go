package pricing

import (
	"math"

	"github.com/wyfcoding/optiongreeks/datetime"
)

// valuer 在引擎当前行情状态下求一个值。
type valuer func() (float64, error)

// perturbStep 相对步长换算为绝对步长，标量为 0 时直接使用 h。
func perturbStep(q0, h float64) float64 {
	if q0 == 0 {
		return h
	}
	return math.Abs(q0) * h
}

// canStepDown 向下扰动后是否仍高于标量下界。
func canStepDown(s Scalar, q0, step float64) bool {
	lo, bounded := s.floor()
	return !bounded || q0-step > lo
}

// firstOrder 中心差分一阶导数；只有一侧可用时退化为单侧差分，两侧都失败时返回 0。
// 调用方必须持有 e.mu；返回前标量恢复原值。
func (e *Engine) firstOrder(s Scalar, h float64, f valuer) float64 {
	q0 := e.quote.get(s)
	step := perturbStep(q0, h)
	defer e.quote.set(s, q0)

	e.quote.set(s, q0+step)
	up, errUp := f()

	down, errDown := 0.0, errNoSample
	if canStepDown(s, q0, step) {
		e.quote.set(s, q0-step)
		down, errDown = f()
	}

	switch {
	case errUp == nil && errDown == nil:
		return (up - down) / (2 * step)
	case errUp == nil || errDown == nil:
		e.quote.set(s, q0)
		mid, err := f()
		if err != nil {
			return 0
		}
		if errUp == nil {
			return (up - mid) / step
		}
		return (mid - down) / step
	}
	return 0
}

// secondOrder 二阶中心差分 (V+ - 2V0 + V-) / step²；向下越界时改用前向三点差分。
func (e *Engine) secondOrder(s Scalar, h float64, f valuer) float64 {
	q0 := e.quote.get(s)
	step := perturbStep(q0, h)
	defer e.quote.set(s, q0)

	mid, err := f()
	if err != nil {
		return 0
	}
	e.quote.set(s, q0+step)
	up, errUp := f()
	if errUp != nil {
		return 0
	}

	if !canStepDown(s, q0, step) {
		e.quote.set(s, q0+2*step)
		up2, err2 := f()
		if err2 != nil {
			return 0
		}
		return (up2 - 2*up + mid) / (step * step)
	}

	e.quote.set(s, q0-step)
	down, errDown := f()
	if errDown != nil {
		return 0
	}
	return (up - 2*mid + down) / (step * step)
}

// timeFirst 估值日沿交易日历前进 TimeStepDays 个交易日，按经过的年化时长求导。
// 任一端点位于到期日或之后时返回 0。
func (e *Engine) timeFirst(f valuer) float64 {
	d0 := e.quote.date
	if e.quote.Expired() {
		return 0
	}
	d1 := e.opts.Calendar.Advance(d0, e.opts.TimeStepDays)
	if !d1.Before(e.quote.expiry) {
		return 0
	}
	defer func() { e.quote.date = d0 }()

	v0, err0 := f()
	e.quote.date = d1
	v1, err1 := f()
	if err0 != nil || err1 != nil {
		return 0
	}
	return (v1 - v0) / datetime.YearFraction(d0, d1)
}

// timeSecond 非等距三点二阶差分，日历步长跨越周末时间隔不等。
func (e *Engine) timeSecond(f valuer) float64 {
	d0 := e.quote.date
	if e.quote.Expired() {
		return 0
	}
	d1 := e.opts.Calendar.Advance(d0, e.opts.TimeStepDays)
	d2 := e.opts.Calendar.Advance(d1, e.opts.TimeStepDays)
	if !d2.Before(e.quote.expiry) {
		return 0
	}
	defer func() { e.quote.date = d0 }()

	v0, err0 := f()
	e.quote.date = d1
	v1, err1 := f()
	e.quote.date = d2
	v2, err2 := f()
	if err0 != nil || err1 != nil || err2 != nil {
		return 0
	}
	h1 := datetime.YearFraction(d0, d1)
	h2 := datetime.YearFraction(d1, d2)
	return 2 * ((v2-v1)/h2 - (v1-v0)/h1) / (h1 + h2)
}

// nested 把不返回错误的内层差分包装成 valuer，用于交叉导数。
func nested(inner func() float64) valuer {
	return func() (float64, error) { return inner(), nil }
}
