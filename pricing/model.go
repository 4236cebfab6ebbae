package pricing

import (
	"fmt"
	"math"
)

// Inputs 一次模型求值所需的全部参数，T 为按 Actual/365 计算的剩余年限。
type Inputs struct {
	Spot     float64
	Strike   float64
	Vol      float64
	Rate     float64
	Dividend float64
	T        float64
	Right    Right
}

// Model 定价模型。Delta/Gamma 的 bool 表示模型能否原生给出该值，不能时调用方改用有限差分。
type Model interface {
	Name() string
	Value(in Inputs) (float64, error)
	Delta(in Inputs) (float64, bool)
	Gamma(in Inputs) (float64, bool)
}

// ModelKind 模型类别。
type ModelKind int

const (
	KindAnalytic ModelKind = iota
	KindTree
)

func (k ModelKind) String() string {
	if k == KindTree {
		return "binomial_crr"
	}
	return "black_scholes"
}

// SelectModel 根据行权方式与所求希腊值选择模型：美式用二叉树，其余用解析解。
// Delta/Gamma 优先使用所选模型的原生输出。
func SelectModel(style Style, _ Greek) ModelKind {
	if style == American {
		return KindTree
	}
	return KindAnalytic
}

// evaluate 捕获模型内部 panic，转换为 ErrModelEvaluation。
func evaluate(m Model, in Inputs) (v float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", m.Name(), r)
		}
	}()
	v, err = m.Value(in)
	if err == nil && !finite(v) {
		err = fmt.Errorf("%s returned non-finite value %v", m.Name(), v)
	}
	return v, err
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func discount(rate, t float64) float64 {
	return math.Exp(-rate * t)
}
