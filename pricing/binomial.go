package pricing

import (
	"math"

	"github.com/wyfcoding/optiongreeks/xerrors"
)

// DefaultTreeSteps 二叉树默认步数。
const DefaultTreeSteps = 100

const minTreeSteps = 3

// BinomialTree Cox-Ross-Rubinstein 二叉树模型，支持提前行权。
// Delta/Gamma 由树的第 1、2 层节点原生给出。
type BinomialTree struct {
	steps    int
	american bool
}

// NewBinomialTree 创建二叉树模型，steps 过小时按最小步数处理。
func NewBinomialTree(steps int, american bool) *BinomialTree {
	if steps < minTreeSteps {
		steps = minTreeSteps
	}
	return &BinomialTree{steps: steps, american: american}
}

func (m *BinomialTree) Name() string { return KindTree.String() }

// Steps 返回树的步数。
func (m *BinomialTree) Steps() int { return m.steps }

// treeResult 回溯结束后根节点与前两层的价值及对应标的价格。
type treeResult struct {
	v0       float64
	v1       [2]float64 // 下, 上
	v2       [3]float64 // dd, ud, uu
	s1       [2]float64
	s2       [3]float64
	hasNodes bool
}

func (m *BinomialTree) roll(in Inputs) (treeResult, error) {
	if !(in.Spot > 0) || !(in.Strike > 0) {
		return treeResult{}, xerrors.ErrModelEvaluation.WithDetail("spot %v and strike %v must be positive", in.Spot, in.Strike)
	}
	if in.T <= 0 {
		return treeResult{v0: payoff(in.Right, in.Spot, in.Strike)}, nil
	}
	if in.Vol <= 0 {
		return treeResult{v0: m.deterministic(in)}, nil
	}

	n := m.steps
	dt := in.T / float64(n)
	u := math.Exp(in.Vol * math.Sqrt(dt))
	d := 1 / u
	growth := math.Exp((in.Rate - in.Dividend) * dt)
	p := (growth - d) / (u - d)
	if p < 0 || p > 1 {
		return treeResult{}, xerrors.ErrModelEvaluation.WithDetail("risk neutral probability %v outside [0,1], vol %v too low for %d steps", p, in.Vol, n)
	}
	disc := math.Exp(-in.Rate * dt)

	values := make([]float64, n+1)
	for i := 0; i <= n; i++ {
		// i 为上行次数
		s := in.Spot * math.Pow(u, float64(2*i-n))
		values[i] = payoff(in.Right, s, in.Strike)
	}

	var res treeResult
	for step := n - 1; step >= 0; step-- {
		for i := 0; i <= step; i++ {
			cont := disc * (p*values[i+1] + (1-p)*values[i])
			if m.american {
				s := in.Spot * math.Pow(u, float64(2*i-step))
				cont = math.Max(cont, payoff(in.Right, s, in.Strike))
			}
			values[i] = cont
		}
		switch step {
		case 2:
			copy(res.v2[:], values[:3])
		case 1:
			copy(res.v1[:], values[:2])
		}
	}
	res.v0 = values[0]
	res.s1 = [2]float64{in.Spot * d, in.Spot * u}
	res.s2 = [3]float64{in.Spot * d * d, in.Spot, in.Spot * u * u}
	res.hasNodes = true
	return res, nil
}

// deterministic 零波动时沿远期路径取各时点折现内在价值的最大值（欧式只取到期）。
func (m *BinomialTree) deterministic(in Inputs) float64 {
	n := m.steps
	dt := in.T / float64(n)
	best := 0.0
	for step := 0; step <= n; step++ {
		if !m.american && step != n {
			continue
		}
		t := dt * float64(step)
		s := in.Spot * math.Exp((in.Rate-in.Dividend)*t)
		best = math.Max(best, math.Exp(-in.Rate*t)*payoff(in.Right, s, in.Strike))
	}
	return best
}

// Value 计算理论价格。
func (m *BinomialTree) Value(in Inputs) (float64, error) {
	res, err := m.roll(in)
	if err != nil {
		return 0, err
	}
	return res.v0, nil
}

// Delta 第一层两个节点的价值差除以标的价差。
func (m *BinomialTree) Delta(in Inputs) (float64, bool) {
	res, err := m.roll(in)
	if err != nil || !res.hasNodes {
		return 0, false
	}
	return (res.v1[1] - res.v1[0]) / (res.s1[1] - res.s1[0]), true
}

// Gamma 第二层三个节点上两个 Delta 之差除以半个价差跨度。
func (m *BinomialTree) Gamma(in Inputs) (float64, bool) {
	res, err := m.roll(in)
	if err != nil || !res.hasNodes {
		return 0, false
	}
	up := (res.v2[2] - res.v2[1]) / (res.s2[2] - res.s2[1])
	down := (res.v2[1] - res.v2[0]) / (res.s2[1] - res.s2[0])
	return (up - down) / (0.5 * (res.s2[2] - res.s2[0])), true
}
