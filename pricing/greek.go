package pricing

import (
	"strings"

	"github.com/wyfcoding/optiongreeks/xerrors"
)

// Greek 引擎支持的希腊值，集合封闭，每个值在引擎构造时绑定到一个求值闭包。
type Greek int

const (
	GreekDelta Greek = iota
	GreekGamma
	GreekSpeed
	GreekVega
	GreekVomma
	GreekVanna
	GreekZomma
	GreekTheta
	GreekThetaDecay
	GreekCharm
	GreekColor
	GreekVeta
	GreekRho
	greekCount
)

var greekNames = [greekCount]string{
	GreekDelta:      "delta",
	GreekGamma:      "gamma",
	GreekSpeed:      "speed",
	GreekVega:       "vega",
	GreekVomma:      "vomma",
	GreekVanna:      "vanna",
	GreekZomma:      "zomma",
	GreekTheta:      "theta",
	GreekThetaDecay: "theta_decay",
	GreekCharm:      "charm",
	GreekColor:      "color",
	GreekVeta:       "veta",
	GreekRho:        "rho",
}

func (g Greek) String() string {
	if g >= 0 && g < greekCount {
		return greekNames[g]
	}
	return "unknown"
}

// ParseGreek 按名称解析希腊值。
func ParseGreek(s string) (Greek, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for g, name := range greekNames {
		if name == s {
			return Greek(g), nil
		}
	}
	return 0, xerrors.ErrInvalidInput.WithDetail("unknown greek %q", s)
}

// AllGreeks 按定义顺序返回全部希腊值。
func AllGreeks() []Greek {
	out := make([]Greek, greekCount)
	for i := range out {
		out[i] = Greek(i)
	}
	return out
}
