package pricing

import (
	"time"

	"github.com/wyfcoding/optiongreeks/datetime"
	"github.com/wyfcoding/optiongreeks/logging"
)

// Observer 接收引擎内部可观测事件，由 metrics 包实现。
type Observer interface {
	NonFinite(contractID, greek string)
	IVFailure(contractID, method string)
	GreeksComputed(style string, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) NonFinite(string, string)             {}
func (nopObserver) IVFailure(string, string)             {}
func (nopObserver) GreeksComputed(string, time.Duration) {}

// Options 引擎参数。步长均为相对步长，标量为 0 时按绝对步长使用。
type Options struct {
	TreeSteps       int
	SpotStep        float64
	VolStep         float64
	RateStep        float64
	TimeStepDays    int
	RiskFreeRate    float64
	IVAccuracy      float64
	IVMaxIterations int
	UseTreeIV       bool
	Calendar        *datetime.Calendar
	Logger          *logging.Logger
	Observer        Observer
}

// Option 函数式选项。
type Option func(*Options)

// DefaultOptions 返回默认参数：100 步二叉树，各标量 1% 扰动，时间步长 1 个交易日，NYSE 日历。
func DefaultOptions() Options {
	return Options{
		TreeSteps:       DefaultTreeSteps,
		SpotStep:        0.01,
		VolStep:         0.01,
		RateStep:        0.01,
		TimeStepDays:    1,
		RiskFreeRate:    DefaultRiskFreeRate,
		IVAccuracy:      DefaultIVAccuracy,
		IVMaxIterations: DefaultNewtonIterations,
	}
}

func WithTreeSteps(n int) Option {
	return func(o *Options) { o.TreeSteps = n }
}

// WithSteps 设置 spot、vol、rate 的相对扰动步长，非正值保持默认。
func WithSteps(spot, vol, rate float64) Option {
	return func(o *Options) {
		if spot > 0 {
			o.SpotStep = spot
		}
		if vol > 0 {
			o.VolStep = vol
		}
		if rate > 0 {
			o.RateStep = rate
		}
	}
}

func WithRiskFreeRate(r float64) Option {
	return func(o *Options) { o.RiskFreeRate = r }
}

func WithIVAccuracy(acc float64, maxIter int) Option {
	return func(o *Options) {
		if acc > 0 {
			o.IVAccuracy = acc
		}
		if maxIter > 0 {
			o.IVMaxIterations = maxIter
		}
	}
}

// WithTreeIV 启用基于二叉树的 Newton-Raphson 隐含波动率求解，失败时回退到解析解求解。
func WithTreeIV(enabled bool) Option {
	return func(o *Options) { o.UseTreeIV = enabled }
}

func WithCalendar(c *datetime.Calendar) Option {
	return func(o *Options) { o.Calendar = c }
}

func WithLogger(l *logging.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

func WithObserver(obs Observer) Option {
	return func(o *Options) { o.Observer = obs }
}

func (o *Options) normalize() {
	if o.Calendar == nil {
		o.Calendar = datetime.NewNYSECalendar()
	}
	if o.Logger == nil {
		o.Logger = logging.Default()
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
	if o.TreeSteps <= 0 {
		o.TreeSteps = DefaultTreeSteps
	}
	if o.TimeStepDays <= 0 {
		o.TimeStepDays = 1
	}
	if o.IVAccuracy <= 0 {
		o.IVAccuracy = DefaultIVAccuracy
	}
	if o.IVMaxIterations <= 0 {
		o.IVMaxIterations = DefaultNewtonIterations
	}
}
