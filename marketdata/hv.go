package marketdata

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"
)

const (
	// TradingDaysPerYear 年化历史波动率使用的交易日数。
	TradingDaysPerYear = 252
	// DefaultHVWindow 默认滚动窗口（收益率个数）。
	DefaultHVWindow = 30
)

// HistoricalVol 按标的维护收盘价序列，计算滚动窗口内对数收益率的年化标准差。
type HistoricalVol struct {
	mu     sync.RWMutex
	window int
	closes map[string][]float64
}

// NewHistoricalVol window 为参与计算的收益率个数，非正值使用 DefaultHVWindow。
func NewHistoricalVol(window int) *HistoricalVol {
	if window <= 0 {
		window = DefaultHVWindow
	}
	return &HistoricalVol{window: window, closes: make(map[string][]float64)}
}

// Add 追加一个收盘价，非正价格被忽略。
func (h *HistoricalVol) Add(underlying string, close float64) {
	if !(close > 0) {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	s := append(h.closes[underlying], close)
	if len(s) > h.window+1 {
		s = s[len(s)-h.window-1:]
	}
	h.closes[underlying] = s
}

// Vol 返回年化历史波动率；不足两个收益率时返回 0。
func (h *HistoricalVol) Vol(underlying string) float64 {
	h.mu.RLock()
	closes := h.closes[underlying]
	h.mu.RUnlock()
	if len(closes) < 3 {
		return 0
	}
	returns := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		returns[i-1] = math.Log(closes[i] / closes[i-1])
	}
	return stat.StdDev(returns, nil) * math.Sqrt(TradingDaysPerYear)
}

// Len 返回某标的当前保存的收盘价个数。
func (h *HistoricalVol) Len(underlying string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.closes[underlying])
}
