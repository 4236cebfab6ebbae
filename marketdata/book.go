// Package marketdata 维护进程内行情：最新买卖报价、标的历史波动率与隐含波动率微笑的偏斜估计。
package marketdata

import (
	"sort"
	"sync"
	"time"

	"github.com/wyfcoding/optiongreeks/xerrors"
)

// Quote 某个代码（期权合约或标的）的最新买卖价。
type Quote struct {
	Symbol string    `json:"symbol"`
	Bid    float64   `json:"bid"`
	Ask    float64   `json:"ask"`
	Time   time.Time `json:"time"`
}

// Mid 中间价 (bid+ask)/2；只有一侧报价时返回该侧。
func (q Quote) Mid() float64 {
	switch {
	case q.Bid == 0:
		return q.Ask
	case q.Ask == 0:
		return q.Bid
	}
	return (q.Bid + q.Ask) / 2
}

// Book 并发安全的报价簿，只保留每个代码的最新报价。
type Book struct {
	mu     sync.RWMutex
	quotes map[string]Quote
}

// NewBook 创建报价簿。
func NewBook() *Book {
	return &Book{quotes: make(map[string]Quote)}
}

// Update 写入报价；早于已有报价时间的报价被忽略并返回 false。
func (b *Book) Update(q Quote) (bool, error) {
	if q.Symbol == "" {
		return false, xerrors.ErrInvalidInput.WithDetail("quote symbol is empty")
	}
	if q.Bid < 0 || q.Ask < 0 || (q.Bid > 0 && q.Ask > 0 && q.Bid > q.Ask) {
		return false, xerrors.ErrInvalidInput.WithDetail("crossed or negative quote for %s: bid %v ask %v", q.Symbol, q.Bid, q.Ask)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if prev, ok := b.quotes[q.Symbol]; ok && q.Time.Before(prev.Time) {
		return false, nil
	}
	b.quotes[q.Symbol] = q
	return true, nil
}

// Get 返回最新报价。
func (b *Book) Get(symbol string) (Quote, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	q, ok := b.quotes[symbol]
	return q, ok
}

// Mid 返回最新中间价。
func (b *Book) Mid(symbol string) (float64, bool) {
	q, ok := b.Get(symbol)
	if !ok {
		return 0, false
	}
	return q.Mid(), true
}

// Symbols 按字典序返回全部代码。
func (b *Book) Symbols() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.quotes))
	for s := range b.quotes {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
