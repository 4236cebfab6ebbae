package pnl

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wyfcoding/optiongreeks/datetime"
	"github.com/wyfcoding/optiongreeks/marketdata"
	"github.com/wyfcoding/optiongreeks/pricing"
	"github.com/wyfcoding/optiongreeks/xerrors"
)

// Snapshot 持仓在某一时刻的行情与希腊值采样，追加进历史后只读。
type Snapshot struct {
	ContractID    string            `json:"contract_id"`
	Underlying    string            `json:"underlying"`
	Time          time.Time         `json:"time"`
	Bid           float64           `json:"bid"`
	Ask           float64           `json:"ask"`
	UnderlyingBid float64           `json:"underlying_bid"`
	UnderlyingAsk float64           `json:"underlying_ask"`
	IVBid         float64           `json:"iv_bid"`
	IVAsk         float64           `json:"iv_ask"`
	HV            float64           `json:"hv"`
	Greeks        pricing.GreeksSet `json:"greeks"`
	Skew          marketdata.Skew   `json:"skew"`
}

// SnapID 形如 "SPY240621C00500000 20240102153000"。
func (s Snapshot) SnapID() string {
	return fmt.Sprintf("%s %s", s.ContractID, s.Time.Format(datetime.SnapLayout))
}

// Mid 合约中间价。
func (s Snapshot) Mid() float64 { return (s.Bid + s.Ask) / 2 }

// UnderlyingMid 标的中间价。
func (s Snapshot) UnderlyingMid() float64 { return (s.UnderlyingBid + s.UnderlyingAsk) / 2 }

// IVMid 买卖两侧隐含波动率的平均；任一侧为 0 时视为无效样本并返回 0。
func (s Snapshot) IVMid() float64 {
	if s.IVBid == 0 || s.IVAsk == 0 {
		return 0
	}
	return (s.IVBid + s.IVAsk) / 2
}

// History 单个合约按时间递增的快照序列，只允许追加。
type History struct {
	mu         sync.RWMutex
	contractID string
	snaps      []Snapshot
}

// NewHistory 创建空历史。
func NewHistory(contractID string) *History {
	return &History{contractID: contractID}
}

// ContractID 返回合约标识。
func (h *History) ContractID() string { return h.contractID }

// Append 追加快照，时间戳不晚于最后一个快照时返回 ErrSnapshotOrder。
func (h *History) Append(s Snapshot) error {
	if s.ContractID != h.contractID {
		return xerrors.ErrInvalidInput.WithDetail("snapshot for %s appended to history of %s", s.ContractID, h.contractID)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if n := len(h.snaps); n > 0 && !s.Time.After(h.snaps[n-1].Time) {
		return xerrors.ErrSnapshotOrder.WithContext("snap_id", s.SnapID())
	}
	h.snaps = append(h.snaps, s)
	return nil
}

// AppendAfter 追加快照；时间戳不晚于最后一个快照时顺延到其后 1ns，返回实际追加的快照。
func (h *History) AppendAfter(s Snapshot) (Snapshot, error) {
	if s.ContractID != h.contractID {
		return Snapshot{}, xerrors.ErrInvalidInput.WithDetail("snapshot for %s appended to history of %s", s.ContractID, h.contractID)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if n := len(h.snaps); n > 0 && !s.Time.After(h.snaps[n-1].Time) {
		s.Time = h.snaps[n-1].Time.Add(time.Nanosecond)
	}
	h.snaps = append(h.snaps, s)
	return s, nil
}

// Len 返回快照个数。
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.snaps)
}

// Last 返回最新快照。
func (h *History) Last() (Snapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.snaps) == 0 {
		return Snapshot{}, false
	}
	return h.snaps[len(h.snaps)-1], true
}

// Between 返回 [from, to] 内的快照副本；to 为零值表示不设上界。
func (h *History) Between(from, to time.Time) []Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	lo := sort.Search(len(h.snaps), func(i int) bool { return !h.snaps[i].Time.Before(from) })
	hi := len(h.snaps)
	if !to.IsZero() {
		hi = sort.Search(len(h.snaps), func(i int) bool { return h.snaps[i].Time.After(to) })
	}
	if lo >= hi {
		return nil
	}
	out := make([]Snapshot, hi-lo)
	copy(out, h.snaps[lo:hi])
	return out
}

// All 返回全部快照副本。
func (h *History) All() []Snapshot {
	return h.Between(time.Time{}, time.Time{})
}
