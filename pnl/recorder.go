package pnl

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/wyfcoding/optiongreeks/logging"
	"github.com/wyfcoding/optiongreeks/marketdata"
	"github.com/wyfcoding/optiongreeks/pricing"
	"github.com/wyfcoding/optiongreeks/xerrors"
)

// MarketData 快照所需的行情来源。
type MarketData struct {
	Book    *marketdata.Book
	HV      *marketdata.HistoricalVol
	Surface *marketdata.Surface
}

// RecorderConfig 快照记录器参数。
type RecorderConfig struct {
	Version       int           // 引擎缓存键中的模型版本
	Interval      time.Duration // 定时快照间隔
	MaxGoroutines int
}

// Recorder 为未平仓持仓定时、并在每次成交时采集快照。
// 不同合约并发采集，同一合约的扰动求值由引擎自身的锁串行化；成交按到达顺序逐笔处理。
type Recorder struct {
	cfg      RecorderConfig
	registry *pricing.Registry
	clock    *pricing.Clock
	md       MarketData
	logger   *logging.Logger
	now      func() time.Time
	sink     SnapshotSink

	fillMu    sync.Mutex
	mu        sync.RWMutex
	positions map[string]*Position
	archived  map[string][]*Position
	histories map[string]*History
}

// SnapshotSink 在快照成功追加到历史后被调用，用于持久化。
type SnapshotSink func(ctx context.Context, s Snapshot)

// NewRecorder 创建记录器。
func NewRecorder(cfg RecorderConfig, registry *pricing.Registry, clock *pricing.Clock, md MarketData, logger *logging.Logger) *Recorder {
	if cfg.MaxGoroutines <= 0 {
		cfg.MaxGoroutines = 8
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if md.Book == nil {
		md.Book = marketdata.NewBook()
	}
	if md.HV == nil {
		md.HV = marketdata.NewHistoricalVol(0)
	}
	if md.Surface == nil {
		md.Surface = marketdata.NewSurface()
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Recorder{
		cfg:       cfg,
		registry:  registry,
		clock:     clock,
		md:        md,
		logger:    logger.WithModule("recorder"),
		now:       time.Now,
		positions: make(map[string]*Position),
		archived:  make(map[string][]*Position),
		histories: make(map[string]*History),
	}
}

// OnSnapshot 设置快照落地回调，需在开始采集前调用。
func (r *Recorder) OnSnapshot(sink SnapshotSink) {
	r.sink = sink
}

// Track 开始跟踪持仓。
func (r *Recorder) Track(p *Position) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions[p.ContractID] = p
	if _, ok := r.histories[p.ContractID]; !ok {
		r.histories[p.ContractID] = NewHistory(p.ContractID)
	}
}

// Position 返回跟踪中的持仓，平仓后仍可取到直到下一次开仓。
func (r *Recorder) Position(contractID string) (*Position, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.positions[contractID]
	return p, ok
}

// Archived 返回合约上已平仓并被新开仓替换的历史持仓，按开仓先后排列。
func (r *Recorder) Archived(contractID string) []*Position {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.archived[contractID])
}

// History 返回合约的快照历史。
func (r *Recorder) History(contractID string) (*History, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.histories[contractID]
	return h, ok
}

// Contracts 按字典序返回跟踪中的合约，包括已平仓的。
func (r *Recorder) Contracts() []string {
	return r.contracts(false)
}

func (r *Recorder) contracts(openOnly bool) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.positions))
	for id, p := range r.positions {
		if openOnly && p.Closed() {
			continue
		}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// OnFill 把成交应用到持仓并立即采集一次快照。合约无持仓或持仓已平仓时以该成交开新仓，
// 旧持仓转入 Archived。快照或追加失败时持仓保持不变。
// 成交时间不晚于最近一次快照时，成交与快照一起顺延到该快照之后 1ns。
func (r *Recorder) OnFill(ctx context.Context, t Trade) (Snapshot, error) {
	terms, ok := r.registry.Terms(t.ContractID)
	if !ok {
		return Snapshot{}, xerrors.ErrEngineNotFound.WithContext("contract", t.ContractID)
	}
	r.fillMu.Lock()
	defer r.fillMu.Unlock()

	cur, _ := r.Position(t.ContractID)
	if _, err := nextPosition(cur, terms.Underlying, t); err != nil {
		return Snapshot{}, err
	}
	s, err := r.sample(ctx, terms, t.Time)
	if err != nil {
		return Snapshot{}, err
	}
	h := r.history(t.ContractID)
	if s, err = h.AppendAfter(s); err != nil {
		return Snapshot{}, err
	}
	if !s.Time.Equal(t.Time) {
		r.logger.InfoContext(ctx, "fill time shifted after last snapshot", "contract", t.ContractID, "fill_time", t.Time, "snap_time", s.Time)
		t.Time = s.Time
	}
	next, err := nextPosition(cur, terms.Underlying, t)
	if err != nil {
		return Snapshot{}, err
	}

	r.mu.Lock()
	if cur != nil && cur.Closed() {
		r.archived[t.ContractID] = append(r.archived[t.ContractID], cur)
	}
	r.positions[t.ContractID] = next
	r.mu.Unlock()

	r.emit(ctx, s)
	return s, nil
}

// nextPosition 返回应用成交后的持仓副本，cur 不被修改。
func nextPosition(cur *Position, underlying string, t Trade) (*Position, error) {
	if cur == nil || cur.Closed() {
		return NewPosition(underlying, t)
	}
	next := cur.clone()
	if err := next.Apply(t); err != nil {
		return nil, err
	}
	return next, nil
}

// Snapshot 以报价簿中的最新行情为合约采集一次快照并追加到历史。
func (r *Recorder) Snapshot(ctx context.Context, contractID string, ts time.Time) (Snapshot, error) {
	terms, ok := r.registry.Terms(contractID)
	if !ok {
		return Snapshot{}, xerrors.ErrEngineNotFound.WithContext("contract", contractID)
	}
	s, err := r.sample(ctx, terms, ts)
	if err != nil {
		return Snapshot{}, err
	}
	if err := r.history(contractID).Append(s); err != nil {
		return Snapshot{}, err
	}
	r.emit(ctx, s)
	return s, nil
}

// sample 计算快照但不写入历史。希腊值在引擎的一次加锁内于快照行情下求出。
func (r *Recorder) sample(ctx context.Context, terms pricing.ContractTerms, ts time.Time) (Snapshot, error) {
	cq, ok := r.md.Book.Get(terms.ContractID)
	if !ok {
		return Snapshot{}, xerrors.ErrInvalidInput.WithDetail("no quote for %s", terms.ContractID)
	}
	uq, ok := r.md.Book.Get(terms.Underlying)
	if !ok || uq.Mid() <= 0 {
		return Snapshot{}, xerrors.ErrInvalidInput.WithDetail("no quote for underlying %s", terms.Underlying)
	}

	e, err := r.registry.GetOrCreate(pricing.NewKey(terms.ContractID, r.clock.Date(), r.cfg.Version))
	if err != nil {
		return Snapshot{}, err
	}
	spot := uq.Mid()
	iv := e.IVBidAsk(ctx, cq.Bid, cq.Ask, spot)
	hv := r.md.HV.Vol(terms.Underlying)
	vol := hv
	if vol == 0 {
		vol = iv.Mid
	}
	g := e.GreeksAt(spot, vol)
	g.HV = hv

	r.md.Surface.Update(terms.Underlying, marketdata.Bid, terms.Strike, iv.Bid)
	r.md.Surface.Update(terms.Underlying, marketdata.Ask, terms.Strike, iv.Ask)

	return Snapshot{
		ContractID:    terms.ContractID,
		Underlying:    terms.Underlying,
		Time:          ts,
		Bid:           cq.Bid,
		Ask:           cq.Ask,
		UnderlyingBid: uq.Bid,
		UnderlyingAsk: uq.Ask,
		IVBid:         iv.Bid,
		IVAsk:         iv.Ask,
		HV:            hv,
		Greeks:        g,
		Skew:          r.md.Surface.Skew(terms.Underlying, spot, terms.Strike),
	}, nil
}

func (r *Recorder) history(contractID string) *History {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.histories[contractID]
	if !ok {
		h = NewHistory(contractID)
		r.histories[contractID] = h
	}
	return h
}

func (r *Recorder) emit(ctx context.Context, s Snapshot) {
	if r.sink != nil {
		r.sink(ctx, s)
	}
	r.logger.DebugContext(ctx, "snapshot recorded", "snap_id", s.SnapID(), "iv_bid", s.IVBid, "iv_ask", s.IVAsk, "delta", s.Greeks.Delta)
}

// SnapshotAll 并发为全部未平仓持仓采集快照，返回合并后的错误。
func (r *Recorder) SnapshotAll(ctx context.Context) error {
	ts := r.now()
	p := pool.New().WithContext(ctx).WithMaxGoroutines(r.cfg.MaxGoroutines)
	for _, id := range r.contracts(true) {
		p.Go(func(ctx context.Context) error {
			_, err := r.Snapshot(ctx, id, ts)
			if err != nil {
				r.logger.WarnContext(ctx, "snapshot failed", "contract", id, "error", err)
			}
			return err
		})
	}
	return p.Wait()
}

// Run 按 Interval 定时采集，直到 ctx 结束。
func (r *Recorder) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			_ = r.SnapshotAll(ctx)
		}
	}
}

// Explain 对跟踪中的持仓做归因。
func (r *Recorder) Explain(contractID string, opts ...ExplainOption) (Explain, error) {
	p, ok := r.Position(contractID)
	if !ok {
		return Explain{}, xerrors.ErrInvalidInput.WithDetail("position %s is not tracked", contractID)
	}
	h, _ := r.History(contractID)
	r.mu.RLock()
	defer r.mu.RUnlock()
	return AttributeHistory(p, h, opts...)
}
