package pnl

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/optiongreeks/datetime"
	"github.com/wyfcoding/optiongreeks/marketdata"
	"github.com/wyfcoding/optiongreeks/pricing"
)

func newTestRecorder(t *testing.T) (*Recorder, *marketdata.Book) {
	t.Helper()
	reg := pricing.NewRegistry()
	require.NoError(t, reg.Register(pricing.ContractTerms{
		ContractID: "SPY240701C00100000",
		Underlying: "SPY",
		Strike:     100,
		Expiry:     datetime.Date(2024, time.July, 1),
		Right:      pricing.Call,
		Style:      pricing.European,
	}))
	book := marketdata.NewBook()
	rec := NewRecorder(RecorderConfig{Interval: time.Hour}, reg, pricing.NewClock(t0), MarketData{Book: book}, nil)
	return rec, book
}

func fairQuote(t *testing.T, rec *Recorder, spot float64) (bid, ask float64) {
	t.Helper()
	e, err := rec.registry.GetOrCreate(pricing.NewKey("SPY240701C00100000", t0, 0))
	require.NoError(t, err)
	e.SetSpot(spot)
	lo, ok := e.PriceFair(0.19)
	require.True(t, ok)
	hi, ok := e.PriceFair(0.21)
	require.True(t, ok)
	return lo, hi
}

func TestRecorderFillAndExplain(t *testing.T) {
	ctx := context.Background()
	rec, book := newTestRecorder(t)

	_, _ = book.Update(marketdata.Quote{Symbol: "SPY", Bid: 99.99, Ask: 100.01, Time: t0})
	bid, ask := fairQuote(t, rec, 100)
	_, _ = book.Update(marketdata.Quote{Symbol: "SPY240701C00100000", Bid: bid, Ask: ask, Time: t0})

	fill := Trade{
		ContractID: "SPY240701C00100000",
		Direction:  Buy,
		Quantity:   10,
		FillPrice:  decimal.NewFromFloat(ask),
		Bid:        decimal.NewFromFloat(bid),
		Ask:        decimal.NewFromFloat(ask),
		Time:       t0,
	}
	s0, err := rec.OnFill(ctx, fill)
	require.NoError(t, err)
	assert.InDelta(t, 0.19, s0.IVBid, 1e-3)
	assert.InDelta(t, 0.21, s0.IVAsk, 1e-3)
	assert.Greater(t, s0.Greeks.Delta, 0.0)
	assert.Less(t, s0.Greeks.Delta, 1.0)

	_, _ = book.Update(marketdata.Quote{Symbol: "SPY", Bid: 100.99, Ask: 101.01, Time: t0.Add(time.Hour)})
	_, err = rec.Snapshot(ctx, "SPY240701C00100000", t0.Add(time.Hour))
	require.NoError(t, err)

	r, err := rec.Explain("SPY240701C00100000")
	require.NoError(t, err)
	assert.Equal(t, 1, r.Pairs)
	assert.InDelta(t, 1000*s0.Greeks.Delta*1.0, r.Delta, 1e-6)
	assert.Greater(t, r.Execution, 0.0)

	h, ok := rec.History("SPY240701C00100000")
	require.True(t, ok)
	assert.Equal(t, 2, h.Len())
	assert.Equal(t, []string{"SPY240701C00100000"}, rec.Contracts())
}

func TestRecorderSnapshotAll(t *testing.T) {
	ctx := context.Background()
	rec, book := newTestRecorder(t)
	rec.now = func() time.Time { return t0.Add(time.Minute) }

	_, _ = book.Update(marketdata.Quote{Symbol: "SPY", Bid: 100, Ask: 100, Time: t0})
	bid, ask := fairQuote(t, rec, 100)
	_, _ = book.Update(marketdata.Quote{Symbol: "SPY240701C00100000", Bid: bid, Ask: ask, Time: t0})

	p, err := NewPosition("SPY", Trade{ContractID: "SPY240701C00100000", Direction: Sell, Quantity: 1, Time: t0})
	require.NoError(t, err)
	rec.Track(p)

	require.NoError(t, rec.SnapshotAll(ctx))
	h, _ := rec.History("SPY240701C00100000")
	assert.Equal(t, 1, h.Len())

	// 同一时间戳再次采集被拒绝
	assert.Error(t, rec.SnapshotAll(ctx))
}

func TestRecorderMissingQuote(t *testing.T) {
	rec, _ := newTestRecorder(t)
	_, err := rec.Snapshot(context.Background(), "SPY240701C00100000", t0)
	assert.Error(t, err)

	_, err = rec.Snapshot(context.Background(), "UNKNOWN", t0)
	assert.Error(t, err)
}

func quoteContract(t *testing.T, rec *Recorder, book *marketdata.Book, at time.Time) {
	t.Helper()
	_, _ = book.Update(marketdata.Quote{Symbol: "SPY", Bid: 99.99, Ask: 100.01, Time: at})
	bid, ask := fairQuote(t, rec, 100)
	_, _ = book.Update(marketdata.Quote{Symbol: "SPY240701C00100000", Bid: bid, Ask: ask, Time: at})
}

func fillAt(dir Direction, qty int64, at time.Time) Trade {
	return Trade{
		ContractID: "SPY240701C00100000",
		Direction:  dir,
		Quantity:   qty,
		FillPrice:  decimal.RequireFromString("5"),
		Bid:        decimal.RequireFromString("4.9"),
		Ask:        decimal.RequireFromString("5.1"),
		Time:       at,
	}
}

func TestRecorderFillAfterPeriodicSnapshot(t *testing.T) {
	ctx := context.Background()
	rec, book := newTestRecorder(t)
	quoteContract(t, rec, book, t0)

	_, err := rec.OnFill(ctx, fillAt(Buy, 10, t0))
	require.NoError(t, err)

	// 定时快照先于一笔更早成交的处理
	rec.now = func() time.Time { return t0.Add(2 * time.Minute) }
	require.NoError(t, rec.SnapshotAll(ctx))

	s, err := rec.OnFill(ctx, fillAt(Buy, 5, t0.Add(time.Minute)))
	require.NoError(t, err)
	assert.Equal(t, t0.Add(2*time.Minute+time.Nanosecond), s.Time)

	p, ok := rec.Position("SPY240701C00100000")
	require.True(t, ok)
	assert.EqualValues(t, 15, p.Quantity)
	require.Len(t, p.Trades, 2)
	assert.Equal(t, s.Time, p.Trades[1].Time)

	h, _ := rec.History("SPY240701C00100000")
	assert.Equal(t, 3, h.Len())
}

func TestRecorderFillRollsBackOnSnapshotFailure(t *testing.T) {
	ctx := context.Background()
	rec, book := newTestRecorder(t)

	// 没有行情时开仓失败，不留下持仓
	_, err := rec.OnFill(ctx, fillAt(Buy, 10, t0))
	require.Error(t, err)
	_, ok := rec.Position("SPY240701C00100000")
	assert.False(t, ok)

	quoteContract(t, rec, book, t0)
	_, err = rec.OnFill(ctx, fillAt(Buy, 10, t0))
	require.NoError(t, err)

	// 标的报价失效后加仓失败，持仓保持原样
	_, _ = book.Update(marketdata.Quote{Symbol: "SPY", Time: t0.Add(time.Minute)})
	_, err = rec.OnFill(ctx, fillAt(Buy, 5, t0.Add(time.Minute)))
	require.Error(t, err)

	p, _ := rec.Position("SPY240701C00100000")
	assert.EqualValues(t, 10, p.Quantity)
	assert.Len(t, p.Trades, 1)
	h, _ := rec.History("SPY240701C00100000")
	assert.Equal(t, 1, h.Len())
}

func TestRecorderClosedPosition(t *testing.T) {
	ctx := context.Background()
	rec, book := newTestRecorder(t)
	quoteContract(t, rec, book, t0)
	const id = "SPY240701C00100000"

	_, err := rec.OnFill(ctx, fillAt(Buy, 10, t0))
	require.NoError(t, err)
	_, err = rec.OnFill(ctx, fillAt(Sell, 10, t0.Add(time.Minute)))
	require.NoError(t, err)

	closed, _ := rec.Position(id)
	require.True(t, closed.Closed())

	// 平仓后不再定时采集
	rec.now = func() time.Time { return t0.Add(5 * time.Minute) }
	require.NoError(t, rec.SnapshotAll(ctx))
	h, _ := rec.History(id)
	assert.Equal(t, 2, h.Len())

	r, err := rec.Explain(id)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Pairs)
	assert.Equal(t, t0.Add(time.Minute), r.To)

	// 再次成交开新仓，旧持仓归档
	_, err = rec.OnFill(ctx, fillAt(Buy, 3, t0.Add(10*time.Minute)))
	require.NoError(t, err)

	p, ok := rec.Position(id)
	require.True(t, ok)
	assert.False(t, p.Closed())
	assert.EqualValues(t, 3, p.Quantity)
	assert.Equal(t, t0.Add(10*time.Minute), p.Open.Time)
	require.Len(t, rec.Archived(id), 1)
	assert.Same(t, closed, rec.Archived(id)[0])
	assert.Equal(t, []string{id}, rec.Contracts())
	assert.Equal(t, 3, h.Len())

	rec.now = func() time.Time { return t0.Add(15 * time.Minute) }
	require.NoError(t, rec.SnapshotAll(ctx))
	assert.Equal(t, 4, h.Len())
}
