package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/optiongreeks/cache"
	"github.com/wyfcoding/optiongreeks/config"
	"github.com/wyfcoding/optiongreeks/datetime"
	"github.com/wyfcoding/optiongreeks/logging"
	"github.com/wyfcoding/optiongreeks/marketdata"
	"github.com/wyfcoding/optiongreeks/metrics"
	"github.com/wyfcoding/optiongreeks/pnl"
	"github.com/wyfcoding/optiongreeks/pricing"
	"github.com/wyfcoding/optiongreeks/retry"
	"github.com/wyfcoding/optiongreeks/xerrors"
)

const contract = "SPY240701C00100000"

var asOf = time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)

type published struct {
	topic, key string
	event      any
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
}

func (p *fakePublisher) Publish(_ context.Context, topic, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, published{topic, key, event})
	return nil
}

func (p *fakePublisher) Close() error { return nil }

type memReports struct {
	mu      sync.Mutex
	reports map[string]pnl.Explain
}

func (m *memReports) Save(_ context.Context, e pnl.Explain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[e.ReportID] = e
	return nil
}

func (m *memReports) Get(_ context.Context, id string) (pnl.Explain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.reports[id]
	if !ok {
		return pnl.Explain{}, xerrors.NotFound("missing")
	}
	return e, nil
}

type memSnapshots struct {
	mu    sync.Mutex
	snaps []pnl.Snapshot
}

func (m *memSnapshots) Save(_ context.Context, s pnl.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps = append(m.snaps, s)
	return nil
}

type fixture struct {
	svc       *Service
	metrics   *metrics.Metrics
	publisher *fakePublisher
	reports   *memReports
	snapshots *memSnapshots
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	cfg := config.Default()
	cfg.MessageQueue.Kafka.Topic = "explain"
	m := metrics.NewMetrics("test")
	l1, err := cache.NewBigCache(config.BigCacheConfig{LifeWindow: time.Minute, Shards: 16}, m)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l1.Close() })

	f := fixture{
		metrics:   m,
		publisher: &fakePublisher{},
		reports:   &memReports{reports: map[string]pnl.Explain{}},
		snapshots: &memSnapshots{},
	}
	f.svc = New(cfg, asOf, Deps{
		Logger:    logging.NewLogger("test", "service"),
		Metrics:   m,
		Memo:      cache.NewMultiLevelCache(l1, nil, nil),
		Snapshots: f.snapshots,
		Reports:   f.reports,
		Publisher: f.publisher,
	})
	require.NoError(t, f.svc.RegisterContract(context.Background(), pricing.ContractTerms{
		ContractID: contract,
		Underlying: "SPY",
		Strike:     100,
		Expiry:     datetime.Date(2024, time.July, 1),
		Right:      pricing.Call,
		Style:      pricing.European,
	}))
	return f
}

func TestGreeksMemoized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := GreeksRequest{ContractID: contract, Spot: 100, Vol: 0.2}

	first, err := f.svc.Greeks(ctx, req)
	require.NoError(t, err)
	assert.Greater(t, first.Delta, 0.5)
	assert.Greater(t, first.Gamma, 0.0)

	second, err := f.svc.Greeks(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CacheRequests.WithLabelValues("l1", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.GreeksTotal.WithLabelValues("european")))
}

func TestGreeksValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Greeks(context.Background(), GreeksRequest{ContractID: contract, Spot: 0, Vol: 0.2})
	assert.True(t, errors.Is(err, xerrors.ErrInvalidInput))

	_, err = f.svc.Greeks(context.Background(), GreeksRequest{ContractID: "UNKNOWN", Spot: 100, Vol: 0.2})
	assert.True(t, errors.Is(err, xerrors.ErrEngineNotFound))
}

func TestPriceAndIVRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	price, err := f.svc.PriceFair(ctx, PriceRequest{ContractID: contract, Spot: 100, Vol: 0.25})
	require.NoError(t, err)
	assert.Greater(t, price, 0.0)

	// 试算不改变共享引擎的行情
	e, err := f.svc.Registry().GetOrCreate(pricing.NewKey(contract, f.svc.Clock().Date(), 0))
	require.NoError(t, err)
	before := e.Quote()
	_, err = f.svc.PriceFair(ctx, PriceRequest{ContractID: contract, Spot: 120, Vol: 0.4})
	require.NoError(t, err)
	assert.Equal(t, before, e.Quote())

	iv, err := f.svc.IV(ctx, IVRequest{ContractID: contract, Price: price, Spot: 100})
	require.NoError(t, err)
	assert.InDelta(t, 0.25, iv, 1e-3)

	q, err := f.svc.IVBidAsk(ctx, IVRequest{ContractID: contract, Bid: price, Ask: 0, Spot: 100})
	require.NoError(t, err)
	assert.InDelta(t, 0.25, q.Bid, 1e-3)
	assert.Equal(t, 0.0, q.Ask)
	assert.Equal(t, 0.0, q.Mid)
}

func TestExplainDeliversReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	t0 := asOf
	open := pnl.Trade{
		ContractID: contract,
		Direction:  pnl.Buy,
		Quantity:   5,
		FillPrice:  decimal.NewFromFloat(5.2),
		Bid:        decimal.NewFromFloat(5.0),
		Ask:        decimal.NewFromFloat(5.2),
		Time:       t0,
	}
	snaps := []pnl.Snapshot{
		{ContractID: contract, Underlying: "SPY", Time: t0, Bid: 5, Ask: 5.2, UnderlyingBid: 100, UnderlyingAsk: 100,
			Greeks: pricing.GreeksSet{Delta: 0.5, Gamma: 0.02}},
		{ContractID: contract, Underlying: "SPY", Time: t0.Add(24 * time.Hour), Bid: 5.5, Ask: 5.7, UnderlyingBid: 101, UnderlyingAsk: 101},
	}

	report, err := f.svc.Explain(ctx, ExplainRequest{Underlying: "SPY", Trades: []pnl.Trade{open}, Snapshots: snaps})
	require.NoError(t, err)
	assert.NotEmpty(t, report.ReportID)
	assert.InDelta(t, 500*0.5*1, report.Delta, 1e-9)
	assert.InDelta(t, 500*0.5*0.02*1, report.Gamma, 1e-9)

	stored, err := f.svc.Report(ctx, report.ReportID)
	require.NoError(t, err)
	assert.Equal(t, report.Total, stored.Total)

	require.Len(t, f.publisher.sent, 1)
	assert.Equal(t, "explain", f.publisher.sent[0].topic)
	assert.Equal(t, contract, f.publisher.sent[0].key)

	_, err = f.svc.Explain(ctx, ExplainRequest{Underlying: "SPY"})
	assert.Error(t, err)
}

// flakyReports 前 failures 次 Save 返回 err。
type flakyReports struct {
	memReports
	failures int
	err      error
	calls    int
}

func (f *flakyReports) Save(ctx context.Context, e pnl.Explain) error {
	f.calls++
	if f.calls <= f.failures {
		return f.err
	}
	return f.memReports.Save(ctx, e)
}

func TestExplainRetriesPersistence(t *testing.T) {
	open := pnl.Trade{ContractID: contract, Direction: pnl.Buy, Quantity: 1, Time: asOf}
	req := ExplainRequest{Underlying: "SPY", Trades: []pnl.Trade{open}}
	policy := retry.Policy{MaxRetries: 3, InitialBackoff: time.Millisecond, Multiplier: 1}

	transient := &flakyReports{memReports: memReports{reports: map[string]pnl.Explain{}}, failures: 2, err: errors.New("connection reset")}
	svc := New(config.Default(), asOf, Deps{Logger: logging.NewLogger("test", "service"), Reports: transient, Retry: policy})
	report, err := svc.Explain(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 3, transient.calls)
	_, err = svc.Report(context.Background(), report.ReportID)
	assert.NoError(t, err)

	invalid := &flakyReports{memReports: memReports{reports: map[string]pnl.Explain{}}, failures: 5, err: xerrors.ErrInvalidInput}
	svc = New(config.Default(), asOf, Deps{Logger: logging.NewLogger("test", "service"), Reports: invalid, Retry: policy})
	_, err = svc.Explain(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, invalid.calls)
}

func TestFillHandlerRecordsSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	price, err := f.svc.PriceFair(ctx, PriceRequest{ContractID: contract, Spot: 100, Vol: 0.2})
	require.NoError(t, err)
	_, err = f.svc.UpdateQuote(marketdata.Quote{Symbol: "SPY", Bid: 99.99, Ask: 100.01, Time: asOf})
	require.NoError(t, err)
	_, err = f.svc.UpdateQuote(marketdata.Quote{Symbol: contract, Bid: price - 0.05, Ask: price + 0.05, Time: asOf})
	require.NoError(t, err)

	body, err := json.Marshal(pnl.Trade{
		ContractID: contract,
		Direction:  pnl.Buy,
		Quantity:   2,
		FillPrice:  decimal.NewFromFloat(price),
		Bid:        decimal.NewFromFloat(price - 0.05),
		Ask:        decimal.NewFromFloat(price + 0.05),
		Time:       asOf,
	})
	require.NoError(t, err)

	handler := f.svc.FillHandler()
	require.NoError(t, handler(ctx, kafkago.Message{Value: body}))
	assert.Error(t, handler(ctx, kafkago.Message{Value: []byte("not json")}))

	require.Len(t, f.snapshots.snaps, 1)
	assert.Equal(t, contract, f.snapshots.snaps[0].ContractID)

	report, err := f.svc.ExplainTracked(ctx, contract, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Pairs)
	assert.Len(t, f.publisher.sent, 1)
}

func TestReloadUpdatesMemoTTL(t *testing.T) {
	f := newFixture(t)
	cfg := config.Default()
	cfg.Pricing.MemoTTL = 5 * time.Second
	f.svc.Reload(cfg)
	assert.Equal(t, int64(5*time.Second), f.svc.memoTTL.Load())
}

func TestAdvanceDate(t *testing.T) {
	f := newFixture(t)
	assert.False(t, f.svc.AdvanceDate(asOf))
	assert.True(t, f.svc.AdvanceDate(asOf.AddDate(0, 0, 1)))
	assert.Equal(t, int64(1), f.svc.Clock().Changes())
}
