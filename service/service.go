// Package service 是进程的组合根：持有合约登记表、估值时钟、行情、Greeks 记忆化缓存、
// 快照与报告仓储以及报告发布器，向 HTTP 与命令行提供定价和归因用例。
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/wyfcoding/optiongreeks/breaker"
	"github.com/wyfcoding/optiongreeks/config"
	"github.com/wyfcoding/optiongreeks/datetime"
	"github.com/wyfcoding/optiongreeks/idgen"
	"github.com/wyfcoding/optiongreeks/logging"
	"github.com/wyfcoding/optiongreeks/marketdata"
	"github.com/wyfcoding/optiongreeks/messagequeue"
	"github.com/wyfcoding/optiongreeks/metrics"
	"github.com/wyfcoding/optiongreeks/pnl"
	"github.com/wyfcoding/optiongreeks/pricing"
	"github.com/wyfcoding/optiongreeks/retry"
	"github.com/wyfcoding/optiongreeks/tracing"
	"github.com/wyfcoding/optiongreeks/xerrors"
)

// Memo 是 Greeks 记忆化缓存，*cache.MultiLevelCache 满足该接口。
type Memo interface {
	GetOrSet(ctx context.Context, key string, value any, expiration time.Duration, fn func() (any, error)) error
}

// SnapshotStore 快照持久化。
type SnapshotStore interface {
	Save(ctx context.Context, s pnl.Snapshot) error
}

// ReportStore 归因报告持久化。
type ReportStore interface {
	Save(ctx context.Context, e pnl.Explain) error
	Get(ctx context.Context, reportID string) (pnl.Explain, error)
}

// Deps 外部依赖，除 Logger 外均可为空。
type Deps struct {
	Logger    *logging.Logger
	Metrics   *metrics.Metrics
	Memo      Memo
	Snapshots SnapshotStore
	Reports   ReportStore
	Publisher messagequeue.EventPublisher
	IDs       idgen.Generator
	Breaker   *breaker.DynamicBreaker
	// Retry 落库重试策略，零值只尝试一次
	Retry     retry.Policy
}

// Service 定价与归因用例。
type Service struct {
	memoTTL  atomic.Int64
	topic    string
	registry *pricing.Registry
	clock    *pricing.Clock
	calendar *datetime.Calendar
	md       pnl.MarketData
	recorder *pnl.Recorder

	memo      Memo
	snapshots SnapshotStore
	reports   ReportStore
	publisher messagequeue.EventPublisher
	ids       idgen.Generator
	pubCB     *breaker.DynamicBreaker
	retry     retry.Policy
	metrics   *metrics.Metrics
	logger    *logging.Logger
}

// Calendar 按名称返回交易日历，未知名称使用 NYSE。
func Calendar(name string) *datetime.Calendar {
	if name == "weekends" {
		return datetime.NewWeekendsOnlyCalendar()
	}
	return datetime.NewNYSECalendar()
}

// New 按配置构造服务。asOf 为估值时钟的初始日期。
func New(cfg *config.Config, asOf time.Time, deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if deps.Publisher == nil {
		deps.Publisher = messagequeue.NopPublisher{Logger: deps.Logger}
	}
	if deps.IDs == nil {
		deps.IDs = idgen.Default()
	}
	pc := cfg.Pricing
	cal := Calendar(pc.Calendar)

	opts := []pricing.Option{
		pricing.WithTreeSteps(pc.TreeSteps),
		pricing.WithSteps(pc.FDStepSpot, pc.FDStepVol, pc.FDStepRate),
		pricing.WithIVAccuracy(pc.IVAccuracy, pc.IVMaxIterations),
		pricing.WithTreeIV(pc.UseTreeIV),
		pricing.WithCalendar(cal),
		pricing.WithLogger(deps.Logger),
	}
	if pc.RiskFreeRate != 0 {
		opts = append(opts, pricing.WithRiskFreeRate(pc.RiskFreeRate))
	}
	if deps.Metrics != nil {
		opts = append(opts, pricing.WithObserver(deps.Metrics.NewPricingObserver()))
	}

	registry := pricing.NewRegistry(opts...)
	clock := pricing.NewClock(asOf)
	md := pnl.MarketData{
		Book:    marketdata.NewBook(),
		HV:      marketdata.NewHistoricalVol(cfg.Recorder.HVWindow),
		Surface: marketdata.NewSurface(),
	}
	recorder := pnl.NewRecorder(pnl.RecorderConfig{
		Version:       pc.ModelVersion,
		Interval:      cfg.Recorder.Interval,
		MaxGoroutines: cfg.Recorder.MaxGoroutines,
	}, registry, clock, md, deps.Logger)

	s := &Service{
		topic:     cfg.MessageQueue.Kafka.Topic,
		registry:  registry,
		clock:     clock,
		calendar:  cal,
		md:        md,
		recorder:  recorder,
		memo:      deps.Memo,
		snapshots: deps.Snapshots,
		reports:   deps.Reports,
		publisher: deps.Publisher,
		ids:       deps.IDs,
		pubCB:     deps.Breaker,
		retry:     deps.Retry,
		metrics:   deps.Metrics,
		logger:    deps.Logger.WithModule("service"),
	}
	s.memoTTL.Store(int64(pc.MemoTTL))
	if s.snapshots != nil {
		recorder.OnSnapshot(s.persistSnapshot)
	}
	deps.Metrics.BindPricing(registry.Len, clock.Changes)
	return s
}

func (s *Service) Registry() *pricing.Registry { return s.registry }
func (s *Service) Clock() *pricing.Clock       { return s.clock }
func (s *Service) Recorder() *pnl.Recorder     { return s.recorder }
func (s *Service) MarketData() pnl.MarketData  { return s.md }

// RegisterContract 登记合约条款。
func (s *Service) RegisterContract(ctx context.Context, t pricing.ContractTerms) error {
	if err := s.registry.Register(t); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "contract registered", "contract", t.ContractID, "style", t.Style.String(), "strike", t.Strike)
	return nil
}

func (s *Service) engine(contractID string, date time.Time, version int) (*pricing.Engine, error) {
	if date.IsZero() {
		date = s.clock.Date()
	}
	return s.registry.GetOrCreate(pricing.NewKey(contractID, date, version))
}

// memoKey 标的价格与波动率按 1e-6 取整，避免浮点噪声导致缓存失效。
func memoKey(k pricing.Key, spot, vol float64) string {
	return fmt.Sprintf("greeks:%s:%.6f:%.6f", k.String(), round6(spot), round6(vol))
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// Greeks 计算希腊值，结果按合约、日期、版本、标的价格和波动率记忆化。
func (s *Service) Greeks(ctx context.Context, req GreeksRequest) (pricing.GreeksSet, error) {
	ctx, span := tracing.StartSpan(ctx, "Service.Greeks", tracing.ContractKey.String(req.ContractID))
	defer span.End()

	if req.Spot <= 0 || req.Vol < 0 {
		err := xerrors.ErrInvalidInput.WithDetail("spot must be positive and vol non-negative")
		tracing.SetError(ctx, err)
		return pricing.GreeksSet{}, err
	}
	e, err := s.engine(req.ContractID, req.Date, req.Version)
	if err != nil {
		tracing.SetError(ctx, err)
		return pricing.GreeksSet{}, err
	}

	compute := func() (any, error) {
		defer logging.LogDuration(ctx, "greeks", "contract", req.ContractID)()
		return e.GreeksAt(req.Spot, req.Vol), nil
	}
	if s.memo == nil {
		g, _ := compute()
		return g.(pricing.GreeksSet), nil
	}

	key := memoKey(pricing.NewKey(req.ContractID, e.Quote().Date, req.Version), req.Spot, req.Vol)
	var out pricing.GreeksSet
	if err := s.memo.GetOrSet(ctx, key, &out, time.Duration(s.memoTTL.Load()), compute); err != nil {
		tracing.SetError(ctx, err)
		return pricing.GreeksSet{}, err
	}
	return out, nil
}

// IV 由单个期权价格反解隐含波动率，失败时为 0。
func (s *Service) IV(ctx context.Context, req IVRequest) (float64, error) {
	e, err := s.engine(req.ContractID, req.Date, req.Version)
	if err != nil {
		return 0, err
	}
	return e.IV(ctx, req.Price, req.Spot, req.Accuracy), nil
}

// IVBidAsk 双边隐含波动率，带 0.01 下限。
func (s *Service) IVBidAsk(ctx context.Context, req IVRequest) (pricing.IVQuote, error) {
	e, err := s.engine(req.ContractID, req.Date, req.Version)
	if err != nil {
		return pricing.IVQuote{}, err
	}
	return e.IVBidAsk(ctx, req.Bid, req.Ask, req.Spot), nil
}

// PriceFair 以给定标的价格与波动率求理论价格。
func (s *Service) PriceFair(_ context.Context, req PriceRequest) (float64, error) {
	e, err := s.engine(req.ContractID, req.Date, req.Version)
	if err != nil {
		return 0, err
	}
	v, ok := e.PriceAt(req.Spot, req.Vol)
	if !ok {
		return 0, xerrors.ErrModelEvaluation.WithContext("contract", req.ContractID)
	}
	return v, nil
}

// UpdateQuote 更新报价簿。
func (s *Service) UpdateQuote(q marketdata.Quote) (bool, error) {
	return s.md.Book.Update(q)
}

// RecordClose 记录标的收盘价用于历史波动率。
func (s *Service) RecordClose(underlying string, closePrice float64) {
	s.md.HV.Add(underlying, closePrice)
}

// AdvanceDate 把估值时钟移动到 d。
func (s *Service) AdvanceDate(d time.Time) bool {
	return s.clock.Set(d)
}

// OnFill 把成交应用到跟踪中的持仓并采集快照。
func (s *Service) OnFill(ctx context.Context, t pnl.Trade) (pnl.Snapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "Service.OnFill", tracing.ContractKey.String(t.ContractID))
	defer span.End()
	snap, err := s.recorder.OnFill(ctx, t)
	if err != nil {
		tracing.SetError(ctx, err)
	}
	return snap, err
}

// FillHandler 返回消费成交消息的处理函数，消息体为 JSON 编码的 pnl.Trade。
func (s *Service) FillHandler() func(ctx context.Context, msg kafkago.Message) error {
	return func(ctx context.Context, msg kafkago.Message) error {
		var t pnl.Trade
		if err := json.Unmarshal(msg.Value, &t); err != nil {
			return xerrors.ErrInvalidInput.WithDetail("decode fill: %v", err)
		}
		_, err := s.OnFill(ctx, t)
		return err
	}
}

func (s *Service) persistSnapshot(ctx context.Context, snap pnl.Snapshot) {
	err := retry.Do(ctx, s.retry, func(ctx context.Context) error {
		return persistErr(s.snapshots.Save(ctx, snap))
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to persist snapshot", "snap_id", snap.SnapID(), "error", err)
	}
}

// Explain 对请求中的持仓与快照做归因，报告持久化并发布。
func (s *Service) Explain(ctx context.Context, req ExplainRequest) (pnl.Explain, error) {
	ctx, span := tracing.StartSpan(ctx, "Service.Explain", tracing.UnderlyingKey.String(req.Underlying))
	defer span.End()

	if len(req.Trades) == 0 {
		return pnl.Explain{}, xerrors.ErrInvalidInput.WithDetail("at least the opening trade is required")
	}
	p, err := pnl.NewPosition(req.Underlying, req.Trades[0])
	if err != nil {
		return pnl.Explain{}, err
	}
	for _, t := range req.Trades[1:] {
		if err := p.Apply(t); err != nil {
			return pnl.Explain{}, err
		}
	}
	report, err := pnl.Attribute(p, req.Snapshots, s.explainOptions(req.PremiumOnExpiry)...)
	if err != nil {
		tracing.SetError(ctx, err)
		return pnl.Explain{}, err
	}
	s.deliver(ctx, report)
	return report, nil
}

// ExplainTracked 对记录器跟踪中的持仓做归因。
func (s *Service) ExplainTracked(ctx context.Context, contractID string, premiumOnExpiry float64) (pnl.Explain, error) {
	ctx, span := tracing.StartSpan(ctx, "Service.ExplainTracked", tracing.ContractKey.String(contractID))
	defer span.End()
	report, err := s.recorder.Explain(contractID, s.explainOptions(premiumOnExpiry)...)
	if err != nil {
		tracing.SetError(ctx, err)
		return pnl.Explain{}, err
	}
	s.deliver(ctx, report)
	return report, nil
}

// Report 查询已持久化的报告。
func (s *Service) Report(ctx context.Context, reportID string) (pnl.Explain, error) {
	if s.reports == nil {
		return pnl.Explain{}, xerrors.NotFound("report storage is not configured")
	}
	return s.reports.Get(ctx, reportID)
}

func (s *Service) explainOptions(premium float64) []pnl.ExplainOption {
	opts := []pnl.ExplainOption{pnl.WithReportID(idgen.ReportNo(s.ids))}
	if premium != 0 {
		opts = append(opts, pnl.WithPremiumOnExpiry(premium))
	}
	return opts
}

// deliver 持久化与发布失败只记录日志，不影响归因结果的返回。
func (s *Service) deliver(ctx context.Context, report pnl.Explain) {
	if s.reports != nil {
		err := retry.Do(ctx, s.retry, func(ctx context.Context) error {
			return persistErr(s.reports.Save(ctx, report))
		})
		if err != nil {
			s.logger.WarnContext(ctx, "failed to persist explain report", "report_id", report.ReportID, "error", err)
		}
	}
	_, err := breaker.DynamicExecute(s.pubCB, func() (struct{}, error) {
		return struct{}{}, s.publisher.Publish(ctx, s.topic, report.ContractID, report)
	})
	if err != nil {
		s.logger.WarnContext(ctx, "failed to publish explain report", "report_id", report.ReportID, "error", err)
	}
	s.logger.InfoContext(ctx, "explain report computed",
		"report_id", report.ReportID, "contract", report.ContractID, "total", report.Total, "pairs", report.Pairs)
}

// persistErr 业务错误（4xx）不重试。
func persistErr(err error) error {
	if e, ok := xerrors.FromError(err); ok && e.HTTPStatus() < 500 {
		return retry.Permanent(err)
	}
	return err
}

// Reload 应用热更新后的配置中可在线调整的部分。
func (s *Service) Reload(cfg *config.Config) {
	s.pubCB.Update(cfg.CircuitBreaker)
	s.memoTTL.Store(int64(cfg.Pricing.MemoTTL))
	s.logger.Info("service config reloaded", "memo_ttl", cfg.Pricing.MemoTTL)
}

// Run 运行定时快照直到 ctx 结束。
func (s *Service) Run(ctx context.Context) error {
	return s.recorder.Run(ctx)
}
