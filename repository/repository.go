package repository

import (
	"context"
	"time"

	"github.com/wyfcoding/optiongreeks/database"
	"github.com/wyfcoding/optiongreeks/pnl"
	"github.com/wyfcoding/optiongreeks/xerrors"
)

// SnapshotRepository 快照仓储，SnapID 相同的快照覆盖写入。
type SnapshotRepository struct {
	table *database.Table[SnapshotRecord]
}

func NewSnapshotRepository(db *database.DB) *SnapshotRepository {
	return &SnapshotRepository{table: database.NewTable[SnapshotRecord](db)}
}

// Save 写入一条快照。
func (r *SnapshotRepository) Save(ctx context.Context, s pnl.Snapshot) error {
	rec := newSnapshotRecord(s)
	if err := r.table.Upsert(ctx, rec, []string{"snap_id"}, snapshotUpdateColumns...); err != nil {
		return xerrors.WrapInternal(err, "failed to save snapshot").WithContext("snap_id", rec.SnapID)
	}
	return nil
}

var snapshotUpdateColumns = []string{
	"bid", "ask", "underlying_bid", "underlying_ask", "iv_bid", "iv_ask", "hv",
	"skew_relative", "skew_strike", "greeks",
}

// Range 返回合约在 [from, to] 内按时间升序的快照，零值边界表示不限。
func (r *SnapshotRepository) Range(ctx context.Context, contractID string, from, to time.Time) ([]pnl.Snapshot, error) {
	q := database.Query{Conds: []database.Cond{database.Where("contract_id = ?", contractID)}, Order: "time ASC"}
	if !from.IsZero() {
		q.Conds = append(q.Conds, database.Where("time >= ?", from))
	}
	if !to.IsZero() {
		q.Conds = append(q.Conds, database.Where("time <= ?", to))
	}
	recs, err := r.table.Find(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]pnl.Snapshot, len(recs))
	for i, rec := range recs {
		out[i] = rec.toSnapshot()
	}
	return out, nil
}

// LoadHistory 把持久化的快照重建为内存中的快照历史。
func (r *SnapshotRepository) LoadHistory(ctx context.Context, contractID string) (*pnl.History, error) {
	snaps, err := r.Range(ctx, contractID, time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}
	h := pnl.NewHistory(contractID)
	for _, s := range snaps {
		if err := h.Append(s); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// ReportRepository 归因报告仓储。
type ReportRepository struct {
	table *database.Table[ReportRecord]
}

func NewReportRepository(db *database.DB) *ReportRepository {
	return &ReportRepository{table: database.NewTable[ReportRecord](db)}
}

func (r *ReportRepository) Save(ctx context.Context, e pnl.Explain) error {
	if e.ReportID == "" {
		return xerrors.InvalidArg("report id is required")
	}
	err := r.table.Upsert(ctx, newReportRecord(e), []string{"report_id"},
		"contract_id", "window_from", "window_to", "total_pnl", "delta_pnl", "report")
	if err != nil {
		return xerrors.WrapInternal(err, "failed to save explain report").WithContext("report_id", e.ReportID)
	}
	return nil
}

// Get 按报告编号查询。
func (r *ReportRepository) Get(ctx context.Context, reportID string) (pnl.Explain, error) {
	rec, err := r.table.First(ctx, database.Where("report_id = ?", reportID))
	if err != nil {
		if e, ok := xerrors.FromError(err); ok && e.Type == xerrors.ErrNotFound {
			return pnl.Explain{}, xerrors.NotFound("explain report not found").WithContext("report_id", reportID)
		}
		return pnl.Explain{}, err
	}
	return rec.Report, nil
}

// ListByContract 返回合约的全部报告，按窗口结束时间倒序。
func (r *ReportRepository) ListByContract(ctx context.Context, contractID string) ([]pnl.Explain, error) {
	recs, err := r.table.Find(ctx, database.Query{
		Conds: []database.Cond{database.Where("contract_id = ?", contractID)},
		Order: "window_to DESC",
	})
	if err != nil {
		return nil, err
	}
	out := make([]pnl.Explain, len(recs))
	for i, rec := range recs {
		out[i] = rec.Report
	}
	return out, nil
}
