// Package repository 在 GORM 上持久化持仓快照与损益归因报告。
package repository

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/wyfcoding/optiongreeks/marketdata"
	"github.com/wyfcoding/optiongreeks/pnl"
	"github.com/wyfcoding/optiongreeks/pricing"
)

// SnapshotRecord 快照表行，希腊值整体以 JSON 存储。
type SnapshotRecord struct {
	ID            string            `gorm:"primaryKey;size:36"`
	SnapID        string            `gorm:"uniqueIndex;size:64;not null"`
	ContractID    string            `gorm:"index:idx_snapshot_contract_time,priority:1;size:32;not null"`
	Underlying    string            `gorm:"size:16"`
	Time          time.Time         `gorm:"index:idx_snapshot_contract_time,priority:2;not null"`
	Bid           float64
	Ask           float64
	UnderlyingBid float64
	UnderlyingAsk float64
	IVBid         float64
	IVAsk         float64
	HV            float64
	SkewRelative  float64
	SkewStrike    float64
	Greeks        pricing.GreeksSet `gorm:"serializer:json"`
	CreatedAt     time.Time
}

func (SnapshotRecord) TableName() string { return "position_snapshots" }

// BeforeCreate 为新行分配 UUID。
func (r *SnapshotRecord) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

func newSnapshotRecord(s pnl.Snapshot) *SnapshotRecord {
	return &SnapshotRecord{
		SnapID:        s.SnapID(),
		ContractID:    s.ContractID,
		Underlying:    s.Underlying,
		Time:          s.Time,
		Bid:           s.Bid,
		Ask:           s.Ask,
		UnderlyingBid: s.UnderlyingBid,
		UnderlyingAsk: s.UnderlyingAsk,
		IVBid:         s.IVBid,
		IVAsk:         s.IVAsk,
		HV:            s.HV,
		SkewRelative:  s.Skew.Relative,
		SkewStrike:    s.Skew.Strike,
		Greeks:        s.Greeks,
	}
}

func (r *SnapshotRecord) toSnapshot() pnl.Snapshot {
	return pnl.Snapshot{
		ContractID:    r.ContractID,
		Underlying:    r.Underlying,
		Time:          r.Time,
		Bid:           r.Bid,
		Ask:           r.Ask,
		UnderlyingBid: r.UnderlyingBid,
		UnderlyingAsk: r.UnderlyingAsk,
		IVBid:         r.IVBid,
		IVAsk:         r.IVAsk,
		HV:            r.HV,
		Greeks:        r.Greeks,
		Skew:          marketdata.Skew{Relative: r.SkewRelative, Strike: r.SkewStrike},
	}
}

// ReportRecord 归因报告表行，关键列单独存放，完整报告以 JSON 存储。
type ReportRecord struct {
	ID         string      `gorm:"primaryKey;size:36"`
	ReportID   string      `gorm:"uniqueIndex;size:64;not null"`
	ContractID string      `gorm:"index;size:32;not null"`
	From       time.Time   `gorm:"column:window_from"`
	To         time.Time   `gorm:"column:window_to"`
	Total      float64     `gorm:"column:total_pnl"`
	Delta      float64     `gorm:"column:delta_pnl"`
	Report     pnl.Explain `gorm:"serializer:json"`
	CreatedAt  time.Time
}

func (ReportRecord) TableName() string { return "explain_reports" }

func (r *ReportRecord) BeforeCreate(*gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

func newReportRecord(e pnl.Explain) *ReportRecord {
	return &ReportRecord{
		ReportID:   e.ReportID,
		ContractID: e.ContractID,
		From:       e.From,
		To:         e.To,
		Total:      e.Total,
		Delta:      e.Delta,
		Report:     e,
	}
}

// Migrate 创建或更新全部表结构。
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&SnapshotRecord{}, &ReportRecord{})
}
