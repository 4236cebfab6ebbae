package service

import (
	"time"

	"github.com/wyfcoding/optiongreeks/pnl"
)

// GreeksRequest 在给定标的价格与波动率下求希腊值，Date 为零值时使用估值时钟的当前日期。
type GreeksRequest struct {
	ContractID string    `json:"contract" form:"contract" binding:"required"`
	Spot       float64   `json:"spot"     form:"spot"     binding:"required,gt=0"`
	Vol        float64   `json:"vol"      form:"vol"      binding:"gte=0"`
	Date       time.Time `json:"date"     form:"date"     time_format:"2006-01-02"`
	Version    int       `json:"version"  form:"version"`
}

// IVRequest 由期权价格反解隐含波动率；Bid/Ask 用于双边求解。
type IVRequest struct {
	ContractID string    `json:"contract" form:"contract" binding:"required"`
	Price      float64   `json:"price"    form:"price"`
	Bid        float64   `json:"bid"      form:"bid"`
	Ask        float64   `json:"ask"      form:"ask"`
	Spot       float64   `json:"spot"     form:"spot"     binding:"required,gt=0"`
	Accuracy   float64   `json:"accuracy" form:"accuracy"`
	Date       time.Time `json:"date"     form:"date"     time_format:"2006-01-02"`
	Version    int       `json:"version"  form:"version"`
}

// PriceRequest 以给定波动率求理论价格。
type PriceRequest struct {
	ContractID string    `json:"contract" form:"contract" binding:"required"`
	Spot       float64   `json:"spot"     form:"spot"`
	Vol        float64   `json:"vol"      form:"vol"      binding:"gte=0"`
	Date       time.Time `json:"date"     form:"date"     time_format:"2006-01-02"`
	Version    int       `json:"version"  form:"version"`
}

// ExplainRequest 对一组成交与快照做归因。Trades 第一笔为开仓成交。
type ExplainRequest struct {
	Underlying      string         `json:"underlying"     binding:"required"`
	Trades          []pnl.Trade    `json:"trades"         binding:"required,min=1"`
	Snapshots       []pnl.Snapshot `json:"snapshots"`
	PremiumOnExpiry float64        `json:"premium_on_expiry"`
}

// PriceResponse 理论价格。
type PriceResponse struct {
	ContractID string  `json:"contract"`
	Price      float64 `json:"price"`
}

// IVResponse 单边隐含波动率。
type IVResponse struct {
	ContractID string  `json:"contract"`
	IV         float64 `json:"iv"`
}
