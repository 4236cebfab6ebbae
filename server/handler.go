package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/optiongreeks/datetime"
	"github.com/wyfcoding/optiongreeks/health"
	"github.com/wyfcoding/optiongreeks/marketdata"
	"github.com/wyfcoding/optiongreeks/pnl"
	"github.com/wyfcoding/optiongreeks/pricing"
	"github.com/wyfcoding/optiongreeks/response"
	"github.com/wyfcoding/optiongreeks/service"
	"github.com/wyfcoding/optiongreeks/xerrors"
)

const healthPath = "/sys/health"

// PricingService 是 HTTP 层依赖的用例集合，由 *service.Service 实现。
type PricingService interface {
	RegisterContract(ctx context.Context, t pricing.ContractTerms) error
	Greeks(ctx context.Context, req service.GreeksRequest) (pricing.GreeksSet, error)
	IV(ctx context.Context, req service.IVRequest) (float64, error)
	IVBidAsk(ctx context.Context, req service.IVRequest) (pricing.IVQuote, error)
	PriceFair(ctx context.Context, req service.PriceRequest) (float64, error)
	UpdateQuote(q marketdata.Quote) (bool, error)
	RecordClose(underlying string, closePrice float64)
	AdvanceDate(d time.Time) bool
	OnFill(ctx context.Context, t pnl.Trade) (pnl.Snapshot, error)
	Explain(ctx context.Context, req service.ExplainRequest) (pnl.Explain, error)
	ExplainTracked(ctx context.Context, contractID string, premiumOnExpiry float64) (pnl.Explain, error)
	Report(ctx context.Context, reportID string) (pnl.Explain, error)
}

// Handler 把 HTTP 请求翻译为用例调用。
type Handler struct {
	svc    PricingService
	health *health.Registry
}

// NewHandler 创建 HTTP 处理器，checks 可为空。
func NewHandler(svc PricingService, checks *health.Registry) *Handler {
	if checks == nil {
		checks = health.NewRegistry(0)
	}
	return &Handler{svc: svc, health: checks}
}

// Register 挂载全部业务路由。
func (h *Handler) Register(r gin.IRouter) {
	v1 := r.Group("/v1")
	v1.POST("/contracts", h.registerContract)
	v1.GET("/greeks", h.greeks)
	v1.GET("/iv", h.iv)
	v1.GET("/iv/bidask", h.ivBidAsk)
	v1.GET("/price", h.price)
	v1.POST("/quotes", h.updateQuote)
	v1.POST("/closes", h.recordClose)
	v1.POST("/clock", h.advanceDate)
	v1.POST("/fills", h.fill)
	v1.POST("/explain", h.explain)
	v1.POST("/explain/tracked/:contract", h.explainTracked)
	v1.GET("/explain/:id", h.report)

	r.GET(healthPath, h.healthz)
}

func (h *Handler) registerContract(c *gin.Context) {
	var terms pricing.ContractTerms
	if err := c.ShouldBindJSON(&terms); err != nil {
		response.Error(c, xerrors.ErrInvalidInput.WithDetail("%v", err))
		return
	}
	if err := h.svc.RegisterContract(c.Request.Context(), terms); err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithStatus(c, http.StatusCreated, terms)
}

func (h *Handler) greeks(c *gin.Context) {
	var req service.GreeksRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, xerrors.ErrInvalidInput.WithDetail("%v", err))
		return
	}
	g, err := h.svc.Greeks(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, g)
}

func (h *Handler) iv(c *gin.Context) {
	var req service.IVRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, xerrors.ErrInvalidInput.WithDetail("%v", err))
		return
	}
	if req.Price <= 0 {
		response.Error(c, xerrors.ErrInvalidInput.WithDetail("price must be positive"))
		return
	}
	iv, err := h.svc.IV(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, service.IVResponse{ContractID: req.ContractID, IV: iv})
}

func (h *Handler) ivBidAsk(c *gin.Context) {
	var req service.IVRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, xerrors.ErrInvalidInput.WithDetail("%v", err))
		return
	}
	q, err := h.svc.IVBidAsk(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, q)
}

func (h *Handler) price(c *gin.Context) {
	var req service.PriceRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, xerrors.ErrInvalidInput.WithDetail("%v", err))
		return
	}
	p, err := h.svc.PriceFair(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, service.PriceResponse{ContractID: req.ContractID, Price: p})
}

func (h *Handler) updateQuote(c *gin.Context) {
	var q marketdata.Quote
	if err := c.ShouldBindJSON(&q); err != nil {
		response.Error(c, xerrors.ErrInvalidInput.WithDetail("%v", err))
		return
	}
	if q.Time.IsZero() {
		q.Time = time.Now().UTC()
	}
	changed, err := h.svc.UpdateQuote(q)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"changed": changed})
}

type closeRequest struct {
	Underlying string  `json:"underlying" binding:"required"`
	Close      float64 `json:"close"      binding:"required,gt=0"`
}

func (h *Handler) recordClose(c *gin.Context) {
	var req closeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, xerrors.ErrInvalidInput.WithDetail("%v", err))
		return
	}
	h.svc.RecordClose(req.Underlying, req.Close)
	response.Success(c, nil)
}

type clockRequest struct {
	Date string `json:"date" binding:"required"`
}

func (h *Handler) advanceDate(c *gin.Context) {
	var req clockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, xerrors.ErrInvalidInput.WithDetail("%v", err))
		return
	}
	d, err := datetime.ParseDate(req.Date)
	if err != nil {
		response.Error(c, xerrors.ErrInvalidInput.WithDetail("date must be YYYY-MM-DD"))
		return
	}
	response.Success(c, gin.H{"changed": h.svc.AdvanceDate(d), "date": datetime.FormatDate(d)})
}

func (h *Handler) fill(c *gin.Context) {
	var t pnl.Trade
	if err := c.ShouldBindJSON(&t); err != nil {
		response.Error(c, xerrors.ErrInvalidInput.WithDetail("%v", err))
		return
	}
	snap, err := h.svc.OnFill(c.Request.Context(), t)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, snap)
}

func (h *Handler) explain(c *gin.Context) {
	var req service.ExplainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, xerrors.ErrInvalidInput.WithDetail("%v", err))
		return
	}
	report, err := h.svc.Explain(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, report)
}

type trackedRequest struct {
	PremiumOnExpiry float64 `json:"premium_on_expiry"`
}

func (h *Handler) explainTracked(c *gin.Context) {
	var req trackedRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, xerrors.ErrInvalidInput.WithDetail("%v", err))
			return
		}
	}
	report, err := h.svc.ExplainTracked(c.Request.Context(), c.Param("contract"), req.PremiumOnExpiry)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, report)
}

func (h *Handler) report(c *gin.Context) {
	report, err := h.svc.Report(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, report)
}

func (h *Handler) healthz(c *gin.Context) {
	rep := h.health.Check(c.Request.Context())
	status := http.StatusOK
	if !rep.Up() {
		status = http.StatusServiceUnavailable
	}
	response.SuccessWithRawData(c, status, rep)
}
