package handler

import (
	"context"
	"net/http"

	"billing-lifecycle/internal/domain/currency"
	"billing-lifecycle/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// RateQuerier is satisfied by services.RateService.
type RateQuerier interface {
	GetRate(ctx context.Context, base, target string) (currency.Quote, error)
	Convert(ctx context.Context, amount decimal.Decimal, base, target string) (decimal.Decimal, currency.Quote, error)
	UpsertRate(ctx context.Context, rate currency.ExchangeRate) (currency.ExchangeRate, error)
}

type RateHandler struct {
	rates RateQuerier
}

func NewRateHandler(rates RateQuerier) *RateHandler {
	return &RateHandler{rates: rates}
}

func (h *RateHandler) Get(c *gin.Context) {
	q, err := h.rates.GetRate(c.Request.Context(), c.Param("base"), c.Param("target"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.FromQuote(q)))
}

// Convert handles GET /v1/rates/convert?amount=10&from=USD&to=EUR.
func (h *RateHandler) Convert(c *gin.Context) {
	amount, err := decimal.NewFromString(c.Query("amount"))
	if err != nil {
		badRequest(c, "amount must be a decimal number")
		return
	}
	converted, q, err := h.rates.Convert(c.Request.Context(), amount, c.Query("from"), c.Query("to"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(httpdto.ConvertResponse{
		Amount:    amount,
		Converted: converted,
		Quote:     httpdto.FromQuote(q),
	}))
}

// Upsert creates a rate, or updates it when the route carries an id.
func (h *RateHandler) Upsert(c *gin.Context) {
	var id int64
	if c.Param("id") != "" {
		var ok bool
		if id, ok = parseID(c, "id"); !ok {
			return
		}
	}
	var req httpdto.UpsertRateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	rate := currency.ExchangeRate{
		ID:               id,
		BaseCurrency:     req.BaseCurrency,
		TargetCurrency:   req.TargetCurrency,
		Rate:             req.Rate,
		MarkupPercentage: req.MarkupPercentage,
		ExpiryDate:       req.ExpiryDate,
		Source:           req.Source,
		IsActive:         true,
	}
	if req.EffectiveDate != nil {
		rate.EffectiveDate = req.EffectiveDate.UTC()
	}
	saved, err := h.rates.UpsertRate(c.Request.Context(), rate)
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusOK
	if id == 0 {
		status = http.StatusCreated
	}
	c.JSON(status, httpdto.NewSuccessResponse(httpdto.FromExchangeRate(saved)))
}
