package handler

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mentora/mentora-pay-api/internal/service"
	appErrors "github.com/mentora/mentora-pay-api/pkg/errors"
	"github.com/mentora/mentora-pay-api/pkg/response"
)

// PayoutHandler exposes mentor payout summaries and statement downloads.
type PayoutHandler struct {
	payouts *service.PayoutService
}

// NewPayoutHandler constructs PayoutHandler.
func NewPayoutHandler(payouts *service.PayoutService) *PayoutHandler {
	return &PayoutHandler{payouts: payouts}
}

func parsePayoutPeriod(c *gin.Context) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "from must be YYYY-MM-DD")
		}
		from = parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "to must be YYYY-MM-DD")
		}
		to = parsed
	}
	return from, to, nil
}

// Summary godoc
// @Summary Summarise a mentor's settled commissions
// @Tags Payouts
// @Produce json
// @Param mentorId path string true "Mentor ID"
// @Param from query string false "Period start (YYYY-MM-DD)"
// @Param to query string false "Period end, exclusive (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /payouts/mentors/{mentorId} [get]
func (h *PayoutHandler) Summary(c *gin.Context) {
	from, to, err := parsePayoutPeriod(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	summary, err := h.payouts.Summarize(c.Request.Context(), c.Param("mentorId"), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// GenerateStatement godoc
// @Summary Generate a payout statement file
// @Tags Payouts
// @Produce json
// @Param mentorId path string true "Mentor ID"
// @Param format query string false "csv or pdf" default(csv)
// @Param from query string false "Period start (YYYY-MM-DD)"
// @Param to query string false "Period end, exclusive (YYYY-MM-DD)"
// @Success 201 {object} response.Envelope
// @Router /payouts/mentors/{mentorId}/statements [post]
func (h *PayoutHandler) GenerateStatement(c *gin.Context) {
	from, to, err := parsePayoutPeriod(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	format := service.StatementFormat(strings.ToLower(c.DefaultQuery("format", "csv")))
	result, err := h.payouts.GenerateStatement(c.Request.Context(), c.Param("mentorId"), from, to, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{
		"url":              result.URL,
		"token":            result.Token,
		"format":           result.Format,
		"expires_at":       result.ExpiresAt,
		"payment_count":    result.Summary.PaymentCount,
		"total_commission": result.Summary.TotalCommission,
	})
}

// DownloadStatement godoc
// @Summary Download a generated statement by signed token
// @Tags Payouts
// @Produce application/octet-stream
// @Param token path string true "Signed statement token"
// @Success 200 {file} binary
// @Router /payouts/statements/{token} [get]
func (h *PayoutHandler) DownloadStatement(c *gin.Context) {
	file, err := h.payouts.OpenStatement(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	name := filepath.Base(file.Name())
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.File(file.Name())
}
