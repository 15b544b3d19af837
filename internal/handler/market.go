package handler

import (
	"net/http"
	"time"

	"fintrack/internal/parser"
	"fintrack/internal/util"

	"github.com/gin-gonic/gin"
)

// MarketHandler serves the itemized grocery receipts of the session.
type MarketHandler struct{}

func NewMarketHandler() *MarketHandler {
	return &MarketHandler{}
}

// Receipts lists the receipts of month=YYYY-MM (all=1 for every month),
// with q narrowing items by name or category.
func (h *MarketHandler) Receipts(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}

	var (
		year  int
		month time.Month
	)
	if c.Query("all") != "1" {
		y, m, err := parseMonth(c.Query("month"), time.Now())
		if err != nil {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
			return
		}
		year, month = y, m
	}

	groups := parser.GroupReceipts(s.State.MarketItems(), year, month, c.Query("q"))
	util.Success(c, util.Response{
		"receipts": groups,
		"total":    len(groups),
	})
}

// CreateReceipt stores a reviewed receipt: one expense for its total plus
// its items.
func (h *MarketHandler) CreateReceipt(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	var req parser.ItemizedReceipt
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "parâmetros inválidos")
		return
	}
	if len(req.Items) == 0 {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "recibo sem itens")
		return
	}

	tx, items := parser.FromItemizedReceipt(req, time.Now())
	if err := s.SaveReceipt(c.Request.Context(), tx, items); err != nil {
		storeError(c, err)
		return
	}
	util.Success(c, util.Response{
		"transaction": tx,
		"items":       items,
	})
}

// Stream pushes the market item list as server-sent events.
func (h *MarketHandler) Stream(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	sub, err := s.Store.SubscribeMarketItems(c.Request.Context())
	if err != nil {
		storeError(c, err)
		return
	}
	streamUpdates(c, s, "market_items", sub)
}
