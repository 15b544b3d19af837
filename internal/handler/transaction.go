package handler

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"fintrack/internal/models"
	"fintrack/internal/parser"
	"fintrack/internal/session"
	"fintrack/internal/stats"
	"fintrack/internal/store"
	"fintrack/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// TransactionHandler serves the transaction list of the current session.
type TransactionHandler struct{}

func NewTransactionHandler() *TransactionHandler {
	return &TransactionHandler{}
}

type transactionReq struct {
	Description string          `json:"description" binding:"required,max=255"`
	Amount      decimal.Decimal `json:"amount"`
	Type        string          `json:"type" binding:"required,oneof=income expense"`
	Category    string          `json:"category" binding:"required"`
	Date        string          `json:"date"`
}

func (r transactionReq) transaction(id string) (models.Transaction, error) {
	if err := util.ValidateAmount(r.Amount); err != nil {
		return models.Transaction{}, err
	}
	if err := util.ValidateCategory(r.Category); err != nil {
		return models.Transaction{}, err
	}
	day := parser.Today(time.Now())
	if r.Date != "" {
		d, ok := parser.ParseDay(r.Date)
		if !ok {
			return models.Transaction{}, fmt.Errorf("data inválida %q", r.Date)
		}
		day = d
	}
	return models.Transaction{
		ID:          id,
		Description: strings.TrimSpace(r.Description),
		Amount:      r.Amount,
		Type:        models.TxType(r.Type),
		Category:    strings.TrimSpace(r.Category),
		Date:        day,
	}, nil
}

// List returns the transactions of the session, newest first, optionally
// narrowed by month=YYYY-MM, type and category.
func (h *TransactionHandler) List(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}

	var crit stats.Criteria
	if m := c.Query("month"); m != "" {
		y, mon, err := parseMonth(m, time.Now())
		if err != nil {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
			return
		}
		crit.Year, crit.Month = y, mon
	}
	if t := c.Query("type"); t != "" {
		typ, err := parseType(t)
		if err != nil {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
			return
		}
		crit.Type = typ
	}
	crit.Category = strings.TrimSpace(c.Query("category"))

	all := s.State.Transactions()
	items := stats.Filter(all, crit)
	util.Success(c, util.Response{
		"items":      items,
		"total":      len(items),
		"categories": stats.UsedCategories(all),
	})
}

func (h *TransactionHandler) Create(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	var req transactionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "parâmetros inválidos")
		return
	}
	t, err := req.transaction("")
	if err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
		return
	}
	t, err = s.SaveTransaction(c.Request.Context(), t, true)
	if err != nil {
		storeError(c, err)
		return
	}
	util.Success(c, util.Response{"transaction": t})
}

func (h *TransactionHandler) Update(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	var req transactionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "parâmetros inválidos")
		return
	}
	t, err := req.transaction(c.Param("id"))
	if err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
		return
	}
	t, err = s.SaveTransaction(c.Request.Context(), t, false)
	if err != nil {
		storeError(c, err)
		return
	}
	util.Success(c, util.Response{"transaction": t})
}

func (h *TransactionHandler) Delete(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	if err := s.DeleteTransaction(c.Request.Context(), c.Param("id")); err != nil {
		storeError(c, err)
		return
	}
	util.Success(c, util.Response{"message": "transação removida"})
}

// Batch commits reviewed candidates, such as the result of a statement
// scan, registering the categories they introduce.
func (h *TransactionHandler) Batch(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	var req parser.Result
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Candidates) == 0 {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "nenhuma transação para salvar")
		return
	}
	n, err := s.Commit(c.Request.Context(), req)
	if err != nil {
		storeError(c, err)
		return
	}
	util.Success(c, util.Response{
		"saved":    n,
		"rejected": len(req.Candidates) - n,
	})
}

// Stream pushes the full transaction list as server-sent events, once on
// connect and again after every change.
func (h *TransactionHandler) Stream(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	sub, err := s.Store.SubscribeTransactions(c.Request.Context())
	if err != nil {
		storeError(c, err)
		return
	}
	streamUpdates(c, s, "transactions", sub)
}

// MonthlyStats returns the dashboard figures of month=YYYY-MM, the current
// month by default.
func (h *TransactionHandler) MonthlyStats(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	y, m, err := parseMonth(c.Query("month"), time.Now())
	if err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
		return
	}
	sum := stats.Month(s.State.Transactions(), y, m)
	util.Success(c, util.Response{
		"stats": sum,
		"formatted": gin.H{
			"income":  stats.FormatBRL(sum.Income),
			"expense": stats.FormatBRL(sum.Expense),
			"balance": stats.FormatBRL(sum.Balance),
		},
	})
}

func streamUpdates[T any](c *gin.Context, s *session.Session, event string, sub *store.Subscription[T]) {
	defer sub.Cancel()
	release := s.Hold()
	defer release()
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case v, ok := <-sub.Updates():
			if !ok {
				return false
			}
			s.Touch()
			c.SSEvent(event, v)
			return true
		case <-ctx.Done():
			return false
		}
	})
}
