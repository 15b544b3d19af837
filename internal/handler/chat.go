package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"fintrack/internal/chat"
	"fintrack/internal/logger"
	"fintrack/internal/stats"
	"fintrack/internal/util"

	"github.com/gin-gonic/gin"
)

// Advisor answers chat messages. *chat.Advisor implements it.
type Advisor interface {
	Advise(ctx context.Context, message string, history []chat.Turn, c chat.Context) (chat.Reply, error)
}

type ChatHandler struct {
	Advisor           Advisor
	TransactionWindow int
	MarketWindow      int
}

func NewChatHandler(a Advisor, txWindow, marketWindow int) *ChatHandler {
	return &ChatHandler{Advisor: a, TransactionWindow: txWindow, MarketWindow: marketWindow}
}

type chatReq struct {
	Message string      `json:"message" binding:"required,max=4000"`
	History []chat.Turn `json:"history"`
	Persona string      `json:"persona"`
}

// Ask sends a message to the advisor with the session's current month,
// recent transactions and market items.
func (h *ChatHandler) Ask(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	if h.Advisor == nil {
		util.Error(c, http.StatusServiceUnavailable, util.CodeUpstream, "assistente não configurado")
		return
	}
	var req chatReq
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "mensagem vazia")
		return
	}
	persona := chat.Persona(req.Persona)
	if !persona.Valid() {
		persona = chat.Formal
	}

	now := time.Now()
	txns := s.State.Transactions()
	cc := chat.Context{
		Stats:             stats.Month(txns, now.Year(), now.Month()),
		Transactions:      txns,
		MarketItems:       s.State.MarketItems(),
		Persona:           persona,
		TransactionWindow: h.TransactionWindow,
		MarketWindow:      h.MarketWindow,
	}

	reply, err := h.Advisor.Advise(c.Request.Context(), req.Message, req.History, cc)
	if err != nil {
		logger.L().Warn().Err(err).Str("session_id", s.ID).Msg("chat_advice_failed")
		util.Error(c, http.StatusBadGateway, util.CodeUpstream, "Desculpe, tive um problema ao processar sua pergunta.")
		return
	}

	html, err := chat.RenderHTML(reply.Text)
	if err != nil {
		html = ""
	}
	util.Success(c, util.Response{
		"reply":   reply,
		"html":    html,
		"persona": persona,
	})
}
