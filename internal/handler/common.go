// Package handler implements the HTTP API.
package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"fintrack/internal/logger"
	"fintrack/internal/middleware"
	"fintrack/internal/models"
	"fintrack/internal/session"
	"fintrack/internal/store"
	"fintrack/internal/util"

	"github.com/gin-gonic/gin"
)

func currentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(middleware.CurrentUserKey)
	if !ok {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "sessão não iniciada")
		return nil, false
	}
	user, ok := v.(*models.User)
	if !ok || user == nil {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "sessão não iniciada")
		return nil, false
	}
	return user, true
}

func currentSession(c *gin.Context) (*session.Session, bool) {
	v, ok := c.Get(middleware.SessionKey)
	if !ok {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "sessão não iniciada")
		return nil, false
	}
	s, ok := v.(*session.Session)
	if !ok || s == nil {
		util.Error(c, http.StatusUnauthorized, util.CodeAuth, "sessão não iniciada")
		return nil, false
	}
	return s, true
}

// parseMonth reads a YYYY-MM value. Empty means the month of now.
func parseMonth(raw string, now time.Time) (int, time.Month, error) {
	if raw == "" {
		return now.Year(), now.Month(), nil
	}
	t, err := time.Parse("2006-01", raw)
	if err != nil {
		return 0, 0, fmt.Errorf("mês inválido %q, use AAAA-MM", raw)
	}
	return t.Year(), t.Month(), nil
}

func parseType(raw string) (models.TxType, error) {
	t := models.TxType(strings.ToLower(strings.TrimSpace(raw)))
	if !t.Valid() {
		return "", fmt.Errorf("tipo inválido %q", raw)
	}
	return t, nil
}

// storeError writes the envelope for an error returned by a store write.
func storeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		util.Error(c, http.StatusNotFound, util.CodeNotFound, "registro não encontrado")
	case errors.Is(err, store.ErrManualDeletionRequired):
		util.Error(c, http.StatusConflict, util.CodeBlocked, "no modo nuvem os dados precisam ser apagados manualmente no console")
	case errors.Is(err, session.ErrInvalidTransaction):
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, err.Error())
	default:
		logger.L().Error().Err(err).Str("path", c.FullPath()).Msg("store_write_failed")
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "falha ao salvar")
	}
}
