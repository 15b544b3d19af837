package handler

import (
	"errors"
	"net/http"

	"fintrack/internal/category"
	"fintrack/internal/logger"
	"fintrack/internal/models"
	"fintrack/internal/util"

	"github.com/gin-gonic/gin"
)

// SettingsHandler serves theme, category sets and the clear-all action.
type SettingsHandler struct{}

func NewSettingsHandler() *SettingsHandler {
	return &SettingsHandler{}
}

func (h *SettingsHandler) Get(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	util.Success(c, util.Response{"settings": s.Settings()})
}

type settingsReq struct {
	Theme models.Theme `json:"theme" binding:"required"`
}

// Update changes the theme. Category sets go through the category routes.
func (h *SettingsHandler) Update(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	var req settingsReq
	if err := c.ShouldBindJSON(&req); err != nil || !req.Theme.Valid() {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "tema inválido")
		return
	}
	if err := s.SetTheme(c.Request.Context(), req.Theme); err != nil {
		storeError(c, err)
		return
	}
	util.Success(c, util.Response{"settings": s.Settings()})
}

type categoryReq struct {
	Type string `json:"type" form:"type" binding:"required"`
	Name string `json:"name" form:"name" binding:"required"`
}

func categoryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, category.ErrInvalidName), errors.Is(err, category.ErrInvalidType):
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "categoria inválida")
	case errors.Is(err, category.ErrUnknown):
		util.Error(c, http.StatusNotFound, util.CodeNotFound, "categoria não encontrada")
	case errors.Is(err, category.ErrExists):
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "já existe uma categoria com esse nome")
	default:
		storeError(c, err)
	}
}

func (h *SettingsHandler) AddCategory(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	var req categoryReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "parâmetros inválidos")
		return
	}
	t := models.TxType(req.Type)
	added, err := s.Categories.Add(c.Request.Context(), t, req.Name)
	if err != nil {
		categoryError(c, err)
		return
	}
	util.Success(c, util.Response{
		"added":      added,
		"categories": s.Categories.List(t),
	})
}

// RemoveCategory takes type and name as query parameters. Transactions keep
// the removed label.
func (h *SettingsHandler) RemoveCategory(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	var req categoryReq
	if err := c.ShouldBindQuery(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "parâmetros inválidos")
		return
	}
	t := models.TxType(req.Type)
	if err := s.Categories.Remove(c.Request.Context(), t, req.Name); err != nil {
		categoryError(c, err)
		return
	}
	util.Success(c, util.Response{"categories": s.Categories.List(t)})
}

type renameReq struct {
	Type string `json:"type" binding:"required"`
	Old  string `json:"old" binding:"required"`
	New  string `json:"new" binding:"required"`
}

// RenameCategory relabels a category. In cloud mode stored transactions
// keep the old label and the response carries a warning.
func (h *SettingsHandler) RenameCategory(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	var req renameReq
	if err := c.ShouldBindJSON(&req); err != nil {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "parâmetros inválidos")
		return
	}
	t := models.TxType(req.Type)
	res, err := s.Categories.Rename(c.Request.Context(), t, req.Old, req.New)
	if err != nil {
		categoryError(c, err)
		return
	}
	data := util.Response{
		"result":     res,
		"categories": s.Categories.List(t),
	}
	if !res.Persisted && res.Updated > 0 {
		data["warning"] = "as transações antigas mantêm o nome anterior no armazenamento em nuvem"
	}
	util.Success(c, data)
}

type clearReq struct {
	Confirm bool `json:"confirm"`
}

// Clear erases every transaction and market item of a guest session.
// The body must be {"confirm": true}.
func (h *SettingsHandler) Clear(c *gin.Context) {
	s, ok := currentSession(c)
	if !ok {
		return
	}
	var req clearReq
	if err := c.ShouldBindJSON(&req); err != nil || !req.Confirm {
		util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "confirmação necessária")
		return
	}
	if err := s.Clear(c.Request.Context()); err != nil {
		storeError(c, err)
		return
	}
	logger.L().Info().Str("session_id", s.ID).Msg("session_data_cleared")
	util.Success(c, util.Response{"message": "dados apagados"})
}
