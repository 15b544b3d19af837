package handler

import (
	"net/http"
	"strings"

	"fintrack/internal/models"
	"fintrack/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type updateProfileReq struct {
	Name     string `json:"name" binding:"max=64"`
	PhotoURL string `json:"photoUrl" binding:"omitempty,url,max=512"`
}

// UpdateProfile changes the stored name and photo of a cloud user. Guest
// profiles live in the token and cannot be edited.
func UpdateProfile(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := currentUser(c)
		if !ok {
			return
		}
		if user.IsGuest {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "convidados não possuem perfil")
			return
		}

		var req updateProfileReq
		if err := c.ShouldBindJSON(&req); err != nil {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "parâmetros inválidos")
			return
		}
		req.Name = strings.TrimSpace(req.Name)

		updates := map[string]interface{}{}
		if req.Name != "" {
			updates["name"] = req.Name
		}
		if req.PhotoURL != "" {
			updates["photo_url"] = req.PhotoURL
		}
		if len(updates) == 0 {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "nada para atualizar")
			return
		}

		if err := db.Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "falha ao atualizar")
			return
		}

		var fresh models.User
		if err := db.First(&fresh, "id = ?", user.ID).Error; err != nil {
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "falha ao atualizar")
			return
		}
		util.Success(c, util.Response{"user": fresh})
	}
}
