package handler

import (
	"net/http"
	"strings"
	"time"

	"fintrack/internal/logger"
	"fintrack/internal/middleware"
	"fintrack/internal/models"
	"fintrack/internal/session"
	"fintrack/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GuestName is the display name of a guest without one.
const GuestName = "Convidado"

// AuthHandler issues and revokes session tokens. Cloud tokens are issued
// by the external auth provider with the shared secret; only guest tokens
// are minted here.
type AuthHandler struct {
	DB          *gorm.DB
	Sessions    *session.Manager
	JWTSecret   string
	Issuer      string
	ExpireHours int
}

func NewAuthHandler(db *gorm.DB, sessions *session.Manager, jwtSecret, issuer string, expireHours int) *AuthHandler {
	return &AuthHandler{
		DB:          db,
		Sessions:    sessions,
		JWTSecret:   jwtSecret,
		Issuer:      issuer,
		ExpireHours: expireHours,
	}
}

type guestReq struct {
	Name string `json:"name" binding:"max=64"`
}

// Guest starts a device-local session.
func (h *AuthHandler) Guest(c *gin.Context) {
	var req guestReq
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			util.Error(c, http.StatusBadRequest, util.CodeInvalidParam, "parâmetros inválidos")
			return
		}
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = GuestName
	}

	user := models.User{
		ID:      "guest-" + uuid.NewString(),
		Name:    name,
		IsGuest: true,
	}
	ttl := time.Duration(h.ExpireHours) * time.Hour
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	row := models.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Guest:     true,
		ExpiresAt: time.Now().Add(ttl),
	}
	if err := h.DB.Create(&row).Error; err != nil {
		logger.L().Error().Err(err).Msg("guest_session_create_failed")
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "falha ao criar sessão")
		return
	}

	token, err := util.GenerateToken(h.JWTSecret, h.Issuer, user, row.ID, ttl)
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "falha ao gerar token")
		return
	}

	logger.L().Info().Str("user_id", user.ID).Str("session_id", row.ID).Msg("guest_session_created")
	util.Success(c, util.Response{
		"token":      token,
		"expires_at": row.ExpiresAt,
		"user":       user,
	})
}

// Logout revokes the current token and closes its live session.
func (h *AuthHandler) Logout(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	sid := c.GetString(middleware.SessionIDKey)

	row := models.Session{ID: sid, UserID: user.ID, Guest: user.IsGuest, Revoked: true, ExpiresAt: time.Now()}
	err := h.DB.Where(models.Session{ID: sid}).Assign(models.Session{Revoked: true}).FirstOrCreate(&row).Error
	if err != nil {
		util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "falha ao encerrar sessão")
		return
	}
	if err := h.Sessions.Close(sid); err != nil {
		logger.L().Warn().Err(err).Str("session_id", sid).Msg("session_close_failed")
	}
	util.Success(c, util.Response{"message": "sessão encerrada"})
}
