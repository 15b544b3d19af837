package middleware

import (
	"errors"
	"net/http"
	"strings"

	"fintrack/internal/logger"
	"fintrack/internal/models"
	"fintrack/internal/session"
	"fintrack/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Keys of the values the middleware stores in the gin context.
const (
	CurrentUserKey = "currentUser"
	SessionIDKey   = "sessionID"
	SessionKey     = "session"
)

// TokenCookie may carry the session token for clients that cannot set headers.
const TokenCookie = "ft_token"

func tokenFrom(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	// EventSource and download links cannot set headers
	if t := c.Query("token"); t != "" {
		return t
	}
	if cookie, err := c.Cookie(TokenCookie); err == nil {
		return cookie
	}
	return ""
}

// AuthMiddleware verifies the session token and puts the user and session
// id in the context. Guest tokens are only honored while their session row
// exists and is not revoked. Cloud tokens come from the auth provider; a
// revoked row blocks them and the user row is created on first use.
func AuthMiddleware(jwtSecret string, db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := tokenFrom(c)
		if tokenStr == "" {
			util.Error(c, http.StatusUnauthorized, util.CodeAuth, "sessão não iniciada")
			c.Abort()
			return
		}

		claims, err := util.ParseToken(jwtSecret, tokenStr)
		if err != nil {
			util.Error(c, http.StatusUnauthorized, util.CodeAuth, "sessão expirada, entre novamente")
			c.Abort()
			return
		}

		var row models.Session
		err = db.Where("id = ?", claims.ID).First(&row).Error
		switch {
		case err == nil:
			if row.Revoked || row.UserID != claims.Subject {
				util.Error(c, http.StatusUnauthorized, util.CodeAuth, "sessão encerrada")
				c.Abort()
				return
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			if claims.Guest {
				util.Error(c, http.StatusUnauthorized, util.CodeAuth, "sessão encerrada")
				c.Abort()
				return
			}
		default:
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "falha ao verificar sessão")
			c.Abort()
			return
		}

		user := claims.User()
		if !user.IsGuest {
			// first sighting stores the provider profile, later edits win
			seen := claims.User()
			if err := db.Where(models.User{ID: user.ID}).FirstOrCreate(&seen).Error; err != nil {
				logger.L().Error().Err(err).Str("user_id", user.ID).Msg("user_upsert_failed")
				util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "falha ao registrar usuário")
				c.Abort()
				return
			}
			user = seen
			user.IsGuest = false
		}

		c.Set(CurrentUserKey, &user)
		c.Set(SessionIDKey, claims.ID)
		c.Next()
	}
}

// SessionMiddleware binds the live session of the request's session id.
// It must run after AuthMiddleware.
func SessionMiddleware(mgr *session.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := c.MustGet(CurrentUserKey).(*models.User)
		if !ok || user == nil {
			util.Error(c, http.StatusUnauthorized, util.CodeAuth, "sessão não iniciada")
			c.Abort()
			return
		}
		s, err := mgr.Get(c.GetString(SessionIDKey), *user)
		if err != nil {
			logger.L().Error().Err(err).Str("user_id", user.ID).Msg("session_start_failed")
			util.Error(c, http.StatusInternalServerError, util.CodeServerErr, "falha ao abrir sessão")
			c.Abort()
			return
		}
		c.Set(SessionKey, s)
		c.Next()
	}
}
