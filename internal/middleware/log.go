package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"fintrack/internal/logger"
	"fintrack/internal/models"
	"fintrack/internal/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// maxAuditBody is the largest JSON body copied into an audit action.
const maxAuditBody = 2000

func mutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// AuditMiddleware records every mutating call of a signed-in user. Path and
// action are encrypted with encryptKey before they reach the database.
func AuditMiddleware(db *gorm.DB, encryptKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !mutating(c.Request.Method) {
			c.Next()
			return
		}

		var userID string
		if v, ok := c.Get(CurrentUserKey); ok {
			if user, ok := v.(*models.User); ok && user != nil {
				userID = user.ID
			}
		}

		var body []byte
		isJSON := strings.HasPrefix(c.ContentType(), "application/json")
		if isJSON && c.Request.Body != nil {
			body, _ = io.ReadAll(io.LimitReader(c.Request.Body, maxAuditBody+1))
			c.Request.Body = struct {
				io.Reader
				io.Closer
			}{io.MultiReader(bytes.NewReader(body), c.Request.Body), c.Request.Body}
		}

		c.Next()

		if userID == "" {
			return
		}

		path := c.Request.URL.Path
		action := c.Request.Method + " " + path
		if len(body) > 0 && len(body) <= maxAuditBody {
			action += " " + string(body)
		}

		encPath, err := util.EncryptField(encryptKey, path)
		if err != nil {
			logger.L().Warn().Err(err).Msg("audit_encrypt_failed")
			return
		}
		encAction, err := util.EncryptField(encryptKey, action)
		if err != nil {
			logger.L().Warn().Err(err).Msg("audit_encrypt_failed")
			return
		}

		entry := models.AuditLog{
			UserID:    userID,
			SessionID: c.GetString(SessionIDKey),
			Method:    c.Request.Method,
			PathEnc:   encPath,
			ActionEnc: encAction,
			Status:    c.Writer.Status(),
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}
		if err := db.Create(&entry).Error; err != nil {
			logger.L().Warn().Err(err).Str("user_id", userID).Msg("audit_write_failed")
		}
	}
}
