package handler

import (
	"fintrack/internal/util"

	"github.com/gin-gonic/gin"
)

// GetMe returns the session user, its storage mode and settings.
func GetMe(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	s, ok := currentSession(c)
	if !ok {
		return
	}
	util.Success(c, util.Response{
		"user":     user,
		"mode":     s.Mode(),
		"settings": s.Settings(),
	})
}
