package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

func respondError(c *gin.Context, status int, code string, err error) {
	msg := code
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, gin.H{"error": msg, "code": code})
}

func userParam(c *gin.Context) (string, bool) {
	userID := strings.TrimSpace(c.Param("user_id"))
	if userID == "" {
		respondError(c, http.StatusBadRequest, "invalid_user_id", nil)
		return "", false
	}
	return userID, true
}

func systemNow() time.Time { return time.Now() }
