package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/class-roster-api/internal/middleware"
)

func staffIDFromContext(c *gin.Context) string {
	claims := middleware.Claims(c)
	if claims == nil {
		return ""
	}
	return claims.StaffID
}
