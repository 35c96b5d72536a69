package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-case-api/internal/middleware"
	"github.com/noah-isme/sma-case-api/internal/models"
)

// authFromContext derives the caller identity from the validated JWT claims.
// Without claims it returns an empty context, which services reject.
func authFromContext(c *gin.Context) models.AuthContext {
	claims, ok := middleware.Claims(c)
	if !ok {
		return models.AuthContext{}
	}
	return claims.AuthContext()
}
