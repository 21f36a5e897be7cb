package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sitecms-api/internal/dto"
	"github.com/noah-isme/sitecms-api/internal/middleware"
	"github.com/noah-isme/sitecms-api/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.ClaimsFromContext(c)
}

// submissionMeta records where a public submission came from. ClientIP honours
// the engine's trusted proxy settings.
func submissionMeta(c *gin.Context) dto.SubmissionMeta {
	return dto.SubmissionMeta{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}
