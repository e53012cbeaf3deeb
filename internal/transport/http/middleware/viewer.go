package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"pdfchat/internal/pkg/sessiontoken"
)

const ContextViewerIDKey = "viewer_id"

type CookieConfig struct {
	Name   string
	Secure bool
}

// ViewerSession resolves the viewer from the signed session cookie and
// issues a new viewer when the cookie is missing, expired or forged.
func ViewerSession(signer *sessiontoken.Signer, cookie CookieConfig, log *zap.Logger) gin.HandlerFunc {
	maxAge := int(signer.TTL().Seconds())
	return func(c *gin.Context) {
		if raw, err := c.Cookie(cookie.Name); err == nil && raw != "" {
			if viewerID, err := signer.Parse(raw); err == nil {
				c.Set(ContextViewerIDKey, viewerID)
				c.Next()
				return
			}
		}

		token, viewerID, err := signer.Issue()
		if err != nil {
			log.Error("issue viewer session failed", zap.String("module", "session"), zap.Error(err))
			c.AbortWithStatus(500)
			return
		}
		c.SetCookie(cookie.Name, token, maxAge, "/", "", cookie.Secure, true)
		c.Set(ContextViewerIDKey, viewerID)
		c.Next()
	}
}

func ViewerID(c *gin.Context) string {
	return c.GetString(ContextViewerIDKey)
}
