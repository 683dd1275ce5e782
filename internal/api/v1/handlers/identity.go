package handlers

import "github.com/gin-gonic/gin"

// UserID extracts the caller's identity from the X-User-ID header. The auth
// collaborator sits in front of this service; the header carries its verified
// result. Anonymous callers share one ledger.
func UserID(c *gin.Context) string {
	if id := c.GetHeader("X-User-ID"); id != "" {
		return id
	}
	return "anonymous"
}
