package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hemidirasim/sahibparfum-sub001/internal/errors"
)

// AdminSubjectKey holds the authenticated admin on the gin context.
const AdminSubjectKey = "admin_subject"

// TokenVerifier validates an admin bearer token and returns its subject.
type TokenVerifier interface {
	VerifyToken(token string) (string, error)
}

// RequireAdmin rejects requests without a valid admin bearer token.
func RequireAdmin(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			abortWithError(c, http.StatusUnauthorized, errors.ErrUnauthorized)
			return
		}

		subject, err := v.VerifyToken(token)
		if err != nil {
			abortWithError(c, http.StatusUnauthorized, errors.ErrUnauthorized)
			return
		}

		c.Set(AdminSubjectKey, subject)
		c.Next()
	}
}
