package mw

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// OperatorKey is the gin context key holding the acting operator.
const OperatorKey = "operator"

// Operator reads the operator id from header. Reads pass without it, writes
// are rejected because every transition and folio line records its actor.
func Operator(header string) gin.HandlerFunc {
	return func(c *gin.Context) {
		op := strings.TrimSpace(c.GetHeader(header))
		if op != "" {
			c.Set(OperatorKey, op)
		} else if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": header + " header is required", "code": "OperatorRequired"})
			return
		}
		c.Next()
	}
}
