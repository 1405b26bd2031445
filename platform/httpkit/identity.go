// Package httpkit provides HTTP utilities including operator identity.
package httpkit

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// OperatorHeader carries the id of the human driving a review session.
// Authentication sits in front of this service; the header is trusted.
const OperatorHeader = "X-Operator-ID"

// ContextOperatorIDKey is the gin context key for the operator id.
const ContextOperatorIDKey = "operatorID"

// Operator is the caller identity handlers work with.
type Operator interface {
	ID() string
	IsKnown() bool
}

type operator struct {
	id string
}

func (o operator) ID() string    { return o.id }
func (o operator) IsKnown() bool { return o.id != "" }

// OperatorIdentity copies the operator header into the gin context.
func OperatorIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := strings.TrimSpace(c.GetHeader(OperatorHeader)); id != "" {
			c.Set(ContextOperatorIDKey, id)
		}
		c.Next()
	}
}

// GetOperator extracts the operator from a gin context.
func GetOperator(c *gin.Context) Operator {
	if raw, ok := c.Get(ContextOperatorIDKey); ok {
		if id, ok := raw.(string); ok {
			return operator{id: id}
		}
	}
	return operator{}
}

// MustGetOperator aborts with 401 when no operator header was sent.
func MustGetOperator(c *gin.Context) Operator {
	op := GetOperator(c)
	if !op.IsKnown() {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "missing " + OperatorHeader + " header"})
		return nil
	}
	return op
}
