// respond.go is the single place middleware turns an *apperr.Error into an
// HTTP response. Rejections are terminal: the chain is aborted and no later
// middleware or handler runs.
package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/agendly/agendly-backend/internal/apperr"
)

// reject writes err as a JSON rejection body and aborts the chain. The body
// shape is {success:false, message, code?, details?}; rate-limited rejections
// additionally carry retryAfter (seconds) and a Retry-After header.
func reject(c *gin.Context, err *apperr.Error) {
	body := gin.H{
		"success": false,
		"message": err.Message,
	}
	if err.Code != "" {
		body["code"] = err.Code
	}

	if err.Kind == apperr.KindRateLimited {
		retryAfter := err.RetryAfter()
		body["retryAfter"] = retryAfter
		c.Header("Retry-After", strconv.Itoa(retryAfter))
	} else if len(err.Details) > 0 {
		body["details"] = err.Details
	}

	c.AbortWithStatusJSON(err.HTTPStatus(), body)
}
