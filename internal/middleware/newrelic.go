package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
)

// NewRelicAttributes annotates the transaction started by nrgin with the
// caller's identity and any handler errors. It is a no-op without New Relic.
func NewRelicAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		txn := nrgin.Transaction(c)
		if txn == nil {
			return
		}

		if actor, ok := ActorFrom(c); ok {
			txn.AddAttribute("user.id", actor.ID)
			txn.AddAttribute("user.role", string(actor.Role))
		}
		if id := c.GetString(requestIDHeader); id != "" {
			txn.AddAttribute("request.id", id)
		}
		for _, err := range c.Errors {
			txn.NoticeError(err.Err)
		}
	}
}
