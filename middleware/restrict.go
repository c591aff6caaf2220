package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RestrictIPs limits a route group to the given caller IPs. The debug
// surface uses it so hub stats stay reachable from an operator box
// without being public. An empty list means unrestricted, which is the
// local-development default.
func RestrictIPs(ips []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(ips))
	for _, ip := range ips {
		allowed[ip] = struct{}{}
	}
	return func(c *gin.Context) {
		if len(allowed) == 0 {
			c.Next()
			return
		}
		if _, ok := allowed[c.ClientIP()]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
