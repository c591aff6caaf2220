package middleware

import (
	"net/http"
	"testing"

	"github.com/fitroom/fitroom-client/config"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRateLimit_BurstThenRejected(t *testing.T) {
	r := gin.New()
	// Near-zero refill so the burst is the whole allowance.
	r.Use(RateLimit(config.SecurityConfig{RateLimitRPS: 0.001, RateLimitBurst: 2}))
	r.GET("/sync", func(c *gin.Context) { c.Status(http.StatusOK) })

	ip := map[string]string{"X-Real-IP": "203.0.113.7"}
	assert.Equal(t, http.StatusOK, doGet(t, r, "/sync", ip).Code)
	assert.Equal(t, http.StatusOK, doGet(t, r, "/sync", ip).Code)
	assert.Equal(t, http.StatusTooManyRequests, doGet(t, r, "/sync", ip).Code,
		"the request past the burst must be rejected")
}

func TestRateLimit_BucketsAreIndependentPerClient(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(config.SecurityConfig{RateLimitRPS: 0.001, RateLimitBurst: 1}))
	r.GET("/sync", func(c *gin.Context) { c.Status(http.StatusOK) })

	// One device hammering its push must not starve another.
	assert.Equal(t, http.StatusOK, doGet(t, r, "/sync", map[string]string{"X-Real-IP": "203.0.113.1"}).Code)
	assert.Equal(t, http.StatusTooManyRequests, doGet(t, r, "/sync", map[string]string{"X-Real-IP": "203.0.113.1"}).Code)
	assert.Equal(t, http.StatusOK, doGet(t, r, "/sync", map[string]string{"X-Real-IP": "203.0.113.2"}).Code)
}
