package handler

import "github.com/gin-gonic/gin"

// Health answers GET /health with the §6 contract. It is a liveness
// probe for the API process itself, distinct from the metrics server's
// /livez and /healthz (the latter also pings the database).
func Health(c *gin.Context) {
	c.JSON(200, gin.H{"code": 200, "success": true})
}
