package api

import (
	"github.com/gin-gonic/gin"

	"github.com/soullab/oracle-choreography/api/handlers"
)

// SetupRoutes initializes all API endpoints.
func SetupRoutes(router *gin.Engine, deps *handlers.Deps) {
	api := router.Group("/api")
	{
		api.POST("/turn", deps.HandleTurn)
		api.GET("/agents", deps.GetAgents)
		api.GET("/agents/:agentID", deps.GetAgent)
		api.PATCH("/agents/:agentID", deps.UpdateAgent)
		api.GET("/sessions/:sessionID/metrics", deps.GetSessionMetrics)
		api.GET("/sessions/:sessionID/history", deps.GetSessionHistory)
		api.GET("/rules", deps.GetRules)
		api.PUT("/rules", deps.ReplaceRules)
	}
	router.GET("/ws", deps.HandleWebSocket)
}
