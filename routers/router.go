package routers

import (
	"SpotFactory-server/routers/api"

	"github.com/gin-gonic/gin"
)

func InitRouter() *gin.Engine {
	r := gin.Default()
	v1 := r.Group("/v1/api")
	{
		v1.POST("/projects", api.CreateProject)
		v1.GET("/projects", api.ListProjects)
		v1.GET("/projects/:project_id", api.GetProject)
		v1.DELETE("/projects/:project_id", api.DeleteProject)

		v1.POST("/continuity/validate", api.ValidateContinuity)

		v1.POST("/projects/:project_id/production", api.StartProduction)
		v1.GET("/projects/:project_id/production", api.GetProductionStatus)
		v1.GET("/projects/:project_id/scenes", api.GetSceneStatuses)
		v1.POST("/projects/:project_id/production/approve", api.ApproveScene)
		v1.POST("/projects/:project_id/production/cancel", api.CancelProduction)
	}
	r.GET("/projects/:project_id/production/ws", api.ProductionProgressWebSocket)
	return r
}
