package api

import (
	"log"
	"net/http"
	"time"

	"SpotFactory-server/models"
	"SpotFactory-server/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StartProduction enqueues a production run for a draft project. The run
// itself executes on the queue worker; this returns immediately.
func StartProduction(c *gin.Context) {
	projectID := c.Param("project_id")

	var req struct {
		AutoMode *bool `json:"auto_mode"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	autoMode := true
	if req.AutoMode != nil {
		autoMode = *req.AutoMode
	}

	project, err := models.GetProjectByID(projectID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found: " + err.Error()})
		return
	}
	if project.Status != models.ProjectStatusDraft {
		c.JSON(http.StatusBadRequest, gin.H{"error": "project is " + project.Status + ", production requires a draft"})
		return
	}

	if err := service.EnqueueProduction(projectID, autoMode); err != nil {
		log.Printf("production enqueue failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue production: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":    "production started",
		"project_id": projectID,
		"auto_mode":  autoMode,
	})
}

// GetProductionStatus serves the live snapshot for pollers, falling back to
// the database when no run is tracked in this process.
func GetProductionStatus(c *gin.Context) {
	projectID := c.Param("project_id")

	if snap, ok := service.Status.Snapshot(projectID); ok {
		c.JSON(http.StatusOK, snap)
		return
	}

	project, err := models.GetProjectByID(projectID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"projectId":   project.ID,
		"status":      project.Status,
		"totalScenes": project.SceneCount,
		"failedScene": project.FailedScene,
		"error":       project.Error,
	})
}

// GetSceneStatuses returns the live per-scene view.
func GetSceneStatuses(c *gin.Context) {
	projectID := c.Param("project_id")

	if scenes, ok := service.Status.SceneStatuses(projectID); ok {
		c.JSON(http.StatusOK, gin.H{"scenes": scenes})
		return
	}

	scenes, err := models.GetScenesByProjectID(projectID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load scenes: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"scenes": scenes})
}

// ApproveScene signals a manual-mode production to advance past its
// current suspension point.
func ApproveScene(c *gin.Context) {
	projectID := c.Param("project_id")

	if !service.Production.Approve(projectID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no running production for project"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "approval recorded", "project_id": projectID})
}

// CancelProduction stops a running production between scenes; a generation
// call already in flight finishes on the worker but its result is discarded.
func CancelProduction(c *gin.Context) {
	projectID := c.Param("project_id")

	if !service.Production.Cancel(projectID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no running production for project"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "cancellation requested", "project_id": projectID})
}

// ProductionProgressWebSocket pushes status snapshots whenever they change,
// closing once the project reaches a terminal state.
func ProductionProgressWebSocket(c *gin.Context) {
	projectID := c.Param("project_id")
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "websocket upgrade failed"})
		return
	}
	defer conn.Close()

	snap, ok := service.Status.Snapshot(projectID)
	if !ok {
		_ = conn.WriteJSON(map[string]interface{}{"error": "no tracked production for project"})
		return
	}
	_ = conn.WriteJSON(snap)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	prevUpdated := snap.UpdatedAt
	for range ticker.C {
		cur, ok := service.Status.Snapshot(projectID)
		if !ok {
			continue
		}
		if cur.UpdatedAt != prevUpdated {
			if err := conn.WriteJSON(cur); err != nil {
				break
			}
			prevUpdated = cur.UpdatedAt
		}
		if cur.Status == models.ProjectStatusCompleted ||
			cur.Status == models.ProjectStatusFailed ||
			cur.Status == models.ProjectStatusCancelled {
			_ = conn.WriteJSON(cur)
			break
		}
	}
}
