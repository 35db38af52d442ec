package api

import (
	"net/http"
	"time"

	"SpotFactory-server/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type sceneSpec struct {
	Name           string `json:"name"`
	Duration       int    `json:"duration"`
	Prompt         string `json:"prompt" binding:"required"`
	Dialogue       string `json:"dialogue"`
	Emotion        string `json:"emotion"`
	CameraMovement string `json:"camera_movement"`
	Lighting       string `json:"lighting"`
}

type createProjectRequest struct {
	Name           string                  `json:"name" binding:"required"`
	DurationTarget int                     `json:"duration_target"`
	Subject        models.Subject          `json:"subject"`
	Product        *models.Product         `json:"product"`
	Brand          *models.BrandGuidelines `json:"brand_guidelines"`
	ImageAnalysis  *models.FrameAnalysis   `json:"image_analysis"`
	Scenes         []sceneSpec             `json:"scenes" binding:"required"`
}

// CreateProject stores a project template with its ordered scene list. The
// project starts as a draft; scene specifications are frozen once
// production starts.
func CreateProject(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Scenes) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "project needs at least one scene"})
		return
	}

	project := models.Project{
		ID:             uuid.NewString(),
		Name:           req.Name,
		Status:         models.ProjectStatusDraft,
		DurationTarget: req.DurationTarget,
		SceneCount:     len(req.Scenes),
		Brief: models.Brief{
			Subject: req.Subject,
			Product: req.Product,
			Brand:   req.Brand,
		},
		ImageAnalysis: req.ImageAnalysis,
		FailedScene:   -1,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	if err := models.CreateProject(&project); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create project: " + err.Error()})
		return
	}

	scenes := make([]models.Scene, 0, len(req.Scenes))
	for i, spec := range req.Scenes {
		duration := spec.Duration
		if duration <= 0 {
			duration = 8
		}
		scenes = append(scenes, models.Scene{
			ID:             uuid.NewString(),
			ProjectId:      project.ID,
			Ordinal:        i,
			Name:           spec.Name,
			Duration:       duration,
			Prompt:         spec.Prompt,
			Dialogue:       spec.Dialogue,
			Emotion:        spec.Emotion,
			CameraMovement: spec.CameraMovement,
			Lighting:       spec.Lighting,
			Status:         models.SceneStatusPending,
			CreatedAt:      time.Now(),
			UpdatedAt:      time.Now(),
		})
	}
	if err := models.BatchCreateScenes(models.GormDB, scenes); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create scenes: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"project_id":  project.ID,
		"scene_count": len(scenes),
	})
}

// ListProjects returns every project, newest first, without scenes.
func ListProjects(c *gin.Context) {
	projects, err := models.ListProjects(models.GormDB)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list projects: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

// GetProject returns a project with its scenes.
func GetProject(c *gin.Context) {
	projectID := c.Param("project_id")

	project, err := models.GetProjectByID(projectID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found: " + err.Error()})
		return
	}
	scenes, err := models.GetScenesByProjectID(projectID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load scenes: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"project": project,
		"scenes":  scenes,
	})
}

// DeleteProject removes a project and its scenes. Completed clip artifacts
// in object storage are retained.
func DeleteProject(c *gin.Context) {
	projectID := c.Param("project_id")

	if err := models.DeleteProjectByID(projectID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete project: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "project deleted"})
}
