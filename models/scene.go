package models

import (
	"time"

	"gorm.io/gorm"
)

// Scene lifecycle. A scene may only move pending -> generating and then to
// completed, failed, or back to pending while retry budget remains.
const (
	SceneStatusPending    = "pending"
	SceneStatusGenerating = "generating"
	SceneStatusCompleted  = "completed"
	SceneStatusFailed     = "failed"
)

type Scene struct {
	ID             string         `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ProjectId      string         `json:"projectId"`
	Ordinal        int            `json:"ordinal"`
	Name           string         `json:"name"`
	Duration       int            `json:"duration"`
	Prompt         string         `json:"prompt"`
	Dialogue       string         `json:"dialogue,omitempty"`
	Emotion        string         `json:"emotion"`
	CameraMovement string         `json:"cameraMovement"`
	Lighting       string         `json:"lighting"`
	Status         string         `json:"status"`
	RetryCount     int            `json:"retryCount"`
	Error          string         `json:"error,omitempty"`
	Clip           *Clip          `gorm:"type:json" json:"clip,omitempty"`
	Analysis       *FrameAnalysis `gorm:"type:json" json:"analysis,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

func BatchCreateScenes(db *gorm.DB, scenes []Scene) error {
	if len(scenes) == 0 {
		return nil
	}
	return db.Create(&scenes).Error
}

func GetScenesByProjectGorm(db *gorm.DB, projectID string) ([]Scene, error) {
	var scenes []Scene
	if err := db.Where("project_id = ?", projectID).Order("ordinal ASC").Find(&scenes).Error; err != nil {
		return nil, err
	}
	return scenes, nil
}

// SaveProgress persists the mutable lifecycle fields of a scene.
func (s *Scene) SaveProgress(db *gorm.DB) error {
	updates := map[string]interface{}{
		"status":      s.Status,
		"retry_count": s.RetryCount,
		"error":       s.Error,
		"updated_at":  time.Now(),
	}
	if s.Clip != nil {
		updates["clip"] = *s.Clip
	}
	if s.Analysis != nil {
		updates["analysis"] = *s.Analysis
	}
	return db.Model(s).Updates(updates).Error
}

func (Scene) TableName() string {
	return "scene"
}
