package service

import (
	"time"

	"SpotFactory-server/models"

	"gorm.io/gorm"
)

// Store is the persistence boundary of the orchestrator.
type Store interface {
	Project(id string) (*models.Project, error)
	Scenes(projectID string) ([]models.Scene, error)
	SetProjectStatus(id, status string) error
	SetProjectFailure(id string, ordinal int, cause string) error
	SetFinalVideo(id string, fv *models.FinalVideo) error
	SaveScene(scene *models.Scene) error
}

type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

func (s *GormStore) Project(id string) (*models.Project, error) {
	var p models.Project
	if err := s.DB.First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *GormStore) Scenes(projectID string) ([]models.Scene, error) {
	return models.GetScenesByProjectGorm(s.DB, projectID)
}

func (s *GormStore) SetProjectStatus(id, status string) error {
	return s.DB.Model(&models.Project{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}).Error
}

func (s *GormStore) SetProjectFailure(id string, ordinal int, cause string) error {
	return s.DB.Model(&models.Project{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":       models.ProjectStatusFailed,
		"failed_scene": ordinal,
		"error":        cause,
		"updated_at":   time.Now(),
	}).Error
}

func (s *GormStore) SetFinalVideo(id string, fv *models.FinalVideo) error {
	return s.DB.Model(&models.Project{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":      models.ProjectStatusCompleted,
		"final_video": *fv,
		"updated_at":  time.Now(),
	}).Error
}

func (s *GormStore) SaveScene(scene *models.Scene) error {
	return scene.SaveProgress(s.DB)
}
