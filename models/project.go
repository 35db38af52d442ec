package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

// Project lifecycle. Status is mutated only by the production orchestrator;
// scene specifications are immutable once production starts.
const (
	ProjectStatusDraft      = "draft"
	ProjectStatusInProgress = "in_progress"
	ProjectStatusCompleted  = "completed"
	ProjectStatusFailed     = "failed"
	ProjectStatusCancelled  = "cancelled"
)

// Subject is the main character or object of the commercial.
type Subject struct {
	Type            string   `json:"type"`
	Name            string   `json:"name,omitempty"`
	Description     string   `json:"description"`
	Characteristics []string `json:"characteristics,omitempty"`
}

// Product being advertised.
type Product struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	BrandColors []string `json:"brand_colors,omitempty"`
}

// BrandGuidelines constrain tone and look across every scene.
type BrandGuidelines struct {
	Mood          string   `json:"mood"`
	ColorPalette  []string `json:"color_palette,omitempty"`
	LightingStyle string   `json:"lighting_style,omitempty"`
}

// Brief bundles the creative metadata of a project into one JSON column.
type Brief struct {
	Subject Subject          `json:"subject"`
	Product *Product         `json:"product,omitempty"`
	Brand   *BrandGuidelines `json:"brand_guidelines,omitempty"`
}

type Project struct {
	ID             string         `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name           string         `json:"name"`
	Status         string         `json:"status"`
	DurationTarget int            `json:"durationTarget"`
	SceneCount     int            `json:"sceneCount"`
	Brief          Brief          `gorm:"type:json" json:"brief"`
	ImageAnalysis  *FrameAnalysis `gorm:"type:json" json:"imageAnalysis,omitempty"`
	FinalVideo     *FinalVideo    `gorm:"type:json" json:"finalVideo,omitempty"`
	FailedScene    int            `json:"failedScene"`
	Error          string         `json:"error,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

func ListProjects(db *gorm.DB) ([]Project, error) {
	var projects []Project
	if err := db.Order("created_at DESC").Find(&projects).Error; err != nil {
		return nil, err
	}
	return projects, nil
}

func (b Brief) Value() (driver.Value, error) {
	return json.Marshal(b)
}

func (b *Brief) Scan(value interface{}) error {
	return scanJSON(value, b)
}

func (Project) TableName() string {
	return "project"
}
