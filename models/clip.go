package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Clip is the artifact of one successful scene generation. It only exists
// once the owning scene reaches the completed status.
type Clip struct {
	ClipID        string  `json:"clip_id"`
	URL           string  `json:"url"`
	Duration      float64 `json:"duration"`
	Resolution    string  `json:"resolution"`
	FinalFrameURL string  `json:"final_frame_url,omitempty"`
}

// TrackedElement is a named visual entity whose presence is compared
// across consecutive scenes.
type TrackedElement struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// FrameAnalysis is the structured result of analyzing a single frame.
// GeneratedPrompt is only set for a first-scene (product) analysis,
// ContinuitySuggestion only for the last frame of an intermediate scene.
type FrameAnalysis struct {
	SubjectPosition      string           `json:"subject_position"`
	CameraAngle          string           `json:"camera_angle"`
	Lighting             string           `json:"lighting"`
	Mood                 string           `json:"mood"`
	Colors               []string         `json:"colors,omitempty"`
	Elements             []TrackedElement `json:"elements,omitempty"`
	GeneratedPrompt      string           `json:"generated_prompt,omitempty"`
	ContinuitySuggestion string           `json:"continuity_suggestion,omitempty"`
}

// FinalVideo references the assembler output for a completed project.
type FinalVideo struct {
	URL        string    `json:"url"`
	Duration   float64   `json:"duration"`
	Resolution string    `json:"resolution"`
	SizeBytes  int64     `json:"size_bytes"`
	CreatedAt  time.Time `json:"created_at"`
}

func (c Clip) Value() (driver.Value, error) {
	return json.Marshal(c)
}

func (c *Clip) Scan(value interface{}) error {
	return scanJSON(value, c)
}

func (a FrameAnalysis) Value() (driver.Value, error) {
	return json.Marshal(a)
}

func (a *FrameAnalysis) Scan(value interface{}) error {
	return scanJSON(value, a)
}

func (v FinalVideo) Value() (driver.Value, error) {
	return json.Marshal(v)
}

func (v *FinalVideo) Scan(value interface{}) error {
	return scanJSON(value, v)
}

func scanJSON(value interface{}, dst interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New(fmt.Sprint("failed to unmarshal JSON column value:", value))
	}
	if len(bytes) == 0 {
		return nil
	}
	return json.Unmarshal(bytes, dst)
}
