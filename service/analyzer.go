package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"SpotFactory-server/config"
	"SpotFactory-server/models"
)

// FrameAnalyzer wraps the external vision-analysis service. For a first
// scene the analysis carries a full generated prompt for the product image;
// for later scenes it carries the continuity suggestion extracted from the
// previous clip's last frame. No self-retry, bounded by a request timeout.
type FrameAnalyzer interface {
	Analyze(ctx context.Context, image []byte, mimeType string, firstScene bool) (*models.FrameAnalysis, error)
}

type HTTPAnalyzer struct {
	Endpoint string
	Client   *http.Client
}

func NewHTTPAnalyzer() *HTTPAnalyzer {
	return &HTTPAnalyzer{
		Endpoint: config.AppConfig.Services.AnalyzerAddr,
		Client:   &http.Client{Timeout: time.Duration(config.AppConfig.Production.RequestTimeoutSeconds) * time.Second},
	}
}

func (a *HTTPAnalyzer) Analyze(ctx context.Context, image []byte, mimeType string, firstScene bool) (*models.FrameAnalysis, error) {
	reqBody := map[string]interface{}{
		"image_data":     base64.StdEncoding.EncodeToString(image),
		"mime_type":      mimeType,
		"is_first_scene": firstScene,
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrAnalysisUnavailable, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.Endpoint+"/v1/analyze", bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrAnalysisUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAnalysisUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status code %d", ErrAnalysisUnavailable, resp.StatusCode)
	}

	var raw struct {
		SubjectPosition     string                  `json:"subject_position"`
		CameraAngle         string                  `json:"camera_angle"`
		Lighting            string                  `json:"lighting"`
		Mood                string                  `json:"mood"`
		Colors              []string                `json:"colors"`
		Elements            []models.TrackedElement `json:"elements"`
		VideoPrompt         string                  `json:"video_prompt"`
		NextSceneSuggestion string                  `json:"next_scene_suggestion"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrAnalysisUnavailable, err)
	}

	analysis := &models.FrameAnalysis{
		SubjectPosition:      raw.SubjectPosition,
		CameraAngle:          raw.CameraAngle,
		Lighting:             raw.Lighting,
		Mood:                 raw.Mood,
		Colors:               raw.Colors,
		Elements:             raw.Elements,
		GeneratedPrompt:      raw.VideoPrompt,
		ContinuitySuggestion: raw.NextSceneSuggestion,
	}
	if firstScene && analysis.GeneratedPrompt == "" {
		return nil, fmt.Errorf("%w: response missing video_prompt for first scene", ErrAnalysisUnavailable)
	}
	if !firstScene && analysis.ContinuitySuggestion == "" {
		return nil, fmt.Errorf("%w: response missing next_scene_suggestion", ErrAnalysisUnavailable)
	}
	return analysis, nil
}
