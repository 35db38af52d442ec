package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"SpotFactory-server/config"
	"SpotFactory-server/models"
)

// OptimizeRequest carries a scene's raw creative fields plus optional
// visual context (only present for the first scene).
type OptimizeRequest struct {
	Action       string                `json:"action"`
	Emotion      string                `json:"emotion"`
	Dialogue     string                `json:"dialogue,omitempty"`
	Tone         string                `json:"tone,omitempty"`
	ImageContext *models.FrameAnalysis `json:"image_context,omitempty"`
}

type OptimizedPrompt struct {
	Action     string   `json:"optimized_action"`
	Emotion    string   `json:"optimized_emotion"`
	Dialogue   string   `json:"optimized_dialogue,omitempty"`
	Confidence float64  `json:"confidence_score"`
	Keywords   []string `json:"technical_keywords,omitempty"`
}

// PromptOptimizer wraps the external prompt-optimization service. It applies
// a request timeout and surfaces failure instead of hanging; it never
// retries on its own — retry policy belongs to the orchestrator.
type PromptOptimizer interface {
	Optimize(ctx context.Context, req OptimizeRequest) (*OptimizedPrompt, error)
}

type HTTPOptimizer struct {
	Endpoint string
	Client   *http.Client
}

func NewHTTPOptimizer() *HTTPOptimizer {
	return &HTTPOptimizer{
		Endpoint: config.AppConfig.Services.OptimizerAddr,
		Client:   &http.Client{Timeout: time.Duration(config.AppConfig.Production.RequestTimeoutSeconds) * time.Second},
	}
}

func (o *HTTPOptimizer) Optimize(ctx context.Context, req OptimizeRequest) (*OptimizedPrompt, error) {
	jsonBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrOptimizationUnavailable, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.Endpoint+"/v1/optimize", bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrOptimizationUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.Client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOptimizationUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status code %d", ErrOptimizationUnavailable, resp.StatusCode)
	}

	var out OptimizedPrompt
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrOptimizationUnavailable, err)
	}
	if out.Action == "" {
		return nil, fmt.Errorf("%w: response missing optimized_action", ErrOptimizationUnavailable)
	}
	if out.Confidence < 0 || out.Confidence > 1 {
		return nil, fmt.Errorf("%w: confidence_score %f out of range", ErrOptimizationUnavailable, out.Confidence)
	}
	return &out, nil
}
