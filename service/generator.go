package service

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"SpotFactory-server/config"
	"SpotFactory-server/models"

	"github.com/google/uuid"
)

type GenerationRequest struct {
	Prompt         string `json:"prompt"`
	Duration       int    `json:"duration"`
	CameraMovement string `json:"camera_movement,omitempty"`
	Lighting       string `json:"lighting,omitempty"`
}

// GeneratedClip bundles the stored clip with the raw bytes of its final
// frame, which feed the next scene's analysis.
type GeneratedClip struct {
	Clip           models.Clip
	FinalFrame     []byte
	FinalFrameMIME string
}

// ClipGenerator wraps the external text-to-video worker. Generation is
// minutes-scale; the call blocks until the job completes or the deadline
// passes. No self-retry.
type ClipGenerator interface {
	Generate(ctx context.Context, req GenerationRequest) (*GeneratedClip, error)
}

type WorkerGenerator struct {
	jobs       *jobClient
	httpClient *http.Client
}

func NewWorkerGenerator() *WorkerGenerator {
	cfg := config.AppConfig.Production
	return &WorkerGenerator{
		jobs: newJobClient(
			config.AppConfig.Services.GeneratorAddr,
			time.Duration(cfg.PollIntervalSeconds)*time.Second,
			time.Duration(cfg.GenerationTimeoutMinutes)*time.Minute,
		),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

func (g *WorkerGenerator) Generate(ctx context.Context, req GenerationRequest) (*GeneratedClip, error) {
	result, err := g.jobs.run(ctx, "/v1/generate", req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationUnavailable, err)
	}
	if result.ResourceURL == "" {
		return nil, fmt.Errorf("%w: result missing resource_url", ErrGenerationUnavailable)
	}

	clipID := "clip_" + uuid.NewString()[:8]

	clipURL, err := mirrorToMinIO(ctx, result.ResourceURL, fmt.Sprintf("clips/%s/clip.mp4", clipID))
	if err != nil {
		return nil, fmt.Errorf("%w: store clip: %v", ErrGenerationUnavailable, err)
	}

	clip := models.Clip{
		ClipID:     clipID,
		URL:        clipURL,
		Duration:   result.Duration,
		Resolution: result.Resolution,
	}

	out := &GeneratedClip{Clip: clip}
	if result.LastFrameURL != "" {
		frame, mime, err := fetchBytes(ctx, g.httpClient, result.LastFrameURL)
		if err != nil {
			return nil, fmt.Errorf("%w: fetch final frame: %v", ErrGenerationUnavailable, err)
		}
		frameURL, err := UploadToMinIO(bytes.NewReader(frame), fmt.Sprintf("clips/%s/last_frame.jpg", clipID), int64(len(frame)))
		if err != nil {
			return nil, fmt.Errorf("%w: store final frame: %v", ErrGenerationUnavailable, err)
		}
		out.Clip.FinalFrameURL = frameURL
		out.FinalFrame = frame
		out.FinalFrameMIME = mime
	}
	return out, nil
}
