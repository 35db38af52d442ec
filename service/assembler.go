package service

import (
	"context"
	"fmt"
	"time"

	"SpotFactory-server/config"
	"SpotFactory-server/models"
)

// Assembler wraps the external concatenation worker that joins the ordered
// clips into the final commercial.
type Assembler interface {
	Assemble(ctx context.Context, projectID string, clips []models.Clip) (*models.FinalVideo, error)
}

type WorkerAssembler struct {
	jobs *jobClient
}

func NewWorkerAssembler() *WorkerAssembler {
	cfg := config.AppConfig.Production
	return &WorkerAssembler{
		jobs: newJobClient(
			config.AppConfig.Services.AssemblerAddr,
			time.Duration(cfg.PollIntervalSeconds)*time.Second,
			time.Duration(cfg.GenerationTimeoutMinutes)*time.Minute,
		),
	}
}

func (a *WorkerAssembler) Assemble(ctx context.Context, projectID string, clips []models.Clip) (*models.FinalVideo, error) {
	if len(clips) == 0 {
		return nil, fmt.Errorf("%w: no clips to assemble", ErrAssemblyFailed)
	}

	urls := make([]string, len(clips))
	for i, c := range clips {
		urls[i] = c.URL
	}
	payload := map[string]interface{}{
		"project_id":      projectID,
		"clips":           urls,
		"add_transitions": true,
	}

	result, err := a.jobs.run(ctx, "/v1/assemble", payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAssemblyFailed, err)
	}
	if result.ResourceURL == "" {
		return nil, fmt.Errorf("%w: result missing resource_url", ErrAssemblyFailed)
	}

	finalURL, err := mirrorToMinIO(ctx, result.ResourceURL, fmt.Sprintf("final/%s/commercial.mp4", projectID))
	if err != nil {
		return nil, fmt.Errorf("%w: store final video: %v", ErrAssemblyFailed, err)
	}

	return &models.FinalVideo{
		URL:        finalURL,
		Duration:   result.Duration,
		Resolution: result.Resolution,
		SizeBytes:  result.SizeBytes,
		CreatedAt:  time.Now(),
	}, nil
}
