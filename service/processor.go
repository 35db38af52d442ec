package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"SpotFactory-server/config"

	"github.com/hibiken/asynq"
)

// Processor consumes production tasks off the queue and hands them to the
// orchestrator. One worker goroutine per concurrent production.
type Processor struct{}

func NewProcessor() *Processor {
	return &Processor{}
}

func (p *Processor) StartProcessor(concurrency int) {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     config.AppConfig.Redis.Addr,
			Password: config.AppConfig.Redis.Password,
		},
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeProduceProject, p.HandleProduceTask)

	log.Printf("starting production processor with concurrency %d...", concurrency)
	go func() {
		if err := srv.Run(mux); err != nil {
			log.Fatalf("could not run queue server: %v", err)
		}
	}()
}

// HandleProduceTask runs one production end to end. Business failures are
// recorded on the project by the orchestrator, so they never bubble back to
// the queue as retryable errors.
func (p *Processor) HandleProduceTask(ctx context.Context, t *asynq.Task) error {
	var payload ProductionPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	log.Printf("processing production: project=%s autoMode=%v", payload.ProjectID, payload.AutoMode)
	result, err := Production.Produce(ctx, payload.ProjectID, payload.AutoMode)
	if err != nil {
		if errors.Is(err, ErrInvalidProjectState) {
			// precondition violations are not retryable
			log.Printf("production rejected: %v", err)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		var sf *SceneFailure
		if errors.As(err, &sf) {
			log.Printf("production %s failed at scene %d: %v", payload.ProjectID, sf.Ordinal, sf.Err)
			return nil
		}
		log.Printf("production %s failed: %v", payload.ProjectID, err)
		return nil
	}

	log.Printf("production %s finished with status %s", payload.ProjectID, result.Status)
	return nil
}
