package service

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"SpotFactory-server/config"

	"github.com/hibiken/asynq"
)

const (
	TypeProduceProject = "production:run"
)

type ProductionPayload struct {
	ProjectID string `json:"project_id"`
	AutoMode  bool   `json:"auto_mode"`
}

var QueueClient *asynq.Client

// InitQueue initializes the task queue client.
func InitQueue() {
	QueueClient = asynq.NewClient(asynq.RedisClientOpt{
		Addr:     config.AppConfig.Redis.Addr,
		Password: config.AppConfig.Redis.Password,
	})
}

// productionTaskOptions builds the queue options for one run. Queue retries
// are disabled: the scene retry budget lives in the orchestrator and
// re-running a partially produced project would violate the draft
// precondition anyway. The run timeout is skipped for manual-mode runs
// whose approval wait is configured as unbounded, so the queue never cuts
// a production that is legitimately parked on a human.
func productionTaskOptions(autoMode bool) []asynq.Option {
	cfg := config.AppConfig.Production
	opts := []asynq.Option{
		asynq.MaxRetry(0),
		asynq.Retention(24 * time.Hour),
	}
	if autoMode || cfg.ApprovalTimeoutMinutes > 0 {
		opts = append(opts, asynq.Timeout(time.Duration(cfg.RunTimeoutHours)*time.Hour))
	}
	return opts
}

// EnqueueProduction schedules a full production run for a project.
func EnqueueProduction(projectID string, autoMode bool) error {
	payload, err := json.Marshal(ProductionPayload{ProjectID: projectID, AutoMode: autoMode})
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}

	task := asynq.NewTask(TypeProduceProject, payload, productionTaskOptions(autoMode)...)

	info, err := QueueClient.Enqueue(task)
	if err != nil {
		return fmt.Errorf("enqueue failed: %w", err)
	}

	log.Printf("[queue] production enqueued: project=%s, task=%s", projectID, info.ID)
	return nil
}
