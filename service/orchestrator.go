package service

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"SpotFactory-server/config"
	"SpotFactory-server/models"

	"gorm.io/gorm"
)

// Orchestrator drives a project's scenes through generation in strict
// ordinal order. Scenes within one project are sequential because the
// continuity suggestion extracted from scene N's final frame is an input to
// scene N+1's prompt; independent projects run concurrently and share
// nothing but the StatusStore.
type Orchestrator struct {
	Store     Store
	Status    *StatusStore
	Optimizer PromptOptimizer
	Analyzer  FrameAnalyzer
	Generator ClipGenerator
	Assembler Assembler

	// MaxRetries is the per-scene retry budget after the first attempt.
	MaxRetries int
	// ApprovalTimeout bounds the manual-mode wait; 0 waits forever.
	ApprovalTimeout time.Duration

	mu        sync.Mutex
	approvals map[string]chan struct{}
	cancels   map[string]context.CancelFunc
}

// ProductionResult reports the outcome of one Produce call.
type ProductionResult struct {
	ProjectID   string             `json:"projectId"`
	Status      string             `json:"status"`
	FailedScene int                `json:"failedScene"`
	Clips       []models.Clip      `json:"clips,omitempty"`
	FinalVideo  *models.FinalVideo `json:"finalVideo,omitempty"`
}

func NewOrchestrator(store Store, status *StatusStore, optimizer PromptOptimizer, analyzer FrameAnalyzer, generator ClipGenerator, assembler Assembler, maxRetries int, approvalTimeout time.Duration) *Orchestrator {
	return &Orchestrator{
		Store:           store,
		Status:          status,
		Optimizer:       optimizer,
		Analyzer:        analyzer,
		Generator:       generator,
		Assembler:       assembler,
		MaxRetries:      maxRetries,
		ApprovalTimeout: approvalTimeout,
		approvals:       make(map[string]chan struct{}),
		cancels:         make(map[string]context.CancelFunc),
	}
}

// Produce runs the whole production for one project. With autoMode false it
// suspends after every non-final scene until Approve is signalled for the
// project. Cancellation via Cancel takes effect between scenes; a cancel
// arriving mid generation call discards that call's eventual result.
func (o *Orchestrator) Produce(ctx context.Context, projectID string, autoMode bool) (*ProductionResult, error) {
	project, err := o.Store.Project(projectID)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	if project.Status != models.ProjectStatusDraft {
		return nil, fmt.Errorf("%w: project %s is %q, want %q", ErrInvalidProjectState, projectID, project.Status, models.ProjectStatusDraft)
	}
	scenes, err := o.Store.Scenes(projectID)
	if err != nil {
		return nil, fmt.Errorf("load scenes: %w", err)
	}
	if len(scenes) == 0 {
		return nil, fmt.Errorf("%w: project %s has no scenes", ErrInvalidProjectState, projectID)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.registerRun(projectID, cancel)
	defer o.unregisterRun(projectID)

	// Pollers must see a consistent non-draft status before any external call.
	if err := o.Store.SetProjectStatus(projectID, models.ProjectStatusInProgress); err != nil {
		return nil, fmt.Errorf("mark project in progress: %w", err)
	}
	o.Status.Track(projectID, models.ProjectStatusInProgress, scenes)
	log.Printf("[production] %s started: %d scenes, autoMode=%v", projectID, len(scenes), autoMode)

	result := &ProductionResult{ProjectID: projectID, FailedScene: -1}
	var prevAnalysis *models.FrameAnalysis

	for i := range scenes {
		scene := &scenes[i]
		if ctx.Err() != nil {
			return o.cancelled(projectID, result)
		}
		o.Status.SetCurrentScene(projectID, scene.Ordinal)

		first := i == 0
		last := i == len(scenes)-1
		gen, analysis, err := o.produceScene(ctx, project, scene, prevAnalysis, first, last)
		if err != nil {
			if ctx.Err() != nil {
				return o.cancelled(projectID, result)
			}
			o.failProject(projectID, scene.Ordinal, err)
			result.Status = models.ProjectStatusFailed
			result.FailedScene = scene.Ordinal
			return result, &SceneFailure{Ordinal: scene.Ordinal, Err: err}
		}
		result.Clips = append(result.Clips, gen.Clip)
		prevAnalysis = analysis

		if !autoMode && !last {
			if err := o.waitApproval(ctx, projectID, scene.Ordinal); err != nil {
				if ctx.Err() != nil {
					return o.cancelled(projectID, result)
				}
				o.failProject(projectID, scene.Ordinal, err)
				result.Status = models.ProjectStatusFailed
				result.FailedScene = scene.Ordinal
				return result, &SceneFailure{Ordinal: scene.Ordinal, Err: err}
			}
		}
	}

	log.Printf("[production] %s: all %d scenes completed, assembling...", projectID, len(scenes))
	final, err := o.Assembler.Assemble(ctx, projectID, result.Clips)
	if err != nil {
		if ctx.Err() != nil {
			return o.cancelled(projectID, result)
		}
		// Assembly-stage failure: completed clips are kept, nothing rolls back.
		o.failProject(projectID, -1, err)
		result.Status = models.ProjectStatusFailed
		return result, err
	}

	if err := o.Store.SetFinalVideo(projectID, final); err != nil {
		return nil, fmt.Errorf("persist final video: %w", err)
	}
	o.Status.SetProjectStatus(projectID, models.ProjectStatusCompleted, "")
	result.Status = models.ProjectStatusCompleted
	result.FinalVideo = final
	log.Printf("[production] %s completed: %s (%.1fs)", projectID, final.URL, final.Duration)
	return result, nil
}

// produceScene drives one scene through its attempt loop until the state
// machine reaches completed or terminal failed. It returns the generated
// clip and, unless this is the last scene, the analysis of its final frame.
func (o *Orchestrator) produceScene(ctx context.Context, project *models.Project, scene *models.Scene, prevAnalysis *models.FrameAnalysis, first, last bool) (*GeneratedClip, *models.FrameAnalysis, error) {
	sm := &SceneMachine{Scene: scene, MaxRetries: o.MaxRetries}

	for {
		optReq := OptimizeRequest{
			Action:   scene.Prompt,
			Emotion:  scene.Emotion,
			Dialogue: scene.Dialogue,
		}
		if project.Brief.Brand != nil {
			optReq.Tone = project.Brief.Brand.Mood
		}
		if first {
			// Image context is captured at upload time, before production.
			optReq.ImageContext = project.ImageAnalysis
		}

		opt, err := o.Optimizer.Optimize(ctx, optReq)
		if err != nil {
			// The attempt still consumes budget and moves through the
			// machine so transitions stay uniform for observers.
			if serr := sm.Start(); serr != nil {
				return nil, nil, serr
			}
			retry, serr := sm.Fail(err)
			if serr != nil {
				return nil, nil, serr
			}
			o.persistScene(project.ID, scene)
			if retry {
				log.Printf("[production] %s scene %d: optimizer failed, retrying: %v", project.ID, scene.Ordinal, err)
				continue
			}
			return nil, nil, err
		}

		prompt := ComposeScenePrompt(opt, scene)
		if !first && prevAnalysis != nil {
			prompt = WithContinuity(prompt, prevAnalysis.ContinuitySuggestion)
		}

		if err := sm.Start(); err != nil {
			return nil, nil, err
		}
		// Status goes out before the minutes-scale call so polling reflects
		// progress immediately; no lock is held while the call runs.
		o.persistScene(project.ID, scene)
		log.Printf("[production] %s scene %d: generating (attempt %d)", project.ID, scene.Ordinal, scene.RetryCount+1)

		gen, err := o.Generator.Generate(ctx, GenerationRequest{
			Prompt:         prompt,
			Duration:       scene.Duration,
			CameraMovement: scene.CameraMovement,
			Lighting:       scene.Lighting,
		})
		if err != nil {
			if ctx.Err() != nil {
				// Cancelled mid-call: the eventual worker result is
				// discarded and the scene is handed back untouched.
				if serr := sm.Release(); serr != nil {
					return nil, nil, serr
				}
				o.persistScene(project.ID, scene)
				return nil, nil, err
			}
			retry, serr := sm.Fail(err)
			if serr != nil {
				return nil, nil, serr
			}
			o.persistScene(project.ID, scene)
			if retry {
				log.Printf("[production] %s scene %d: generation failed, retrying: %v", project.ID, scene.Ordinal, err)
				continue
			}
			return nil, nil, err
		}

		if err := sm.Succeed(&gen.Clip); err != nil {
			return nil, nil, err
		}

		var analysis *models.FrameAnalysis
		if !last {
			analysis, err = o.analyzeFinalFrame(ctx, project.ID, scene.Ordinal, gen)
			if err != nil {
				// The clip is kept and the scene stays completed; without
				// continuity input the next scene cannot start, so the
				// project halts here.
				o.persistScene(project.ID, scene)
				return nil, nil, err
			}
			scene.Analysis = analysis
			if prevAnalysis != nil {
				o.logContinuity(project.ID, scene.Ordinal, ValidateContinuity(prevAnalysis.Elements, analysis.Elements))
			}
		}

		o.persistScene(project.ID, scene)
		log.Printf("[production] %s scene %d completed: %s", project.ID, scene.Ordinal, gen.Clip.URL)
		return gen, analysis, nil
	}
}

// analyzeFinalFrame extracts continuity input for the next scene, retrying
// within the same bounded budget as generation.
func (o *Orchestrator) analyzeFinalFrame(ctx context.Context, projectID string, ordinal int, gen *GeneratedClip) (*models.FrameAnalysis, error) {
	if len(gen.FinalFrame) == 0 {
		return nil, fmt.Errorf("%w: generator returned no final frame", ErrAnalysisUnavailable)
	}
	var lastErr error
	for attempt := 0; attempt <= o.MaxRetries; attempt++ {
		analysis, err := o.Analyzer.Analyze(ctx, gen.FinalFrame, gen.FinalFrameMIME, false)
		if err == nil {
			return analysis, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		log.Printf("[production] %s scene %d: frame analysis failed (attempt %d): %v", projectID, ordinal, attempt+1, err)
	}
	return nil, lastErr
}

// logContinuity reports validator findings. Advisory only: production never
// blocks on a continuity warning.
func (o *Orchestrator) logContinuity(projectID string, ordinal int, report ContinuityReport) {
	if len(report.Warnings) == 0 {
		return
	}
	for _, w := range report.Warnings {
		log.Printf("[continuity] %s scene %d [%s] %s", projectID, ordinal, w.Severity, w.Message)
	}
	for _, s := range report.Suggestions {
		log.Printf("[continuity] %s scene %d suggestion: %s", projectID, ordinal, s)
	}
}

func (o *Orchestrator) persistScene(projectID string, scene *models.Scene) {
	if err := o.Store.SaveScene(scene); err != nil {
		log.Printf("[production] %s scene %d: persist failed: %v", projectID, scene.Ordinal, err)
	}
	o.Status.UpdateScene(projectID, scene)
}

func (o *Orchestrator) failProject(projectID string, ordinal int, cause error) {
	if err := o.Store.SetProjectFailure(projectID, ordinal, cause.Error()); err != nil {
		log.Printf("[production] %s: persist failure failed: %v", projectID, err)
	}
	o.Status.SetProjectStatus(projectID, models.ProjectStatusFailed, cause.Error())
	log.Printf("[production] %s failed at scene %d: %v", projectID, ordinal, cause)
}

func (o *Orchestrator) cancelled(projectID string, result *ProductionResult) (*ProductionResult, error) {
	if err := o.Store.SetProjectStatus(projectID, models.ProjectStatusCancelled); err != nil {
		log.Printf("[production] %s: persist cancellation failed: %v", projectID, err)
	}
	o.Status.SetProjectStatus(projectID, models.ProjectStatusCancelled, "")
	result.Status = models.ProjectStatusCancelled
	log.Printf("[production] %s cancelled", projectID)
	return result, nil
}

// waitApproval parks the walk until the next-scene approval arrives. Only
// the logical continuation is parked: no lock or retry budget is held.
func (o *Orchestrator) waitApproval(ctx context.Context, projectID string, afterOrdinal int) error {
	ch := o.approvalChan(projectID)
	log.Printf("[production] %s: scene %d done, waiting for approval to continue", projectID, afterOrdinal)

	var timeout <-chan time.Time
	if o.ApprovalTimeout > 0 {
		t := time.NewTimer(o.ApprovalTimeout)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout:
		return fmt.Errorf("%w after %s", ErrApprovalTimeout, o.ApprovalTimeout)
	}
}

// Approve signals a manual-mode production to advance to its next scene.
// Returns false when no production is waiting or running for the project.
func (o *Orchestrator) Approve(projectID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, running := o.cancels[projectID]; !running {
		return false
	}
	ch, ok := o.approvals[projectID]
	if !ok {
		ch = make(chan struct{}, 1)
		o.approvals[projectID] = ch
	}
	select {
	case ch <- struct{}{}:
	default:
		// an approval is already pending
	}
	return true
}

// Cancel stops a running production. Effective between scenes; a cancel
// during a generation call is best-effort and discards that call's result.
func (o *Orchestrator) Cancel(projectID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if cancel, ok := o.cancels[projectID]; ok {
		cancel()
		delete(o.cancels, projectID)
		return true
	}
	return false
}

func (o *Orchestrator) approvalChan(projectID string) chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	ch, ok := o.approvals[projectID]
	if !ok {
		ch = make(chan struct{}, 1)
		o.approvals[projectID] = ch
	}
	return ch
}

func (o *Orchestrator) registerRun(projectID string, cancel context.CancelFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cancels[projectID] = cancel
}

func (o *Orchestrator) unregisterRun(projectID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.cancels, projectID)
	delete(o.approvals, projectID)
}

// Package-level production wiring, initialized from main.
var (
	Status     *StatusStore
	Production *Orchestrator
)

func InitProduction(db *gorm.DB) {
	cfg := config.AppConfig.Production
	Status = NewStatusStore()
	Production = NewOrchestrator(
		NewGormStore(db),
		Status,
		NewHTTPOptimizer(),
		NewHTTPAnalyzer(),
		NewWorkerGenerator(),
		NewWorkerAssembler(),
		cfg.MaxRetries,
		time.Duration(cfg.ApprovalTimeoutMinutes)*time.Minute,
	)
	log.Println("production orchestrator initialized")
}
