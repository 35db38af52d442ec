package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"SpotFactory-server/models"
)

// ---------------------------------------------------------------------------
// fakes
// ---------------------------------------------------------------------------

type memStore struct {
	mu      sync.Mutex
	project models.Project
	scenes  []models.Scene
}

func newMemStore(sceneCount int) *memStore {
	s := &memStore{
		project: models.Project{
			ID:          "p1",
			Name:        "perfume launch",
			Status:      models.ProjectStatusDraft,
			SceneCount:  sceneCount,
			FailedScene: -1,
			Brief: models.Brief{
				Subject: models.Subject{Type: "person", Description: "woman in red dress"},
				Brand:   &models.BrandGuidelines{Mood: "elegant"},
			},
		},
	}
	for i := 0; i < sceneCount; i++ {
		s.scenes = append(s.scenes, models.Scene{
			ID:        fmt.Sprintf("scene-%d", i),
			ProjectId: "p1",
			Ordinal:   i,
			Duration:  8,
			Prompt:    fmt.Sprintf("action %d", i),
			Emotion:   "confidence",
			Status:    models.SceneStatusPending,
		})
	}
	return s
}

func (s *memStore) Project(id string) (*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id != s.project.ID {
		return nil, fmt.Errorf("project %s not found", id)
	}
	p := s.project
	return &p, nil
}

func (s *memStore) Scenes(projectID string) ([]models.Scene, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Scene, len(s.scenes))
	copy(out, s.scenes)
	return out, nil
}

func (s *memStore) SetProjectStatus(id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.project.Status = status
	return nil
}

func (s *memStore) SetProjectFailure(id string, ordinal int, cause string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.project.Status = models.ProjectStatusFailed
	s.project.FailedScene = ordinal
	s.project.Error = cause
	return nil
}

func (s *memStore) SetFinalVideo(id string, fv *models.FinalVideo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.project.Status = models.ProjectStatusCompleted
	s.project.FinalVideo = fv
	return nil
}

func (s *memStore) SaveScene(scene *models.Scene) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.scenes {
		if s.scenes[i].ID == scene.ID {
			s.scenes[i] = *scene
			return nil
		}
	}
	return fmt.Errorf("scene %s not found", scene.ID)
}

func (s *memStore) projectState() models.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.project
}

func (s *memStore) scene(ordinal int) models.Scene {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scenes[ordinal]
}

type fakeOptimizer struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *fakeOptimizer) Optimize(ctx context.Context, req OptimizeRequest) (*OptimizedPrompt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return nil, fmt.Errorf("%w: service overloaded", ErrOptimizationUnavailable)
	}
	return &OptimizedPrompt{
		Action:     req.Action,
		Emotion:    req.Emotion,
		Dialogue:   req.Dialogue,
		Confidence: 0.9,
	}, nil
}

type fakeGenerator struct {
	mu      sync.Mutex
	script  []error // outcome per call; nil = success, exhausted = success
	prompts []string
	started chan string // optional: notified on every call
}

func (f *fakeGenerator) Generate(ctx context.Context, req GenerationRequest) (*GeneratedClip, error) {
	f.mu.Lock()
	idx := len(f.prompts)
	f.prompts = append(f.prompts, req.Prompt)
	var err error
	if idx < len(f.script) {
		err = f.script[idx]
	}
	started := f.started
	f.mu.Unlock()

	if started != nil {
		started <- req.Prompt
	}
	if err != nil {
		return nil, err
	}
	clipID := fmt.Sprintf("clip_%d", idx)
	return &GeneratedClip{
		Clip: models.Clip{
			ClipID:     clipID,
			URL:        "http://store/" + clipID + ".mp4",
			Duration:   float64(req.Duration),
			Resolution: "1080p",
		},
		FinalFrame:     []byte("frame-bytes"),
		FinalFrameMIME: "image/jpeg",
	}, nil
}

func (f *fakeGenerator) promptAt(i int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prompts[i]
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

// blockingGenerator parks every call until its context is cancelled,
// standing in for a worker whose job is still in flight.
type blockingGenerator struct {
	started chan struct{}
}

func (g *blockingGenerator) Generate(ctx context.Context, req GenerationRequest) (*GeneratedClip, error) {
	g.started <- struct{}{}
	<-ctx.Done()
	return nil, fmt.Errorf("%w: %v", ErrGenerationUnavailable, ctx.Err())
}

type fakeAnalyzer struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, image []byte, mimeType string, firstScene bool) (*models.FrameAnalysis, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return nil, fmt.Errorf("%w: vision service down", ErrAnalysisUnavailable)
	}
	return &models.FrameAnalysis{
		SubjectPosition:      "centered, holding bottle",
		Lighting:             "soft studio",
		Mood:                 "elegant",
		Elements:             []models.TrackedElement{{Type: "bottle", Description: "black perfume bottle in hand"}},
		ContinuitySuggestion: fmt.Sprintf("start with close-up of bottle (frame %d)", f.calls),
	}, nil
}

func (f *fakeAnalyzer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeAssembler struct {
	mu    sync.Mutex
	fail  bool
	clips []models.Clip
}

func (f *fakeAssembler) Assemble(ctx context.Context, projectID string, clips []models.Clip) (*models.FinalVideo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clips = clips
	if f.fail {
		return nil, fmt.Errorf("%w: concat worker crashed", ErrAssemblyFailed)
	}
	var total float64
	for _, c := range clips {
		total += c.Duration
	}
	return &models.FinalVideo{
		URL:        "http://store/final/" + projectID + ".mp4",
		Duration:   total,
		Resolution: "1080p",
		CreatedAt:  time.Now(),
	}, nil
}

type testRig struct {
	store     *memStore
	optimizer *fakeOptimizer
	generator *fakeGenerator
	analyzer  *fakeAnalyzer
	assembler *fakeAssembler
	orch      *Orchestrator
}

func newTestRig(sceneCount int) *testRig {
	rig := &testRig{
		store:     newMemStore(sceneCount),
		optimizer: &fakeOptimizer{},
		generator: &fakeGenerator{},
		analyzer:  &fakeAnalyzer{},
		assembler: &fakeAssembler{},
	}
	rig.orch = NewOrchestrator(rig.store, NewStatusStore(), rig.optimizer, rig.analyzer, rig.generator, rig.assembler, 1, 0)
	return rig
}

// ---------------------------------------------------------------------------
// tests
// ---------------------------------------------------------------------------

func TestProduceAllScenesSucceed(t *testing.T) {
	rig := newTestRig(3)

	result, err := rig.orch.Produce(context.Background(), "p1", true)
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if result.Status != models.ProjectStatusCompleted {
		t.Fatalf("result status = %q; want completed", result.Status)
	}
	if len(result.Clips) != 3 {
		t.Fatalf("clips = %d; want 3", len(result.Clips))
	}
	if result.FinalVideo == nil {
		t.Fatal("final video missing")
	}

	p := rig.store.projectState()
	if p.Status != models.ProjectStatusCompleted || p.FinalVideo == nil {
		t.Fatalf("persisted project = %q finalVideo=%v; want completed with final video", p.Status, p.FinalVideo)
	}
	for i := 0; i < 3; i++ {
		sc := rig.store.scene(i)
		if sc.Status != models.SceneStatusCompleted || sc.Clip == nil {
			t.Fatalf("scene %d = %q clip=%v; want completed with clip", i, sc.Status, sc.Clip)
		}
	}

	// the final frame of the last scene is never analyzed
	if got := rig.analyzer.callCount(); got != 2 {
		t.Fatalf("analyzer calls = %d; want 2", got)
	}

	// first scene has no continuity marker, later ones do
	if strings.HasPrefix(rig.generator.promptAt(0), "[CONTINUITY:") {
		t.Fatalf("scene 0 prompt carries a continuity marker: %q", rig.generator.promptAt(0))
	}
	for i := 1; i < 3; i++ {
		if !strings.HasPrefix(rig.generator.promptAt(i), "[CONTINUITY: ") {
			t.Fatalf("scene %d prompt missing continuity marker: %q", i, rig.generator.promptAt(i))
		}
	}

	snap, ok := rig.orch.Status.Snapshot("p1")
	if !ok || snap.Status != models.ProjectStatusCompleted {
		t.Fatalf("status store snapshot = %+v; want completed", snap)
	}
}

func TestProduceRequiresDraftProject(t *testing.T) {
	rig := newTestRig(2)
	rig.store.mu.Lock()
	rig.store.project.Status = models.ProjectStatusInProgress
	rig.store.mu.Unlock()

	_, err := rig.orch.Produce(context.Background(), "p1", true)
	if !errors.Is(err, ErrInvalidProjectState) {
		t.Fatalf("err = %v; want ErrInvalidProjectState", err)
	}
}

func TestProduceRequiresScenes(t *testing.T) {
	rig := newTestRig(0)

	_, err := rig.orch.Produce(context.Background(), "p1", true)
	if !errors.Is(err, ErrInvalidProjectState) {
		t.Fatalf("err = %v; want ErrInvalidProjectState", err)
	}
}

func TestProduceRetrySucceeds(t *testing.T) {
	rig := newTestRig(3)
	// scene 1's first attempt fails, its retry succeeds
	genErr := fmt.Errorf("%w: worker timeout", ErrGenerationUnavailable)
	rig.generator.script = []error{nil, genErr, nil, nil}

	result, err := rig.orch.Produce(context.Background(), "p1", true)
	if err != nil {
		t.Fatalf("Produce: %v", err)
	}
	if result.Status != models.ProjectStatusCompleted {
		t.Fatalf("result status = %q; want completed", result.Status)
	}
	if sc := rig.store.scene(1); sc.RetryCount != 1 || sc.Status != models.SceneStatusCompleted {
		t.Fatalf("scene 1 = %q retries=%d; want completed/1", sc.Status, sc.RetryCount)
	}
}

func TestProduceRetryBudgetExhausted(t *testing.T) {
	rig := newTestRig(3)
	genErr := fmt.Errorf("%w: worker timeout", ErrGenerationUnavailable)
	rig.generator.script = []error{nil, genErr, genErr}

	result, err := rig.orch.Produce(context.Background(), "p1", true)
	var sf *SceneFailure
	if !errors.As(err, &sf) {
		t.Fatalf("err = %v; want *SceneFailure", err)
	}
	if sf.Ordinal != 1 || !errors.Is(err, ErrGenerationUnavailable) {
		t.Fatalf("failure = %+v; want ordinal 1 wrapping ErrGenerationUnavailable", sf)
	}
	if result.Status != models.ProjectStatusFailed || result.FailedScene != 1 {
		t.Fatalf("result = %+v; want failed at scene 1", result)
	}

	// completed work is retained, later scenes never started
	if sc := rig.store.scene(0); sc.Status != models.SceneStatusCompleted || sc.Clip == nil {
		t.Fatalf("scene 0 = %q clip=%v; want completed with clip", sc.Status, sc.Clip)
	}
	if sc := rig.store.scene(1); sc.Status != models.SceneStatusFailed || sc.RetryCount != 1 {
		t.Fatalf("scene 1 = %q retries=%d; want failed/1", sc.Status, sc.RetryCount)
	}
	if sc := rig.store.scene(2); sc.Status != models.SceneStatusPending {
		t.Fatalf("scene 2 = %q; want pending (untouched)", sc.Status)
	}
	if p := rig.store.projectState(); p.Status != models.ProjectStatusFailed || p.FailedScene != 1 {
		t.Fatalf("project = %q failedScene=%d; want failed/1", p.Status, p.FailedScene)
	}
	if len(result.Clips) != 1 {
		t.Fatalf("clips = %d; want the one completed clip", len(result.Clips))
	}
}

func TestProduceOptimizerFailureFailsScene(t *testing.T) {
	rig := newTestRig(2)
	rig.optimizer.failures = 2 // first attempt + its retry

	result, err := rig.orch.Produce(context.Background(), "p1", true)
	var sf *SceneFailure
	if !errors.As(err, &sf) {
		t.Fatalf("err = %v; want *SceneFailure", err)
	}
	if sf.Ordinal != 0 || !errors.Is(err, ErrOptimizationUnavailable) {
		t.Fatalf("failure = %+v; want ordinal 0 wrapping ErrOptimizationUnavailable", sf)
	}
	if result.FailedScene != 0 {
		t.Fatalf("result.FailedScene = %d; want 0", result.FailedScene)
	}
	if got := rig.generator.callCount(); got != 0 {
		t.Fatalf("generator calls = %d; want 0", got)
	}
	if sc := rig.store.scene(0); sc.Status != models.SceneStatusFailed || sc.RetryCount != 1 {
		t.Fatalf("scene 0 = %q retries=%d; want failed/1", sc.Status, sc.RetryCount)
	}
}

func TestProduceAnalyzerFailureHaltsProject(t *testing.T) {
	rig := newTestRig(2)
	rig.analyzer.failures = 2 // first attempt + bounded retry

	result, err := rig.orch.Produce(context.Background(), "p1", true)
	var sf *SceneFailure
	if !errors.As(err, &sf) {
		t.Fatalf("err = %v; want *SceneFailure", err)
	}
	if sf.Ordinal != 0 || !errors.Is(err, ErrAnalysisUnavailable) {
		t.Fatalf("failure = %+v; want ordinal 0 wrapping ErrAnalysisUnavailable", sf)
	}
	if result.Status != models.ProjectStatusFailed {
		t.Fatalf("result status = %q; want failed", result.Status)
	}
	// the generated clip stays retrievable even though the project halted
	if sc := rig.store.scene(0); sc.Status != models.SceneStatusCompleted || sc.Clip == nil {
		t.Fatalf("scene 0 = %q clip=%v; want completed with clip", sc.Status, sc.Clip)
	}
}

func TestProduceAssemblerFailure(t *testing.T) {
	rig := newTestRig(2)
	rig.assembler.fail = true

	result, err := rig.orch.Produce(context.Background(), "p1", true)
	if !errors.Is(err, ErrAssemblyFailed) {
		t.Fatalf("err = %v; want ErrAssemblyFailed", err)
	}
	if result.Status != models.ProjectStatusFailed {
		t.Fatalf("result status = %q; want failed", result.Status)
	}
	// no rollback of completed scenes
	for i := 0; i < 2; i++ {
		if sc := rig.store.scene(i); sc.Status != models.SceneStatusCompleted || sc.Clip == nil {
			t.Fatalf("scene %d = %q clip=%v; want completed with clip", i, sc.Status, sc.Clip)
		}
	}
}

func TestManualModeWaitsForApproval(t *testing.T) {
	rig := newTestRig(2)
	rig.generator.started = make(chan string, 4)

	done := make(chan *ProductionResult, 1)
	go func() {
		result, err := rig.orch.Produce(context.Background(), "p1", false)
		if err != nil {
			t.Errorf("Produce: %v", err)
		}
		done <- result
	}()

	// scene 0 generates immediately
	select {
	case <-rig.generator.started:
	case <-time.After(2 * time.Second):
		t.Fatal("scene 0 generation never started")
	}

	// without approval, scene 1 must not start no matter how long we wait
	select {
	case prompt := <-rig.generator.started:
		t.Fatalf("scene 1 started before approval: %q", prompt)
	case <-time.After(150 * time.Millisecond):
	}

	if !rig.orch.Approve("p1") {
		t.Fatal("Approve returned false for a running production")
	}

	select {
	case <-rig.generator.started:
	case <-time.After(2 * time.Second):
		t.Fatal("scene 1 generation never started after approval")
	}

	select {
	case result := <-done:
		if result.Status != models.ProjectStatusCompleted {
			t.Fatalf("result status = %q; want completed", result.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("production never finished")
	}
}

func TestCancelDuringManualWait(t *testing.T) {
	rig := newTestRig(2)
	rig.generator.started = make(chan string, 4)

	done := make(chan *ProductionResult, 1)
	go func() {
		result, err := rig.orch.Produce(context.Background(), "p1", false)
		if err != nil {
			t.Errorf("Produce: %v", err)
		}
		done <- result
	}()

	select {
	case <-rig.generator.started:
	case <-time.After(2 * time.Second):
		t.Fatal("scene 0 generation never started")
	}

	// let the run reach the approval wait, then cancel it
	deadline := time.After(2 * time.Second)
	for {
		if rig.orch.Cancel("p1") {
			break
		}
		select {
		case <-deadline:
			t.Fatal("Cancel never found the running production")
		case <-time.After(10 * time.Millisecond):
		}
	}

	select {
	case result := <-done:
		if result.Status != models.ProjectStatusCancelled {
			t.Fatalf("result status = %q; want cancelled", result.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("production never returned after cancel")
	}

	if p := rig.store.projectState(); p.Status != models.ProjectStatusCancelled {
		t.Fatalf("project = %q; want cancelled", p.Status)
	}
	if sc := rig.store.scene(1); sc.Status != models.SceneStatusPending {
		t.Fatalf("scene 1 = %q; want pending", sc.Status)
	}
	if got := rig.generator.callCount(); got != 1 {
		t.Fatalf("generator calls = %d; want 1", got)
	}
}

func TestCancelMidGeneration(t *testing.T) {
	rig := newTestRig(2)
	bg := &blockingGenerator{started: make(chan struct{})}
	rig.orch.Generator = bg

	done := make(chan *ProductionResult, 1)
	go func() {
		result, err := rig.orch.Produce(context.Background(), "p1", true)
		if err != nil {
			t.Errorf("Produce: %v", err)
		}
		done <- result
	}()

	// cancel while scene 0's generation call is still in flight
	select {
	case <-bg.started:
	case <-time.After(2 * time.Second):
		t.Fatal("scene 0 generation never started")
	}
	if !rig.orch.Cancel("p1") {
		t.Fatal("Cancel returned false for a running production")
	}

	select {
	case result := <-done:
		if result.Status != models.ProjectStatusCancelled {
			t.Fatalf("result status = %q; want cancelled", result.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("production never returned after mid-call cancel")
	}

	if p := rig.store.projectState(); p.Status != models.ProjectStatusCancelled {
		t.Fatalf("project = %q; want cancelled", p.Status)
	}
	// the in-flight scene is handed back re-drivable, no budget consumed
	sc := rig.store.scene(0)
	if sc.Status != models.SceneStatusPending || sc.RetryCount != 0 {
		t.Fatalf("scene 0 = %q retries=%d; want pending/0", sc.Status, sc.RetryCount)
	}
	if sc := rig.store.scene(1); sc.Status != models.SceneStatusPending {
		t.Fatalf("scene 1 = %q; want pending", sc.Status)
	}
}

func TestApproveUnknownProject(t *testing.T) {
	rig := newTestRig(1)
	if rig.orch.Approve("nope") {
		t.Fatal("Approve should refuse a project with no running production")
	}
	if rig.orch.Cancel("nope") {
		t.Fatal("Cancel should refuse a project with no running production")
	}
}
