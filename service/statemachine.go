package service

import (
	"fmt"

	"SpotFactory-server/models"
)

// SceneMachine guards the per-scene lifecycle:
//
//	pending -> generating -> completed
//	                      -> pending (while retry budget remains)
//	                      -> failed  (budget exhausted, terminal)
//
// Exactly one logical owner (the orchestrator driving the project) mutates a
// machine; no transition is valid from any other state than documented.
type SceneMachine struct {
	Scene      *models.Scene
	MaxRetries int
}

// Start moves the scene from pending into generating.
func (m *SceneMachine) Start() error {
	if m.Scene.Status != models.SceneStatusPending {
		return fmt.Errorf("%w: start from %q (scene %d)", ErrInvalidTransition, m.Scene.Status, m.Scene.Ordinal)
	}
	m.Scene.Status = models.SceneStatusGenerating
	return nil
}

// Succeed attaches the clip and moves the scene into its terminal success
// state, making it eligible as the continuity source for the next scene.
func (m *SceneMachine) Succeed(clip *models.Clip) error {
	if m.Scene.Status != models.SceneStatusGenerating {
		return fmt.Errorf("%w: succeed from %q (scene %d)", ErrInvalidTransition, m.Scene.Status, m.Scene.Ordinal)
	}
	m.Scene.Status = models.SceneStatusCompleted
	m.Scene.Error = ""
	m.Scene.Clip = clip
	return nil
}

// Release hands a generating scene back to pending without consuming
// retry budget. Used when a run is cancelled while an attempt is in
// flight: the scene was never at fault, so it stays re-drivable.
func (m *SceneMachine) Release() error {
	if m.Scene.Status != models.SceneStatusGenerating {
		return fmt.Errorf("%w: release from %q (scene %d)", ErrInvalidTransition, m.Scene.Status, m.Scene.Ordinal)
	}
	m.Scene.Status = models.SceneStatusPending
	return nil
}

// Fail consumes one unit of retry budget. While budget remains the scene
// re-enters pending for the orchestrator to re-drive; otherwise it reaches
// terminal failed carrying the cause. The returned bool reports whether a
// retry is available.
func (m *SceneMachine) Fail(cause error) (bool, error) {
	if m.Scene.Status != models.SceneStatusGenerating {
		return false, fmt.Errorf("%w: fail from %q (scene %d)", ErrInvalidTransition, m.Scene.Status, m.Scene.Ordinal)
	}
	if m.Scene.RetryCount < m.MaxRetries {
		m.Scene.RetryCount++
		m.Scene.Status = models.SceneStatusPending
		return true, nil
	}
	m.Scene.Status = models.SceneStatusFailed
	if cause != nil {
		m.Scene.Error = cause.Error()
	}
	return false, nil
}
