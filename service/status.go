package service

import (
	"sync"
	"time"

	"SpotFactory-server/models"
)

// SceneSnapshot is the poll-visible state of one scene.
type SceneSnapshot struct {
	Ordinal    int    `json:"ordinal"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	RetryCount int    `json:"retryCount"`
	ClipURL    string `json:"clipUrl,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ProjectSnapshot is the poll-visible state of one production run.
type ProjectSnapshot struct {
	ProjectID    string          `json:"projectId"`
	Status       string          `json:"status"`
	CurrentScene int             `json:"currentScene"`
	TotalScenes  int             `json:"totalScenes"`
	Scenes       []SceneSnapshot `json:"scenes"`
	Error        string          `json:"error,omitempty"`
	UpdatedAt    time.Time       `json:"updatedAt"`

	// terminalAt is set once the run reaches a terminal status; the entry
	// is evicted after the retention window so the map cannot grow forever.
	terminalAt time.Time
}

// StatusStore is the process-visible production state. Writes come from a
// single owner per project (the orchestrator driving it); reads are
// concurrent snapshot copies, so pollers never observe a half-applied
// update and are never blocked by an in-flight external call.
type StatusStore struct {
	mu       sync.RWMutex
	projects map[string]*ProjectSnapshot

	// retention keeps finished runs visible to late pollers for a while
	// before they are swept on the next Track.
	retention time.Duration
}

const defaultStatusRetention = time.Hour

func NewStatusStore() *StatusStore {
	return &StatusStore{
		projects:  make(map[string]*ProjectSnapshot),
		retention: defaultStatusRetention,
	}
}

// Track registers a production run with its initial scene list.
func (s *StatusStore) Track(projectID, status string, scenes []models.Scene) {
	snaps := make([]SceneSnapshot, len(scenes))
	for i, sc := range scenes {
		snaps[i] = SceneSnapshot{
			Ordinal:    sc.Ordinal,
			Name:       sc.Name,
			Status:     sc.Status,
			RetryCount: sc.RetryCount,
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(time.Now())
	s.projects[projectID] = &ProjectSnapshot{
		ProjectID:   projectID,
		Status:      status,
		TotalScenes: len(scenes),
		Scenes:      snaps,
		UpdatedAt:   time.Now(),
	}
}

func (s *StatusStore) SetProjectStatus(projectID, status string, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok {
		return
	}
	p.Status = status
	p.Error = errMsg
	p.UpdatedAt = time.Now()
	switch status {
	case models.ProjectStatusCompleted, models.ProjectStatusFailed, models.ProjectStatusCancelled:
		p.terminalAt = p.UpdatedAt
	default:
		p.terminalAt = time.Time{}
	}
}

// sweepLocked drops entries whose run finished longer than the retention
// window ago. Caller holds the write lock.
func (s *StatusStore) sweepLocked(now time.Time) {
	for id, p := range s.projects {
		if !p.terminalAt.IsZero() && now.Sub(p.terminalAt) >= s.retention {
			delete(s.projects, id)
		}
	}
}

func (s *StatusStore) SetCurrentScene(projectID string, ordinal int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok {
		return
	}
	p.CurrentScene = ordinal
	p.UpdatedAt = time.Now()
}

func (s *StatusStore) UpdateScene(projectID string, scene *models.Scene) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[projectID]
	if !ok {
		return
	}
	for i := range p.Scenes {
		if p.Scenes[i].Ordinal == scene.Ordinal {
			p.Scenes[i].Status = scene.Status
			p.Scenes[i].RetryCount = scene.RetryCount
			p.Scenes[i].Error = scene.Error
			if scene.Clip != nil {
				p.Scenes[i].ClipURL = scene.Clip.URL
			}
			break
		}
	}
	p.UpdatedAt = time.Now()
}

// Snapshot returns a copy of the project state for polling observers.
func (s *StatusStore) Snapshot(projectID string) (ProjectSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[projectID]
	if !ok {
		return ProjectSnapshot{}, false
	}
	out := *p
	out.Scenes = make([]SceneSnapshot, len(p.Scenes))
	copy(out.Scenes, p.Scenes)
	return out, true
}

// SceneStatuses returns the per-scene view only.
func (s *StatusStore) SceneStatuses(projectID string) ([]SceneSnapshot, bool) {
	snap, ok := s.Snapshot(projectID)
	if !ok {
		return nil, false
	}
	return snap.Scenes, true
}
