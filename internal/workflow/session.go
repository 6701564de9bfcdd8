package workflow

import (
	"time"

	"resumeforge/internal/types"
)

// Session pairs one independent controller per task kind
type Session struct {
	ID        string
	CreatedAt time.Time

	Generate *Controller
	Analyze  *Controller
}

// NewSession returns a session with both controllers idle
func NewSession(id string) *Session {
	return &Session{
		ID:        id,
		CreatedAt: time.Now(),
		Generate:  NewController(types.TaskGenerate),
		Analyze:   NewController(types.TaskAnalyze),
	}
}

// Controller returns the controller for kind, or nil for an unknown kind
func (s *Session) Controller(kind types.TaskKind) *Controller {
	switch kind {
	case types.TaskGenerate:
		return s.Generate
	case types.TaskAnalyze:
		return s.Analyze
	}
	return nil
}

// Snapshot returns the state of both controllers
func (s *Session) Snapshot() map[types.TaskKind]State {
	return map[types.TaskKind]State{
		types.TaskGenerate: s.Generate.State(),
		types.TaskAnalyze:  s.Analyze.State(),
	}
}

// Busy reports whether either controller is loading
func (s *Session) Busy() bool {
	return s.Generate.State().Phase == PhaseLoading || s.Analyze.State().Phase == PhaseLoading
}
