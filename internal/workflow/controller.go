// Package workflow tracks the lifecycle of one task kind: idle, loading, and
// the success or failure of the most recent run.
package workflow

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"resumeforge/internal/errors"
	"resumeforge/internal/types"
)

// Phase is the position of a controller in its state machine
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseSuccess Phase = "success"
	PhaseFailed  Phase = "failed"
)

// State is a snapshot of a controller. Result is set only in PhaseSuccess;
// ErrorKind and Error only in PhaseFailed.
type State struct {
	Kind      types.TaskKind         `json:"kind" yaml:"kind"`
	Phase     Phase                  `json:"phase" yaml:"phase"`
	Run       uint64                 `json:"run" yaml:"run"`
	Result    *types.ValidatedResult `json:"result,omitempty" yaml:"result,omitempty"`
	ErrorKind errors.ErrorKind       `json:"errorKind,omitempty" yaml:"errorKind,omitempty"`
	Error     string                 `json:"error,omitempty" yaml:"error,omitempty"`
	UpdatedAt time.Time              `json:"updatedAt" yaml:"updatedAt"`
}

// Done reports whether the state is terminal for its run
func (s State) Done() bool {
	return s.Phase == PhaseSuccess || s.Phase == PhaseFailed
}

// Controller owns the state of one task kind. All transitions are serialized;
// at most one run is loading at a time.
type Controller struct {
	kind types.TaskKind

	mu          sync.Mutex
	state       State
	run         uint64
	subscribers map[chan State]struct{}
	now         func() time.Time
}

// NewController returns an idle controller for kind
func NewController(kind types.TaskKind) *Controller {
	c := &Controller{
		kind:        kind,
		subscribers: make(map[chan State]struct{}),
		now:         time.Now,
	}
	c.state = State{Kind: kind, Phase: PhaseIdle, UpdatedAt: c.now()}
	return c
}

// Kind returns the task kind this controller runs
func (c *Controller) Kind() types.TaskKind {
	return c.kind
}

// State returns the current snapshot
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start moves the controller to loading and returns the run number that
// Complete and Fail must present. A start while loading is rejected with
// WORKFLOW_BUSY, and a request failing the guard with WORKFLOW_GUARD; in both
// cases the state is left untouched.
func (c *Controller) Start(req types.TaskRequest) (uint64, error) {
	if req.Kind != c.kind {
		return 0, errors.NewValidationError(errors.ErrCodeInvalidRequest,
			fmt.Sprintf("%s controller cannot start a %s request", c.kind, req.Kind), nil)
	}
	if err := guard(req); err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Phase == PhaseLoading {
		return 0, errors.NewWorkflowError(errors.ErrCodeWorkflowBusy,
			fmt.Sprintf("%s is already running", c.kind)).
			WithContext("run", c.state.Run)
	}

	c.run++
	c.transition(State{Kind: c.kind, Phase: PhaseLoading, Run: c.run})
	return c.run, nil
}

// Complete records a successful result for run. It reports false, leaving
// the state unchanged, when run is not the one currently loading.
func (c *Controller) Complete(run uint64, result types.ValidatedResult) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loading(run) {
		return false
	}
	c.transition(State{Kind: c.kind, Phase: PhaseSuccess, Run: run, Result: &result})
	return true
}

// Fail records the failure of run, classified by its error kind. It reports
// false, leaving the state unchanged, when run is not the one currently loading.
func (c *Controller) Fail(run uint64, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loading(run) {
		return false
	}

	msg := "unknown error"
	if appErr, ok := errors.As(err); ok {
		msg = appErr.Message
	} else if err != nil {
		msg = err.Error()
	}
	c.transition(State{
		Kind:      c.kind,
		Phase:     PhaseFailed,
		Run:       run,
		ErrorKind: errors.KindOf(err),
		Error:     msg,
	})
	return true
}

// Subscribe returns a channel receiving every state from now on, starting with
// the current one, and a function that ends the subscription. A slow reader
// skips intermediate states but always sees the latest.
func (c *Controller) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	c.mu.Lock()
	c.subscribers[ch] = struct{}{}
	ch <- c.state
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subscribers, ch)
			c.mu.Unlock()
			close(ch)
		})
	}
}

func (c *Controller) loading(run uint64) bool {
	return c.state.Phase == PhaseLoading && c.state.Run == run
}

// transition must be called with mu held
func (c *Controller) transition(next State) {
	next.UpdatedAt = c.now()
	c.state = next
	for ch := range c.subscribers {
		select {
		case ch <- next:
		default:
			// drop the stale state the reader has not picked up yet
			select {
			case <-ch:
			default:
			}
			ch <- next
		}
	}
}

// guard checks the preconditions a request must meet before it may start
func guard(req types.TaskRequest) error {
	switch req.Kind {
	case types.TaskGenerate:
		if req.Generate == nil {
			return errors.NewWorkflowError(errors.ErrCodeWorkflowGuard, "generate request has no fields")
		}
		var missing []string
		if strings.TrimSpace(req.Generate.FullName) == "" {
			missing = append(missing, "fullName")
		}
		if strings.TrimSpace(req.Generate.Email) == "" {
			missing = append(missing, "email")
		}
		if len(missing) > 0 {
			return errors.NewWorkflowError(errors.ErrCodeWorkflowGuard,
				fmt.Sprintf("%s required", strings.Join(missing, " and "))).
				WithContext("missing", missing)
		}
	case types.TaskAnalyze:
		if req.Analyze == nil || req.Analyze.Document.Data == "" {
			return errors.NewWorkflowError(errors.ErrCodeWorkflowGuard, "a document is required")
		}
	}
	return nil
}
