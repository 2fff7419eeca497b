package store

import (
	"fmt"
	"time"
)

// StepStatus is the lifecycle state of an individual plan step.
type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepDone       StepStatus = "done"
	StepFailed     StepStatus = "failed"
)

// ToolCall is the structured action a step intends to execute.
type ToolCall struct {
	Tool      string `json:"tool"`
	Arguments string `json:"arguments"`
}

// Step represents a single sub-task in a broader plan. Positions are unique
// and contiguous starting at 1.
type Step struct {
	Position    int        `json:"position"`
	Description string     `json:"description"`
	DependsOn   []int      `json:"depends_on,omitempty"`
	Status      StepStatus `json:"status"`
	ToolCall    *ToolCall  `json:"tool_call,omitempty"`
	Rationale   string     `json:"rationale,omitempty"`
	Result      string     `json:"result,omitempty"`
}

// Plan is an ordered sequence of dependent steps generated for one mission.
// Plans are never deleted; a superseded plan simply loses its session linkage.
type Plan struct {
	ID            string    `json:"id"`
	Mission       string    `json:"mission"`
	Steps         []Step    `json:"steps"`
	OpenQuestions []string  `json:"open_questions,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Validate checks the structural invariants: contiguous 1-based positions and
// dependencies that reference earlier, existing steps.
func (p *Plan) Validate() error {
	for i, s := range p.Steps {
		if s.Position != i+1 {
			return fmt.Errorf("plan %s: step at index %d has position %d, want %d", p.ID, i, s.Position, i+1)
		}
		for _, dep := range s.DependsOn {
			if dep < 1 || dep > len(p.Steps) {
				return fmt.Errorf("plan %s: step %d depends on unknown position %d", p.ID, s.Position, dep)
			}
			if dep == s.Position {
				return fmt.Errorf("plan %s: step %d depends on itself", p.ID, s.Position)
			}
		}
	}
	return nil
}

// IsComplete reports whether every step is done. An empty plan is freshly
// created, not finished.
func (p *Plan) IsComplete() bool {
	if len(p.Steps) == 0 {
		return false
	}
	for _, s := range p.Steps {
		if s.Status != StepDone {
			return false
		}
	}
	return true
}

// Step returns the step at the given 1-based position, or nil.
func (p *Plan) Step(position int) *Step {
	if position < 1 || position > len(p.Steps) {
		return nil
	}
	return &p.Steps[position-1]
}

// CanStart reports whether every dependency of the step at position is done.
func (p *Plan) CanStart(position int) bool {
	s := p.Step(position)
	if s == nil {
		return false
	}
	for _, dep := range s.DependsOn {
		depStep := p.Step(dep)
		if depStep == nil || depStep.Status != StepDone {
			return false
		}
	}
	return true
}

// SetStatus transitions a step, enforcing the dependency gate: a step may
// only move to in_progress or done once all of its dependencies are done.
func (p *Plan) SetStatus(position int, status StepStatus) error {
	s := p.Step(position)
	if s == nil {
		return fmt.Errorf("plan %s: no step at position %d", p.ID, position)
	}
	if (status == StepInProgress || status == StepDone) && !p.CanStart(position) {
		return fmt.Errorf("plan %s: step %d has unmet dependencies", p.ID, position)
	}
	s.Status = status
	return nil
}

// NextRunnable returns the first pending step whose dependencies are all
// done, or nil when nothing can run.
func (p *Plan) NextRunnable() *Step {
	for i := range p.Steps {
		s := &p.Steps[i]
		if s.Status == StepPending && p.CanStart(s.Position) {
			return s
		}
	}
	return nil
}

// SessionState is the small persisted record tracking one conversation
// session across missions.
type SessionState struct {
	SessionID       string            `json:"session_id"`
	PlanID          string            `json:"plan_id,omitempty"`
	Mission         string            `json:"mission,omitempty"`
	PendingQuestion string            `json:"pending_question,omitempty"`
	Answers         map[string]string `json:"answers,omitempty"`
}

// ScheduledTask is a recurring mission registered through the schedule tool.
type ScheduledTask struct {
	ID          int
	SessionID   string
	Description string
	Interval    time.Duration
	LastRun     time.Time
}
