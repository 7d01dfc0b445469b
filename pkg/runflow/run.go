package runflow

import (
	"time"
)

// Status is the lifecycle state of a run.
type Status string

// Run statuses. A run starts pending, becomes running when the executor
// picks it up, and settles in exactly one terminal status.
const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusFailed    Status = "failed"
	StatusFinished  Status = "finished"
	StatusTruncated Status = "truncated"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusFailed, StatusFinished, StatusTruncated, StatusCancelled:
		return true
	default:
		return false
	}
}

// LogEntry is one audit record. StateSnapshot is a private copy taken when
// the entry was appended.
type LogEntry struct {
	Node          string    `json:"node"`
	Message       string    `json:"message"`
	StateSnapshot State     `json:"state_snapshot"`
	Time          time.Time `json:"time"`
}

// Run is the ledger record of one graph execution.
type Run struct {
	ID           string     `json:"run_id"`
	GraphID      string     `json:"graph_id"`
	Status       Status     `json:"status"`
	CurrentNode  string     `json:"current_node,omitempty"`
	CurrentState State      `json:"current_state"`
	Logs         []LogEntry `json:"logs"`
	Error        string     `json:"error,omitempty"`
	Steps        int        `json:"steps"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Clone returns a deep copy of the run, including every log snapshot.
func (r *Run) Clone() *Run {
	if r == nil {
		return nil
	}
	c := *r
	c.CurrentState = r.CurrentState.Clone()
	if r.Logs != nil {
		c.Logs = make([]LogEntry, len(r.Logs))
		for i, l := range r.Logs {
			l.StateSnapshot = l.StateSnapshot.Clone()
			c.Logs[i] = l
		}
	}
	return &c
}

// RunUpdate is a partial update to a run. Nil fields are left untouched.
type RunUpdate struct {
	Status       *Status
	CurrentNode  *string
	CurrentState State
	Error        *string
	Steps        *int
}

// Apply copies the set fields of u onto r. CurrentState is deep-copied.
func (u RunUpdate) Apply(r *Run) {
	if u.Status != nil {
		r.Status = *u.Status
	}
	if u.CurrentNode != nil {
		r.CurrentNode = *u.CurrentNode
	}
	if u.CurrentState != nil {
		r.CurrentState = u.CurrentState.Clone()
	}
	if u.Error != nil {
		r.Error = *u.Error
	}
	if u.Steps != nil {
		r.Steps = *u.Steps
	}
}

// SetStatus returns an update that changes only the status.
func SetStatus(s Status) RunUpdate {
	return RunUpdate{Status: &s}
}

// Fail returns an update that marks the run failed with msg.
func Fail(msg string) RunUpdate {
	s := StatusFailed
	return RunUpdate{Status: &s, Error: &msg}
}
