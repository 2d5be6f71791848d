// Package task tracks asynchronous build/run/clean jobs dispatched
// through the tool-protocol surface (spec.md §6): each long-running
// operation is recorded as a Task so a client can poll its status
// instead of holding a connection open for the operation's duration.
package task

import (
	"time"

	"github.com/rs/xid"
)

// State is a Task's position in its lifecycle.
type State string

const (
	StateScheduled  State = "scheduled"
	StateProcessing State = "processing"
	StateComplete   State = "complete"
)

// Kind identifies which tool-protocol operation a Task represents.
type Kind string

const (
	KindBuild    Kind = "build"
	KindRunSuite Kind = "run_suite"
	KindClean    Kind = "clean"
)

// Task is one tracked asynchronous operation.
type Task struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	ProjectPath string    `json:"projectPath"`
	Priority    int       `json:"priority"`
	Created     time.Time `json:"created"`
	Started     time.Time `json:"started,omitempty"`
	Finished    time.Time `json:"finished,omitempty"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	Result      string    `json:"result,omitempty"`

	// index is the task's position in taskQueue, kept up to date by its
	// Push, Pop and Swap methods; it is unexported and excluded from JSON.
	index int `json:"-"`
}

// New constructs a Task with a fresh time-sortable ID (spec.md §4.5's xid
// convention, reused here from knowledge.Store's key scheme).
func New(kind Kind, projectPath string, priority int) *Task {
	return &Task{
		ID:          xid.New().String(),
		Kind:        kind,
		ProjectPath: projectPath,
		Priority:    priority,
		Created:     time.Now(),
	}
}

// taskQueue is a container/heap.Interface ordering by Priority descending,
// then Created ascending among equal priorities.
type taskQueue []*Task

func (q taskQueue) Len() int { return len(q) }

func (q taskQueue) Less(i, j int) bool {
	if q[i].Priority != q[j].Priority {
		return q[i].Priority > q[j].Priority
	}
	return q[i].Created.Before(q[j].Created)
}

func (q taskQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *taskQueue) Push(x interface{}) {
	tsk := x.(*Task)
	tsk.index = len(*q)
	*q = append(*q, tsk)
}

func (q *taskQueue) Pop() interface{} {
	old := *q
	n := len(old)
	tsk := old[n-1]
	old[n-1] = nil
	tsk.index = -1
	*q = old[:n-1]
	return tsk
}
