package task

import (
	"container/heap"
	"sync"
	"time"
)

// Manager schedules Tasks by priority and persists their lifecycle
// transitions through a Storage backend.
type Manager struct {
	mu      sync.Mutex
	queue   taskQueue
	storage *Storage
}

// NewManager wires a priority queue to a Storage backend.
func NewManager(storage *Storage) *Manager {
	q := make(taskQueue, 0)
	heap.Init(&q)
	return &Manager{queue: q, storage: storage}
}

// Submit enqueues tsk and persists it as Scheduled.
func (m *Manager) Submit(tsk *Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.storage.PersistScheduled(tsk); err != nil {
		return err
	}
	heap.Push(&m.queue, tsk)
	return nil
}

// StartSync persists tsk as Scheduled, then immediately Processing,
// without going through the shared priority queue: for a caller that
// executes a task synchronously in its own goroutine (e.g. a daemon
// handler running a build inline) and only wants a durable Task record
// a client can later poll, not queue-based dispatch shared with other
// in-flight requests.
func (m *Manager) StartSync(tsk *Task) error {
	if err := m.storage.PersistScheduled(tsk); err != nil {
		return err
	}
	tsk.Started = time.Now()
	if err := m.storage.ProcessTask(tsk); err != nil {
		return err
	}
	return m.storage.PersistProcessing(tsk)
}

// Dequeue pops the highest-priority scheduled Task (ties broken by
// oldest Created) and marks it Processing. Returns nil if the queue is
// empty.
func (m *Manager) Dequeue() (*Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.queue.Len() == 0 {
		return nil, nil
	}

	tsk := heap.Pop(&m.queue).(*Task)
	tsk.Started = time.Now()
	if err := m.storage.ProcessTask(tsk); err != nil {
		return nil, err
	}
	if err := m.storage.PersistProcessing(tsk); err != nil {
		return nil, err
	}
	return tsk, nil
}

// Complete marks tsk Complete, recording its outcome.
func (m *Manager) Complete(tsk *Task, success bool, result, errMsg string) error {
	tsk.Finished = time.Now()
	tsk.Success = success
	tsk.Result = result
	tsk.Error = errMsg

	if err := m.storage.ArchiveTask(tsk); err != nil {
		return err
	}
	return m.storage.PersistComplete(tsk)
}

// Get returns the current state of a tracked task regardless of its
// lifecycle stage.
func (m *Manager) Get(id string) (*Task, error) {
	return m.storage.Get(id)
}
