package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	storage, err := NewMemoryTaskStorage()
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })
	return NewManager(storage)
}

func TestSubmitThenDequeueReturnsHighestPriorityFirst(t *testing.T) {
	m := newTestManager(t)

	low := New(KindBuild, "/proj", 1)
	high := New(KindBuild, "/proj", 10)
	require.NoError(t, m.Submit(low))
	require.NoError(t, m.Submit(high))

	got, err := m.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, high.ID, got.ID)
}

func TestDequeueOnEmptyQueueReturnsNil(t *testing.T) {
	m := newTestManager(t)
	got, err := m.Dequeue()
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCompletePersistsOutcome(t *testing.T) {
	m := newTestManager(t)
	tsk := New(KindRunSuite, "/proj", 5)
	require.NoError(t, m.Submit(tsk))

	dequeued, err := m.Dequeue()
	require.NoError(t, err)

	require.NoError(t, m.Complete(dequeued, true, "7 passed", ""))

	got, err := m.Get(tsk.ID)
	require.NoError(t, err)
	assert.True(t, got.Success)
	assert.Equal(t, "7 passed", got.Result)
}

func TestStartSyncRecordsTaskWithoutQueueing(t *testing.T) {
	m := newTestManager(t)
	tsk := New(KindClean, "/proj", 0)

	require.NoError(t, m.StartSync(tsk))
	assert.Zero(t, m.queue.Len(), "StartSync must not touch the shared priority queue")

	require.NoError(t, m.Complete(tsk, true, "2 warnings", ""))

	got, err := m.Get(tsk.ID)
	require.NoError(t, err)
	assert.True(t, got.Success)
	assert.Equal(t, "2 warnings", got.Result)
}

func TestCompleteRecordsFailureReason(t *testing.T) {
	m := newTestManager(t)
	tsk := New(KindBuild, "/proj", 5)
	require.NoError(t, m.Submit(tsk))

	dequeued, err := m.Dequeue()
	require.NoError(t, err)

	require.NoError(t, m.Complete(dequeued, false, "", "image build failed"))

	got, err := m.Get(tsk.ID)
	require.NoError(t, err)
	assert.False(t, got.Success)
	assert.Equal(t, "image build failed", got.Error)
}
