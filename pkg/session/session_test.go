package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argusci/argus/pkg/apierr"
	"github.com/argusci/argus/pkg/config"
	"github.com/argusci/argus/pkg/ports"
)

func newManager() *Manager {
	return NewManager(ports.New(20000, 21000))
}

func TestCreateFailsWhenSessionAlreadyExists(t *testing.T) {
	m := newManager()
	_, err := m.Create("/proj", &config.E2EConfig{}, "/proj/e2e.yaml", "sess-1")
	require.NoError(t, err)

	_, err = m.Create("/proj", &config.E2EConfig{}, "/proj/e2e.yaml", "sess-2")
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.SessionExists))
}

func TestGetOrThrowReportsMissingSession(t *testing.T) {
	m := newManager()
	_, err := m.GetOrThrow("/missing")
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.SessionNotFound))
}

func TestHasReflectsPresence(t *testing.T) {
	m := newManager()
	assert.False(t, m.Has("/proj"))
	_, err := m.Create("/proj", &config.E2EConfig{}, "/proj/e2e.yaml", "sess-1")
	require.NoError(t, err)
	assert.True(t, m.Has("/proj"))
}

func TestTransitionFollowsDAG(t *testing.T) {
	m := newManager()
	_, err := m.Create("/proj", &config.E2EConfig{}, "/proj/e2e.yaml", "sess-1")
	require.NoError(t, err)

	require.NoError(t, m.Transition("/proj", StateBuilt))
	require.NoError(t, m.Transition("/proj", StateRunning))
	require.NoError(t, m.Transition("/proj", StateStopped))

	s, err := m.GetOrThrow("/proj")
	require.NoError(t, err)
	assert.Equal(t, StateStopped, s.State)
}

func TestTransitionRejectsInvalidEdgeAndLeavesStateUnchanged(t *testing.T) {
	m := newManager()
	_, err := m.Create("/proj", &config.E2EConfig{}, "/proj/e2e.yaml", "sess-1")
	require.NoError(t, err)

	err = m.Transition("/proj", StateRunning)
	require.Error(t, err)
	assert.True(t, apierr.Is(err, apierr.InvalidState))

	s, err := m.GetOrThrow("/proj")
	require.NoError(t, err)
	assert.Equal(t, StateInitialized, s.State)
}

func TestTransitionInitializedToStoppedIsAllowed(t *testing.T) {
	m := newManager()
	_, err := m.Create("/proj", &config.E2EConfig{}, "/proj/e2e.yaml", "sess-1")
	require.NoError(t, err)
	assert.NoError(t, m.Transition("/proj", StateStopped))
}

func TestRemoveReleasesPortsAndUntracksSession(t *testing.T) {
	allocator := ports.New(20000, 21000)
	allocator.SetProbe(func(int) bool { return false })
	m := NewManager(allocator)

	_, err := m.Create("/proj", &config.E2EConfig{}, "/proj/e2e.yaml", "sess-1")
	require.NoError(t, err)

	claimed := allocator.Claim(20000, "/proj", "sess-1")
	require.True(t, claimed)

	require.NoError(t, m.Remove("/proj"))
	assert.False(t, m.Has("/proj"))

	stillOwned := allocator.Claim(20000, "/proj", "sess-2")
	assert.True(t, stillOwned, "port should have been released by Remove")
}

func TestListReturnsAllTrackedSessions(t *testing.T) {
	m := newManager()
	_, err := m.Create("/a", &config.E2EConfig{}, "/a/e2e.yaml", "sess-a")
	require.NoError(t, err)
	_, err = m.Create("/b", &config.E2EConfig{}, "/b/e2e.yaml", "sess-b")
	require.NoError(t, err)

	assert.Len(t, m.List(), 2)
}
