package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argusci/argus/pkg/config"
)

func svc(name string, deps ...string) config.Service {
	return config.Service{
		Name:      name,
		Container: config.Container{Name: name, DependsOn: deps},
	}
}

func TestTopoSortOrdersDependenciesFirst(t *testing.T) {
	services := []config.Service{
		svc("api", "db"),
		svc("db"),
	}

	ordered, err := topoSort(services)
	require.NoError(t, err)
	require.Len(t, ordered, 2)
	assert.Equal(t, "db", ordered[0].Name)
	assert.Equal(t, "api", ordered[1].Name)
}

func TestTopoSortRejectsCycles(t *testing.T) {
	services := []config.Service{
		svc("a", "b"),
		svc("b", "a"),
	}

	_, err := topoSort(services)
	require.Error(t, err)
}

func TestTopoSortRejectsUnknownDependency(t *testing.T) {
	services := []config.Service{
		svc("a", "ghost"),
	}

	_, err := topoSort(services)
	require.Error(t, err)
}

func TestTopoSortIsStableForIndependentServices(t *testing.T) {
	services := []config.Service{
		svc("a"),
		svc("b"),
	}

	ordered, err := topoSort(services)
	require.NoError(t, err)
	assert.Equal(t, "a", ordered[0].Name)
	assert.Equal(t, "b", ordered[1].Name)
}
