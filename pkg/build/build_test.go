package build

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/argusci/argus/pkg/config"
)

func TestStageFetchesLocalDirectoryContext(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "Dockerfile"), []byte("FROM scratch\n"), 0644))

	svc := config.Service{Name: "api", Build: config.Build{Context: src}}

	staged, cleanup, err := Stage(svc, t.TempDir())
	require.NoError(t, err)
	defer cleanup()

	data, err := os.ReadFile(filepath.Join(staged, "Dockerfile"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "FROM scratch")
}

func TestStageRejectsEmptyContext(t *testing.T) {
	_, _, err := Stage(config.Service{Name: "api"}, t.TempDir())
	require.Error(t, err)
}
