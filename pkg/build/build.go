// Package build stages a service's build context before it reaches
// DockerEngine.BuildImage (spec.md §4.13). Adapted from the teacher's
// pkg/build/docker.go: the same go-getter fetch-into-temp-dir step and
// the same otiai10/copy symlink materialization, generalized from
// "fetch a test plan's source" to "fetch a service's Docker build
// context," which may be a local directory, a local path, or any URL
// go-getter understands (git::, http://, s3::, ...).
package build

import (
	"os"
	"path/filepath"

	"github.com/hashicorp/go-getter"
	"github.com/otiai10/copy"

	"github.com/argusci/argus/pkg/apierr"
	"github.com/argusci/argus/pkg/config"
)

// Stage fetches svc.Build.Context into a fresh temp directory under
// workDir and returns its path, ready to hand to
// docker.Engine.BuildImage's BuildSpec.Context. The caller must call the
// returned cleanup func once the build completes.
//
// A context that is already a plain local directory goes through
// go-getter too: its file getter links the directory into place, and
// materializeSymlink then replaces that link with a real copy. This
// keeps the staging step uniform regardless of source kind instead of
// special-casing local paths.
func Stage(svc config.Service, workDir string) (stagedContext string, cleanup func(), err error) {
	if svc.Build.Context == "" {
		return "", func() {}, apierr.New(apierr.ConfigError, "service "+svc.Name+" has no build context")
	}

	tmp, err := os.MkdirTemp(workDir, "argus-build-"+svc.Name+"-")
	if err != nil {
		return "", nil, apierr.Wrap(apierr.ConfigError, "creating build staging dir for "+svc.Name, err)
	}
	cleanup = func() { _ = os.RemoveAll(tmp) }

	dst := filepath.Join(tmp, "context")
	if err := getter.Get(dst, svc.Build.Context); err != nil {
		cleanup()
		return "", nil, apierr.Wrap(apierr.ConfigError, "fetching build context for "+svc.Name, err)
	}

	if err := materializeSymlink(dst); err != nil {
		cleanup()
		return "", nil, apierr.Wrap(apierr.ConfigError, "materializing build context for "+svc.Name, err)
	}

	return dst, cleanup, nil
}

// materializeSymlink replaces dir with a real copy of its target if dir
// is itself a symlink, since Docker's tar-based build context does not
// follow a symlinked root.
func materializeSymlink(dir string) error {
	fi, err := os.Lstat(dir)
	if err != nil {
		return err
	}
	if fi.Mode()&os.ModeSymlink == 0 {
		return nil
	}

	ref, err := os.Readlink(dir)
	if err != nil {
		return err
	}
	if err := os.Remove(dir); err != nil {
		return err
	}
	return copy.Copy(ref, dir)
}
