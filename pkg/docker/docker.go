// Package docker wraps the Docker Engine API client the way the teacher's
// pkg/runner and pkg/build packages do (see local_docker.go, local_common.go,
// build/docker.go): image builds stream line-by-line, containers are
// created/started/stopped through docker/docker/client, and health is
// polled via docker inspect. This is the DockerEngine of spec.md §4.3.
package docker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/archive"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/argusci/argus/pkg/apierr"
)

// ContainerStatus enumerates the statuses reported by getContainerStatus
// (spec.md §4.3).
type ContainerStatus string

const (
	StatusRunning    ContainerStatus = "running"
	StatusExited     ContainerStatus = "exited"
	StatusDead       ContainerStatus = "dead"
	StatusNotFound   ContainerStatus = "not_found"
	StatusCreated    ContainerStatus = "created"
	StatusPaused     ContainerStatus = "paused"
	StatusRestarting ContainerStatus = "restarting"
)

// BuildEventKind enumerates the events of the lazy build sequence.
type BuildEventKind string

const (
	BuildStart BuildEventKind = "build_start"
	BuildLog   BuildEventKind = "build_log"
	BuildEnd   BuildEventKind = "build_end"
)

// BuildEvent is one element of the lazy build event sequence.
type BuildEvent struct {
	Kind    BuildEventKind
	Line    string
	Success bool
	Error   error
}

// BuildSpec describes a single image build.
type BuildSpec struct {
	Dockerfile string
	Context    string // local directory used as the build context
	Tags       []string
	Args       map[string]*string
}

// ContainerSpec describes a single container to start.
type ContainerSpec struct {
	Name        string
	Image       string
	Env         []string
	Labels      map[string]string
	Cmd         []string
	Entrypoint  []string
	NetworkMode string
	PortBindings nat_PortMap
	Mounts      []MountSpec
}

// MountSpec is a minimal bind-mount description.
type MountSpec struct {
	Source string
	Target string
}

// nat_PortMap avoids importing go-connections/nat at this level for
// callers that don't need port publishing; defined as a map so the
// zero value (nil) is a legal "no bindings" spec.
type nat_PortMap map[string][]PortBinding

// PortBinding is a single host port binding.
type PortBinding struct {
	HostIP   string
	HostPort string
}

// Engine wraps the docker CLI/API for the lifecycle operations the
// orchestrator needs. The real client is created lazily via FromEnv so the
// engine never memoizes Docker's availability (spec.md §9).
type Engine struct {
	newClient func() (*client.Client, error)
}

// New constructs an Engine backed by the local Docker daemon configuration
// (DOCKER_HOST and friends, respected transitively through the client).
func New() *Engine {
	return &Engine{
		newClient: func() (*client.Client, error) {
			return client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		},
	}
}

func (e *Engine) client() (*client.Client, error) {
	cli, err := e.newClient()
	if err != nil {
		return nil, apierr.Wrap(apierr.DockerUnavailable, "creating docker client", err)
	}
	return cli, nil
}

// BuildImage builds spec.Context into an image and returns a channel of
// BuildEvents. The channel is closed after exactly one BuildEnd event has
// been sent. The caller must drain the channel (or cancel ctx) to avoid
// leaking the build goroutine.
func (e *Engine) BuildImage(ctx context.Context, spec BuildSpec) (<-chan BuildEvent, error) {
	cli, err := e.client()
	if err != nil {
		return nil, err
	}

	tar, err := archive.TarWithOptions(spec.Context, &archive.TarOptions{})
	if err != nil {
		return nil, apierr.Wrap(apierr.BuildFailed, "creating build context tar", err)
	}

	out := make(chan BuildEvent, 16)

	dockerfile := spec.Dockerfile
	if dockerfile == "" {
		dockerfile = "Dockerfile"
	}

	go func() {
		defer close(out)
		out <- BuildEvent{Kind: BuildStart}

		resp, err := cli.ImageBuild(ctx, tar, types.ImageBuildOptions{
			Dockerfile: dockerfile,
			Tags:       spec.Tags,
			BuildArgs:  spec.Args,
		})
		if err != nil {
			out <- BuildEvent{Kind: BuildEnd, Success: false, Error: apierr.Wrap(apierr.BuildFailed, "starting image build", err)}
			return
		}
		defer resp.Body.Close()

		scan := bufio.NewScanner(resp.Body)
		scan.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		var buildErr error
		for scan.Scan() {
			line := scan.Text()
			out <- BuildEvent{Kind: BuildLog, Line: line}

			var msg struct {
				Error string `json:"error"`
			}
			if json.Unmarshal(scan.Bytes(), &msg) == nil && msg.Error != "" {
				buildErr = apierr.New(apierr.BuildFailed, msg.Error)
			}
		}
		if err := scan.Err(); err != nil {
			buildErr = apierr.Wrap(apierr.BuildFailed, "reading build output", err)
		}

		out <- BuildEvent{Kind: BuildEnd, Success: buildErr == nil, Error: buildErr}
	}()

	return out, nil
}

// StartContainer creates and starts a container from spec, returning its
// container id.
func (e *Engine) StartContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	cli, err := e.client()
	if err != nil {
		return "", err
	}

	ccfg := &container.Config{
		Image:      spec.Image,
		Env:        spec.Env,
		Labels:     spec.Labels,
		Cmd:        spec.Cmd,
		Entrypoint: spec.Entrypoint,
	}
	hcfg := &container.HostConfig{}
	if spec.NetworkMode != "" {
		hcfg.NetworkMode = container.NetworkMode(spec.NetworkMode)
	}

	res, err := cli.ContainerCreate(ctx, ccfg, hcfg, nil, nil, spec.Name)
	if err != nil {
		return "", apierr.Wrap(apierr.ContainerStartFailed, fmt.Sprintf("creating container %s", spec.Name), err)
	}

	if err := cli.ContainerStart(ctx, res.ID, types.ContainerStartOptions{}); err != nil {
		return "", apierr.Wrap(apierr.ContainerStartFailed, fmt.Sprintf("starting container %s", spec.Name), err)
	}

	return res.ID, nil
}

// StopContainer stops and removes name. It is idempotent: a missing
// container is not an error.
func (e *Engine) StopContainer(ctx context.Context, name string) error {
	cli, err := e.client()
	if err != nil {
		return err
	}

	timeout := 10
	if err := cli.ContainerStop(ctx, name, container.StopOptions{Timeout: &timeout}); err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return apierr.Wrap(apierr.ContainerStartFailed, fmt.Sprintf("stopping container %s", name), err)
	}
	if err := cli.ContainerRemove(ctx, name, types.ContainerRemoveOptions{Force: true}); err != nil && !client.IsErrNotFound(err) {
		return apierr.Wrap(apierr.ContainerStartFailed, fmt.Sprintf("removing container %s", name), err)
	}
	return nil
}

// GetContainerStatus reports name's current status.
func (e *Engine) GetContainerStatus(ctx context.Context, name string) (ContainerStatus, error) {
	cli, err := e.client()
	if err != nil {
		return "", err
	}

	info, err := cli.ContainerInspect(ctx, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return StatusNotFound, nil
		}
		return "", apierr.Wrap(apierr.DockerUnavailable, fmt.Sprintf("inspecting container %s", name), err)
	}

	switch info.State.Status {
	case "running":
		return StatusRunning, nil
	case "exited":
		return StatusExited, nil
	case "dead":
		return StatusDead, nil
	case "created":
		return StatusCreated, nil
	case "paused":
		return StatusPaused, nil
	case "restarting":
		return StatusRestarting, nil
	default:
		return StatusNotFound, nil
	}
}

// WaitForHealthy polls docker inspect's health status until the container
// reports healthy, retries are exhausted, or timeout elapses. Returns
// false (not an error) on timeout, per spec.md §7's "health timeouts are
// non-throwing boolean results" policy.
func (e *Engine) WaitForHealthy(ctx context.Context, name string, interval, timeout time.Duration, retries int) (bool, error) {
	cli, err := e.client()
	if err != nil {
		return false, err
	}

	deadline := time.Now().Add(timeout)
	attempts := 0
	for {
		info, err := cli.ContainerInspect(ctx, name)
		if err == nil && info.State != nil && info.State.Health != nil {
			if info.State.Health.Status == "healthy" {
				return true, nil
			}
		} else if err == nil && info.State != nil && info.State.Running {
			// No healthcheck configured: running is good enough.
			return true, nil
		}

		attempts++
		if attempts >= retries && retries > 0 {
			return false, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(interval):
		}
	}
}

// EnsureNetwork creates a bridge network named name if it doesn't exist.
func (e *Engine) EnsureNetwork(ctx context.Context, name string) (string, error) {
	cli, err := e.client()
	if err != nil {
		return "", err
	}

	list, err := cli.NetworkList(ctx, types.NetworkListOptions{
		Filters: filters.NewArgs(filters.Arg("name", name)),
	})
	if err != nil {
		return "", apierr.Wrap(apierr.NetworkUnreachable, "listing networks", err)
	}
	for _, n := range list {
		if n.Name == name {
			return n.ID, nil
		}
	}

	resp, err := cli.NetworkCreate(ctx, name, types.NetworkCreate{
		Driver: "bridge",
		IPAM:   &network.IPAM{},
	})
	if err != nil {
		return "", apierr.Wrap(apierr.NetworkUnreachable, fmt.Sprintf("creating network %s", name), err)
	}
	return resp.ID, nil
}

// RemoveNetwork removes a network by name or id, ignoring "not found".
func (e *Engine) RemoveNetwork(ctx context.Context, id string) error {
	cli, err := e.client()
	if err != nil {
		return err
	}
	if err := cli.NetworkRemove(ctx, id); err != nil && !client.IsErrNotFound(err) {
		return apierr.Wrap(apierr.NetworkUnreachable, fmt.Sprintf("removing network %s", id), err)
	}
	return nil
}

// IsPortInUse attempts to bind a loopback TCP listener on port; a bind
// failure (including EADDRINUSE) is treated as in-use.
func IsPortInUse(port int) bool {
	l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return true
	}
	_ = l.Close()
	return false
}

// ExecResult is the outcome of a dockerExec call.
type ExecResult struct {
	ExitCode int
	Output   string
}

// ExecInContainer runs cmd inside name and returns the combined
// stdout/stderr. An exit code != 0, or exceeding timeout, is an error.
func (e *Engine) ExecInContainer(ctx context.Context, name string, cmd []string, timeout time.Duration) (*ExecResult, error) {
	cli, err := e.client()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	exec, err := cli.ContainerExecCreate(ctx, name, types.ExecConfig{
		Cmd:          cmd,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, apierr.Wrap(apierr.DockerUnavailable, "creating exec", err)
	}

	resp, err := cli.ContainerExecAttach(ctx, exec.ID, types.ExecStartCheck{})
	if err != nil {
		return nil, apierr.Wrap(apierr.DockerUnavailable, "attaching exec", err)
	}
	defer resp.Close()

	var stdout, stderr bufWriter
	if _, err := stdcopy.StdCopy(&stdout, &stderr, resp.Reader); err != nil && err != io.EOF {
		return nil, apierr.Wrap(apierr.DockerUnavailable, "reading exec output", err)
	}

	inspect, err := cli.ContainerExecInspect(ctx, exec.ID)
	if err != nil {
		return nil, apierr.Wrap(apierr.DockerUnavailable, "inspecting exec", err)
	}

	result := &ExecResult{ExitCode: inspect.ExitCode, Output: stdout.String() + stderr.String()}
	if ctx.Err() == context.DeadlineExceeded {
		return result, apierr.New(apierr.HealthTimeout, fmt.Sprintf("exec in %s exceeded %s", name, timeout))
	}
	if inspect.ExitCode != 0 {
		return result, apierr.New(apierr.DockerUnavailable, fmt.Sprintf("exec in %s exited %d: %s", name, inspect.ExitCode, result.Output))
	}
	return result, nil
}

type bufWriter struct{ b []byte }

func (w *bufWriter) Write(p []byte) (int, error) {
	w.b = append(w.b, p...)
	return len(p), nil
}

func (w *bufWriter) String() string { return string(w.b) }
