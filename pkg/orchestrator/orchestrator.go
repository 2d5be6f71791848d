// Package orchestrator implements MultiServiceOrchestrator (spec.md
// §4.13): topological build/start/clean across N service definitions with
// optional dependsOn edges.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/argusci/argus/pkg/apierr"
	"github.com/argusci/argus/pkg/build"
	"github.com/argusci/argus/pkg/config"
	"github.com/argusci/argus/pkg/docker"
)

// Orchestrator drives build/start/clean across a project's declared
// services using a shared DockerEngine.
type Orchestrator struct {
	Engine *docker.Engine

	// BuildParallel selects parallel vs sequential builds (spec.md
	// §4.13's "config-selectable" build mode).
	BuildParallel bool

	HealthInterval time.Duration
	HealthTimeout  time.Duration
	HealthRetries  int
}

// topoSort returns services ordered so that every service appears after
// its dependencies, or a CONFIG_ERROR if the dependency graph has a cycle
// or references an undeclared service.
func topoSort(services []config.Service) ([]config.Service, error) {
	byName := make(map[string]config.Service, len(services))
	for _, s := range services {
		byName[s.Name] = s
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(services))
	var order []config.Service

	var visit func(name string) error
	visit = func(name string) error {
		switch color[name] {
		case black:
			return nil
		case gray:
			return apierr.New(apierr.ConfigError, "dependency cycle detected at service: "+name)
		}

		svc, ok := byName[name]
		if !ok {
			return apierr.New(apierr.ConfigError, "unknown service in dependsOn: "+name)
		}

		color[name] = gray
		for _, dep := range svc.Container.DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[name] = black
		order = append(order, svc)
		return nil
	}

	for _, s := range services {
		if err := visit(s.Name); err != nil {
			return nil, err
		}
	}

	return order, nil
}

// BuildAll builds every service's image, sequentially or in parallel per
// o.BuildParallel. Build order does not depend on topology: images can be
// built independently of each other.
func (o *Orchestrator) BuildAll(ctx context.Context, services []config.Service) error {
	buildOne := func(ctx context.Context, s config.Service) error {
		tag := s.Build.Image
		if tag == "" {
			tag = s.Name + ":latest"
		}

		stagedContext, cleanup, err := build.Stage(s, os.TempDir())
		if err != nil {
			return err
		}
		defer cleanup()

		events, err := o.Engine.BuildImage(ctx, docker.BuildSpec{
			Dockerfile: s.Build.Dockerfile,
			Context:    stagedContext,
			Tags:       []string{tag},
		})
		if err != nil {
			return apierr.Wrap(apierr.BuildFailed, "building "+s.Name, err)
		}
		for ev := range events {
			if ev.Kind == docker.BuildEnd && !ev.Success {
				return apierr.Wrap(apierr.BuildFailed, "building "+s.Name, ev.Error)
			}
		}
		return nil
	}

	if !o.BuildParallel {
		for _, s := range services {
			if err := buildOne(ctx, s); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range services {
		s := s
		g.Go(func() error { return buildOne(gctx, s) })
	}
	return g.Wait()
}

// StartAll starts services in topological order, waiting for each
// service's healthcheck (if declared) before starting its dependents.
func (o *Orchestrator) StartAll(ctx context.Context, services []config.Service, networkName string) error {
	ordered, err := topoSort(services)
	if err != nil {
		return err
	}

	if _, err := o.Engine.EnsureNetwork(ctx, networkName); err != nil {
		return err
	}

	for _, s := range ordered {
		tag := s.Build.Image
		if tag == "" {
			tag = s.Name + ":latest"
		}

		_, err := o.Engine.StartContainer(ctx, docker.ContainerSpec{
			Name:        s.Container.Name,
			Image:       tag,
			Env:         s.Container.Env,
			NetworkMode: networkName,
		})
		if err != nil {
			return err
		}

		if s.Container.Healthcheck != nil {
			startPeriod := time.Duration(s.Container.Healthcheck.StartPeriod) * time.Second
			if startPeriod > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(startPeriod):
				}
			}

			interval := o.HealthInterval
			if interval == 0 {
				interval = time.Duration(s.Container.Healthcheck.IntervalSecs) * time.Second
			}
			timeout := o.HealthTimeout
			if timeout == 0 {
				timeout = time.Duration(s.Container.Healthcheck.TimeoutSecs) * time.Second
			}
			retries := o.HealthRetries
			if retries == 0 {
				retries = s.Container.Healthcheck.Retries
			}

			healthy, err := o.Engine.WaitForHealthy(ctx, s.Container.Name, interval, timeout, retries)
			if err != nil {
				return err
			}
			if !healthy {
				return apierr.New(apierr.HealthTimeout, fmt.Sprintf("service %s did not become healthy", s.Name))
			}
		}
	}

	return nil
}

// CleanAll stops services in reverse topological order, swallowing
// individual errors so teardown completes best-effort (spec.md §7).
// Returns the swallowed errors as warnings.
func (o *Orchestrator) CleanAll(ctx context.Context, services []config.Service) []error {
	ordered, err := topoSort(services)
	if err != nil {
		ordered = services
	}

	var warnings []error
	for i := len(ordered) - 1; i >= 0; i-- {
		if err := o.Engine.StopContainer(ctx, ordered[i].Container.Name); err != nil {
			warnings = append(warnings, err)
		}
	}
	return warnings
}
