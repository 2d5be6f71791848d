// Package config loads and validates the E2EConfig document described in
// spec.md §6. Loading follows the teacher's convention in
// pkg/cmd/common.go (github.com/BurntSushi/toml decoding a manifest off
// disk), extended with a Draft-7 JSON Schema export
// (github.com/invopop/jsonschema) and validation of the decoded document
// against that schema (github.com/xeipuuv/gojsonschema) before the engine
// is allowed to start.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"

	"github.com/argusci/argus/pkg/apierr"
)

// EnvPathOverride is the environment variable that overrides the config
// path, per spec.md §6.
const EnvPathOverride = "E2E_CONFIG"

// DefaultConfigPath is used when E2E_CONFIG is unset.
const DefaultConfigPath = "e2e.toml"

// HealthCheck describes a container readiness probe.
type HealthCheck struct {
	Command      []string `toml:"command" json:"command,omitempty" jsonschema:"description=command to run inside the container to test readiness"`
	HTTPPath     string   `toml:"http_path" json:"http_path,omitempty"`
	Port         int      `toml:"port" json:"port,omitempty"`
	IntervalSecs int      `toml:"interval_secs" json:"interval_secs,omitempty"`
	TimeoutSecs  int      `toml:"timeout_secs" json:"timeout_secs,omitempty"`
	Retries      int      `toml:"retries" json:"retries,omitempty"`
	StartPeriod  int      `toml:"start_period_secs" json:"start_period_secs,omitempty"`
}

// Build describes how to build a service's image.
type Build struct {
	Dockerfile string            `toml:"dockerfile" json:"dockerfile,omitempty"`
	Context    string            `toml:"context" json:"context,omitempty" jsonschema:"required"`
	Image      string            `toml:"image" json:"image,omitempty"`
	Args       map[string]string `toml:"args" json:"args,omitempty"`
}

// Container describes how to run a service's container.
type Container struct {
	Name        string       `toml:"name" json:"name,omitempty" jsonschema:"required"`
	Ports       []int        `toml:"ports" json:"ports,omitempty"`
	Env         []string     `toml:"env" json:"env,omitempty"`
	Healthcheck *HealthCheck `toml:"healthcheck" json:"healthcheck,omitempty"`
	DependsOn   []string     `toml:"depends_on" json:"depends_on,omitempty"`
}

// Service is a single buildable, runnable service definition.
type Service struct {
	Name      string    `toml:"name" json:"name,omitempty" jsonschema:"required"`
	Build     Build     `toml:"build" json:"build"`
	Container Container `toml:"container" json:"container"`
}

// MockRoute is a single static route served by a mock server.
type MockRoute struct {
	Method   string            `toml:"method" json:"method,omitempty" jsonschema:"required"`
	Path     string            `toml:"path" json:"path,omitempty" jsonschema:"required"`
	Status   int               `toml:"status" json:"status,omitempty"`
	Headers  map[string]string `toml:"headers" json:"headers,omitempty"`
	Body     string            `toml:"body" json:"body,omitempty"`
}

// OpenAPIMockConfig configures a spec-driven mock.
type OpenAPIMockConfig struct {
	SpecFile        string `toml:"spec_file" json:"spec_file,omitempty" jsonschema:"required"`
	Mode            string `toml:"mode" json:"mode,omitempty" jsonschema:"enum=mock,enum=record,enum=replay,enum=smart"`
	UpstreamURL     string `toml:"upstream_url" json:"upstream_url,omitempty"`
	ValidateRequest bool   `toml:"validate_request" json:"validate_request,omitempty"`
	MaxDepth        int    `toml:"max_depth" json:"max_depth,omitempty"`
}

// Mock is a named mock server, either static-route or OpenAPI-driven.
type Mock struct {
	Port    int                `toml:"port" json:"port,omitempty" jsonschema:"required"`
	Routes  []MockRoute        `toml:"routes" json:"routes,omitempty"`
	OpenAPI *OpenAPIMockConfig `toml:"openapi" json:"openapi,omitempty"`
}

// Network configures the Docker network shared by a project's containers.
type Network struct {
	Name string `toml:"name" json:"name,omitempty"`
}

// Suite declares one test suite and the runner that executes it.
type Suite struct {
	ID     string `toml:"id" json:"id,omitempty" jsonschema:"required"`
	Name   string `toml:"name" json:"name,omitempty"`
	File   string `toml:"file" json:"file,omitempty" jsonschema:"required"`
	Runner string `toml:"runner" json:"runner,omitempty" jsonschema:"required,enum=yaml-http,enum=shell-exec,enum=generic-exec,enum=subprocess-json,enum=browser-json"`
}

// Backoff configures a retry backoff curve.
type Backoff struct {
	Strategy string `toml:"strategy" json:"strategy,omitempty" jsonschema:"enum=fixed,enum=linear,enum=exponential"`
	Initial  int    `toml:"initial_ms" json:"initial_ms,omitempty"`
	Max      int    `toml:"max_ms" json:"max_ms,omitempty"`
}

// RetryPolicy configures per-case retries.
type RetryPolicy struct {
	MaxAttempts int     `toml:"max_attempts" json:"max_attempts,omitempty"`
	Backoff     Backoff `toml:"backoff" json:"backoff"`
}

// Resilience groups retry/parallelism knobs for a run.
type Resilience struct {
	Retry    *RetryPolicy `toml:"retry" json:"retry,omitempty"`
	Mode     string       `toml:"mode" json:"mode,omitempty" jsonschema:"enum=serial,enum=by-suite,enum=by-file"`
	Workers  int          `toml:"workers" json:"workers,omitempty"`
	FailFast bool         `toml:"fail_fast" json:"fail_fast,omitempty"`
}

// Tests groups the declared suite list.
type Tests struct {
	Suites []Suite `toml:"suites" json:"suites,omitempty"`
}

// History configures the durable history/knowledge stores.
type History struct {
	Enabled bool `toml:"enabled" json:"enabled,omitempty"`
}

// Project identifies the project under test.
type Project struct {
	Name string `toml:"name" json:"name,omitempty" jsonschema:"required"`
}

// E2EConfig is the top-level, validated configuration consumed by the
// engine, per spec.md §6.
type E2EConfig struct {
	Version     string          `toml:"version" json:"version,omitempty" jsonschema:"required"`
	Project     Project         `toml:"project" json:"project"`
	Service     *Service        `toml:"service" json:"service,omitempty"`
	Services    []Service       `toml:"services" json:"services,omitempty"`
	Mocks       map[string]Mock `toml:"mocks" json:"mocks,omitempty"`
	Network     Network         `toml:"network" json:"network"`
	Tests       Tests           `toml:"tests" json:"tests"`
	Resilience  *Resilience     `toml:"resilience" json:"resilience,omitempty"`
	HistoryCfg  *History        `toml:"history" json:"history,omitempty"`
}

// AllServices returns the configured services, normalizing the
// singular/plural forms accepted per spec.md §6.
func (c *E2EConfig) AllServices() []Service {
	if c.Service != nil {
		return append([]Service{*c.Service}, c.Services...)
	}
	return c.Services
}

// NetworkName returns the configured network name, defaulting to
// "e2e-network" per spec.md §6.
func (c *E2EConfig) NetworkName() string {
	if c.Network.Name != "" {
		return c.Network.Name
	}
	return "e2e-network"
}

// ResolvePath returns the effective config path: E2E_CONFIG if set,
// otherwise the supplied default, otherwise DefaultConfigPath.
func ResolvePath(explicit string) string {
	if v := os.Getenv(EnvPathOverride); v != "" {
		return v
	}
	if explicit != "" {
		return explicit
	}
	return DefaultConfigPath
}

// Load reads, decodes, and validates an E2EConfig from path.
func Load(path string) (*E2EConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apierr.Wrap(apierr.ConfigError, fmt.Sprintf("reading config at %s", path), err)
	}

	var cfg E2EConfig
	if _, err := toml.Decode(string(raw), &cfg); err != nil {
		return nil, apierr.Wrap(apierr.ConfigError, "decoding toml config", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cfg against the Draft-7 JSON Schema derived from
// E2EConfig, returning a CONFIG_ERROR describing every violation.
func Validate(cfg *E2EConfig) error {
	schemaBytes, err := ExportJSONSchema()
	if err != nil {
		return apierr.Wrap(apierr.ConfigError, "deriving config schema", err)
	}

	docBytes, err := json.Marshal(cfg)
	if err != nil {
		return apierr.Wrap(apierr.ConfigError, "encoding config for validation", err)
	}

	schemaLoader := gojsonschema.NewBytesLoader(schemaBytes)
	docLoader := gojsonschema.NewBytesLoader(docBytes)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return apierr.Wrap(apierr.ConfigError, "running schema validation", err)
	}
	if !result.Valid() {
		var buf bytes.Buffer
		for _, e := range result.Errors() {
			fmt.Fprintf(&buf, "%s; ", e.String())
		}
		return apierr.New(apierr.ConfigError, buf.String())
	}

	if len(cfg.AllServices()) == 0 {
		return apierr.New(apierr.ConfigError, "config declares no service and no services")
	}

	return nil
}

// ExportJSONSchema returns the Draft-7 JSON Schema for E2EConfig, for IDE
// validation per spec.md §6.
func ExportJSONSchema() ([]byte, error) {
	r := &jsonschema.Reflector{
		ExpandedStruct: true,
		DoNotReference: true,
	}
	schema := r.Reflect(&E2EConfig{})
	schema.Version = "http://json-schema.org/draft-07/schema#"
	return json.MarshalIndent(schema, "", "  ")
}

// EnvConfig is the thin process-level configuration consumed by the CLI
// and daemon (adapter layer, spec.md §1 out-of-scope surface), kept here
// because pkg/config is the natural home for all config types.
type EnvConfig struct {
	Home   string `toml:"home"`
	Daemon struct {
		Listen string `toml:"listen"`
	} `toml:"daemon"`
	Client struct {
		Endpoint string `toml:"endpoint"`
	} `toml:"client"`
}

// Load populates e from $HOME/.argus/env.toml if present, applying
// defaults otherwise. Mirrors the teacher's EnvConfig.Load convention.
func (e *EnvConfig) Load() error {
	if e.Daemon.Listen == "" {
		e.Daemon.Listen = "127.0.0.1:8080"
	}
	if e.Client.Endpoint == "" {
		e.Client.Endpoint = "http://" + e.Daemon.Listen
	}
	if e.Home == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return apierr.Wrap(apierr.ConfigError, "resolving home directory", err)
		}
		e.Home = filepath.Join(home, ".argus")
	}

	path := filepath.Join(e.Home, "env.toml")
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, e); err != nil {
			return apierr.Wrap(apierr.ConfigError, "decoding env config", err)
		}
	}
	return nil
}

// StateDir returns <projectRoot>/.argus, creating it if necessary, per
// spec.md §6's persisted state layout.
func StateDir(projectRoot string) (string, error) {
	dir := filepath.Join(projectRoot, ".argus")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", apierr.Wrap(apierr.ConfigError, "creating state directory", err)
	}
	return dir, nil
}
