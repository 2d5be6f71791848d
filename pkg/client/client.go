// Package client is a thin HTTP client for the daemon's tool-protocol
// surface, adapted from the teacher's pkg/client package: one method per
// verb, each posting a JSON request body and draining the daemon's
// streamed rpc.Chunk response for its terminal result or error.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/argusci/argus/pkg/api"
	"github.com/argusci/argus/pkg/apierr"
	"github.com/argusci/argus/pkg/config"
	"github.com/argusci/argus/pkg/rpc"
)

// Client talks to a single daemon endpoint.
type Client struct {
	endpoint string
	http     *http.Client
}

// New constructs a Client from an EnvConfig (cfg.Client.Endpoint must
// already be populated, e.g. via EnvConfig.Load).
func New(cfg *config.EnvConfig) *Client {
	return &Client{
		endpoint: cfg.Client.Endpoint,
		http:     &http.Client{Timeout: 20 * time.Minute},
	}
}

// do posts req as JSON to path, drains the response's stream of
// rpc.Chunks, and unmarshals the terminal result chunk's payload into
// out. Progress chunks are discarded; an error chunk is surfaced as a Go
// error.
func (c *Client) do(path string, req, out interface{}) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	resp, err := c.http.Post(c.endpoint+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	dec := json.NewDecoder(resp.Body)
	for {
		var chunk rpc.Chunk
		if err := dec.Decode(&chunk); err != nil {
			return fmt.Errorf("decoding response from %s: %w", path, err)
		}

		switch chunk.Type {
		case rpc.ChunkTypeError:
			msg := "request failed"
			code := apierr.Code("")
			if chunk.Error != nil {
				msg = chunk.Error.Message
				code = apierr.Code(chunk.Error.Code)
			}
			if code == "" {
				return fmt.Errorf("%s: %s", path, msg)
			}
			// Re-hydrate the daemon's apierr.Code so callers (pkg/cmd)
			// can branch with apierr.Is instead of matching message text.
			return apierr.Wrap(code, path, fmt.Errorf("%s", msg))
		case rpc.ChunkTypeResult:
			if out == nil {
				return nil
			}
			raw, err := json.Marshal(chunk.Payload)
			if err != nil {
				return fmt.Errorf("re-encoding result payload: %w", err)
			}
			return json.Unmarshal(raw, out)
		case rpc.ChunkTypeProgress:
			continue
		}
	}
}

func (c *Client) Init(req api.InitRequest) (*api.InitResponse, error) {
	var resp api.InitResponse
	if err := c.do("/init", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Build(req api.BuildRequest) (*api.BuildResponse, error) {
	var resp api.BuildResponse
	if err := c.do("/build", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Setup(req api.SetupRequest) (*api.SetupResponse, error) {
	var resp api.SetupResponse
	if err := c.do("/setup", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Run(req api.RunRequest) (*api.RunResponse, error) {
	var resp api.RunResponse
	if err := c.do("/run", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) RunSuite(req api.RunSuiteRequest) (*api.RunSuiteResponse, error) {
	var resp api.RunSuiteResponse
	if err := c.do("/run_suite", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Clean(req api.CleanRequest) (*api.CleanResponse, error) {
	var resp api.CleanResponse
	if err := c.do("/clean", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Status(req api.StatusRequest) (*api.StatusResponse, error) {
	var resp api.StatusResponse
	if err := c.do("/status", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) History(req api.HistoryRequest) (*api.HistoryResponse, error) {
	var resp api.HistoryResponse
	if err := c.do("/history", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Diagnose(req api.DiagnoseRequest) (*api.DiagnoseResponse, error) {
	var resp api.DiagnoseResponse
	if err := c.do("/diagnose", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) ReportFix(req api.ReportFixRequest) (*api.ReportFixResponse, error) {
	var resp api.ReportFixResponse
	if err := c.do("/report_fix", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
