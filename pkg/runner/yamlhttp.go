package runner

import (
	"bytes"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// HTTPAssertion describes one expectation on an HTTP response.
type HTTPAssertion struct {
	Status       int               `yaml:"status"`
	HeaderEquals map[string]string `yaml:"header_equals"`
	BodyContains string            `yaml:"body_contains"`
}

// HTTPCase is one declared case of a yaml-http suite file.
type HTTPCase struct {
	Name    string            `yaml:"name"`
	Method  string            `yaml:"method"`
	Path    string            `yaml:"path"`
	Headers map[string]string `yaml:"headers"`
	Body    string            `yaml:"body"`
	Expect  HTTPAssertion     `yaml:"expect"`
	Skip    string            `yaml:"skip"`
}

// HTTPSuiteFile is the decoded form of a yaml-http suite definition.
type HTTPSuiteFile struct {
	Cases []HTTPCase `yaml:"cases"`
}

// YAMLHTTPRunner drives a suite of declarative HTTP cases with assertions
// over status, headers, and body (spec.md §4.10).
type YAMLHTTPRunner struct {
	Client *http.Client
}

var _ Runner = (*YAMLHTTPRunner)(nil)

func (r *YAMLHTTPRunner) ID() string      { return "yaml-http" }
func (r *YAMLHTTPRunner) Available() bool { return true }

func (r *YAMLHTTPRunner) client() *http.Client {
	if r.Client != nil {
		return r.Client
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (r *YAMLHTTPRunner) Run(cfg Config) (<-chan Event, error) {
	out := make(chan Event, 32)

	go func() {
		defer close(out)
		start := time.Now()
		out <- Event{Kind: EventSuiteStart, SuiteID: cfg.SuiteID}

		raw, err := os.ReadFile(cfg.FilePath)
		if err != nil {
			out <- Event{Kind: EventCaseFail, SuiteID: cfg.SuiteID, CaseName: cfg.FilePath, Error: err.Error()}
			out <- Event{Kind: EventSuiteEnd, SuiteID: cfg.SuiteID, Failed: 1, Duration: time.Since(start)}
			return
		}

		var suite HTTPSuiteFile
		if err := yaml.Unmarshal(raw, &suite); err != nil {
			out <- Event{Kind: EventCaseFail, SuiteID: cfg.SuiteID, CaseName: cfg.FilePath, Error: err.Error()}
			out <- Event{Kind: EventSuiteEnd, SuiteID: cfg.SuiteID, Failed: 1, Duration: time.Since(start)}
			return
		}

		var passed, failed, skipped int
		client := r.client()

		for _, c := range suite.Cases {
			out <- Event{Kind: EventCaseStart, SuiteID: cfg.SuiteID, CaseName: c.Name}

			if c.Skip != "" {
				skipped++
				out <- Event{Kind: EventCaseSkip, SuiteID: cfg.SuiteID, CaseName: c.Name, Reason: c.Skip}
				continue
			}

			caseStart := time.Now()
			if err := runHTTPCase(client, cfg.BaseURL, c); err != nil {
				failed++
				out <- Event{Kind: EventCaseFail, SuiteID: cfg.SuiteID, CaseName: c.Name, Error: err.Error(), Duration: time.Since(caseStart)}
				continue
			}

			passed++
			out <- Event{Kind: EventCasePass, SuiteID: cfg.SuiteID, CaseName: c.Name, Duration: time.Since(caseStart)}
		}

		out <- Event{Kind: EventSuiteEnd, SuiteID: cfg.SuiteID, Passed: passed, Failed: failed, Skipped: skipped, Duration: time.Since(start)}
	}()

	return out, nil
}

func runHTTPCase(client *http.Client, baseURL string, c HTTPCase) error {
	method := c.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequest(method, baseURL+c.Path, strings.NewReader(c.Body))
	if err != nil {
		return err
	}
	for k, v := range c.Headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	return assertResponse(c.Expect, resp, body)
}

func assertResponse(expect HTTPAssertion, resp *http.Response, body []byte) error {
	if expect.Status != 0 && resp.StatusCode != expect.Status {
		return &assertionError{msg: "expected status " + itoa(expect.Status) + " got " + itoa(resp.StatusCode)}
	}
	for k, v := range expect.HeaderEquals {
		if got := resp.Header.Get(k); got != v {
			return &assertionError{msg: "expected header " + k + "=" + v + " got " + got}
		}
	}
	if expect.BodyContains != "" && !bytes.Contains(body, []byte(expect.BodyContains)) {
		return &assertionError{msg: "expected body to contain " + expect.BodyContains}
	}
	return nil
}

type assertionError struct{ msg string }

func (e *assertionError) Error() string { return e.msg }

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
