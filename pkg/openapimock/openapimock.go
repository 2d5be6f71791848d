// Package openapimock implements OpenAPIMock (spec.md §4.4): a server
// driven by an OpenAPI document that can synthesize responses from
// schemas, proxy-and-record against a real upstream, replay recordings,
// or do both ("smart"). Grounded on github.com/getkin/kin-openapi for
// document parsing/dereferencing, the same library the wider retrieval
// pack reaches for whenever it needs OpenAPI-aware tooling, and
// github.com/gorilla/mux for routing (matching the static MockServer and
// the teacher's daemon).
package openapimock

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gorilla/mux"

	"github.com/argusci/argus/pkg/apierr"
	"github.com/argusci/argus/pkg/config"
)

// Mode selects OpenAPIMock's request-handling strategy (spec.md §4.4).
type Mode string

const (
	ModeMock   Mode = "mock"
	ModeRecord Mode = "record"
	ModeReplay Mode = "replay"
	ModeSmart  Mode = "smart"
)

// MockStatusHeader, when present and matching a declared response
// status, overrides default status selection; a non-declared value is
// silently ignored (spec.md §9 Open Question).
const MockStatusHeader = "X-Mock-Status"

// Mock is a single named OpenAPI-driven mock server.
type Mock struct {
	Name     string
	Port     int
	Mode     Mode
	MaxDepth int
	Validate bool

	doc      *openapi3.T
	router   *mux.Router
	store    *RecordingStore
	upstream *http.Client
	upstreamURL string

	httpServer *http.Server
}

var pathParamPattern = regexp.MustCompile(`\{([^}/]+)\}`)

// New loads and dereferences cfg.SpecFile and builds one route per
// path/method pair declared in the document.
func New(name string, cfg config.OpenAPIMockConfig, port int, recordingsDir string) (*Mock, error) {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = true

	doc, err := loader.LoadFromFile(cfg.SpecFile)
	if err != nil {
		return nil, apierr.Wrap(apierr.ConfigError, "loading OpenAPI spec "+cfg.SpecFile, err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, apierr.Wrap(apierr.ConfigError, "validating OpenAPI spec "+cfg.SpecFile, err)
	}

	mode := Mode(cfg.Mode)
	if mode == "" {
		mode = ModeMock
	}

	maxDepth := cfg.MaxDepth
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}

	store, err := OpenRecordingStore(recordingsDir, name)
	if err != nil {
		return nil, fmt.Errorf("opening recording store for mock %s: %w", name, err)
	}

	m := &Mock{
		Name:        name,
		Port:        port,
		Mode:        mode,
		MaxDepth:    maxDepth,
		Validate:    cfg.ValidateRequest,
		doc:         doc,
		store:       store,
		upstream:    &http.Client{},
		upstreamURL: cfg.UpstreamURL,
	}

	m.router = mux.NewRouter()
	if err := m.buildRoutes(); err != nil {
		return nil, err
	}
	return m, nil
}

// pathToMux converts an OpenAPI `{name}` path parameter to mux's native
// `{name}` form. OpenAPI and gorilla/mux already share this syntax, so
// conversion is the identity function here -- kept as an explicit step
// so swapping routers later only touches this function.
func pathToMux(path string) string {
	return pathParamPattern.ReplaceAllString(path, "{$1}")
}

func (m *Mock) buildRoutes() error {
	for path, item := range m.doc.Paths {
		path, item := path, item
		for method, op := range item.Operations() {
			method, op := method, op
			m.router.HandleFunc(pathToMux(path), func(w http.ResponseWriter, r *http.Request) {
				m.serve(w, r, op)
			}).Methods(method)
		}
	}
	return nil
}

func (m *Mock) serve(w http.ResponseWriter, r *http.Request, op *openapi3.Operation) {
	pathParams := mux.Vars(r)

	var rawBody []byte
	if r.Body != nil {
		rawBody, _ = io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(rawBody))
	}

	if m.Validate {
		if verrs := ValidateRequest(op, r, pathParams, rawBody); len(verrs) > 0 {
			writeJSON(w, http.StatusBadRequest, verrs)
			return
		}
	}

	sig := Signature(r.Method, r.URL.Path, r.URL.Query())

	switch m.Mode {
	case ModeRecord:
		m.serveRecord(w, r, sig)
	case ModeReplay:
		m.serveReplay(w, sig)
	case ModeSmart:
		if rec, ok := m.store.Get(sig); ok {
			writeRecording(w, rec)
			return
		}
		m.serveSynthesized(w, op, r)
	default: // ModeMock
		m.serveSynthesized(w, op, r)
	}
}

func (m *Mock) serveSynthesized(w http.ResponseWriter, op *openapi3.Operation, r *http.Request) {
	status, resp := selectResponse(op, r.Header.Get(MockStatusHeader))
	if resp == nil {
		w.WriteHeader(status)
		return
	}

	media := resp.Content.Get("application/json")
	if media == nil || media.Schema == nil || media.Schema.Value == nil {
		w.WriteHeader(status)
		return
	}

	body := Synthesize(media.Schema.Value, m.MaxDepth)
	writeJSON(w, status, body)
}

func (m *Mock) serveRecord(w http.ResponseWriter, r *http.Request, sig string) {
	if m.upstreamURL == "" {
		http.Error(w, "record mode requires upstream_url", http.StatusInternalServerError)
		return
	}

	var reqBody []byte
	if r.Body != nil {
		reqBody, _ = io.ReadAll(r.Body)
	}

	upstreamReq, err := http.NewRequestWithContext(r.Context(), r.Method, m.upstreamURL+r.URL.Path+"?"+r.URL.RawQuery, bytes.NewReader(reqBody))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	upstreamReq.Header = r.Header.Clone()

	resp, err := m.upstream.Do(upstreamReq)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	respHeaders := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		respHeaders[k] = resp.Header.Get(k)
	}

	rec := Recording{
		Request: RecordedRequest{
			Method:  r.Method,
			Path:    r.URL.Path,
			Query:   flattenQueryValues(r.URL.Query()),
			Headers: flattenHeaderValues(r.Header),
			Body:    string(reqBody),
		},
		Response: RecordedResponse{
			Status:  resp.StatusCode,
			Headers: respHeaders,
			Body:    string(respBody),
		},
		Timestamp: time.Now(),
	}
	_ = m.store.Append(sig, rec)

	for k, v := range respHeaders {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(respBody)
}

func flattenQueryValues(q map[string][]string) map[string]string {
	out := make(map[string]string, len(q))
	for k, v := range q {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

func flattenHeaderValues(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}

func (m *Mock) serveReplay(w http.ResponseWriter, sig string) {
	rec, ok := m.store.Get(sig)
	if !ok {
		http.NotFound(w, nil)
		return
	}
	writeRecording(w, rec)
}

func writeRecording(w http.ResponseWriter, rec Recording) {
	for k, v := range rec.Response.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(rec.Response.Status)
	_, _ = w.Write([]byte(rec.Response.Body))
}

// selectResponse implements spec.md §4.4's default-status rule: the
// lowest declared 2xx response, falling back to the lowest declared
// status of any kind. X-Mock-Status overrides the default only when it
// names a status the operation actually declares.
func selectResponse(op *openapi3.Operation, overrideHeader string) (int, *openapi3.Response) {
	var codes []int
	byCode := make(map[int]*openapi3.ResponseRef)

	for key, ref := range op.Responses {
		code, err := strconv.Atoi(key)
		if err != nil {
			continue // "default" and other non-numeric keys are skipped
		}
		codes = append(codes, code)
		byCode[code] = ref
	}
	sort.Ints(codes)

	if overrideHeader != "" {
		if code, err := strconv.Atoi(overrideHeader); err == nil {
			if ref, ok := byCode[code]; ok && ref.Value != nil {
				return code, ref.Value
			}
		}
	}

	for _, code := range codes {
		if code >= 200 && code < 300 {
			return code, byCode[code].Value
		}
	}
	if len(codes) > 0 {
		return codes[0], byCode[codes[0]].Value
	}
	return http.StatusOK, nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// Start begins listening on m.Port.
func (m *Mock) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", m.Port))
	if err != nil {
		return fmt.Errorf("mock %s: listening on port %d: %w", m.Name, m.Port, err)
	}
	m.httpServer = &http.Server{Handler: m.router}
	go func() { _ = m.httpServer.Serve(ln) }()
	return nil
}

// Stop gracefully shuts the server down.
func (m *Mock) Stop(ctx context.Context) error {
	if m.httpServer == nil {
		return nil
	}
	return m.httpServer.Shutdown(ctx)
}

// Handler exposes the underlying router for in-process testing.
func (m *Mock) Handler() http.Handler {
	return m.router
}

// String method support so apierr messages read naturally.
func (m *Mock) String() string {
	return strings.TrimSpace(fmt.Sprintf("openapimock(%s, mode=%s)", m.Name, m.Mode))
}
