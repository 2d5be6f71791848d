// Package mockserver implements the static MockServer of spec.md §4.4: an
// HTTP server that serves a fixed set of declared routes, optionally
// templating the response body against the inbound request's headers,
// query string, and path parameters.
package mockserver

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"text/template"

	"github.com/gorilla/mux"

	"github.com/argusci/argus/pkg/config"
)

// RequestContext is the templating scope exposed to a route's body as
// {{.Headers.X}}, {{.Query.X}}, {{.Params.X}}.
type RequestContext struct {
	Headers map[string]string
	Query   map[string]string
	Params  map[string]string
}

// Server is a single named static mock server.
type Server struct {
	Name   string
	Port   int
	router *mux.Router
	http   *http.Server
}

// New builds a Server from a declared mock configuration, registering one
// handler per route. Route paths are registered as declared: OpenAPI-style
// `{name}` path parameters are already gorilla/mux syntax. A request whose
// path matches a route but whose method does not gets a 404.
func New(name string, mock config.Mock) (*Server, error) {
	r := mux.NewRouter()
	r.MethodNotAllowedHandler = http.NotFoundHandler()

	for _, route := range mock.Routes {
		route := route
		tmpl, err := template.New(route.Method + " " + route.Path).Parse(route.Body)
		if err != nil {
			return nil, fmt.Errorf("mock %s: compiling route %s %s: %w", name, route.Method, route.Path, err)
		}

		r.HandleFunc(route.Path, func(w http.ResponseWriter, req *http.Request) {
			serveRoute(w, req, route, tmpl)
		}).Methods(route.Method)
	}

	return &Server{
		Name:   name,
		Port:   mock.Port,
		router: r,
	}, nil
}

func serveRoute(w http.ResponseWriter, req *http.Request, route config.MockRoute, tmpl *template.Template) {
	rc := RequestContext{
		Headers: flattenHeader(req.Header),
		Query:   flattenQuery(req.URL.Query()),
		Params:  mux.Vars(req),
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, rc); err != nil {
		http.Error(w, "mock template error: "+err.Error(), http.StatusInternalServerError)
		return
	}

	for k, v := range route.Headers {
		w.Header().Set(k, v)
	}

	status := route.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}

func flattenQuery(q map[string][]string) map[string]string {
	out := make(map[string]string, len(q))
	for k, v := range q {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

// Start begins listening on s.Port. Call Stop to shut down gracefully.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.Port))
	if err != nil {
		return fmt.Errorf("mock %s: listening on port %d: %w", s.Name, s.Port, err)
	}

	s.http = &http.Server{Handler: s.router}
	go func() {
		_ = s.http.Serve(ln)
	}()
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// Handler exposes the underlying router for in-process testing via
// httptest, bypassing Start/Stop's real listener.
func (s *Server) Handler() http.Handler {
	return s.router
}
