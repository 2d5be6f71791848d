// Package daemon exposes the tool-protocol surface of spec.md §6 over
// HTTP, adapted from the teacher's pkg/daemon/daemon.go: one handler per
// verb, registered on a gorilla/mux router, each request tagged with a
// request ID header before it reaches its handler.
package daemon

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/argusci/argus/pkg/api"
	"github.com/argusci/argus/pkg/config"
	"github.com/argusci/argus/pkg/docker"
	"github.com/argusci/argus/pkg/logging"
	"github.com/argusci/argus/pkg/runner"
	"github.com/argusci/argus/pkg/session"
	"github.com/argusci/argus/pkg/task"
)

// Daemon is the long-running HTTP process a CLI client talks to. It owns
// the Facade and every session it manages for the lifetime of the
// process.
type Daemon struct {
	server *http.Server
	l      net.Listener
	doneCh chan struct{}

	facade *api.Facade
}

// New builds a Daemon over a fresh Facade (session.Manager + docker.Engine
// + runner.Registry) and binds it to cfg.Daemon.Listen.
//
// Routes:
//
//	POST /init        create a session for a project
//	POST /build       build every declared service's image
//	POST /setup       start every declared service and wait for health
//	POST /run         run every declared suite (or a subset)
//	POST /run_suite   run a single named suite
//	POST /clean       tear down a session's services and mocks
//	POST /status      report a session's lifecycle state
//	POST /history     query persisted run history
//	POST /diagnose    classify a failure against the knowledge base
//	POST /report_fix  record a fix attempt's outcome
func New(cfg *config.EnvConfig) (srv *Daemon, err error) {
	srv = new(Daemon)

	registry := runner.NewRegistry()
	registry.Register(&runner.ShellScriptRunner{})
	registry.Register(&runner.GenericExecRunner{})
	registry.Register(&runner.SubprocessJSONRunner{})
	registry.Register(&runner.YAMLHTTPRunner{})

	taskStorage, err := task.NewMemoryTaskStorage()
	if err != nil {
		return nil, fmt.Errorf("opening task storage: %w", err)
	}

	facade := api.NewFacade(session.NewManager(nil), docker.New(), registry, task.NewManager(taskStorage))
	srv.facade = facade

	r := mux.NewRouter()
	r.Use(requestIDMiddleware)

	r.HandleFunc("/init", srv.initHandler()).Methods("POST")
	r.HandleFunc("/build", srv.buildHandler()).Methods("POST")
	r.HandleFunc("/setup", srv.setupHandler()).Methods("POST")
	r.HandleFunc("/run", srv.runHandler()).Methods("POST")
	r.HandleFunc("/run_suite", srv.runSuiteHandler()).Methods("POST")
	r.HandleFunc("/clean", srv.cleanHandler()).Methods("POST")
	r.HandleFunc("/status", srv.statusHandler()).Methods("POST")
	r.HandleFunc("/history", srv.historyHandler()).Methods("POST")
	r.HandleFunc("/diagnose", srv.diagnoseHandler()).Methods("POST")
	r.HandleFunc("/report_fix", srv.reportFixHandler()).Methods("POST")

	srv.doneCh = make(chan struct{})
	srv.server = &http.Server{
		Handler:      r,
		WriteTimeout: 1200 * time.Second,
		ReadTimeout:  1200 * time.Second,
	}

	srv.l, err = net.Listen("tcp", cfg.Daemon.Listen)
	if err != nil {
		return nil, err
	}

	return srv, nil
}

// requestIDMiddleware stamps every inbound request with a unique
// X-Request-ID, mirroring the teacher's pborman/uuid request tagging.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Header.Set("X-Request-ID", uuid.NewString()[:8])
		next.ServeHTTP(w, r)
	})
}

// Serve starts the server and blocks until it is closed, either
// explicitly via Shutdown or due to a fault condition.
func (d *Daemon) Serve() error {
	select {
	case <-d.doneCh:
		return fmt.Errorf("tried to reuse a stopped server")
	default:
	}

	logging.S().Infow("daemon listening", "addr", d.Addr())
	return d.server.Serve(d.l)
}

func (d *Daemon) Addr() string {
	return d.l.Addr().String()
}

func (d *Daemon) Port() int {
	return d.l.Addr().(*net.TCPAddr).Port
}

func (d *Daemon) Shutdown(ctx context.Context) error {
	defer close(d.doneCh)
	return d.server.Shutdown(ctx)
}
