package daemon

import (
	"encoding/json"
	"net/http"

	"github.com/rs/xid"

	"github.com/argusci/argus/pkg/api"
	"github.com/argusci/argus/pkg/config"
	"github.com/argusci/argus/pkg/logging"
	"github.com/argusci/argus/pkg/rpc"
)

// decode reads and JSON-decodes r.Body into req, writing an error chunk
// (with an empty code, since the decode error is not an apierr.Error) and
// returning false on failure.
func decode(w *rpc.OutputWriter, r *http.Request, req interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		w.WriteError("failed to decode request body", err)
		return false
	}
	return true
}

func (d *Daemon) initHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logging.S().With("req_id", r.Header.Get("X-Request-ID"))
		log.Infow("handle request", "command", "init")
		defer log.Infow("request handled", "command", "init")

		ow := rpc.NewOutputWriter(w, r)

		var req api.InitRequest
		if !decode(ow, r, &req) {
			return
		}

		cfg, err := config.Load(req.ConfigPath)
		if err != nil {
			ow.WriteError("failed to load config", err)
			return
		}

		resp, err := d.facade.Init(req, cfg, xid.New().String())
		if err != nil {
			ow.WriteError("init failed", err)
			return
		}
		ow.WriteResult(resp)
	}
}

func (d *Daemon) buildHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ow := rpc.NewOutputWriter(w, r)

		var req api.BuildRequest
		if !decode(ow, r, &req) {
			return
		}

		resp, err := d.facade.Build(r.Context(), req)
		if err != nil {
			ow.WriteError("build failed", err)
			return
		}
		ow.WriteResult(resp)
	}
}

func (d *Daemon) setupHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ow := rpc.NewOutputWriter(w, r)

		var req api.SetupRequest
		if !decode(ow, r, &req) {
			return
		}

		resp, err := d.facade.Setup(r.Context(), req)
		if err != nil {
			ow.WriteError("setup failed", err)
			return
		}
		ow.WriteResult(resp)
	}
}

func (d *Daemon) runHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ow := rpc.NewOutputWriter(w, r)

		var req api.RunRequest
		if !decode(ow, r, &req) {
			return
		}

		resp, err := d.facade.Run(r.Context(), req)
		if err != nil {
			ow.WriteError("run failed", err)
			return
		}
		ow.WriteResult(resp)
	}
}

func (d *Daemon) runSuiteHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ow := rpc.NewOutputWriter(w, r)

		var req api.RunSuiteRequest
		if !decode(ow, r, &req) {
			return
		}

		resp, err := d.facade.RunSuite(r.Context(), req)
		if err != nil {
			ow.WriteError("run_suite failed", err)
			return
		}
		ow.WriteResult(resp)
	}
}

func (d *Daemon) cleanHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ow := rpc.NewOutputWriter(w, r)

		var req api.CleanRequest
		if !decode(ow, r, &req) {
			return
		}

		resp, err := d.facade.Clean(r.Context(), req)
		if err != nil {
			ow.WriteError("clean failed", err)
			return
		}
		ow.WriteResult(resp)
	}
}

func (d *Daemon) statusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ow := rpc.NewOutputWriter(w, r)

		var req api.StatusRequest
		if !decode(ow, r, &req) {
			return
		}

		resp, err := d.facade.Status(req)
		if err != nil {
			ow.WriteError("status failed", err)
			return
		}
		ow.WriteResult(resp)
	}
}

func (d *Daemon) historyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ow := rpc.NewOutputWriter(w, r)

		var req api.HistoryRequest
		if !decode(ow, r, &req) {
			return
		}

		resp, err := d.facade.History(req)
		if err != nil {
			ow.WriteError("history failed", err)
			return
		}
		ow.WriteResult(resp)
	}
}

func (d *Daemon) diagnoseHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ow := rpc.NewOutputWriter(w, r)

		var req api.DiagnoseRequest
		if !decode(ow, r, &req) {
			return
		}

		resp, err := d.facade.Diagnose(req)
		if err != nil {
			ow.WriteError("diagnose failed", err)
			return
		}
		ow.WriteResult(resp)
	}
}

func (d *Daemon) reportFixHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ow := rpc.NewOutputWriter(w, r)

		var req api.ReportFixRequest
		if !decode(ow, r, &req) {
			return
		}

		resp, err := d.facade.ReportFix(req)
		if err != nil {
			ow.WriteError("report_fix failed", err)
			return
		}
		ow.WriteResult(resp)
	}
}
