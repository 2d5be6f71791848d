// Package healthcheck implements the Helper/Enlist/Check pattern the
// teacher's pkg/runner/local_common.go calls against (localCommonHealthcheck
// enlists "local-outputs-dir", "control-network", and friends); only the
// pkg/healthcheck package itself wasn't part of the retrieved source, so it
// is rebuilt here from its call-site contract and from cmd/healthcheck.go's
// Checks/Fixes response shape. Adapted to the service/network/mock
// preconditions a DockerEngine-backed run needs (spec.md §4.3).
package healthcheck

import "fmt"

// Status is the outcome of a single check or fix.
type Status string

const (
	StatusOK    Status = "ok"
	StatusFailed Status = "failed"
	StatusFixed Status = "fixed"
	StatusSkipped Status = "skipped"
)

// Result records the outcome of a named check or fix.
type Result struct {
	Name    string
	Status  Status
	Message string
}

// CheckFunc reports whether a precondition already holds.
type CheckFunc func() (bool, string, error)

// FixFunc attempts to establish a precondition that CheckFunc found absent.
type FixFunc func() (string, error)

type item struct {
	name  string
	check CheckFunc
	fix   FixFunc
}

// Helper accumulates named (check, fix) pairs and runs them in
// enlistment order.
type Helper struct {
	items []item
}

// NewHelper constructs an empty Helper.
func NewHelper() *Helper {
	return &Helper{}
}

// Enlist registers a named precondition. fix may be nil if there is no
// automated remediation.
func (h *Helper) Enlist(name string, check CheckFunc, fix FixFunc) {
	h.items = append(h.items, item{name: name, check: check, fix: fix})
}

// RunReport is the outcome of running every enlisted item.
type RunReport struct {
	Checks []Result
	Fixes  []Result
}

// Run executes every enlisted check in order. When tryFix is true, a
// failed check with a registered fix has that fix applied and the fix's
// own outcome recorded in Fixes; the check is not run again afterwards.
func (h *Helper) Run(tryFix bool) *RunReport {
	report := &RunReport{}

	for _, it := range h.items {
		ok, msg, err := it.check()
		switch {
		case err != nil:
			report.Checks = append(report.Checks, Result{Name: it.name, Status: StatusFailed, Message: err.Error()})
		case ok:
			report.Checks = append(report.Checks, Result{Name: it.name, Status: StatusOK, Message: msg})
			continue
		default:
			report.Checks = append(report.Checks, Result{Name: it.name, Status: StatusFailed, Message: msg})
		}

		if !tryFix || it.fix == nil {
			continue
		}

		fixMsg, err := it.fix()
		if err != nil {
			report.Fixes = append(report.Fixes, Result{Name: it.name, Status: StatusFailed, Message: err.Error()})
			continue
		}
		report.Fixes = append(report.Fixes, Result{Name: it.name, Status: StatusFixed, Message: fixMsg})
	}

	return report
}

// CheckNetworkExists returns a CheckFunc verifying a Docker network exists,
// via the supplied lookup (kept free of a *docker.Engine import so this
// package has no Docker dependency of its own).
func CheckNetworkExists(lookup func() (bool, error)) CheckFunc {
	return func() (bool, string, error) {
		exists, err := lookup()
		if err != nil {
			return false, "", err
		}
		if exists {
			return true, "network present", nil
		}
		return false, "network absent", nil
	}
}

// CreateNetwork returns a FixFunc that creates a Docker network via create.
func CreateNetwork(name string, create func() error) FixFunc {
	return func() (string, error) {
		if err := create(); err != nil {
			return "", err
		}
		return fmt.Sprintf("created network %s", name), nil
	}
}

// CheckPortFree returns a CheckFunc verifying a port is not bound.
func CheckPortFree(port int, inUse func(int) bool) CheckFunc {
	return func() (bool, string, error) {
		if inUse(port) {
			return false, fmt.Sprintf("port %d is in use", port), nil
		}
		return true, fmt.Sprintf("port %d is free", port), nil
	}
}

// CheckDockerAvailable returns a CheckFunc verifying the Docker daemon
// responds, via the supplied ping function.
func CheckDockerAvailable(ping func() error) CheckFunc {
	return func() (bool, string, error) {
		if err := ping(); err != nil {
			return false, "", err
		}
		return true, "docker daemon reachable", nil
	}
}
