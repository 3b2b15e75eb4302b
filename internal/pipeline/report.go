package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// Status is the outcome of one table's processing.
type Status string

const (
	// StatusInstalled means every active stage completed.
	StatusInstalled Status = "installed"
	// StatusSkipped means the table was skipped before any engine call,
	// typically because the engine lacks a required capability.
	StatusSkipped Status = "skipped"
	// StatusFailed means a stage returned an error; later stages for this
	// table did not run.
	StatusFailed Status = "failed"
)

// TableResult records the outcome of one table: its status, the stage that
// decided it, and the error when the table was skipped or failed.
type TableResult struct {
	Table  string
	Status Status
	Stage  string
	Err    error
}

// Report aggregates the per-table results of one dataset run, in processing
// order. It lets callers distinguish "some tables skipped" from "run
// crashed".
type Report struct {
	Dataset string
	Results []TableResult
}

// Counts returns the number of installed, skipped, and failed tables.
func (r *Report) Counts() (installed, skipped, failed int) {
	for _, res := range r.Results {
		switch res.Status {
		case StatusInstalled:
			installed++
		case StatusSkipped:
			skipped++
		case StatusFailed:
			failed++
		}
	}
	return installed, skipped, failed
}

// Err joins the errors of all failed tables, or returns nil when no table
// failed. Skipped tables are not errors.
func (r *Report) Err() error {
	var errs []error
	for _, res := range r.Results {
		if res.Status == StatusFailed && res.Err != nil {
			errs = append(errs, res.Err)
		}
	}
	return errors.Join(errs...)
}

// Summary returns a one-line human-readable summary.
func (r *Report) Summary() string {
	installed, skipped, failed := r.Counts()
	var b strings.Builder
	fmt.Fprintf(&b, "dataset %s: %d installed", r.Dataset, installed)
	if skipped > 0 {
		fmt.Fprintf(&b, ", %d skipped", skipped)
	}
	if failed > 0 {
		fmt.Fprintf(&b, ", %d failed", failed)
	}
	return b.String()
}
