// Package report renders a monitoring run for people and for machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"raid-health-check/internal/checker"
	"raid-health-check/internal/store"
	"raid-health-check/pkg/types"
)

// ServiceName identifies the tool in reports and on the HTTP surface
const ServiceName = "raid-health-check"

// Options controls what a report contains
type Options struct {
	Version string
	// Details adds every extracted table to the report
	Details bool
}

// Health builds the JSON document for a run
func Health(r *checker.Result, opts Options) *types.HealthResponse {
	resp := &types.HealthResponse{
		Status:    "ok",
		Service:   ServiceName,
		Version:   opts.Version,
		RunID:     r.RunID,
		Timestamp: r.Finished.Format(time.RFC3339),
		Severity:  r.Severity,
		ExitCode:  r.ExitCode(),
		Backends:  make([]types.BackendHealth, 0, len(r.Backends)),
		Findings:  r.Findings,
	}
	if resp.Findings == nil {
		resp.Findings = []types.Finding{}
	}

	for _, b := range r.Backends {
		bh := types.BackendHealth{
			Name:      b.Backend,
			Status:    string(b.Status),
			Severity:  b.Severity,
			Instances: b.Instances,
		}
		if b.Program.Found {
			bh.Program = b.Program.Path
		}
		if b.Err != nil {
			bh.Error = b.Err.Error()
		}
		if opts.Details && b.Store != nil {
			bh.Details = details(b.Store)
		}
		resp.Backends = append(resp.Backends, bh)
	}

	resp.Summary = summarize(r)
	if resp.Summary.FailedBackends > 0 {
		resp.Status = "degraded"
	}
	return resp
}

func summarize(r *checker.Result) types.FindingSummary {
	summary := types.FindingSummary{
		TotalFindings:   len(r.Findings),
		CheckedBackends: r.Checked(),
		FailedBackends:  len(r.Failed()),
	}
	for _, f := range r.Findings {
		switch f.Severity {
		case types.SeverityWarning:
			summary.WarningFindings++
		case types.SeverityError:
			summary.ErrorFindings++
		}
	}
	return summary
}

func details(s *store.Store) map[string]map[string]types.Table {
	out := make(map[string]map[string]types.Table)
	for _, instance := range s.Instances() {
		tables := make(map[string]types.Table)
		for _, name := range s.Tables(instance) {
			tables[name] = s.Get(instance, name)
		}
		out[instance] = tables
	}
	return out
}

// WriteJSON writes the run as indented JSON
func WriteJSON(w io.Writer, r *checker.Result, opts Options) error {
	data, err := json.MarshalIndent(Health(r, opts), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// WriteText writes the run as a short plain-text summary followed by
// one line per finding
func WriteText(w io.Writer, r *checker.Result, opts Options) error {
	summary := summarize(r)
	fmt.Fprintf(w, "%s: %s (%d warning, %d error findings; run %s)\n",
		ServiceName, r.Severity, summary.WarningFindings, summary.ErrorFindings, r.RunID)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, b := range r.Backends {
		switch b.Status {
		case checker.StatusOK:
			fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", b.Backend, b.Status, b.Severity, strings.Join(b.Instances, ","))
		case checker.StatusFailed:
			fmt.Fprintf(tw, "  %s\t%s\t-\t%v\n", b.Backend, b.Status, b.Err)
		default:
			fmt.Fprintf(tw, "  %s\t%s\t-\t\n", b.Backend, b.Status)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, f := range r.Findings {
		fmt.Fprintf(w, "%s\n", f)
	}

	if opts.Details {
		for _, b := range r.Backends {
			if b.Store != nil {
				writeDetails(w, b.Backend, b.Store)
			}
		}
	}
	return nil
}

func writeDetails(w io.Writer, backend string, s *store.Store) {
	for _, instance := range s.Instances() {
		for _, name := range s.Tables(instance) {
			fmt.Fprintf(w, "\n[%s %s %s]\n", backend, instance, name)
			t := s.Get(instance, name)
			for _, key := range t.Keys() {
				record := t[key]
				fmt.Fprintf(w, "%s:\n", key)
				for _, field := range record.Fields() {
					fmt.Fprintf(w, "    %s = %s\n", field, record[field])
				}
			}
		}
	}
}
