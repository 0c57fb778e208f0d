package types

// HealthResponse represents the JSON report of one monitoring run
type HealthResponse struct {
	Status    string          `json:"status"`
	Service   string          `json:"service"`
	Version   string          `json:"version"`
	RunID     string          `json:"run_id"`
	Timestamp string          `json:"timestamp"`
	Severity  Severity        `json:"severity"`
	ExitCode  int             `json:"exit_code"`
	Summary   FindingSummary  `json:"summary"`
	Backends  []BackendHealth `json:"backends"`
	Findings  []Finding       `json:"findings"`
}

// FindingSummary counts findings per severity
type FindingSummary struct {
	TotalFindings   int `json:"total_findings"`
	WarningFindings int `json:"warning_findings"`
	ErrorFindings   int `json:"error_findings"`
	CheckedBackends int `json:"checked_backends"`
	FailedBackends  int `json:"failed_backends"`
}

// BackendHealth represents the outcome of one backend in JSON
type BackendHealth struct {
	Name      string   `json:"name"`
	Program   string   `json:"program,omitempty"`
	Status    string   `json:"status"`
	Severity  Severity `json:"severity"`
	Instances []string `json:"instances,omitempty"`
	Error     string   `json:"error,omitempty"`
	// Details holds the extracted tables by instance then table name
	Details map[string]map[string]Table `json:"details,omitempty"`
}
