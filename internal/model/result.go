package model

// ProbeResult is the outcome of a single timed GET.
// Exactly one of StatusCode (success) or Error (failure) is meaningful,
// selected by OK.
type ProbeResult struct {
	Seq        int     `json:"seq"`
	URL        string  `json:"url"`
	OK         bool    `json:"ok"`
	StatusCode int     `json:"status_code,omitempty"`
	LatencyMs  float64 `json:"latency_ms"`
	Error      string  `json:"error,omitempty"`
}

// Succeeded builds a success result.
func Succeeded(status int) ProbeResult {
	return ProbeResult{OK: true, StatusCode: status}
}

// Failed builds a failure result from err.
func Failed(err error) ProbeResult {
	return ProbeResult{OK: false, Error: err.Error()}
}
