package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/August26/httpping-go/internal/model"
)

// Supported result file formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// PrintHeader prints the line announcing the target and, when proxying is
// active, the proxy entries in use.
func PrintHeader(w io.Writer, url string, proxies *model.ProxyMap) {
	if proxies.IsDirect() {
		fmt.Fprintf(w, "PING %s:\n", url)
		return
	}
	fmt.Fprintf(w, "PING %s via %s:\n", url, proxies)
}

// PrintResult prints one reply or failure line.
func PrintResult(w io.Writer, r model.ProbeResult) {
	if r.OK {
		fmt.Fprintf(w, "Reply from %s: seq=%d status=%d time=%.2fms\n", r.URL, r.Seq, r.StatusCode, r.LatencyMs)
		return
	}
	fmt.Fprintf(w, "Request to %s failed: seq=%d error=%s\n", r.URL, r.Seq, r.Error)
}

// ValidFormat reports whether format can be passed to WriteFile.
func ValidFormat(format string) bool {
	return format == FormatJSON || format == FormatCSV
}

// WriteFile writes all probe results to a file in json or csv format.
func WriteFile(path string, format string, results []model.ProbeResult) error {
	if !ValidFormat(format) {
		return fmt.Errorf("unsupported format: %s", format)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	switch format {
	case FormatJSON:
		err = writeJSON(f, results)
	default:
		err = writeCSV(f, results)
	}
	if err != nil {
		return err
	}
	return f.Close()
}

// writeJSON writes an object with a "results" array.
func writeJSON(w io.Writer, results []model.ProbeResult) error {
	if results == nil {
		results = []model.ProbeResult{}
	}
	payload := struct {
		Results []model.ProbeResult `json:"results"`
	}{
		Results: results,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

// writeCSV writes one row per probe.
func writeCSV(w io.Writer, results []model.ProbeResult) error {
	cw := csv.NewWriter(w)

	header := []string{
		"seq",
		"url",
		"ok",
		"status_code",
		"latency_ms",
		"error",
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, r := range results {
		status := ""
		if r.OK {
			status = strconv.Itoa(r.StatusCode)
		}
		row := []string{
			strconv.Itoa(r.Seq),
			r.URL,
			strconv.FormatBool(r.OK),
			status,
			fmt.Sprintf("%.2f", r.LatencyMs),
			r.Error,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
