// Package pinger runs the sequential, fixed-interval probe loop.
package pinger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/August26/httpping-go/internal/model"
	"github.com/August26/httpping-go/internal/output"
)

// ErrConfiguration marks invalid input that aborts before any probe.
var ErrConfiguration = errors.New("configuration error")

const defaultScheme = "https://"

// Prober performs one GET and reports status or failure. The caller bounds
// it with ctx.
type Prober interface {
	Probe(ctx context.Context, url string) model.ProbeResult
}

// NormalizeTarget prefixes https:// when raw carries no scheme.
func NormalizeTarget(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("%w: target url is required", ErrConfiguration)
	}
	if !strings.Contains(raw, "://") {
		return defaultScheme + raw, nil
	}
	return raw, nil
}

// NewTarget validates raw CLI input. interval is in seconds.
func NewTarget(raw string, count int, interval float64) (model.PingTarget, error) {
	url, err := NormalizeTarget(raw)
	if err != nil {
		return model.PingTarget{}, err
	}
	if count < 1 {
		return model.PingTarget{}, fmt.Errorf("%w: count must be at least 1, got %d", ErrConfiguration, count)
	}
	if interval < 0 || math.IsNaN(interval) || math.IsInf(interval, 0) {
		return model.PingTarget{}, fmt.Errorf("%w: interval must be a non-negative number of seconds, got %v", ErrConfiguration, interval)
	}
	return model.PingTarget{
		URL:      url,
		Count:    count,
		Interval: time.Duration(interval * float64(time.Second)),
	}, nil
}

// Pinger prints one line per probe to Out.
type Pinger struct {
	Prober  Prober
	Proxies *model.ProxyMap // header only, routing lives in Prober
	Out     io.Writer
	Log     *slog.Logger

	// KeepResults makes Run return every result. Off, Run only prints.
	KeepResults bool
}

// resultsHint bounds the initial capacity of the kept results.
const resultsHint = 1024

// Run prints the header and every probe line. With KeepResults it also
// returns the results in order. It stops early when ctx is cancelled.
func (p *Pinger) Run(ctx context.Context, target model.PingTarget) []model.ProbeResult {
	log := p.logger()

	output.PrintHeader(p.Out, target.URL, p.Proxies)
	log.Debug("ping started", "url", target.URL, "count", target.Count, "interval", target.Interval)

	var results []model.ProbeResult
	if p.KeepResults {
		results = make([]model.ProbeResult, 0, min(target.Count, resultsHint))
	}

	sent := 0
	for res := range p.Probes(ctx, target) {
		output.PrintResult(p.Out, res)
		sent++
		if p.KeepResults {
			results = append(results, res)
		}
	}

	if err := ctx.Err(); err != nil && sent < target.Count {
		log.Info("ping interrupted", "sent", sent, "count", target.Count)
	}
	return results
}

// Probes yields target.Count probe results lazily. Each probe is bounded by
// target.Interval (no bound when it is zero), and probes are spaced by the
// same interval. There is no wait after the last probe.
//
// The sequence runs once: ranging over it again yields nothing.
func (p *Pinger) Probes(ctx context.Context, target model.PingTarget) iter.Seq[model.ProbeResult] {
	var started atomic.Bool
	return func(yield func(model.ProbeResult) bool) {
		if started.Swap(true) {
			return
		}
		for i := 0; i < target.Count; i++ {
			if ctx.Err() != nil {
				return
			}

			if !yield(p.probeOnce(ctx, i, target)) {
				return
			}

			if i == target.Count-1 || target.Interval == 0 {
				continue
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(target.Interval):
			}
		}
	}
}

func (p *Pinger) probeOnce(ctx context.Context, seq int, target model.PingTarget) model.ProbeResult {
	attemptCtx := ctx
	if target.Interval > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, target.Interval)
		defer cancel()
	}

	start := time.Now()
	res := p.Prober.Probe(attemptCtx, target.URL)
	elapsed := time.Since(start)

	res.Seq = seq
	res.URL = target.URL
	res.LatencyMs = float64(elapsed) / float64(time.Millisecond)

	if !res.OK {
		p.logger().Debug("probe failed", "seq", seq, "err", res.Error)
	}
	return res
}

func (p *Pinger) logger() *slog.Logger {
	if p.Log != nil {
		return p.Log
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
