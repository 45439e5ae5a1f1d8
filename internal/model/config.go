package model

import "time"

// Config is everything one http-ping invocation needs after flag,
// environment and config file layering.
type Config struct {
	URL          string
	Count        int
	Interval     float64 // seconds; also the per-probe timeout
	Proxy        ProxyOptions
	EnvFile      string // optional dotenv file layered over the environment
	OutputFile   string
	OutputFormat string // json or csv
	Verbose      bool
}

// PingTarget is the normalized input of the ping loop.
type PingTarget struct {
	URL      string
	Count    int
	Interval time.Duration
}
