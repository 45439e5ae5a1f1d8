// Package config layers flags, HTTPPING_* environment variables and an
// optional YAML file into a model.Config.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/August26/httpping-go/internal/model"
)

const (
	envPrefix  = "HTTPPING"
	configName = "http-ping"
)

// Defaults.
const (
	DefaultCount    = 4
	DefaultInterval = 1.0
	DefaultFormat   = "json"
)

// ErrUsage is returned for malformed command lines.
var ErrUsage = errors.New("usage error")

func proxyFlag(k model.ProxyKind) string { return k.String() + "-proxy" }
func noProxyFlag(k model.ProxyKind) string { return "no-" + k.String() + "-proxy" }

// NewFlagSet defines the http-ping command line.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SortFlags = false

	fs.IntP("count", "c", DefaultCount, "number of requests to send")
	fs.Float64P("interval", "i", DefaultInterval, "seconds between requests, also the per-request timeout")

	for _, k := range model.AllKinds {
		upper, _ := k.EnvNames()
		fs.String(proxyFlag(k), "", fmt.Sprintf("%s proxy URL (overrides %s)", k, upper))
	}
	for _, k := range model.AllKinds {
		upper, lower := k.EnvNames()
		fs.Bool(noProxyFlag(k), false, fmt.Sprintf("ignore the %s/%s environment variables", upper, lower))
	}
	fs.Bool("no-proxies", false, "ignore all proxy settings (environment and command line)")

	fs.String("env-file", "", "dotenv file whose variables override the process environment")
	fs.String("config", "", "config file (default ./http-ping.yaml or $HOME/.config/http-ping/http-ping.yaml)")
	fs.StringP("output", "o", "", "optional path to write per-request results")
	fs.String("format", DefaultFormat, "output file format: json | csv")
	fs.BoolP("verbose", "v", false, "enable debug logs")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [flags] url\n\nHTTP ping utility with curl-style proxy support.\n\n", name)
		fs.PrintDefaults()
	}
	return fs
}

// Load parses args with fs and resolves every setting with the precedence
// flag > HTTPPING_* env > config file > default.
func Load(fs *pflag.FlagSet, args []string) (model.Config, error) {
	if err := fs.Parse(args); err != nil {
		return model.Config{}, err
	}
	if fs.NArg() > 1 {
		return model.Config{}, fmt.Errorf("%w: expected a single url, got %d arguments", ErrUsage, fs.NArg())
	}

	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return model.Config{}, fmt.Errorf("bind flags: %w", err)
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := readConfigFile(v); err != nil {
		return model.Config{}, err
	}

	cfg := model.Config{
		URL:          fs.Arg(0),
		Count:        v.GetInt("count"),
		Interval:     v.GetFloat64("interval"),
		EnvFile:      v.GetString("env-file"),
		OutputFile:   v.GetString("output"),
		OutputFormat: strings.ToLower(v.GetString("format")),
		Verbose:      v.GetBool("verbose"),
		Proxy: model.ProxyOptions{
			Addresses:  make(map[model.ProxyKind]string),
			NoEnv:      make(map[model.ProxyKind]bool),
			DisableAll: v.GetBool("no-proxies"),
		},
	}
	for _, k := range model.AllKinds {
		if addr := v.GetString(proxyFlag(k)); addr != "" {
			cfg.Proxy.Addresses[k] = addr
		}
		if v.GetBool(noProxyFlag(k)) {
			cfg.Proxy.NoEnv[k] = true
		}
	}

	return cfg, nil
}

func readConfigFile(v *viper.Viper) error {
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/http-ping")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}
