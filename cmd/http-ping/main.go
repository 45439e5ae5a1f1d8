package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/August26/httpping-go/internal/config"
	"github.com/August26/httpping-go/internal/logging"
	"github.com/August26/httpping-go/internal/output"
	"github.com/August26/httpping-go/internal/pinger"
	"github.com/August26/httpping-go/internal/resolver"
	"github.com/August26/httpping-go/internal/transport"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := config.NewFlagSet("http-ping")
	cfg, err := config.Load(fs, args)
	if errors.Is(err, pflag.ErrHelp) {
		return 0
	}

	log := logging.NewLogger(os.Stderr, cfg.Verbose)

	if err != nil {
		log.Error("invalid arguments", "err", err)
		if errors.Is(err, config.ErrUsage) {
			fs.Usage()
		}
		return 1
	}

	target, err := pinger.NewTarget(cfg.URL, cfg.Count, cfg.Interval)
	if err != nil {
		log.Error("invalid configuration", "err", err)
		return 1
	}

	if cfg.OutputFile != "" && !output.ValidFormat(cfg.OutputFormat) {
		log.Error("invalid configuration", "err", fmt.Errorf("%w: unsupported output format %q", pinger.ErrConfiguration, cfg.OutputFormat))
		return 1
	}

	env, err := resolver.NewEnvironment(cfg.EnvFile)
	if err != nil {
		log.Error("invalid configuration", "err", fmt.Errorf("%w: %w", pinger.ErrConfiguration, err))
		return 1
	}

	proxies := resolver.Resolve(cfg.Proxy, env)

	log.Debug("starting http-ping",
		"url", target.URL,
		"count", target.Count,
		"interval", target.Interval,
		"proxies", proxies.String(),
		"bypass", proxies.Bypass,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := &pinger.Pinger{
		Prober:  transport.New(proxies, log),
		Proxies: proxies,
		Out:     os.Stdout,
		Log:     log,

		KeepResults: cfg.OutputFile != "",
	}
	results := p.Run(ctx, target)

	if cfg.OutputFile != "" {
		if err := output.WriteFile(cfg.OutputFile, cfg.OutputFormat, results); err != nil {
			log.Error("failed to write output file", "err", err, "path", cfg.OutputFile)
		} else {
			log.Info("results written",
				"path", cfg.OutputFile,
				"format", cfg.OutputFormat,
			)
		}
	}

	return 0
}
