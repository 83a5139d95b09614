// Command binshift replays a migration plan file against a simulated set of
// worker state machines, logging promotions and transfers as they occur and
// serving the resulting metrics over HTTP. It exists purely to exercise the
// library end to end; spec.md §6 is explicit that the core itself has no
// CLI, environment variables, or on-disk state.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ethereum/go-ethereum/log"
)

func main() {
	app := &cli.App{
		Name:  "binshift",
		Usage: "replay a bin migration plan against a simulated worker set",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to a TOML config file"},
			&cli.StringFlag{Name: "plan", Usage: "path to a migration plan file (overrides config)"},
			&cli.UintFlag{Name: "bin-shift", Usage: "bin-shift B, 1..20 (overrides config)"},
			&cli.UintFlag{Name: "workers", Usage: "number of simulated workers (overrides config)"},
			&cli.StringFlag{Name: "metrics.addr", Usage: "listen address for /metrics (overrides config)"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	setupLogging()

	cfg := defaultConfig()
	if path := c.String("config"); path != "" {
		if err := loadConfig(path, &cfg); err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
	}
	if v := c.String("plan"); v != "" {
		cfg.Plan = v
	}
	if c.IsSet("bin-shift") {
		cfg.BinShift = c.Uint("bin-shift")
	}
	if c.IsSet("workers") {
		cfg.Workers = uint32(c.Uint("workers"))
	}
	if v := c.String("metrics.addr"); v != "" {
		cfg.MetricsAddr = v
	}
	if cfg.Plan == "" {
		return cli.Exit("a migration plan file is required (--plan or config)", 1)
	}

	reg := prometheus.NewRegistry()
	runLogger := log.Root().New("run", uuid.New().String())

	ctx, cancel := context.WithCancel(c.Context)
	g, ctx := errgroup.WithContext(ctx)
	if cfg.MetricsAddr != "" {
		g.Go(func() error { return serveMetrics(ctx, cfg.MetricsAddr, reg) })
	}

	g.Go(func() error {
		defer cancel()
		return runReplay(cfg, reg, runLogger)
	})

	return g.Wait()
}

// setupLogging mirrors go-ethereum's own terminal-handler setup: colorized
// output when stderr is a real terminal, plain otherwise.
func setupLogging() {
	useColor := isatty.IsTerminal(os.Stderr.Fd())
	var output io.Writer = os.Stderr
	if useColor {
		output = colorable.NewColorable(os.Stderr)
	}
	log.SetDefault(log.NewLogger(log.NewTerminalHandler(output, useColor)))
}

// serveMetrics runs the Prometheus HTTP endpoint until ctx is canceled (the
// replay run finishing, or the errgroup aborting for another reason), then
// shuts it down gracefully.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
