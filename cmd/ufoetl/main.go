package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/RobertDonnan/ufo-notebook/internal/config"
	"github.com/RobertDonnan/ufo-notebook/internal/metrics"
	"github.com/RobertDonnan/ufo-notebook/internal/metrics/datadog"
	"github.com/RobertDonnan/ufo-notebook/internal/metrics/prompush"
	"github.com/RobertDonnan/ufo-notebook/internal/pipeline"

	// register every SQL backend with the storage factory; the pipeline
	// config picks one for the aggregate engine.
	_ "github.com/RobertDonnan/ufo-notebook/internal/storage/all"
)

// main loads the pipeline config, installs the metrics backend and runs the
// job once.
func main() {
	var (
		cfgPath           string
		metricsBackendFlg string
		pushGatewayURLFlg string
		datadogAddrFlg    string
		engineFlg         string
		engineDSNFlg      string
		validate          bool
	)

	flag.StringVar(&cfgPath, "config", "configs/pipelines/ufo.json", "pipeline config path (.json, .yaml or .yml)")
	flag.StringVar(&metricsBackendFlg, "metrics-backend", "", "metrics backend: pushgateway, datadog or none (overrides env METRICS_BACKEND)")
	flag.StringVar(&pushGatewayURLFlg, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	flag.StringVar(&datadogAddrFlg, "datadog-addr", "", "DogStatsD address (overrides env DD_AGENT_ADDR)")
	flag.StringVar(&engineFlg, "engine", "", "aggregate engine: memory, sqlite, postgres, mssql, mysql (overrides config and env UFO_ENGINE)")
	flag.StringVar(&engineDSNFlg, "engine-dsn", "", "DSN for a SQL aggregate engine (overrides config and env UFO_ENGINE_DSN)")
	flag.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("env: could not load .env: %v", err)
	}

	p, err := config.LoadFile(cfgPath)
	if err != nil {
		fatalf("%v", err)
	}
	if v := firstNonEmpty(engineFlg, os.Getenv("UFO_ENGINE")); v != "" {
		p.Engine.Kind = v
	}
	if v := firstNonEmpty(engineDSNFlg, os.Getenv("UFO_ENGINE_DSN")); v != "" {
		p.Engine.DSN = v
	}

	issues := config.ValidatePipeline(p)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		log.Printf("Configuration is invalid: %v", cfgPath)
		os.Exit(1)
	}
	if validate {
		log.Printf("Configuration is valid: %v", cfgPath)
		os.Exit(0)
	}

	flush := setupMetrics(p.Job, metricsBackendFlg, pushGatewayURLFlg, datadogAddrFlg, *verbose)
	code := run(p, *verbose)
	flush()
	os.Exit(code)
}

// run executes the pipeline and returns the process exit code.
func run(p config.Pipeline, verbose bool) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	start := time.Now()

	engine, closeEngine, err := pipeline.NewEngine(ctx, p.Engine, p.Job)
	if err != nil {
		log.Printf("%v", err)
		return 1
	}
	defer closeEngine()

	sinks, closeSinks, err := pipeline.NewSinks(p.Display, os.Stdout)
	if err != nil {
		log.Printf("%v", err)
		return 1
	}
	defer closeSinks()

	pl := pipeline.New(p, pipeline.WithEngine(engine), pipeline.WithSinks(sinks...))
	if verbose {
		log.Printf("pipeline: run_id=%s source=%s engine=%s sinks=%d",
			pl.RunID(), p.Source.Location(), firstNonEmpty(p.Engine.Kind, "memory"), len(sinks))
	}
	if err := pl.Run(ctx); err != nil {
		log.Printf("pipeline failed: %v", err)
		return 1
	}
	if verbose {
		log.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	}
	return 0
}

// setupMetrics installs the selected backend (flag → env → none) and returns
// the function flushing it.
func setupMetrics(job, backendFlg, gwFlg, ddFlg string, verbose bool) func() {
	nop := func() {}
	flush := func() {
		if err := metrics.Flush(); err != nil {
			log.Printf("metrics: flush error: %v", err)
		}
	}

	backendName := strings.ToLower(firstNonEmpty(backendFlg, os.Getenv("METRICS_BACKEND")))
	switch backendName {
	case "pushgateway":
		gwURL := firstNonEmpty(gwFlg, os.Getenv("PUSHGATEWAY_URL"), "http://localhost:9091")
		b, err := prompush.NewBackend(job, gwURL)
		if err != nil {
			log.Printf("metrics: failed to init prom push backend: %v; using nop", err)
			return nop
		}
		log.Printf("metrics: url=%v, backend=%v, job_name=%v", gwURL, backendName, job)
		metrics.SetBackend(b)
		return flush

	case "datadog":
		addr := firstNonEmpty(ddFlg, os.Getenv("DD_AGENT_ADDR"), "127.0.0.1:8125")
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       addr,
			GlobalTags: []string{"job:" + job},
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return nop
		}
		log.Printf("metrics: addr=%v, backend=%v, job_name=%v", addr, backendName, job)
		metrics.SetBackend(b)
		return flush

	case "", "none":
		if verbose {
			log.Printf("metrics: disabled (backend=%q)", backendName)
		}
		return nop

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
		return nop
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
