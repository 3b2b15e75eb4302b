// Command datapipe installs datasets described by JSON descriptors into a
// storage engine. Each descriptor names one dataset; its tables are processed
// sequentially in declared order. Multiple descriptors run concurrently, one
// goroutine per dataset.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"datapipe/internal/descriptor"
	"datapipe/internal/engine"
	"datapipe/internal/metrics"
	"datapipe/internal/metrics/datadog"
	"datapipe/internal/metrics/prompush"
	"datapipe/internal/pipeline"

	// register all engines with the factory; the -engine flag selects one,
	// but every binary builds in support for all of them.
	_ "datapipe/internal/engine/all"
)

func main() {
	var (
		engineKind     string
		dsn            string
		dataDir        string
		metricsBackend string
		gatewayURL     string
		statsdAddr     string
		validate       bool
	)

	flag.StringVar(&engineKind, "engine", "sqlite", "storage engine ("+strings.Join(engine.Kinds(), ", ")+")")
	flag.StringVar(&dsn, "dsn", "", "engine connection string")
	flag.StringVar(&dataDir, "data-dir", "", "working directory for downloads (default: per-engine temp dir)")
	flag.StringVar(&metricsBackend, "metrics-backend", "none", "metrics backend (pushgateway, datadog, none)")
	flag.StringVar(&gatewayURL, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	flag.StringVar(&statsdAddr, "statsd-addr", "", "DogStatsD address (overrides env DD_AGENT_ADDR)")
	flag.BoolVar(&validate, "validate", false, "validate the descriptors and exit")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	paths := flag.Args()
	if len(paths) == 0 {
		fatalf("usage: datapipe [flags] descriptor.json [descriptor.json ...]")
	}

	datasets := make([]*descriptor.Dataset, 0, len(paths))
	invalid := false
	for _, path := range paths {
		ds, err := descriptor.Load(path)
		if err != nil {
			fatalf("load descriptor: %v", err)
		}
		for _, iss := range descriptor.Validate(ds) {
			fmt.Fprintf(os.Stderr, "%s: %s: %s: %s\n", path, iss.Severity, iss.Path, iss.Message)
			if iss.Severity == descriptor.SeverityError {
				invalid = true
			}
		}
		datasets = append(datasets, ds)
	}
	if invalid {
		log.Fatalf("descriptor validation failed")
	}
	if validate {
		log.Printf("descriptors are valid: %s", strings.Join(paths, ", "))
		os.Exit(0)
	}

	setupMetrics(metricsBackend, gatewayURL, statsdAddr, *verbose)
	defer func() {
		if err := metrics.Flush(); err != nil {
			log.Printf("metrics: flush error: %v", err)
		}
	}()

	ctx := context.Background()
	start := time.Now()

	// One engine per dataset: connections are cheap relative to the
	// installation work, and separate engines keep file-handle tracking
	// per-goroutine.
	g, gctx := errgroup.WithContext(ctx)
	reports := make([]*pipeline.Report, len(datasets))
	for i, ds := range datasets {
		g.Go(func() error {
			eng, err := engine.Open(gctx, engine.Config{
				Kind:    engineKind,
				DSN:     dsn,
				DataDir: dataDir,
			})
			if err != nil {
				return fmt.Errorf("dataset %s: %w", ds.Name, err)
			}
			defer eng.Close()

			drv := pipeline.New(eng)
			drv.Verbose = *verbose

			rep, err := drv.Run(gctx, ds)
			reports[i] = rep
			return err
		})
	}
	runErr := g.Wait()

	failed := false
	for _, rep := range reports {
		if rep == nil {
			continue
		}
		fmt.Println(rep.Summary())
		if err := rep.Err(); err != nil {
			failed = true
			if *verbose {
				log.Printf("%v", err)
			}
		}
	}
	if runErr != nil {
		log.Fatalf("%v", runErr)
	}

	if *verbose {
		log.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	}
	if failed {
		os.Exit(1)
	}
}

// setupMetrics installs the selected metrics backend; flag values override
// environment variables.
func setupMetrics(backendName, gatewayURL, statsdAddr string, verbose bool) {
	switch backendName {
	case "pushgateway":
		if gatewayURL == "" {
			gatewayURL = os.Getenv("PUSHGATEWAY_URL")
		}
		if gatewayURL == "" {
			gatewayURL = "http://localhost:9091"
		}
		b, err := prompush.NewBackend("datapipe", gatewayURL)
		if err != nil {
			log.Printf("metrics: failed to init pushgateway backend: %v; using nop", err)
			return
		}
		log.Printf("metrics: backend=pushgateway url=%s", gatewayURL)
		metrics.SetBackend(b)

	case "datadog":
		if statsdAddr == "" {
			statsdAddr = os.Getenv("DD_AGENT_ADDR")
		}
		if statsdAddr == "" {
			statsdAddr = "127.0.0.1:8125"
		}
		b, err := datadog.NewBackend(datadog.Config{Addr: statsdAddr, Namespace: "datapipe."})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return
		}
		log.Printf("metrics: backend=datadog addr=%s", statsdAddr)
		metrics.SetBackend(b)

	case "", "none":
		if verbose {
			log.Printf("metrics: disabled (backend=%q)", backendName)
		}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
