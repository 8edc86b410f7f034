// Command crossgeno-submit stores parental-cross genotype tables. Each file
// argument holds one JSON table; one outcome line is printed per file and the
// exit status is non-zero when any submission failed.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"golang.org/x/sync/errgroup"

	"crossgeno/internal/blob"
	"crossgeno/internal/config"
	"crossgeno/internal/docstore"
	"crossgeno/internal/submission"
	"crossgeno/pkg/domain"
)

var (
	exitFunc   = os.Exit
	loadConfig = config.Load
	openStore  = docstore.Open
	openBlob   = blob.Open
)

const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

func main() {
	exitFunc(cli(os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	configPath string
	metricsOut string
	traceOut   string
	parallel   int
	archive    bool
	verbose    bool
	files      []string
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("crossgeno-submit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var opts options
	fs.StringVar(&opts.configPath, "config", "", "path to the JSON service configuration (default $"+config.EnvConfig+")")
	fs.StringVar(&opts.metricsOut, "metrics-out", "", "write Prometheus text metrics to this file after the run")
	fs.StringVar(&opts.traceOut, "trace-out", "", "append one JSON line per finished operation to this file")
	fs.IntVar(&opts.parallel, "parallel", 1, "number of files submitted concurrently")
	fs.BoolVar(&opts.archive, "archive", true, "archive raw tables in the blob store")
	fs.BoolVar(&opts.verbose, "v", false, "debug logging")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: crossgeno-submit [flags] table.json...\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	opts.files = fs.Args()
	if len(opts.files) == 0 || opts.parallel < 1 {
		fs.Usage()
		return exitUsage
	}

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: level}))

	ok, err := run(context.Background(), opts, logger, stdout)
	if err != nil {
		logger.Error("run failed", "error", err)
		return exitFailed
	}
	if !ok {
		return exitFailed
	}
	return exitOK
}

// result is the printed outcome line of one file.
type result struct {
	File string `json:"file"`
	submission.Outcome
}

func run(ctx context.Context, opts options, logger *slog.Logger, stdout io.Writer) (bool, error) {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return false, err
	}
	store, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return false, fmt.Errorf("open document store: %w", err)
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	svcOpts := []submission.Option{
		submission.WithLogger(logger),
		submission.WithMetricsRecorder(submission.NewPrometheusRecorder(reg)),
	}
	if opts.archive {
		archive, err := openBlob(ctx, cfg.Blob)
		if err != nil {
			return false, fmt.Errorf("open blob store: %w", err)
		}
		svcOpts = append(svcOpts, submission.WithArchive(archive))
	}
	if opts.traceOut != "" {
		f, err := os.OpenFile(opts.traceOut, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return false, fmt.Errorf("open trace output: %w", err)
		}
		defer f.Close()
		svcOpts = append(svcOpts, submission.WithTracer(submission.NewSpanLog(f, nil)))
	}
	svc := submission.NewService(store, cfg.Settings(), svcOpts...)

	results := make([]result, len(opts.files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.parallel)
	for i, file := range opts.files {
		i, file := i, file
		g.Go(func() error {
			results[i] = submitFile(gctx, svc, file)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return false, err
	}

	enc := json.NewEncoder(stdout)
	allOK := true
	for _, r := range results {
		if !r.Succeeded {
			allOK = false
		}
		if err := enc.Encode(r); err != nil {
			return false, fmt.Errorf("write outcome: %w", err)
		}
	}

	if opts.metricsOut != "" {
		if err := writeMetrics(reg, opts.metricsOut); err != nil {
			return allOK, err
		}
	}
	return allOK, nil
}

func submitFile(ctx context.Context, svc *submission.Service, path string) result {
	res := result{File: path}
	f, err := os.Open(path)
	if err != nil {
		res.Diagnostic = err.Error()
		return res
	}
	defer f.Close()
	table, err := domain.DecodeTable(f)
	if err != nil {
		res.Diagnostic = err.Error()
		return res
	}
	res.Outcome, _ = svc.Submit(ctx, table)
	return res
}

func writeMetrics(g prometheus.Gatherer, path string) (err error) {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create metrics output: %w", err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(f, mf); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}
