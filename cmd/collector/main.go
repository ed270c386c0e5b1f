// Package main is the entry point for the NiFi metrics collector.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"golang.org/x/sync/errgroup"

	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/internal/auth"
	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/internal/collector"
	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/internal/config"
	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/internal/config/credentials"
	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/internal/config/fileloader"
	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/internal/nifi"
	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/internal/scheduler"
	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/internal/storage"
	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/pkg/common"
	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/pkg/common/logger"
	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/pkg/common/otel"
	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/pkg/common/timeutil"
	"github.com/abnoel121571/NiFi-Rest-API-Monitor-And-Analyzer/pkg/schema"
)

const serviceType = "nifi-collector"

type options struct {
	once         bool
	hostname     string
	logLevel     string
	configPath   string
	secretsPath  string
	metricsAddr  string
	otelEndpoint string
	sampleRatio  float64
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "nifi-collector",
		Short: "Collects NiFi REST API metrics on a schedule and stores them as compressed JSON",
		Long: `nifi-collector polls the NiFi management REST API for processor, connection,
JVM, controller service, reporting task, bulletin, cluster and provenance data,
plus host OS metrics, on independent per-category and per-flow intervals.

The configuration file is re-read every second so intervals, categories and
flows can change without a restart. Credentials and storage settings are read
once from the secrets file, with NIFI_COLLECTOR_* environment overrides.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&opts.once, "once", false, "run a single collection for every category and flow, then exit")
	f.StringVar(&opts.hostname, "hostname", "localhost", "value substituted for {hostname} in the config file")
	f.StringVar(&opts.logLevel, "log-level", "", "log level override (DEBUG, INFO, WARN, ERROR)")
	f.StringVar(&opts.configPath, "config", "config/nifi-config.json", "path to the collector configuration")
	f.StringVar(&opts.secretsPath, "secrets", "config/secrets.json", "path to the secrets file")
	f.StringVar(&opts.metricsAddr, "metrics-addr", ":9464", "address for the Prometheus metrics endpoint, empty to disable")
	f.StringVar(&opts.otelEndpoint, "otel-endpoint", "", "OTLP gRPC endpoint for traces and metrics, empty to disable")
	f.Float64Var(&opts.sampleRatio, "otel-sample-ratio", 1.0, "fraction of traces to sample")

	return cmd
}

func main() {
	_, _ = maxprocs.Set()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newLogger(opts options, cfg *config.Config) (*logger.Logger, error) {
	levelName := cfg.LogLevel
	if opts.logLevel != "" {
		levelName = opts.logLevel
	}
	level, err := logger.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}

	logEvents := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otel.GetTraceID(ctx),
			}
			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}
			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n", r.Message, errorAttrsJSON)
		},
	}

	metadata := map[string]string{
		"hostname":       opts.hostname,
		"app":            serviceType,
		"schema_version": schema.Version,
	}

	return logger.NewWithMetadata(os.Stdout, level, serviceType, otel.GetTraceID, logEvents, metadata), nil
}

func run(ctx context.Context, opts options) error {
	cfgLoader := fileloader.NewFileLoader(opts.configPath, opts.hostname)

	// The first load decides the log level and the auth mode for the whole run.
	cfg, err := cfgLoader.Load(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return err
	}

	log, err := newLogger(opts, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level: %v\n", err)
		return err
	}
	log.Info(ctx, "starting NiFi metrics collector", "nifi_api_url", cfg.NiFiAPIURL, "once", opts.once)

	tp, tracingTeardown, err := otel.InitTracing(log, otel.Config{
		ServiceName:      serviceType,
		ExporterEndpoint: opts.otelEndpoint,
		Probability:      opts.sampleRatio,
		ResourceAttributes: map[string]string{
			"library.language": "go",
			"host.name":        opts.hostname,
		},
	})
	if err != nil {
		log.Error(ctx, "failed to initialize tracing", "error", err)
		return err
	}
	defer tracingTeardown(context.WithoutCancel(ctx))
	tracer := tp.Tracer(serviceType)

	mp, metricsHandler, metricsTeardown, err := otel.InitMetrics(ctx, serviceType, opts.otelEndpoint)
	if err != nil {
		log.Error(ctx, "failed to initialize metrics", "error", err)
		return err
	}
	defer func() {
		if err := metricsTeardown(context.WithoutCancel(ctx)); err != nil {
			log.Error(ctx, "failed to shut down meter provider", "error", err)
		}
	}()

	metrics, err := scheduler.NewCollectorMetrics(mp)
	if err != nil {
		log.Error(ctx, "failed to create metrics", "error", err)
		return err
	}

	secrets, err := credentials.Load(opts.secretsPath)
	if err != nil {
		log.Error(ctx, "failed to load secrets", "error", err)
		return err
	}
	if err := secrets.RequireNiFiCredentials(); err != nil {
		log.Error(ctx, "missing NiFi credentials", "error", err)
		return err
	}

	sink, err := storage.New(secrets, log, tracer, metrics)
	if err != nil {
		log.Error(ctx, "failed to create storage writer", "error", err)
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			log.Error(ctx, "failed to close storage writer", "error", err)
		}
	}()

	client := nifi.NewClient(
		nifi.NewHTTPClient(cfg.VerifyTLS),
		common.NewRateLimiter(cfg.RateLimitRPS, 1),
		log,
		tracer,
	)

	var schedOpts []scheduler.Option
	if cfg.UseTokenAuth {
		tokens := auth.NewManager(client, secrets.Username, secrets.Password, timeutil.Default(), log, tracer)
		if err := tokens.Acquire(ctx, cfg.NiFiTokenURL); err != nil {
			log.Error(ctx, "failed to acquire initial token, exiting", "error", err)
			return err
		}
		client = client.WithAuth(nifi.BearerAuth(tokens))
		schedOpts = append(schedOpts, scheduler.WithTokenRenewer(tokens))
	} else {
		client = client.WithAuth(nifi.BasicAuth(secrets.Username, secrets.Password))
	}

	apiFor := func(cfg *config.Config) collector.API {
		return client.WithEndpoint(cfg.NiFiAPIURL, cfg.Timeout())
	}
	dispatcher := collector.NewDispatcher(apiFor, sink, collector.NewHostSampler(), metrics, log, tracer)
	sched := scheduler.New(cfgLoader, dispatcher, metrics, log, tracer, schedOpts...)

	if opts.once {
		if err := sched.RunOnce(ctx); err != nil {
			log.Error(ctx, "one-time collection failed", "error", err)
			return err
		}
		log.Info(ctx, "one-time collection complete")
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	if opts.metricsAddr != "" {
		g.Go(func() error {
			log.Info(gctx, "serving metrics", "addr", opts.metricsAddr)
			return common.RunMetricsServer(gctx, opts.metricsAddr, metricsHandler)
		})
	}
	g.Go(func() error {
		return sched.Run(gctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error(ctx, "collector stopped with error", "error", err)
		return err
	}
	log.Info(ctx, "collector shutdown complete")
	return nil
}
