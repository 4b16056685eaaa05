// Command payraild serves the payrail merchant and payment API.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vitwit/payrail"
	"github.com/vitwit/payrail/config"
	"github.com/vitwit/payrail/logger"
	"github.com/vitwit/payrail/metrics"
	"github.com/vitwit/payrail/server"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	// A missing .env is fine; the environment may already be set.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Fatalf("Error loading .env file: %v", err)
	}

	if err := run(*configPath); err != nil {
		log.Fatal(err)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	zl, err := logger.NewZapLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()

	opts := []payrail.Option{payrail.WithLogger(zl)}
	serverOpts := []server.Option{
		server.WithLogger(zl),
		server.WithIssue(cfg.Server.EnableIssue),
		server.WithAuthorize(cfg.Server.EnableAuthorize),
		server.WithAdminToken(cfg.Server.AdminToken.Value()),
	}
	if cfg.Metrics.Enabled {
		recorder, err := metrics.NewPrometheusRecorder(prometheus.DefaultRegisterer)
		if err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
		opts = append(opts, payrail.WithMetrics(recorder))
		serverOpts = append(serverOpts, server.WithMetricsHandler(cfg.Metrics.Path, promhttp.Handler()))
	}

	p, err := payrail.New(cfg, opts...)
	if err != nil {
		return err
	}
	defer p.Close()

	fields := map[string]any{
		"version":     payrail.Version,
		"facilitator": cfg.Facilitator.URL,
	}
	if addr, ok := p.IssuerAddress(); ok {
		fields["issuer"] = addr.Hex()
	}
	zl.Info("payrail starting", fields)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return server.New(p, cfg.Server, serverOpts...).Run(ctx)
}
