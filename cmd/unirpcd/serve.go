// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luxfi/unirpc"
	"github.com/luxfi/unirpc/internal/config"
	"github.com/luxfi/unirpc/internal/handles"
	"github.com/luxfi/unirpc/internal/logging"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var (
		bind        string
		transport   string
		wire        string
		verbose     bool
		metricsBind string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the built-in handles until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if flags.Changed("bind") {
				cfg.Server.Bind = bind
			}
			if flags.Changed("transport") {
				cfg.Server.Transport = transport
			}
			if flags.Changed("wire") {
				cfg.Codec.Wire = wire
			}
			if flags.Changed("verbose") {
				cfg.Server.Verbose = verbose
			}
			if flags.Changed("metrics-bind") {
				cfg.Server.MetricsBind = metricsBind
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServer(runCtx, cfg)
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "Address to bind (overrides server.bind)")
	cmd.Flags().StringVar(&transport, "transport", "", "Transport: zmq, zap, http or grpc")
	cmd.Flags().StringVar(&wire, "wire", "", "Wire format: json or cbor")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log every call and reply")
	cmd.Flags().StringVar(&metricsBind, "metrics-bind", "", "Address for the Prometheus /metrics endpoint")
	return cmd
}

func runServer(ctx context.Context, cfg *config.Config) error {
	logger, closeLog, err := logging.Setup(cfg.Logging)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer closeLog()

	codec, err := unirpc.WireCodec(cfg.Codec.Wire)
	if err != nil {
		return err
	}
	values := unirpc.NewValueCodec()
	values.Base64 = cfg.Codec.Base64

	reg := unirpc.NewRegistry()
	if err := handles.Register(reg); err != nil {
		return fmt.Errorf("register handles: %w", err)
	}

	opts := []unirpc.ServerOption{
		unirpc.WithServerCodec(codec),
		unirpc.WithServerValueCodec(values),
		unirpc.WithServerTransport(cfg.Server.Transport),
		unirpc.WithLogger(logger),
		unirpc.WithVerbose(cfg.Server.Verbose),
		unirpc.WithServerShortTags(cfg.Codec.ShortTags),
	}
	if cfg.Server.MetricsBind != "" {
		promReg := prometheus.NewRegistry()
		opts = append(opts, unirpc.WithMetrics(promReg))
		stopMetrics := serveMetrics(cfg.Server.MetricsBind, promReg, logger)
		defer stopMetrics()
	}

	srv, err := unirpc.NewServer(reg, opts...)
	if err != nil {
		return err
	}
	logger.Info("starting server",
		zap.String("bind", cfg.Server.Bind),
		zap.String("transport", cfg.Server.Transport),
		zap.String("wire", cfg.Codec.Wire),
		zap.Strings("handles", reg.Names()))

	if err := srv.ListenAndServe(ctx, cfg.Server.Bind); err != nil {
		logger.Error("server stopped", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	hs := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics endpoint failed", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", addr))
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = hs.Shutdown(shutdownCtx)
	}
}
