package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/facecap/internal/config"
	"github.com/DoyleJ11/facecap/internal/engine"
	"github.com/DoyleJ11/facecap/internal/httpapi"
	"github.com/DoyleJ11/facecap/internal/journal"
	"github.com/DoyleJ11/facecap/internal/logging"
	"github.com/DoyleJ11/facecap/internal/metrics"
	"github.com/DoyleJ11/facecap/internal/session"
	"github.com/DoyleJ11/facecap/internal/stream"
	"github.com/DoyleJ11/facecap/internal/ws"
)

func runCmd() *cobra.Command {
	var (
		endpoint string
		listen   string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to an endpoint, stream frames and serve the control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			envFile, _ := cmd.Flags().GetString("env-file")
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			if endpoint != "" {
				cfg.Endpoint = endpoint
			}
			if listen != "" {
				cfg.Listen = listen
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&endpoint, "endpoint", "e", "", "endpoint name to connect to (overrides "+config.EnvEndpoint+")")
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "control API address (overrides "+config.EnvListen+")")
	return cmd
}

func run(parent context.Context, cfg config.Config) error {
	log, err := logging.New(cfg.LogLevel, cfg.Development)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ep, err := config.Lookup(cfg.Endpoints, cfg.Endpoint)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var jr journal.Journal = &journal.Memory{}
	if cfg.JournalDSN != "" {
		db, err := journal.Open(cfg.JournalDSN)
		if err != nil {
			return err
		}
		jr = db
		log.Info("enrollment journal enabled")
	} else {
		log.Info("no journal DSN, keeping enrollments in memory")
	}

	rules := engine.DefaultRules()
	rules.DefaultTokens = cfg.Tokens
	rules.Probes = cfg.Probes
	rules.CaptureWindow = cfg.CaptureWindow

	board := httpapi.NewBoard()
	sess, err := session.New(ctx, session.Config{
		Rules:         rules,
		Endpoints:     cfg.Endpoints,
		Dialer:        ws.WebsocketDialer{},
		FrameInterval: cfg.FrameInterval,
		Logger:        log.Named("session"),
		Metrics:       m,
		Journal:       jr,
		Observers:     []session.Observer{board},
	})
	if err != nil {
		return multierr.Append(err, jr.Close())
	}

	if cfg.FramesDir != "" {
		src, err := stream.OpenDir(cfg.FramesDir)
		if err != nil {
			log.Warn("no video source", zap.String("dir", cfg.FramesDir), zap.Error(err))
		} else {
			log.Info("video source ready", zap.String("dir", cfg.FramesDir), zap.Int("frames", src.Len()))
			sess.Inbox() <- session.VideoReady{Source: src}
		}
	}
	sess.Inbox() <- session.Connect{Endpoint: ep}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           httpapi.SetupRoutes(sess.Inbox(), board, jr, reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("control API listening", zap.String("addr", cfg.Listen))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("control API: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-sess.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	// the session owns the journal and closes it on the way out
	select {
	case sess.Inbox() <- session.Shutdown{}:
	case <-sess.Done():
	}
	<-sess.Done()
	log.Info("stopped")
	return err
}

func endpointsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "endpoints",
		Short: "List the named recognition servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			envFile, _ := cmd.Flags().GetString("env-file")
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, ep := range cfg.Endpoints {
				marker := " "
				if strings.EqualFold(ep.Name, cfg.Endpoint) {
					marker = "*"
				}
				fmt.Fprintf(out, "%s %-10s %s\n", marker, ep.Name, ep.Address)
			}
			return nil
		},
	}
}
