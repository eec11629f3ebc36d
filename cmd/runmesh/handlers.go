package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/runmesh"
	"github.com/hupe1980/runmesh/config"
	"github.com/hupe1980/runmesh/controlplane"
	"github.com/hupe1980/runmesh/core"
	"github.com/hupe1980/runmesh/internal/httpapi"
)

const shutdownTimeout = 10 * time.Second

// runServe loads the configuration, starts the dispatch driver and serves the
// HTTP API until ctx is done or a signal arrives.
func runServe(ctx context.Context, configPath, addr string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := runmesh.NewLoggerFromConfig(cfg.Logging)
	if err != nil {
		return err
	}

	rm, err := runmesh.FromConfig(cfg, func(o *runmesh.Options) { o.Logger = logger })
	if err != nil {
		return err
	}
	defer func() {
		if err := rm.Close(); err != nil {
			logger.Error("Close failed", "error", err)
		}
	}()

	if addr == "" {
		addr = net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	}

	apiCfg := httpapi.Config{
		ControlPlane: rm.ControlPlane(),
		MetricsPath:  cfg.Metrics.Path,
		RateLimit:    cfg.Server.RateLimit,
		RateBurst:    cfg.Server.RateBurst,
		Logger:       logger.WithComponent("http"),
	}
	if m := rm.Metrics(); m != nil {
		apiCfg.Metrics = m.Handler()
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           httpapi.NewHandler(apiCfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	driver := controlplane.NewDriver(rm.ControlPlane(), func(o *controlplane.DriverOptions) {
		o.Interval = cfg.Dispatch.TickInterval
		o.Logger = logger.WithComponent("driver")
	})

	logger.Info("Starting runmesh", "version", version, "addr", addr, "backend", cfg.Backend.Kind, "event_store", cfg.EventStore.Kind)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return driver.Run(gctx)
	})

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	logger.Info("Stopped runmesh")

	return nil
}

// runOnce executes prompt against a fresh in-process instance and writes the
// session's events to w as JSON lines.
func runOnce(ctx context.Context, w io.Writer, configPath, repoID, prompt string, evaluate bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := runmesh.NewLoggerFromConfig(cfg.Logging)
	if err != nil {
		return err
	}
	defer logger.StartTimer("run_once")()

	rm, err := runmesh.FromConfig(cfg, func(o *runmesh.Options) { o.Logger = logger })
	if err != nil {
		return err
	}
	defer rm.Close()

	run, events, runErr := rm.RunSync(ctx, repoID, prompt)

	for _, ev := range events {
		data, err := core.MarshalEvent(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "%s\n", data); err != nil {
			return err
		}
	}

	if evaluate && run.ID != "" {
		res, err := rm.ControlPlane().EvaluateRun(run.ID)
		if err != nil {
			return err
		}
		if err := json.NewEncoder(w).Encode(res); err != nil {
			return err
		}
	}

	return runErr
}

func runConfigShow(w io.Writer, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	data, err := cfg.YAML()
	if err != nil {
		return err
	}

	_, err = w.Write(data)
	return err
}
