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

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hammamikhairi/guardian/internal/display"
	"github.com/hammamikhairi/guardian/internal/engine"
	"github.com/hammamikhairi/guardian/internal/monitor"
	"github.com/hammamikhairi/guardian/internal/onnx"
	"github.com/hammamikhairi/guardian/internal/server"
)

func newServeCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, live feed and optional microphone monitor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.serve(cmd.Context())
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	cmd.Flags().Bool("monitor", false, "listen on the default microphone (overrides monitor.enabled)")
	_ = c.v.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	_ = c.v.BindPFlag("monitor.enabled", cmd.Flags().Lookup("monitor"))
	return cmd
}

func (c *cli) serve(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, log := c.cfg, c.log
	hub := server.NewHub(cfg.Server.CORSOrigins, log)
	observers := []engine.Option{engine.WithObserver(hub)}
	if display.IsTerminal() {
		fmt.Println(display.RenderBanner())
		observers = append(observers, engine.WithObserver(display.NewConsole(nil)))
	}

	a, err := build(ctx, cfg, log, observers...)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("shutdown: %v", err)
		}
	}()

	srv := server.New(a.engine, a.library, log,
		server.WithHub(hub),
		server.WithHistory(a.orchestrator),
		server.WithMetrics(a.metrics),
		server.WithCORSOrigins(cfg.Server.CORSOrigins),
		server.WithMaxUpload(cfg.Server.MaxUploadBytes),
		server.WithRateLimit(cfg.Server.RateLimit, cfg.Server.RateBurst),
	)
	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening on %s", cfg.Server.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return httpSrv.Shutdown(sctx)
	})
	if cfg.Monitor.Enabled {
		mon := monitor.New(monitor.NewMicrophone(onnx.YAMNetSampleRate, log), a.engine, log,
			monitor.WithSource(cfg.Monitor.Source),
			monitor.WithWindow(cfg.Monitor.Window),
		)
		g.Go(func() error {
			// A missing microphone should not take the API down.
			if err := mon.Run(gctx); err != nil {
				log.Error("monitor stopped: %v", err)
			}
			return nil
		})
	}

	err = g.Wait()
	a.engine.Wait()
	return err
}
