package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/caio-sobreiro/dicomul/server"
	"github.com/caio-sobreiro/dicomul/services"
	"github.com/caio-sobreiro/dicomul/types"
)

func newServeCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Accept associations and answer C-ECHO and C-STORE requests",
		Args:    cobra.NoArgs,
		PreRunE: bindFlags(v),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, v)
		},
	}
	cmd.Flags().String("listen", ":4242", "DICOM listen address")
	cmd.Flags().String("ae-title", "DICOMUL", "AE title of the SCP")
	cmd.Flags().String("storage-dir", "", "directory receiving C-STORE objects; empty disables storage")
	cmd.Flags().String("metrics-listen", ":9090", "address serving /metrics; empty disables it")
	return cmd
}

func serve(ctx context.Context, v *viper.Viper) error {
	cfg, err := associationConfig()
	if err != nil {
		return err
	}

	registry := services.NewRegistry()
	registry.RegisterHandler(types.CEchoRQ, services.NewEchoService())
	if dir := v.GetString("storage-dir"); dir != "" {
		registry.RegisterHandler(types.CStoreRQ, services.NewStoreService(services.DirSink{Dir: dir}))
		slog.Info("Storing received objects", "dir", dir)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.ListenAndServe(ctx, v.GetString("listen"), v.GetString("ae-title"), registry,
			server.WithConfig(cfg), server.WithLogger(slog.Default()))
	})

	if addr := v.GetString("metrics-listen"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			slog.Info("Metrics listening", "address", addr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		slog.Info("Server stopped")
		return nil
	}
	return err
}
