package cmd

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	solveapi "github.com/kilianp07/displib/api/solve"
	"github.com/kilianp07/displib/app"
	"github.com/kilianp07/displib/config"
	"github.com/kilianp07/displib/infra/logger"
	"github.com/kilianp07/displib/infra/metrics"
)

func newServeCmd(o *options) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the solve API and Prometheus metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg := *o.cfg
			if cmd.Flags().Changed("listen") {
				cfg.HTTP.Listen = listen
			}
			log := logger.New("serve")
			svc, err := app.New(&cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := svc.Close(); err != nil {
					log.Errorf("service close: %v", err)
				}
			}()

			if separateMetrics(cfg) {
				go func() {
					if err := metrics.StartPromServer(ctx, cfg.Metrics.Listen); err != nil {
						log.Errorf("prom server: %v", err)
					}
				}()
			}
			log.Infof("listening on %s", cfg.HTTP.Listen)
			srv := &http.Server{
				Addr:              cfg.HTTP.Listen,
				Handler:           serveHandler(cfg, svc),
				ReadHeaderTimeout: 10 * time.Second,
			}
			return metrics.Serve(ctx, srv)
		},
	}
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "API listen address, overrides http.listen")
	return cmd
}

func separateMetrics(cfg config.Config) bool {
	return cfg.Metrics.Listen != "" && cfg.Metrics.Listen != cfg.HTTP.Listen
}

// serveHandler mounts the API and, unless a dedicated listener is
// configured, /metrics.
func serveHandler(cfg config.Config, svc *app.Service) http.Handler {
	mux := solveapi.NewMux(svc, svc.Store(), cfg.HTTP.Token, cfg.HTTP.MaxBodyBytes)
	if !separateMetrics(cfg) {
		mux.Handle("/metrics", metrics.Handler())
	}
	return mux
}
