package commands

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcpgateway/registry/pkg/adminapi"
	"github.com/mcpgateway/registry/pkg/config"
	"github.com/mcpgateway/registry/pkg/gateway"
	"github.com/mcpgateway/registry/pkg/log"
)

// serveCommand runs the full gateway: the public reverse-proxy/MCP surface
// on one listener and the administrative REST API on another, plus the C6
// health-monitor loop, all sharing the collaborators buildSystem wires up.
func serveCommand() *cobra.Command {
	var (
		proxyAddr string
		adminAddr string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the registry gateway's proxy and admin API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return WithExitCode(err, 1)
			}
			if proxyAddr != "" {
				cfg.ProxyAddr = proxyAddr
			}
			if adminAddr != "" {
				cfg.AdminAddr = adminAddr
			}

			sys, err := buildSystem(cfg)
			if err != nil {
				return WithExitCode(err, 1)
			}
			defer sys.Close()

			if err := sys.api.RebuildIndex(cmd.Context()); err != nil {
				log.Warnf("startup discovery reindex failed (continuing with a possibly stale index): %v", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			monitorDone := make(chan struct{})
			go func() {
				defer close(monitorDone)
				sys.monitor.Run(ctx)
			}()

			proxySrv := &http.Server{Addr: cfg.ProxyAddr, Handler: gateway.NewRouter(sys.gw)}
			adminSrv := &http.Server{Addr: cfg.AdminAddr, Handler: adminapi.NewRouter(sys.api)}

			errCh := make(chan error, 2)
			go func() {
				log.Infof("reverse proxy listening on %s", cfg.ProxyAddr)
				errCh <- ignoreServerClosed(proxySrv.ListenAndServe())
			}()
			go func() {
				log.Infof("admin API listening on %s", cfg.AdminAddr)
				errCh <- ignoreServerClosed(adminSrv.ListenAndServe())
			}()

			select {
			case <-ctx.Done():
				log.Infof("shutdown signal received")
			case err := <-errCh:
				if err != nil {
					return WithExitCode(err, 1)
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = proxySrv.Shutdown(shutdownCtx)
			_ = adminSrv.Shutdown(shutdownCtx)
			<-monitorDone

			return nil
		},
	}

	cmd.Flags().StringVar(&proxyAddr, "proxy-addr", "", "override REGISTRY_GATEWAY_PROXY_ADDR")
	cmd.Flags().StringVar(&adminAddr, "admin-addr", "", "override REGISTRY_GATEWAY_ADMIN_ADDR")

	return cmd
}

func ignoreServerClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
