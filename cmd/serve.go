package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/abhisek/learnintake/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the assessment conversation over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		cmd.SetContext(ctx)

		return withDeps(cmd, true, func(ctx context.Context, d *deps) error {
			addr, _ := cmd.Flags().GetString("addr")
			if addr == "" {
				addr = d.cfg.Server.Addr
			}
			handler, err := server.New(server.Config{
				Service:  d.orch,
				BasePath: d.cfg.Server.BasePath,
				Version:  currentVersion(),
				Log:      d.log,
			})
			if err != nil {
				return err
			}
			return server.Run(ctx, addr, handler, d.cfg.Server.ShutdownTimeout, d.log)
		})
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides server.addr)")
}
