package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

func serveCommand(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			defer a.close()
			if addr != "" {
				a.cfg.Server.Addr = addr
			}
			rt, err := a.runtime(cmd.Context())
			if err != nil {
				return err
			}
			srv, err := rt.NewServer()
			if err != nil {
				return err
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start(a.cfg.Server.Addr) }()

			select {
			case err := <-errCh:
				return err
			case <-cmd.Context().Done():
			}
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.addr")
	return cmd
}
