package main

import (
	"context"

	"github.com/keaganluttrell/gconsole/console"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func serveCmd(g *globalFlags) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "export the console tree to one client",
		Long: `Serve the console tree to the first client that connects. The address is
host:port for TCP, unix:/path for a unix socket, or ws://host:port/path
for WebSocket. The command returns when the client clunks its attach fid
or hangs up.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				cfg.Listen = listen
			}

			err = console.ListenAndServe(cmd.Context(), cfg.Listen, cfg)
			if errors.Is(err, context.Canceled) {
				log.Info("interrupted")
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", console.DefaultConfig().Listen, "Address to export the console on")

	return cmd
}
