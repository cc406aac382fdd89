package main

import (
	"github.com/spf13/cobra"

	"github.com/magenta-aps/sdlon/internal/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the trigger server: status, run trigger, unit fixes, metrics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp(cmd.Context(), appOptions{NeedsRunDB: true})
			if err != nil {
				return err
			}
			defer a.Close()

			srv := server.Default(&server.DefaultOptions{
				Logger:  a.log,
				Trigger: a.runner,
				Fixer:   a.nyFixer,
				Runs:    a.runs,
			})
			a.log.WithField("address", a.conf.SocketAddress).Info("trigger server listening")
			return srv.Start(a.conf.SocketAddress)
		},
	}
}
