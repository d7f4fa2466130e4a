package main

import (
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mleitner/bankmatch/internal/api"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			addr, _ := cmd.Flags().GetString("addr")
			if addr == "" {
				addr = viper.GetString("server.addr")
			}
			if addr == "" {
				addr = ":8080"
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			classifier, booker, batch, err := initPipeline(store, false)
			if err != nil {
				return err
			}

			ledger, ledgerStore, err := initLedgerMatcher(store)
			if err != nil {
				return err
			}
			if ledgerStore != nil {
				defer func() { _ = ledgerStore.Close() }()
			}
			if ledger == nil {
				slog.Info("No external ledger configured, ledger endpoints disabled")
			}

			server := api.NewServer(store, store.NewJobStatusStore(), classifier, booker, batch, ledger, viper.GetString("server.token"))
			slog.Info("Starting API server", "addr", addr)
			return server.Run(ctx, addr)
		},
	}
	cmd.Flags().String("addr", "", "listen address (default from config, else :8080)")
	return cmd
}
