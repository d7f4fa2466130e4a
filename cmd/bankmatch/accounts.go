package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func accountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage bank accounts",
	}
	cmd.AddCommand(accountsListCmd())
	cmd.AddCommand(accountsSyncCmd())
	cmd.AddCommand(accountsSetCmd())
	return cmd
}

func accountsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored bank accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			accounts, err := store.ListBankAccounts(ctx, false)
			if err != nil {
				return err
			}
			for _, a := range accounts {
				fetch := " "
				if a.AutoFetch {
					fetch = "*"
				}
				fmt.Printf("%s %-34s %-30s %12.2f %s\n",
					fetch, a.IBAN, a.Description, a.Balance, a.ReceivableTarget)
			}
			return nil
		},
	}
}

func accountsSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Mirror the account list from the Hibiscus server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			importer, err := initHibiscus(store)
			if err != nil {
				return err
			}
			saved, err := importer.SyncAccountList(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("synced %d account(s)\n", saved)
			return nil
		},
	}
}

func accountsSetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <iban>",
		Short: "Change local settings of one account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			account, err := store.GetBankAccount(ctx, args[0])
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("receivable-target") {
				account.ReceivableTarget, _ = cmd.Flags().GetString("receivable-target")
			}
			if cmd.Flags().Changed("auto-fetch") {
				account.AutoFetch, _ = cmd.Flags().GetBool("auto-fetch")
			}
			if err := store.SaveBankAccount(ctx, account); err != nil {
				return err
			}
			fmt.Printf("updated %s\n", account.IBAN)
			return nil
		},
	}
	cmd.Flags().String("receivable-target", "", "ledger account incoming payments post to")
	cmd.Flags().Bool("auto-fetch", true, "include in scheduled imports")
	return cmd
}
