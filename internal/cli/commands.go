package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

type schemaApplier interface {
	ApplySchema(ctx context.Context) error
}

func newSchemaCommand(e *env) *cobra.Command {
	schema := &cobra.Command{
		Use:   "schema",
		Short: "Manage the store schema",
	}
	schema.AddCommand(&cobra.Command{
		Use:   "apply",
		Short: "Create missing tables and indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			applier, ok := e.store.(schemaApplier)
			if !ok {
				return fmt.Errorf("store driver %q has no schema", e.cfg.StoreDriver)
			}
			if err := applier.ApplySchema(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema applied (%s)\n", e.cfg.StoreDriver)
			return nil
		},
	})
	return schema
}

func newBalanceCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show an owner's wallet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			owner, err := e.ownerID(cmd)
			if err != nil {
				return err
			}
			w, err := e.engine.Wallet(cmd.Context(), owner)
			if err != nil {
				return err
			}
			return printJSON(cmd, w)
		},
	}
	addOwnerFlags(cmd)
	return cmd
}

func newHistoryCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List an owner's transactions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			owner, err := e.ownerID(cmd)
			if err != nil {
				return err
			}
			page, _ := cmd.Flags().GetInt("page")
			limit, _ := cmd.Flags().GetInt("limit")
			res, err := e.engine.History(cmd.Context(), owner, page, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	addOwnerFlags(cmd)
	cmd.Flags().Int("page", 1, "Page number, starting at 1")
	cmd.Flags().Int("limit", 10, "Records per page")
	return cmd
}

func newReconcileCommand(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare a wallet balance with the sum of its records",
		Long: `Recomputes the signed sum of the wallet's completed records and compares it
with the stored balance. Exits non-zero when they differ.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			owner, err := e.ownerID(cmd)
			if err != nil {
				return err
			}
			rec, err := e.engine.Reconcile(cmd.Context(), owner)
			if err != nil {
				return err
			}
			if err := printJSON(cmd, rec); err != nil {
				return err
			}
			if !rec.Balanced() {
				return fmt.Errorf("wallet %s drifted by %s", rec.WalletID, rec.Drift)
			}
			return nil
		},
	}
	addOwnerFlags(cmd)
	return cmd
}
