package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/congo-pay/walletledger/internal/config"
	"github.com/congo-pay/walletledger/internal/identity"
	"github.com/congo-pay/walletledger/internal/infra"
	"github.com/congo-pay/walletledger/internal/ledger"
	"github.com/congo-pay/walletledger/internal/logging"
	"github.com/congo-pay/walletledger/internal/store"
)

// Opener returns the store the commands operate on and a release function.
type Opener func(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, func(), error)

// env is the state shared by subcommands once the root pre-run has opened
// the store.
type env struct {
	open   Opener
	cfg    config.Config
	logger *slog.Logger
	store  store.Store
	engine *ledger.Engine
	close  func()
}

// NewRootCommand builds walletctl. A nil opener uses infra.OpenStore.
func NewRootCommand(open Opener) *cobra.Command {
	if open == nil {
		open = infra.OpenStore
	}
	e := &env{open: open}

	root := &cobra.Command{
		Use:   "walletctl",
		Short: "Operate on the wallet ledger store",
		Long: `walletctl inspects and maintains the wallet ledger directly against the
configured store. It reads the same environment as the API server.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return e.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if e.close != nil {
				e.close()
			}
		},
	}
	root.AddCommand(newSchemaCommand(e), newBalanceCommand(e), newHistoryCommand(e), newReconcileCommand(e))
	return root
}

// setup logs to stderr so stdout carries only command output.
func (e *env) setup(cmd *cobra.Command) error {
	ctx := cmd.Context()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	e.cfg = cfg
	e.logger = logging.NewWriter(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	st, closeStore, err := e.open(ctx, cfg, e.logger)
	if err != nil {
		return err
	}
	e.store, e.close = st, closeStore
	e.engine = ledger.NewEngine(st, identity.NewDirectory(st.Users()), e.logger, ledger.WithMaxPageLimit(cfg.MaxPageLimit))
	return nil
}

// ownerID resolves the --owner or --email flag.
func (e *env) ownerID(cmd *cobra.Command) (string, error) {
	owner, _ := cmd.Flags().GetString("owner")
	email, _ := cmd.Flags().GetString("email")
	switch {
	case owner != "":
		return owner, nil
	case email != "":
		return identity.NewDirectory(e.store.Users()).OwnerByEmail(cmd.Context(), email)
	default:
		return "", fmt.Errorf("one of --owner or --email is required")
	}
}

func addOwnerFlags(cmd *cobra.Command) {
	cmd.Flags().String("owner", "", "Owner id")
	cmd.Flags().String("email", "", "Owner email address")
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
