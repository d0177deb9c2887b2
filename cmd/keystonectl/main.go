package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"keystone/internal/config"
	"keystone/internal/domain"
	"keystone/internal/infra/crypto"
	"keystone/internal/infra/db"
	"keystone/internal/usecase"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "keystonectl",
		Short: "Operational tooling for the trust engine",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
		},
	}

	rootCmd.AddCommand(verifyChainCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(bootstrapCmd())
	rootCmd.AddCommand(genMasterKeyCmd())
	rootCmd.AddCommand(purgeAuditCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// verifyChainCmd recomputes the audit hash chain and reports the first break.
func verifyChainCmd() *cobra.Command {
	var fromSeq, toSeq int64
	cmd := &cobra.Command{
		Use:   "verify-chain",
		Short: "Verify the audit ledger hash chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := db.NewStore(config.FromEnv())
			if err != nil {
				return err
			}
			brk, err := usecase.VerifyChain(context.Background(), store.Audit, fromSeq, toSeq)
			if brk != nil {
				fmt.Printf("chain broken at seq %d (entry %s): %s\n", brk.Seq, brk.EntryID, brk.Reason)
				os.Exit(2)
			}
			if err != nil {
				return err
			}
			fmt.Println("chain intact")
			return nil
		},
	}
	cmd.Flags().Int64Var(&fromSeq, "from", 1, "first sequence number to verify")
	cmd.Flags().Int64Var(&toSeq, "to", 0, "last sequence number to verify (0 = chain head)")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := db.NewStore(config.FromEnv())
			if err != nil {
				return err
			}
			if err := store.Migrate(); err != nil {
				return err
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
}

// bootstrapCmd migrates the schema and creates the default trust authority
// with a fresh root keypair when none exists yet.
func bootstrapCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bootstrap",
		Short: "Migrate the schema and ensure the default trust authority exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			masterKey, err := resolveMasterKey(cfg)
			if err != nil {
				return err
			}
			store, err := db.NewStore(cfg)
			if err != nil {
				return err
			}
			if err := store.Migrate(); err != nil {
				return err
			}
			log := logrus.New()
			svc := &usecase.AuthorityService{
				Authorities: store.Authorities,
				RootKeys:    store.RootKeys,
				Audit:       usecase.NewAuditLogger(store.Audit, nil, log),
				MasterKey:   masterKey,
				Log:         log,
			}
			actor := domain.Actor{ID: "system", Name: "keystonectl", Role: domain.RoleSecurityAuthority}
			authority, err := svc.EnsureDefault(context.Background(), actor)
			if err != nil {
				return err
			}
			fmt.Printf("default trust authority: %s (%s)\n", authority.Name, authority.ID)
			return nil
		},
	}
}

func resolveMasterKey(cfg config.Config) (string, error) {
	if cfg.MasterKey != "" {
		return cfg.MasterKey, nil
	}
	if cfg.MasterKeyPassphrase != "" && cfg.MasterKeySalt != "" {
		return crypto.DeriveMasterKey(cfg.MasterKeyPassphrase, cfg.MasterKeySalt, cfg.KDFIterations)
	}
	return "", fmt.Errorf("MASTER_KEY or MASTER_KEY_PASSPHRASE with MASTER_KEY_SALT is required")
}

// genMasterKeyCmd prints a fresh 256-bit master key in hex, or derives one
// from a passphrase and salt the same way the server does at boot.
func genMasterKeyCmd() *cobra.Command {
	var passphrase, salt string
	var iterations int
	cmd := &cobra.Command{
		Use:   "gen-master-key",
		Short: "Generate or derive a master key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if passphrase != "" {
				if salt == "" {
					generated, err := crypto.GenerateSalt(0)
					if err != nil {
						return err
					}
					salt = generated
					fmt.Printf("salt: %s\n", salt)
				}
				derived, err := crypto.DeriveMasterKey(passphrase, salt, iterations)
				if err != nil {
					return err
				}
				fmt.Printf("master key: %s\n", derived)
				return nil
			}
			key, err := crypto.GenerateSymmetricKey(256)
			if err != nil {
				return err
			}
			fmt.Printf("master key: %s\n", key)
			return nil
		},
	}
	cmd.Flags().StringVar(&passphrase, "passphrase", "", "derive from this passphrase instead of random generation")
	cmd.Flags().StringVar(&salt, "salt", "", "hex salt for derivation (generated when empty)")
	cmd.Flags().IntVar(&iterations, "iterations", 100000, "PBKDF2 iteration count")
	return cmd
}

// purgeAuditCmd applies the retention window to the audit ledger.
func purgeAuditCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge-audit",
		Short: "Delete audit entries older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			store, err := db.NewStore(cfg)
			if err != nil {
				return err
			}
			ctx := context.Background()
			cutoff := time.Now().UTC().Add(-cfg.AuditRetention())
			purged, err := store.Audit.PurgeOlderThan(ctx, cutoff)
			if err != nil {
				return err
			}
			fmt.Printf("purged %d audit entries older than %s\n", purged, cutoff.Format("2006-01-02"))

			// Purging must not break the links among surviving entries. The
			// oldest survivor anchors the check since its predecessor is gone.
			last, err := store.Audit.LastSeq(ctx)
			if err != nil {
				return err
			}
			oldest, err := oldestRemainingSeq(ctx, store, last)
			if err != nil {
				return err
			}
			if oldest == 0 || oldest >= last {
				return nil
			}
			if _, err := usecase.VerifyChain(ctx, store.Audit, oldest+1, last); err != nil {
				return fmt.Errorf("post-purge chain verification failed: %w", err)
			}
			fmt.Println("remaining chain intact")
			return nil
		},
	}
}

func oldestRemainingSeq(ctx context.Context, store *db.Store, last int64) (int64, error) {
	entries, err := store.Audit.ListRange(ctx, 1, last)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}
	return entries[0].Seq, nil
}
