package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sportscouncil/tournament-gateway/config"
	"github.com/sportscouncil/tournament-gateway/internal/auth"
	"github.com/sportscouncil/tournament-gateway/internal/logger"
	"github.com/sportscouncil/tournament-gateway/internal/store"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	userRole     string
	userPassword string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage accounts directly in the credential store",
}

var userCreateCmd = &cobra.Command{
	Use:   "create <username>",
	Short: "Create an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, err := auth.ParseRole(userRole)
		if err != nil {
			return err
		}
		plain := userPassword
		if plain == "" {
			if plain, err = passwordArg(cmd.InOrStdin(), nil); err != nil {
				return err
			}
		}

		return withStore(cmd.Context(), func(ctx context.Context, cfg *config.Config, repo store.Repository) error {
			hasher, err := auth.NewBcryptHasher(cfg.Password.Cost)
			if err != nil {
				return err
			}
			encoded, err := hasher.Hash(plain)
			if err != nil {
				return err
			}
			err = repo.Create(ctx, &auth.CredentialRecord{
				Username:     args[0],
				PasswordHash: encoded,
				Role:         role,
				CreatedAt:    time.Now().UTC(),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s)\n", args[0], role)
			return nil
		})
	},
}

var userDisableCmd = &cobra.Command{
	Use:   "disable <username>",
	Short: "Disable an account; its outstanding tokens stop working",
	Args:  cobra.ExactArgs(1),
	RunE:  setDisabled(true),
}

var userEnableCmd = &cobra.Command{
	Use:   "enable <username>",
	Short: "Re-enable an account",
	Args:  cobra.ExactArgs(1),
	RunE:  setDisabled(false),
}

var userShowCmd = &cobra.Command{
	Use:   "show <username>",
	Short: "Print an account without its password hash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, _ *config.Config, repo store.Repository) error {
			rec, err := repo.FindByUsername(ctx, args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(map[string]any{
				"username":   rec.Username,
				"role":       rec.Role,
				"is_admin":   rec.Role == auth.RoleAdmin,
				"disabled":   rec.Disabled,
				"created_at": rec.CreatedAt,
			}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		})
	},
}

func init() {
	userCreateCmd.Flags().StringVar(&userRole, "role", string(auth.RoleUser), "account role (user or admin)")
	userCreateCmd.Flags().StringVar(&userPassword, "password", "", "password; read from stdin when empty")

	userCmd.AddCommand(userCreateCmd, userDisableCmd, userEnableCmd, userShowCmd)
	rootCmd.AddCommand(userCmd)
}

func setDisabled(disabled bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, _ *config.Config, repo store.Repository) error {
			if err := repo.SetDisabled(ctx, args[0], disabled); err != nil {
				return err
			}
			state := "enabled"
			if disabled {
				state = "disabled"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", state, args[0])
			return nil
		})
	}
}

// withStore opens the configured repository for the duration of fn.
func withStore(parent context.Context, fn func(context.Context, *config.Config, store.Repository) error) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, 30*time.Second)
	defer cancel()

	cfg, err := config.LoadStore(envName)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Store.Driver == config.DriverMemory {
		return fmt.Errorf("store driver %q keeps no state between runs; choose an env backed by mongo or postgres", cfg.Store.Driver)
	}
	log, err := logger.New(cfg.Server.Mode, "warn")
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	repo, err := store.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := repo.Close(context.Background()); err != nil {
			log.Warn("failed to close credential store", zap.Error(err))
		}
	}()
	return fn(ctx, cfg, repo)
}
