package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jwalitptl/carebook-api/internal/config"
	"github.com/jwalitptl/carebook-api/internal/model"
	"github.com/jwalitptl/carebook-api/internal/repository/postgres"
	"github.com/jwalitptl/carebook-api/pkg/auth"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "carebook-api",
		Short: "Appointment scheduling API of the patient portal",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			usersFile, _ := cmd.Flags().GetString("users")

			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			return runServer(cfg, usersFile)
		},
	}
	cmd.Flags().String("users", "", "JSON file of users to preload when database.driver is memory")
	return cmd
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}

			db, err := postgres.NewDB(cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			count, err := postgres.NewMigrator(db).Up(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			log.Info().Int("applied", count).Msg("migrations complete")
			return nil
		},
	}
}

// tokenCmd issues a signed access token for local testing. Tokens are
// normally issued by the portal's identity service.
func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			rawID, _ := cmd.Flags().GetString("user")
			rawRole, _ := cmd.Flags().GetString("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			id, err := uuid.Parse(rawID)
			if err != nil {
				return fmt.Errorf("--user must be a UUID: %w", err)
			}
			role := model.Role(rawRole)
			if !role.Valid() {
				return fmt.Errorf("unknown role %q", rawRole)
			}

			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}

			tokens := auth.NewJWTService(auth.JWTConfig{Secret: []byte(cfg.JWT.Secret), Issuer: cfg.JWT.Issuer})
			token, err := tokens.GenerateAccessToken(model.Actor{ID: id, Role: role}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("user", "", "user id the token is issued to")
	cmd.Flags().String("role", string(model.RolePatient), "patient, doctor, nurse or admin")
	cmd.Flags().Duration("ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func loadUsers(path string) ([]*model.User, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read users file: %w", err)
	}
	var users []*model.User
	if err := json.Unmarshal(raw, &users); err != nil {
		return nil, fmt.Errorf("failed to parse users file: %w", err)
	}
	return users, nil
}

func withTimeout(d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d)
}
