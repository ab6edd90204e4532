package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/arnavshah/carelink-api-go/pkg/auth"
	"github.com/arnavshah/carelink-api-go/pkg/config"
	"github.com/arnavshah/carelink-api-go/pkg/database"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "keygen",
	Short:         "Operator tooling for CareLink secrets",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	tokenUserID string
	tokenEmail  string
	tokenRole   string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a session token for a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		a := auth.New(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.BcryptCost)
		token, err := a.CreateToken(&database.User{
			Base:  database.Base{ID: tokenUserID},
			Email: tokenEmail,
			Role:  database.Role(strings.ToUpper(tokenRole)),
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

var (
	signFile   string
	signSecret string
)

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign a payout webhook payload (reads stdin without --file)",
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := signSecret
		if secret == "" {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			secret = cfg.Payout.WebhookSecret
		}
		if secret == "" {
			return fmt.Errorf("no webhook secret: pass --secret or set PAYOUT_WEBHOOK_SECRET")
		}

		var payload []byte
		var err error
		if signFile != "" {
			payload, err = os.ReadFile(signFile)
		} else {
			payload, err = io.ReadAll(cmd.InOrStdin())
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), auth.SignPayload(secret, payload))
		return nil
	},
}

var hashCmd = &cobra.Command{
	Use:   "hash-password <password>",
	Short: "Print the bcrypt hash of a password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		hash, err := auth.New(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.BcryptCost).HashPassword(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenUserID, "user-id", "", "user id to put in the token subject")
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "email claim")
	tokenCmd.Flags().StringVar(&tokenRole, "role", string(database.RoleAdmin), "role claim")
	_ = tokenCmd.MarkFlagRequired("user-id")

	signCmd.Flags().StringVar(&signFile, "file", "", "payload file")
	signCmd.Flags().StringVar(&signSecret, "secret", "", "webhook secret (defaults to configuration)")

	rootCmd.AddCommand(tokenCmd, signCmd, hashCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
