package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go-bridge/internal/handlers"
	"go-bridge/internal/middleware"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pquerna/otp/totp"
	"github.com/spf13/cobra"
)

func main() {
	var (
		address    string
		secret     string
		ttl        time.Duration
		totpSecret string
		newTOTP    bool
	)
	cmd := &cobra.Command{
		Use:          "generate-jwt",
		Short:        "Mints a caller token for an address and prints the admin TOTP code",
		SilenceUsage: true,
		RunE: func(c *cobra.Command, _ []string) error {
			if newTOTP {
				key, err := totp.Generate(totp.GenerateOpts{Issuer: "go-bridge", AccountName: "admin"})
				if err != nil {
					return err
				}
				fmt.Println("Admin TOTP secret (auth.adminTotpSecret / ADMIN_TOTP_SECRET):")
				fmt.Println(key.Secret())
				fmt.Println("Provisioning URL:")
				fmt.Println(key.URL())
				return nil
			}

			if !common.IsHexAddress(address) {
				return fmt.Errorf("--address: invalid address %q", address)
			}
			if secret == "" {
				return errors.New("--secret or JWT_SECRET is required")
			}
			caller := common.HexToAddress(address)
			token, expiresAt, err := handlers.GenerateJWTToken([]byte(secret), caller, ttl)
			if err != nil {
				return err
			}

			fmt.Println("============================================================")
			fmt.Println("Bridge caller token")
			fmt.Println("============================================================")
			fmt.Printf("  Address: %s\n", caller.Hex())
			fmt.Printf("  Expires: %s\n", expiresAt.Format(time.RFC3339))
			fmt.Println()
			fmt.Println(token)
			fmt.Println()

			if totpSecret != "" {
				code, err := totp.GenerateCode(totpSecret, time.Now())
				if err != nil {
					return fmt.Errorf("generate TOTP code: %w", err)
				}
				fmt.Printf("%s: %s (valid for ~30 seconds)\n\n", middleware.TOTPHeader, code)
			}

			fmt.Println("Usage:")
			fmt.Printf("curl -H 'Authorization: Bearer %s' http://localhost:8080/api/bridge/status\n", token)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&address, "address", "", "caller address the token identifies")
	flags.StringVar(&secret, "secret", os.Getenv("JWT_SECRET"), "HMAC secret shared with bridged")
	flags.DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	flags.StringVar(&totpSecret, "totp-secret", os.Getenv("ADMIN_TOTP_SECRET"), "admin TOTP secret; prints the current code when set")
	flags.BoolVar(&newTOTP, "new-totp-secret", false, "generate a fresh admin TOTP secret and exit")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
