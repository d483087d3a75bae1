package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/gfolder/internal/auth"
)

func newLoginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authorize access to Google Drive",
		Long: `Authorize access to Google Drive.

Without --code, any stored authorization is cleared, a consent URL is printed,
and login waits until the authorization code is written into the "code" field
of the credential file. With --code, the given code is exchanged directly.`,
		Args: cobra.NoArgs,
		RunE: runLogin,
	}

	cmd.Flags().String("code", "", "authorization code obtained from the consent page")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored refresh token",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	logger := buildLogger(cmd.ErrOrStderr())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	store, _, a, err := newAuthority(resolvedCfg, logger)
	if err != nil {
		return err
	}

	logger.Info("login started", "credentials", store.Path())

	code, _ := cmd.Flags().GetString("code")
	if code != "" {
		if _, err := a.ObtainFromCode(ctx, code); err != nil {
			return err
		}
	} else {
		err := auth.Onboard(ctx, a, store, func(authURL string) {
			// Consent prompts must always be visible, even with --quiet.
			fmt.Fprintf(cmd.ErrOrStderr(), "To authorize, visit:\n\n  %s\n\n", authURL)
			fmt.Fprintf(cmd.ErrOrStderr(), "Then write the code into the \"code\" field of %s\n", store.Path())
		})
		if err != nil {
			return loginError(ctx, err)
		}
	}

	logger.Info("login successful", "credentials", store.Path())
	statusf(cmd, "Login successful.\n")

	return nil
}

func loginError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("login interrupted")
	}

	return err
}

func runLogout(cmd *cobra.Command, _ []string) error {
	logger := buildLogger(cmd.ErrOrStderr())

	store, _, _, err := newAuthority(resolvedCfg, logger)
	if err != nil {
		return err
	}

	if err := store.ClearAuthorization(); err != nil {
		return err
	}

	logger.Info("logout successful", "credentials", store.Path())
	statusf(cmd, "Logged out.\n")

	return nil
}
