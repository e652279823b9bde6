package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newAuthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authenticate with the shellwatch server",
		Long: `Authenticate with the shellwatch server using your client ID.
With --admin-key the returned token grants access to the admin commands.`,
		RunE: runAuth,
	}

	return cmd
}

func runAuth(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Authenticating with server %s as client %s...\n", serverURL, clientID)

	resp, err := client.Authenticate(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "✅ Authentication successful!\n")
	if resp.IsAdmin {
		fmt.Fprintf(out, "🔑 Admin access granted\n")
	}
	fmt.Fprintf(out, "Token: %s\n", resp.Token)
	fmt.Fprintf(out, "Expires: %s\n", resp.ExpiresAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(out, "\nYou can now save this token for future use:\n")
	fmt.Fprintf(out, "  export SHELLWATCH_TOKEN=\"%s\"\n", resp.Token)
	fmt.Fprintf(out, "  shellwatch-cli admin stats\n")

	return nil
}
