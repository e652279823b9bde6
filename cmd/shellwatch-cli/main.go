package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rmacdonaldsmith/shellwatch/pkg/httpclient"
)

var (
	// Global flags
	serverURL string
	clientID  string
	adminKey  string
	token     string
	timeout   time.Duration

	// Global client instance
	client *httpclient.Client
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "shellwatch-cli",
		Short: "shellwatch HTTP API command line interface",
		Long: `shellwatch-cli is a command line interface for the shellwatch HTTP API.
It lists topics, streams shell event records and drives the admin API.`,
		PersistentPreRunE: initializeClient,
		SilenceUsage:      true,
	}

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://127.0.0.1:8080", "shellwatch server URL")
	rootCmd.PersistentFlags().StringVar(&clientID, "client-id", "shellwatch-cli", "Client ID presented at login")
	rootCmd.PersistentFlags().StringVar(&adminKey, "admin-key", os.Getenv("SHELLWATCH_ADMIN_KEY"), "Admin key exchanged for an admin token")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("SHELLWATCH_TOKEN"), "JWT token (if already authenticated)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")

	rootCmd.AddCommand(newAuthCommand())
	rootCmd.AddCommand(newHealthCommand())
	rootCmd.AddCommand(newTopicsCommand())
	rootCmd.AddCommand(newStreamCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newAdminCommand())

	return rootCmd
}

// initializeClient sets up the HTTP client with global configuration
func initializeClient(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "help" || cmd.Parent() == nil {
		return nil
	}

	var err error
	client, err = httpclient.NewClient(httpclient.Config{
		ServerURL: serverURL,
		ClientID:  clientID,
		AdminKey:  adminKey,
		Timeout:   timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	if token != "" {
		client.SetToken(token)
	}
	return nil
}

// requireAuthentication makes sure the client holds a token, logging in
// with the admin key when one was given
func requireAuthentication(ctx context.Context) error {
	if client == nil {
		return fmt.Errorf("client not initialized")
	}
	if client.IsAuthenticated() {
		return nil
	}
	if adminKey == "" {
		return fmt.Errorf("not authenticated - run 'shellwatch-cli auth --admin-key KEY' first or provide --token")
	}
	if _, err := client.Authenticate(ctx); err != nil {
		return err
	}
	return nil
}
