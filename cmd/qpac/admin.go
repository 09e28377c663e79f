package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jmerrifield20/qpac/internal/auth"
	"github.com/jmerrifield20/qpac/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ── hash ─────────────────────────────────────────────────────────────────────

var hashCmd = &cobra.Command{
	Use:   "hash <token>",
	Short: "Generate an argon2id PHC string for --token",
	Long: `Hash a token so the server never stores it in plain text:

  qpac serve --token "$(qpac hash my-secret)"

Clients keep sending the plain token as "Authorization: Bearer my-secret".`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		phc, err := auth.HashToken(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), phc)
		return nil
	},
}

// ── list / add / remove ──────────────────────────────────────────────────────

var (
	serverURL   string
	clientToken string
	timeout     time.Duration
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the whitelist of a running server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		hosts, err := c.List(cmd.Context())
		if err != nil {
			return err
		}
		for _, h := range hosts {
			fmt.Fprintln(cmd.OutOrStdout(), h)
		}
		return nil
	},
}

var addCmd = &cobra.Command{
	Use:   "add <host> [host] ...",
	Short: "Add hosts to the whitelist of a running server",
	Long: `Add one or more hosts. Hosts that are already listed are reported and
skipped; the command fails only on other errors.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		for _, host := range args {
			err := c.Add(cmd.Context(), host)
			switch {
			case errors.Is(err, client.ErrAlreadyExists):
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: already listed\n", host)
			case err != nil:
				return fmt.Errorf("add %s: %w", host, err)
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", host)
			}
		}
		return nil
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove <host> [host] ...",
	Short: "Remove hosts from the whitelist of a running server",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		for _, host := range args {
			err := c.Remove(cmd.Context(), host)
			switch {
			case errors.Is(err, client.ErrNotFound):
				fmt.Fprintf(cmd.ErrOrStderr(), "%s: not listed\n", host)
			case err != nil:
				return fmt.Errorf("remove %s: %w", host, err)
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", host)
			}
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{listCmd, addCmd, removeCmd} {
		c.Flags().StringVar(&serverURL, "server", "", "qpac server URL (default http://localhost:8080, env QPAC_SERVER)")
		c.Flags().StringVar(&clientToken, "token", "", "bearer token (env QPAC_CLIENT_TOKEN)")
		c.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
	}
}

func newClient() (*client.Client, error) {
	base := serverURL
	if base == "" {
		base = viper.GetString("server")
	}
	if base == "" {
		base = "http://localhost:8080"
	}
	token := clientToken
	if token == "" {
		token = viper.GetString("client_token")
	}
	return client.New(base,
		client.WithHTTPClient(&http.Client{Timeout: timeout}),
		client.WithBearerToken(token),
	)
}
