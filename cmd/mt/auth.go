package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/daviddao/mailtasks/internal/auth"
	"github.com/daviddao/mailtasks/internal/credential"
	"github.com/daviddao/mailtasks/internal/display"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage API keys and the Google login",
}

var authSetKeyCmd = &cobra.Command{
	Use:   "set-key NAME [VALUE]",
	Short: "Store an API key in the OS keyring",
	Long: `Store an API key in the OS keyring. NAME is one of:
  gemini_api_key, openai_api_key, todoist_api_key

The value is read from stdin when not given as an argument.`,
	Example: `  mt auth set-key gemini_api_key
  echo "$TODOIST_TOKEN" | mt auth set-key todoist_api_key`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if !credential.IsKnown(name) {
			return fmt.Errorf("unknown key %q (must be one of: %s)", name, strings.Join(credential.Names(), ", "))
		}
		var value string
		if len(args) == 2 {
			value = args[1]
		} else {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: ", name)
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("read value: %w", err)
			}
			value = line
		}
		value = strings.TrimSpace(value)
		if value == "" {
			return fmt.Errorf("empty value for %s", name)
		}
		if err := credential.Set(name, value); err != nil {
			return err
		}
		display.SuccessMsg("Stored %s", name)
		return nil
	},
}

var authDeleteKeyCmd = &cobra.Command{
	Use:   "delete-key NAME",
	Short: "Remove an API key from the OS keyring",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := credential.Delete(args[0]); err != nil {
			return err
		}
		display.SuccessMsg("Removed %s", args[0])
		return nil
	},
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authorize Gmail and Google Tasks access",
	Long: `Open the Google consent page for the OAuth client in credentials_path,
then paste the authorization code. The token is saved as token.json next
to the credentials file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		url, err := auth.AuthCodeURL(cfg.CredentialsPath)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Open this URL in your browser:\n\n  %s\n\nAuthorization code: ", url)

		code, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && code == "" {
			return fmt.Errorf("read code: %w", err)
		}
		if err := auth.ExchangeCode(cmd.Context(), cfg.CredentialsPath, strings.TrimSpace(code)); err != nil {
			return err
		}
		display.SuccessMsg("Saved token to %s", auth.TokenPath(cfg.CredentialsPath))
		return nil
	},
}

func init() {
	authCmd.AddCommand(authSetKeyCmd, authDeleteKeyCmd, authLoginCmd)
	rootCmd.AddCommand(authCmd)
}
