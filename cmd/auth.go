package cmd

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smartbots/docdispatch/internal/google"
)

func newAuthCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "auth [code]",
		Short: "Authorize docdispatch for the Gmail and Drive APIs",
		Long: `Run the OAuth consent flow for the api transport and Drive intake.

The consent URL is printed; open it, grant access and paste the returned code
(or pass it as the argument). The token is written to mail.config.api.token,
or to the system keyring when mail.config.api.use_keyring is set.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(configPath)
			if err != nil {
				return err
			}

			api := settings.Mail.Config.API
			conf, err := google.LoadOAuthConfig(api.Credentials, google.ScopesOrDefault(api.Scopes))
			if err != nil {
				return err
			}
			store := google.NewTokenStore(api.Token, api.UseKeyring)

			out := cmd.OutOrStdout()
			if google.HasToken(store) && !force && len(args) == 0 {
				fmt.Fprintln(out, "A token is already stored. Use --force to authorize again.")
				return nil
			}

			code := ""
			if len(args) == 1 {
				code = args[0]
			} else {
				fmt.Fprintf(out, "Open this URL in your browser and authorize docdispatch:\n\n%s\n\nPaste the authorization code: ", google.AuthCodeURL(conf))
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read authorization code: %w", err)
				}
				code = line
			}

			code = strings.TrimSpace(code)
			if code == "" {
				return fmt.Errorf("authorization code is empty")
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if err := google.Exchange(ctx, conf, store, code); err != nil {
				return err
			}
			fmt.Fprintln(out, "Authorization stored.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Authorize again even if a token is stored")
	return cmd
}
