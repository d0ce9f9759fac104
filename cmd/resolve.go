package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smartbots/docdispatch/internal/directory"
	"github.com/smartbots/docdispatch/internal/resolver"
)

func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <folder name>...",
		Short: "Show who receives the given case folders",
		Long: `Resolve case-folder names against the recipient workbook without sending
anything. For each name the recipient key, distribution, country and the To/Cc
lists are printed; names that cannot be resolved print the reason.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(configPath)
			if err != nil {
				return err
			}
			logger := newLogger(settings, false)

			dir, err := directory.Load(settings.Path.Local.Directory, logger)
			if err != nil {
				return err
			}

			failed := printCases(cmd.OutOrStdout(), resolver.New(dir, settings.Dispatch.CCGroup), args)
			if failed > 0 {
				return fmt.Errorf("%d of %d folder names could not be resolved", failed, len(args))
			}
			return nil
		},
	}
}

// printCases writes one block per folder name and returns how many failed.
func printCases(w io.Writer, r *resolver.Resolver, names []string) int {
	failed := 0
	for i, name := range names {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "Folder:       %s\n", name)

		c, err := r.Case(name)
		if c.Recipient != "" {
			fmt.Fprintf(w, "Recipient:    %s\n", c.Recipient)
		}
		if c.DistributionKey != "" {
			fmt.Fprintf(w, "Distribution: %s\n", c.DistributionKey)
		}
		if c.Country != "" {
			fmt.Fprintf(w, "Country:      %s\n", c.Country)
		}
		if len(c.To) > 0 {
			fmt.Fprintf(w, "To:           %s\n", strings.Join(c.To, ", "))
		}
		if len(c.CC) > 0 {
			fmt.Fprintf(w, "Cc:           %s\n", strings.Join(c.CC, ", "))
		}
		if err != nil {
			failed++
			fmt.Fprintf(w, "Error:        %v\n", err)
		}
	}
	return failed
}
