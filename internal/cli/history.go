package cli

import (
	"github.com/spf13/cobra"

	"github.com/crucible-dev/crucible/internal/intent"
)

// NewHistoryCommand creates the journal listing command.
func NewHistoryCommand(opts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded mutations",
		Long: "Prints the mutation journal in sequence order. Requires a journal\n" +
			"(--journal flag or the config file).",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := NewSession(opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer sess.Close()

			_, err = sess.Execute(&intent.Intent{Verb: intent.VerbHistory, N: limit})
			return err
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show at most N records (0 = all)")
	return cmd
}
