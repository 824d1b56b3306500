package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewGraphCommand creates the dependency graph export command.
func NewGraphCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "graph",
		Short: "Print the dependency graph as DOT",
		Long: "Rebuilds the store from the journal and prints its dependency graph\n" +
			"in Graphviz DOT form. Frozen variables are shaded; gated edges carry\n" +
			"their reaction policy as a label.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := NewSession(opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer sess.Close()

			dot := sess.Env.DumpGraph()
			if sess.Out.Format == "json" {
				return sess.Out.Success(map[string]any{"dot": dot})
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), dot)
			return err
		},
	}
}
