package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/crucible-dev/crucible/internal/value"
)

// NewReplayCommand rebuilds the store from the journal and prints the
// resulting variables, as a way to verify what a fresh session would
// see.
func NewReplayCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "replay",
		Short: "Rebuild the store from the journal and summarize it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.Journal == "" {
				return NewExitError(ExitCommandError, "replay requires a journal (--journal or config)")
			}
			sess, err := NewSession(opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer sess.Close()

			vars := sess.Env.List()
			if sess.Out.Format == "json" {
				data := make([]map[string]any, len(vars))
				for i, v := range vars {
					data[i] = map[string]any{
						"name":   v.Name,
						"value":  value.Display(v.Value),
						"source": string(v.Source),
						"frozen": v.Frozen,
						"expr":   v.Expr,
					}
				}
				return sess.Out.Success(map[string]any{
					"variables": data,
					"seq":       sess.Env.Clock().Current(),
				})
			}

			lines := make([]string, 0, len(vars)+1)
			lines = append(lines, fmt.Sprintf("replayed %d variables (seq %d)",
				len(vars), sess.Env.Clock().Current()))
			for _, v := range vars {
				line := fmt.Sprintf("  %s = %s", v.Name, value.Display(v.Value))
				if v.Expr != "" {
					line += fmt.Sprintf("  (%s)", v.Expr)
				}
				if v.Frozen {
					line += "  [frozen]"
				}
				lines = append(lines, line)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), strings.Join(lines, "\n"))
			return err
		},
	}
}
