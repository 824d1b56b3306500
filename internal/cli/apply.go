package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/crucible-dev/crucible/internal/script"
)

// NewApplyCommand creates the declarative apply command. It loads a
// CUE document and forges all of its declarations in one transaction.
func NewApplyCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "apply DIR",
		Short: "Apply a CUE desired-state document",
		Long: "Loads the CUE package in DIR, stages every declared variable into a\n" +
			"single transaction, and forges it. Nothing is applied if any\n" +
			"declaration fails.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := script.LoadDir(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "loading document", err)
			}

			sess, err := NewSession(opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer sess.Close()

			rep, err := script.Apply(sess.Env, doc)
			if err != nil {
				return WrapExitError(ExitFailure, "apply", err)
			}

			text := fmt.Sprintf("applied %d variables (txn %s)", len(rep.Applied), rep.TxnID)
			if len(rep.Frozen) > 0 {
				text += fmt.Sprintf("\nfrozen: %s", strings.Join(rep.Frozen, ", "))
			}
			return sess.emit(text, rep)
		},
	}
}
