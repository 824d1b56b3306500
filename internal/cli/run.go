package cli

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRunCommand creates the batch script runner. Unlike the REPL,
// the first error aborts the run.
func NewRunCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run FILE",
		Short: "Execute a file of shell commands",
		Long: "Executes the commands in FILE line by line, same grammar as the\n" +
			"interactive shell. Blank lines and # comments are skipped; the\n" +
			"first failing line stops the run.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "opening script", err)
			}
			defer f.Close()

			sess, err := NewSession(opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer sess.Close()

			scanner := bufio.NewScanner(f)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			lineno := 0
			for scanner.Scan() {
				lineno++
				done, err := sess.ExecuteLine(scanner.Text())
				if err != nil {
					return WrapExitError(ExitFailure, fmt.Sprintf("%s:%d", args[0], lineno), err)
				}
				if done {
					break
				}
			}
			return scanner.Err()
		},
	}
}
