package cli

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewReplCommand creates the interactive shell command.
func NewReplCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive shell",
		Long: "Reads commands from stdin, one per line, and executes them against\n" +
			"the variable store. Run 'help' inside the shell for the grammar.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := NewSession(opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer sess.Close()

			interactive := isTerminal(cmd.InOrStdin())
			scanner := bufio.NewScanner(cmd.InOrStdin())
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for {
				if interactive {
					fmt.Fprint(cmd.OutOrStdout(), "> ")
				}
				if !scanner.Scan() {
					break
				}
				done, err := sess.ExecuteLine(scanner.Text())
				if err != nil {
					// Errors in the shell are reported, not fatal.
					sess.Out.Error(errorCode(err), err.Error(), nil)
				}
				if done {
					break
				}
			}
			return scanner.Err()
		},
	}
}

func isTerminal(r any) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
