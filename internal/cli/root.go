package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands, merged with the
// config file in PersistentPreRunE (flags win).
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string // config file path
	Journal string // journal database path, "" disables persistence
	Quota   int    // propagation step quota, 0 keeps the default
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the crucible CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "crucible",
		Short: "Crucible - reactive variable environment",
		Long: "A reactive variable shell: values linked by data-flow dependencies,\n" +
			"with transactional staging (craft/temper/anneal/forge/smelt).",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			explicit := cmd.Flags().Changed("config")
			path := opts.Config
			if path == "" {
				path = DefaultConfigFile
			}
			cfg, err := LoadConfig(path, explicit)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("journal") && cfg.Journal != "" {
				opts.Journal = cfg.Journal
			}
			if !cmd.Flags().Changed("quota") && cfg.Quota > 0 {
				opts.Quota = cfg.Quota
			}
			if !cmd.Flags().Changed("format") && cfg.Format != "" {
				opts.Format = cfg.Format
			}
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "config file (default .crucible.yaml)")
	cmd.PersistentFlags().StringVar(&opts.Journal, "journal", "", "mutation journal database path")
	cmd.PersistentFlags().IntVar(&opts.Quota, "quota", 0, "propagation step quota")

	cmd.AddCommand(NewReplCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewApplyCommand(opts))
	cmd.AddCommand(NewGraphCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
