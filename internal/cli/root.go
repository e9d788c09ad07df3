// Package cli provides the command-line interface for leapgov.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapgov/internal/cli/commands"
	"github.com/leapstack-labs/leapgov/internal/cli/config"
	"github.com/leapstack-labs/leapgov/pkg/core"
)

var cfgFile string

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "leapgov",
		Short: "leapgov - entity version and lineage engine",
		Long: `leapgov keeps a delta-compressed version history of governed entities
and records the lineage between them.

It answers time-travel and comparison queries over versions, walks the
lineage graph upstream and downstream, and assesses the impact of changing
an entity.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Skip config loading for help and completion commands
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			// Load configuration with CLI flags
			cfg, err := config.LoadConfig(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			logger := config.NewLogger(cfg, cmd.ErrOrStderr())
			ctx := config.WithConfig(cmd.Context(), cfg)
			ctx = config.WithLogger(ctx, logger)
			ctx = core.WithScope(ctx, core.Scope{TenantID: cfg.Tenant, Actor: cfg.Actor})
			cmd.SetContext(ctx)

			if configFile := config.GetConfigFileUsed(); configFile != "" {
				logger.Debug("using config file", "path", configFile)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(`{{.Name}} {{.Version}}
commit %s, built %s
`, GitCommit, BuildDate))

	// Global persistent flags
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ./leapgov.yaml)")
	flags.String("driver", "", "State database driver (sqlite|postgres)")
	flags.String("dsn", "", "State database path or connection URL")
	flags.String("lineage-backend", "", "Lineage store (sql|badger)")
	flags.String("badger-path", "", "Directory of the badger lineage store")
	flags.String("tenant", "", "Tenant scope for every operation")
	flags.String("actor", "", "Actor recorded as creator")
	flags.StringP("output", "o", "", "Output format (table|json|yaml)")
	flags.BoolP("verbose", "v", false, "Verbose output")
	flags.String("log-level", "", "Log level (debug|info|warn|error)")
	flags.String("log-format", "", "Log format (text|json)")

	// Register completions for enum flags
	enum := func(name string, values ...string) {
		_ = rootCmd.RegisterFlagCompletionFunc(name, func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
			return values, cobra.ShellCompDirectiveNoFileComp
		})
	}
	enum("output", "table", "json", "yaml")
	enum("driver", "sqlite", "postgres")
	enum("lineage-backend", "sql", "badger")
	enum("log-level", "debug", "info", "warn", "error")
	enum("log-format", "text", "json")

	// Add subcommands
	rootCmd.AddCommand(commands.NewMigrateCommand())
	rootCmd.AddCommand(commands.NewVersionCommand(Version))
	rootCmd.AddCommand(commands.NewLineageCommand())
	rootCmd.AddCommand(commands.NewImpactCommand())
	rootCmd.AddCommand(commands.NewRelationshipsCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// Execute runs the root command. Cancelling ctx aborts in-flight work.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for leapgov.

To load completions:

Bash:
  $ source <(leapgov completion bash)

Zsh:
  $ leapgov completion zsh > "${fpath[1]}/_leapgov"

Fish:
  $ leapgov completion fish | source

PowerShell:
  PS> leapgov completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
	return cmd
}
