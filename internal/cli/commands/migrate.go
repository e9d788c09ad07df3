package commands

import (
	"github.com/spf13/cobra"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Long: `Apply pending schema migrations to the state database.

Migrations also run automatically on startup unless storage.auto_migrate
is false.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			eng := cmdCtx.Engine
			if err := eng.Migrate(cmd.Context()); err != nil {
				return err
			}
			n, err := eng.MigrationVersion(cmd.Context())
			if err != nil {
				return err
			}
			r := cmdCtx.Renderer
			return r.Render(map[string]any{"schema_version": n}, func() error {
				r.Printf("State database at schema version %d\n", n)
				return nil
			})
		},
	}
}
