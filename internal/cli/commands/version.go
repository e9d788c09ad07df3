package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapgov/internal/cli/output"
	"github.com/leapstack-labs/leapgov/internal/version"
	"github.com/leapstack-labs/leapgov/pkg/core"
)

// NewVersionCommand creates the version command group.
func NewVersionCommand(buildVersion string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Create, read and navigate entity versions",
		Long: `Manage the version history of governed entities.

Entities are addressed as type:id (for example document:42). Each write
creates the next version number on the trunk or on a named branch; versions
are stored as full snapshots or as deltas against their parent.`,
	}

	cmd.AddCommand(
		newVersionInfoCommand(buildVersion),
		newVersionCreateCommand(),
		newVersionGetCommand(),
		newVersionHistoryCommand(),
		newVersionLatestCommand(),
		newVersionReconstructCommand(),
		newVersionArchiveCommand(),
		newVersionTagCommand(),
		newVersionTagsCommand(),
		newVersionByTagCommand(),
		newVersionBranchCommand(),
		newVersionBranchesCommand(),
		newVersionMergeCommand(),
		newVersionAtCommand(),
		newVersionCompareCommand(),
		newVersionSearchCommand(),
		newVersionStatsCommand(),
	)
	return cmd
}

func newVersionInfoCommand(buildVersion string) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show leapgov build information",
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "leapgov v%s\n", buildVersion)
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Entity version and lineage engine")
		},
	}
}

// VersionCreateOptions holds options for version create.
type VersionCreateOptions struct {
	Data     string
	Metadata string
	Branch   string
	Comment  string
	NoDelta  bool
}

func newVersionCreateCommand() *cobra.Command {
	opts := &VersionCreateOptions{}
	cmd := &cobra.Command{
		Use:   "create <type:id>",
		Short: "Store a new version of an entity",
		Example: `  # Inline JSON
  leapgov version create document:42 --data '{"title": "Q3 report"}'

  # From a file (JSON or YAML), on a branch
  leapgov version create document:42 --data @doc.yaml --branch <branch-id>

  # From stdin
  cat doc.json | leapgov version create document:42 --data @-`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersionCreate(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Data, "data", "d", "", "Entity data as JSON/YAML, or @file (@- for stdin)")
	cmd.Flags().StringVar(&opts.Metadata, "metadata", "", "Version metadata as JSON/YAML, or @file")
	cmd.Flags().StringVarP(&opts.Branch, "branch", "b", "", "Branch id (default: trunk)")
	cmd.Flags().StringVarP(&opts.Comment, "comment", "m", "", "Version comment")
	cmd.Flags().BoolVar(&opts.NoDelta, "no-delta", false, "Always store a full snapshot")
	_ = cmd.MarkFlagRequired("data")

	return cmd
}

func runVersionCreate(cmd *cobra.Command, arg string, opts *VersionCreateOptions) error {
	ref, err := parseRef(arg)
	if err != nil {
		return err
	}
	data, err := readDocument(cmd, opts.Data)
	if err != nil {
		return err
	}
	metadata, err := readDocument(cmd, opts.Metadata)
	if err != nil {
		return err
	}

	cmdCtx, cleanup, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	useDelta := !opts.NoDelta
	v, err := cmdCtx.Engine.Versions().CreateVersion(cmd.Context(), version.CreateVersionRequest{
		EntityType: ref.Type,
		EntityID:   ref.ID,
		Data:       data,
		BranchID:   opts.Branch,
		Comment:    opts.Comment,
		Metadata:   metadata,
		UseDelta:   &useDelta,
	})
	if err != nil {
		return err
	}
	return renderVersion(cmdCtx.Renderer, v)
}

func newVersionGetCommand() *cobra.Command {
	var (
		number int
		branch string
	)
	cmd := &cobra.Command{
		Use:   "get <version-id> | get <type:id> --number N",
		Short: "Show one version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			store := cmdCtx.Engine.Versions()
			var v *core.Version
			if cmd.Flags().Changed("number") {
				ref, err := parseRef(args[0])
				if err != nil {
					return err
				}
				v, err = store.GetVersionByNumber(cmd.Context(), ref, branch, number)
				if err != nil {
					return err
				}
			} else {
				v, err = store.GetVersion(cmd.Context(), args[0])
				if err != nil {
					return err
				}
			}
			if v == nil {
				return fmt.Errorf("%w: version %s", core.ErrNotFound, args[0])
			}
			return renderVersion(cmdCtx.Renderer, v)
		},
	}
	cmd.Flags().IntVarP(&number, "number", "n", 0, "Version number (argument is then type:id)")
	cmd.Flags().StringVarP(&branch, "branch", "b", "", "Branch id for --number")
	return cmd
}

func newVersionHistoryCommand() *cobra.Command {
	req := version.HistoryRequest{}
	cmd := &cobra.Command{
		Use:   "history <type:id>",
		Short: "List the versions of an entity, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args[0])
			if err != nil {
				return err
			}
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			req.Ref = ref
			page, err := cmdCtx.Engine.Versions().GetVersionHistory(cmd.Context(), req)
			if err != nil {
				return err
			}
			return renderPage(cmdCtx.Renderer, page)
		},
	}
	cmd.Flags().StringVarP(&req.BranchID, "branch", "b", "", "Branch id (default: trunk)")
	cmd.Flags().BoolVar(&req.IncludeArchived, "include-archived", false, "Include archived versions")
	cmd.Flags().IntVar(&req.Limit, "limit", version.DefaultHistoryLimit, "Maximum number of versions")
	cmd.Flags().IntVar(&req.Offset, "offset", 0, "Number of versions to skip")
	return cmd
}

func newVersionLatestCommand() *cobra.Command {
	var branch string
	cmd := &cobra.Command{
		Use:   "latest <type:id>",
		Short: "Show the latest active version of an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ref, err := parseRef(args[0])
			if err != nil {
				return err
			}
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			v, err := cmdCtx.Engine.Versions().GetLatestVersion(cmd.Context(), ref, branch)
			if err != nil {
				return err
			}
			if v == nil {
				return fmt.Errorf("%w: no active version of %s", core.ErrNotFound, ref)
			}
			return renderVersion(cmdCtx.Renderer, v)
		},
	}
	cmd.Flags().StringVarP(&branch, "branch", "b", "", "Branch id (default: trunk)")
	return cmd
}

func newVersionReconstructCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reconstruct <version-id>",
		Short: "Print the full data of a version",
		Long: `Rebuild the complete entity data of a version by replaying its delta
chain from the nearest snapshot. Integrity problems (missing parents,
checksum mismatches) are reported as errors.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			store := cmdCtx.Engine.Versions()
			v, err := store.GetVersion(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if v == nil {
				return fmt.Errorf("%w: version %s", core.ErrNotFound, args[0])
			}
			data, err := store.ReconstructVersionData(cmd.Context(), v)
			if err != nil {
				return err
			}

			r := cmdCtx.Renderer
			if r.Format() == output.FormatYAML {
				return r.YAML(data)
			}
			return r.JSON(data)
		},
	}
}

func newVersionArchiveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "archive <version-id>",
		Short: "Archive a version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			archived, err := cmdCtx.Engine.Versions().ArchiveVersion(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			r := cmdCtx.Renderer
			return r.Render(map[string]any{"version_id": args[0], "archived": archived}, func() error {
				if archived {
					r.Printf("Archived version %s\n", args[0])
				} else {
					r.Printf("Version %s is not active; nothing archived\n", args[0])
				}
				return nil
			})
		},
	}
}

// Rendering helpers

func renderVersion(r *output.Renderer, v *core.Version) error {
	return r.Render(v.ToMap(), func() error {
		pairs := [][2]any{
			{"ID", v.ID},
			{"Entity", v.Ref()},
			{"Number", v.VersionNumber},
			{"Type", v.VersionType},
			{"Status", v.Status},
			{"Branch", branchLabel(v.BranchID)},
			{"Parent", v.ParentVersionID},
			{"Size", output.Bytes(int64(v.Size))},
			{"Checksum", v.Checksum},
			{"Comment", v.Comment},
			{"Created By", v.CreatedBy},
			{"Created At", v.CreatedAt},
		}
		if v.TenantID != "" {
			pairs = append(pairs, [2]any{"Tenant", v.TenantID})
		}
		r.KeyValues("Version", pairs)
		return nil
	})
}

func renderVersions(r *output.Renderer, versions []*core.Version) {
	rows := make([][]any, 0, len(versions))
	for _, v := range versions {
		rows = append(rows, []any{
			v.ID, v.Ref(), v.VersionNumber, v.VersionType, v.Status,
			branchLabel(v.BranchID), output.Bytes(int64(v.Size)), v.CreatedAt, v.Comment,
		})
	}
	r.Table([]string{"ID", "ENTITY", "NUMBER", "TYPE", "STATUS", "BRANCH", "SIZE", "CREATED", "COMMENT"}, rows)
}

func renderPage(r *output.Renderer, page *version.Page) error {
	return r.Render(page.ToMap(), func() error {
		renderVersions(r, page.Versions)
		r.Printf("Showing %d of %s (offset %d)\n", len(page.Versions), output.Count(page.Total), page.Offset)
		return nil
	})
}

func branchLabel(id string) string {
	if id == "" {
		return "trunk"
	}
	return id
}
