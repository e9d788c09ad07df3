package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapgov/internal/version"
	"github.com/leapstack-labs/leapgov/pkg/core"
)

func newVersionTagCommand() *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "tag <version-id> <name>",
		Short: "Attach a named tag to a version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			tag, err := cmdCtx.Engine.Versions().CreateTag(cmd.Context(), version.CreateTagRequest{
				VersionID:   args[0],
				Name:        args[1],
				Description: description,
			})
			if err != nil {
				return err
			}
			r := cmdCtx.Renderer
			return r.Render(tag.ToMap(), func() error {
				r.Printf("Tagged version %s as %q\n", tag.VersionID, tag.TagName)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "Tag description")
	return cmd
}

func newVersionTagsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tags <version-id>",
		Short: "List the tags of a version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			tags, err := cmdCtx.Engine.Versions().ListTags(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			r := cmdCtx.Renderer
			return r.Render(map[string]any{"tags": toMaps(tags)}, func() error {
				rows := make([][]any, 0, len(tags))
				for _, t := range tags {
					rows = append(rows, []any{t.TagName, t.Description, t.CreatedBy, t.CreatedAt})
				}
				r.Table([]string{"TAG", "DESCRIPTION", "CREATED BY", "CREATED"}, rows)
				return nil
			})
		},
	}
}

func newVersionByTagCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "by-tag <type:id> <name>",
		Short: "Show the newest version of an entity carrying a tag",
		Args:  cobra.ExactArgs(2),
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

			v, err := cmdCtx.Engine.Versions().GetVersionByTag(cmd.Context(), ref, args[1])
			if err != nil {
				return err
			}
			if v == nil {
				return fmt.Errorf("%w: no version of %s tagged %q", core.ErrNotFound, ref, args[1])
			}
			return renderVersion(cmdCtx.Renderer, v)
		},
	}
}

// BranchOptions holds options for version branch.
type BranchOptions struct {
	Description string
	Base        string
	Default     bool
}

func newVersionBranchCommand() *cobra.Command {
	opts := &BranchOptions{}
	cmd := &cobra.Command{
		Use:   "branch <type:id> <name>",
		Short: "Create a branch of an entity",
		Long: `Create a named branch of an entity. The branch starts from --base, or
from the latest active trunk version when no base is given.`,
		Args: cobra.ExactArgs(2),
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

			branch, err := cmdCtx.Engine.Versions().CreateBranch(cmd.Context(), version.CreateBranchRequest{
				Ref:           ref,
				Name:          args[1],
				Description:   opts.Description,
				BaseVersionID: optionalString(opts.Base),
				IsDefault:     opts.Default,
			})
			if err != nil {
				return err
			}
			r := cmdCtx.Renderer
			return r.Render(branch.ToMap(), func() error {
				r.Printf("Created branch %s (%s) of %s\n", branch.Name, branch.ID, ref)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.Description, "description", "", "Branch description")
	cmd.Flags().StringVar(&opts.Base, "base", "", "Base version id (default: latest trunk version)")
	cmd.Flags().BoolVar(&opts.Default, "default", false, "Mark as the default branch")
	return cmd
}

func newVersionBranchesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "branches <type:id>",
		Short: "List the branches of an entity",
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

			branches, err := cmdCtx.Engine.Versions().GetBranches(cmd.Context(), ref)
			if err != nil {
				return err
			}
			r := cmdCtx.Renderer
			return r.Render(map[string]any{"branches": toMaps(branches)}, func() error {
				rows := make([][]any, 0, len(branches))
				for _, b := range branches {
					rows = append(rows, []any{b.ID, b.Name, b.BaseVersionID, b.IsDefault, b.IsMerged, b.CreatedAt})
				}
				r.Table([]string{"ID", "NAME", "BASE", "DEFAULT", "MERGED", "CREATED"}, rows)
				return nil
			})
		},
	}
}

func newVersionMergeCommand() *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   "merge <branch-id>",
		Short: "Merge a branch head into the trunk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			v, err := cmdCtx.Engine.Versions().MergeBranch(cmd.Context(), args[0], comment)
			if err != nil {
				return err
			}
			return renderVersion(cmdCtx.Renderer, v)
		},
	}
	cmd.Flags().StringVarP(&comment, "comment", "m", "", "Comment for the merge version")
	return cmd
}
