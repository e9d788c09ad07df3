package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapgov/internal/cli/output"
	"github.com/leapstack-labs/leapgov/internal/impact"
)

// NewImpactCommand creates the impact command.
func NewImpactCommand() *cobra.Command {
	var depth int
	cmd := &cobra.Command{
		Use:   "impact <type:id>",
		Short: "Assess the impact of changing an entity",
		Long: `Walk the lineage graph up and down from an entity, classify critical
dependents and assign a risk level (LOW, MEDIUM, HIGH, CRITICAL) with
recommendations.`,
		Example: `  leapgov impact dataset:orders
  leapgov impact dataset:orders --depth 3 -o json`,
		Args: cobra.ExactArgs(1),
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

			report, err := cmdCtx.Engine.Impact().AnalyzeImpact(cmd.Context(), ref, depth)
			if err != nil {
				return err
			}
			r := cmdCtx.Renderer
			return r.Render(report.ToMap(), func() error {
				renderImpact(r, report)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 0, "Maximum depth (0 = configured default)")
	return cmd
}

func renderImpact(r *output.Renderer, report *impact.Report) {
	r.KeyValues("Impact of "+report.Entity.String(), [][2]any{
		{"Risk Level", report.RiskLevel},
		{"Downstream", len(report.Downstream)},
		{"Upstream", len(report.Upstream)},
		{"Critical", len(report.CriticalDependencies)},
		{"Depth Reached", report.MaxDepthReached},
		{"Risk Factors", strings.Join(report.RiskFactors, "; ")},
	})

	rows := make([][]any, 0, len(report.Downstream))
	for _, e := range report.Downstream {
		rows = append(rows, []any{e.Entity, e.Depth, e.RelationshipType, e.CriticalReason})
	}
	r.Println("Downstream:")
	r.Table([]string{"ENTITY", "DEPTH", "RELATIONSHIP", "CRITICAL"}, rows)

	r.Println("Recommendations:")
	for _, rec := range report.Recommendations {
		r.Printf("  - %s\n", rec)
	}
}
