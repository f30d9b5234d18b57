package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/okr/internal/db"
	"github.com/randalmurphal/okr/internal/engine"
)

type riskView struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	ObjectiveID    string   `json:"objective_id"`
	ObjectiveTitle string   `json:"objective_title"`
	CycleID        string   `json:"cycle_id,omitempty"`
	Progress       float64  `json:"progress"`
	RiskScore      float64  `json:"risk_score"`
	Velocity       *float64 `json:"velocity"`
	Band           string   `json:"band"`
}

func toRiskView(r db.RiskyKeyResult) riskView {
	return riskView{
		ID:             r.KeyResult.ID,
		Title:          r.KeyResult.Title,
		ObjectiveID:    r.KeyResult.ObjectiveID,
		ObjectiveTitle: r.ObjectiveTitle,
		CycleID:        r.CycleID,
		Progress:       r.KeyResult.Progress,
		RiskScore:      r.KeyResult.Risk,
		Velocity:       r.KeyResult.Velocity,
		Band:           riskBand(r.KeyResult.Risk),
	}
}

// newRisksCmd creates the risks command
func newRisksCmd() *cobra.Command {
	var f db.RiskFilter

	cmd := &cobra.Command{
		Use:   "risks <user>",
		Short: "List a user's key results at or above a risk threshold",
		Long: `List key results by stored risk score, riskiest first.

By default only key results of active objectives in active cycles (or in
no cycle) are listed. --include-closed lifts that scope.

Examples:
  okr risks u1 --threshold 0.5
  okr risks u1 --objective o1
  okr risks u1 --cycle q3 --include-closed --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f.UserID = args[0]
			out := cmd.OutOrStdout()
			return withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				risky, err := e.Risks(ctx, f)
				if err != nil {
					return err
				}

				views := make([]riskView, 0, len(risky))
				for _, r := range risky {
					views = append(views, toRiskView(r))
				}
				if jsonOut {
					return writeJSON(out, views)
				}
				if len(views) == 0 {
					_, _ = fmt.Fprintln(out, "No key results at risk.")
					return nil
				}

				color := useColor(out)
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				_, _ = fmt.Fprintln(w, "ID\tRISK\tPROGRESS\tVELOCITY\tOBJECTIVE\tTITLE")
				for _, r := range views {
					_, _ = fmt.Fprintf(w, "%s\t%s\t%.0f%%\t%s\t%s\t%s\n",
						r.ID, formatRisk(r.RiskScore, color), r.Progress*100,
						formatVelocity(r.Velocity, color), r.ObjectiveTitle, r.Title)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().Float64Var(&f.Threshold, "threshold", 0, "minimum risk score, inclusive")
	cmd.Flags().StringVar(&f.ObjectiveID, "objective", "", "only this objective's key results")
	cmd.Flags().StringVar(&f.CycleID, "cycle", "", "only key results in this cycle")
	cmd.Flags().BoolVar(&f.IncludeClosed, "include-closed", false, "include closed cycles and inactive objectives")

	return cmd
}
