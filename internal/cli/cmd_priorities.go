package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/okr/internal/db"
	"github.com/randalmurphal/okr/internal/engine"
	"github.com/randalmurphal/okr/internal/snapshot"
)

type priorityView struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	Priority      string  `json:"priority"`
	PriorityScore float64 `json:"priority_score"`
	Status        string  `json:"status"`
	KRID          string  `json:"kr_id,omitempty"`
	KRTitle       string  `json:"kr_title,omitempty"`
	KRRisk        float64 `json:"kr_risk"`
	DueDate       *string `json:"due_date"`
	Blocking      bool    `json:"blocking"`
}

func toPriorityView(p db.PriorityTask) priorityView {
	view := priorityView{
		ID:            p.ID,
		Title:         p.Title,
		Priority:      p.Priority,
		PriorityScore: p.PriorityScore,
		Status:        p.Status,
		KRID:          p.KRID,
		KRTitle:       p.KRTitle,
		KRRisk:        p.KRRisk,
		Blocking:      p.Blocking,
	}
	if p.DueDate != nil {
		due := snapshot.FormatTime(*p.DueDate)
		view.DueDate = &due
	}
	return view
}

// newPrioritiesCmd creates the priorities command
func newPrioritiesCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "priorities <user>",
		Short: "List a user's highest priority open tasks",
		Long: `List not-done tasks by stored priority score, highest first.

Scores are those written by the last cascade or recompute. A limit of 0
uses snapshot.top_priorities from the config.

Examples:
  okr priorities u1
  okr priorities u1 --limit 3 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := args[0]
			out := cmd.OutOrStdout()
			return withEngine(cmd, func(ctx context.Context, e *engine.Engine) error {
				tasks, err := e.Priorities(ctx, userID, limit)
				if err != nil {
					return err
				}

				views := make([]priorityView, 0, len(tasks))
				for _, t := range tasks {
					views = append(views, toPriorityView(t))
				}
				if jsonOut {
					return writeJSON(out, views)
				}
				if len(views) == 0 {
					_, _ = fmt.Fprintln(out, "No open tasks.")
					return nil
				}

				color := useColor(out)
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				_, _ = fmt.Fprintln(w, "ID\tSCORE\tPRIORITY\tSTATUS\tKR RISK\tDUE\tTITLE")
				for _, t := range views {
					risk := "-"
					if t.KRID != "" {
						risk = formatRisk(t.KRRisk, color)
					}
					due := "-"
					if t.DueDate != nil {
						due = *t.DueDate
					}
					title := t.Title
					if t.Blocking {
						title += " " + dim("[blocking]", color)
					}
					_, _ = fmt.Fprintf(w, "%s\t%.2f\t%s\t%s\t%s\t%s\t%s\n",
						t.ID, t.PriorityScore, t.Priority, t.Status, risk, due, title)
				}
				return w.Flush()
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "maximum tasks to list (0 uses the config)")

	return cmd
}
