package reporter

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/openfroyo/sous/pkg/stores"
)

const timeLayout = "2006-01-02 15:04:05"

// RunsTable renders recorded runs, newest first as the store returns them.
func RunsTable(runs []*stores.Run) string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		duration := "-"
		if r.FinishedAt != nil {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		changed, review := "-", "-"
		if s, err := r.Summary(); err == nil {
			changed = fmt.Sprintf("%d/%d", s.FilesChanged, s.DependenciesChanged)
			review = fmt.Sprintf("%d", len(s.NeedsReview))
		}
		rows = append(rows, []string{
			r.ID,
			r.StartedAt.Local().Format(timeLayout),
			duration,
			string(r.Status),
			changed,
			review,
		})
	}
	return newTable().
		Headers("RUN", "STARTED", "DURATION", "STATUS", "FILES/DEPS", "REVIEW").
		Rows(rows...).
		String()
}

// EventsTable renders the events of one run in sequence order.
func EventsTable(events []*stores.Event) string {
	rows := make([][]string, 0, len(events))
	for _, e := range events {
		detail := ""
		if e.Detail != nil {
			detail = *e.Detail
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", e.Seq),
			string(e.Kind),
			e.Subject,
			e.Operation,
			detail,
		})
	}
	return newTable().
		Headers("#", "KIND", "SUBJECT", "OP", "DETAIL").
		Rows(rows...).
		String()
}

func newTable() *table.Table {
	header := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)
	return table.New().
		Border(lipgloss.RoundedBorder()).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})
}
