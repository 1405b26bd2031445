package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"dealer_coach_backend/internal/coaching/agent"
	"dealer_coach_backend/internal/coaching/domain"
	"dealer_coach_backend/internal/coaching/scoring"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

const dateLayout = "2006-01-02"

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newTable(w io.Writer, title string) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetTitle(title)
	tw.SetStyle(table.StyleLight)
	return tw
}

func renderPreview(w io.Writer, rows []domain.KPIRow) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "(no activity in the window)")
		return
	}
	tw := newTable(w, "KPI preview")
	tw.AppendHeader(table.Row{"Agent", "Region", "Tier", "Leads", "Deals", "Revenue", "Conv", "Rev trend", "Conv trend", "Risk"})
	for _, r := range rows {
		tw.AppendRow(table.Row{
			r.AgentID, r.Region, r.Tier,
			fmt.Sprintf("%.0f", r.Leads),
			fmt.Sprintf("%.0f", r.Deals),
			fmt.Sprintf("%.2f", r.Revenue),
			fmt.Sprintf("%.1f%%", r.Conversion*100),
			fmt.Sprintf("%+.1f%%", r.TrendRevenue*100),
			fmt.Sprintf("%+.1f%%", r.TrendConversion*100),
			fmt.Sprintf("%.2f", r.Risk),
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 10, Align: text.AlignRight},
	})
	tw.Render()
}

func renderRecommendations(w io.Writer, recs []domain.Recommendation) {
	tw := newTable(w, "Recommendations")
	tw.AppendHeader(table.Row{"#", "Action", "Impact", "Effort", "Feasibility", "Score"})
	for _, r := range recs {
		tw.AppendRow(table.Row{r.ID, r.Title, r.Impact, r.Effort, r.Feasibility, fmt.Sprintf("%.2f", r.Score)})
	}
	tw.Render()
	for _, r := range recs {
		if r.Explanation != "" {
			fmt.Fprintf(w, "%d. %s\n", r.ID, r.Explanation)
		}
	}
}

func renderSelection(w io.Writer, sel agent.Selection) {
	title := fmt.Sprintf("Targets (%s)", sel.Source)
	tw := newTable(w, title)
	tw.AppendHeader(table.Row{"Agent", "Reason"})
	for _, t := range sel.Targets {
		tw.AppendRow(table.Row{t.AgentID, t.Reason})
	}
	tw.Render()
	if sel.FallbackReason != "" {
		fmt.Fprintln(w, "Fallback:", sel.FallbackReason)
	}
}

func renderChampions(w io.Writer, champions []scoring.Champion) {
	tw := newTable(w, "Champions")
	tw.AppendHeader(table.Row{"Rank", "Agent", "Region", "Tier", "Points", "Revenue", "Grade"})
	for i, c := range champions {
		tw.AppendRow(table.Row{i + 1, c.AgentID, c.Region, c.Tier, fmt.Sprintf("%.0f", c.Points), fmt.Sprintf("%.2f", c.Revenue), c.Grade})
	}
	tw.Render()
}

func renderResults(w io.Writer, results []domain.DispatchResult) {
	tw := newTable(w, "Dispatch")
	tw.AppendHeader(table.Row{"Recipient", "Level", "Status", "Detail"})
	failed := 0
	for _, r := range results {
		status := "sent"
		if !r.Success {
			status = "failed"
			failed++
		}
		level := string(r.Level)
		if level == "" {
			level = "-"
		}
		tw.AppendRow(table.Row{r.Recipient, level, status, r.Detail})
	}
	tw.AppendFooter(table.Row{"", "", fmt.Sprintf("%d failed", failed), ""})
	tw.Render()
}
