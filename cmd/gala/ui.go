package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"gala/internal/types"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	faintStyle  = lipgloss.NewStyle().Faint(true)
)

func money(v float64) string {
	return fmt.Sprintf("$%.0f", v)
}

// renderSummary formats a final plan for the terminal, one block per
// category in canonical order, degraded categories flagged inline.
func renderSummary(sum types.PlanSummary) string {
	var b strings.Builder

	state := okStyle.Render(string(sum.State))
	if sum.Degraded {
		state = warnStyle.Render(string(sum.State) + " (degraded)")
	}
	b.WriteString(titleStyle.Render("Plan "+types.IDString("session", sum.SessionID)) + "  " + state + "\n")
	b.WriteString(fmt.Sprintf("Budget: %s total, %s selected\n\n", money(sum.TotalBudget), money(sum.UsedBudget)))

	for _, cat := range types.Categories() {
		sel, ok := sum.Selections[cat]
		if !ok {
			continue
		}
		b.WriteString(headerStyle.Render(strings.ToUpper(string(cat))) +
			faintStyle.Render(fmt.Sprintf("  assigned %d", sel.Assigned)) + "\n")
		if sel.Best == nil {
			note := sel.Note
			if note == "" {
				note = "no viable option"
			}
			b.WriteString("  " + warnStyle.Render("✗ "+note) + "\n\n")
			continue
		}
		b.WriteString("  " + okStyle.Render("✓ "+sel.Best.Name) + candidateDetail(*sel.Best) + "\n")
		for _, alt := range sel.Alternatives {
			b.WriteString("    " + faintStyle.Render("· "+alt.Name+candidateDetail(alt)) + "\n")
		}
		b.WriteString("\n")
	}

	if len(sum.Notes) > 0 {
		b.WriteString(headerStyle.Render("NOTES") + "\n")
		for _, n := range sum.Notes {
			b.WriteString("  " + warnStyle.Render(n) + "\n")
		}
	}
	return b.String()
}

func candidateDetail(c types.Candidate) string {
	parts := []string{fmt.Sprintf("score %.2f", c.Score)}
	if c.Price > 0 {
		parts = append(parts, money(c.Price))
	}
	if c.Capacity > 0 {
		parts = append(parts, fmt.Sprintf("cap %d", c.Capacity))
	}
	if c.Location != "" {
		parts = append(parts, c.Location)
	}
	return faintStyle.Render("  (" + strings.Join(parts, ", ") + ")")
}

// renderTable right-pads cells into aligned columns.
func renderTable(rows [][]string) string {
	if len(rows) == 0 {
		return ""
	}
	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}
	var b strings.Builder
	for ri, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = cell + strings.Repeat(" ", widths[i]-len(cell))
		}
		b.WriteString(strings.TrimRight(strings.Join(cells, "  "), " ") + "\n")
		if ri == 0 {
			rules := make([]string, len(row))
			for i := range row {
				rules[i] = strings.Repeat("-", widths[i])
			}
			b.WriteString(strings.Join(rules, "  ") + "\n")
		}
	}
	return b.String()
}
