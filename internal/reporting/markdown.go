package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Data Coverage Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Window: %d days | Well-covered card: >= %d comps\n\n", r.WindowDays, r.MinCompsPerCard))

	// Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Cards | %d |\n", r.Summary.Cards))
	sb.WriteString(fmt.Sprintf("| Listings | %d |\n", r.Summary.Listings))
	sb.WriteString(fmt.Sprintf("| Comps | %d |\n", r.Summary.Comps))
	sb.WriteString(fmt.Sprintf("| Comps (last %dd) | %d |\n", r.WindowDays, r.Summary.CompsRecent))
	sb.WriteString(fmt.Sprintf("| Cards with >= %d comps (last %dd) | %d |\n", r.MinCompsPerCard, r.WindowDays, r.Summary.CardsWithMinComps))
	sb.WriteString(fmt.Sprintf("| Raw imports | %d |\n", r.Summary.RawImports))
	sb.WriteString("\n")

	// Checks
	sb.WriteString("## Coverage Checks\n\n")
	if len(r.Checks) == 0 {
		sb.WriteString("No coverage thresholds configured.\n\n")
		return sb.String()
	}
	sb.WriteString("| Check | Threshold | Actual | Status |\n")
	sb.WriteString("|-------|-----------|--------|--------|\n")
	for _, check := range r.Checks {
		status := "FAIL"
		if check.Pass {
			status = "PASS"
		}
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
			check.Name, check.Threshold, check.Actual, status))
	}
	sb.WriteString("\n")

	if r.AllChecksPassed {
		sb.WriteString("**All checks passed.**\n\n")
	} else {
		sb.WriteString("**Some checks failed.**\n\n")
	}
	return sb.String()
}
