package reporting

import (
	"fmt"
	"strings"
)

// RenderCSV renders the summary as metric,value rows.
func RenderCSV(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("metric,value\n")

	// Rows
	rows := []struct {
		name  string
		value int
	}{
		{"cards", r.Summary.Cards},
		{"listings", r.Summary.Listings},
		{"comps", r.Summary.Comps},
		{fmt.Sprintf("comps_last_%dd", r.WindowDays), r.Summary.CompsRecent},
		{fmt.Sprintf("cards_with_%d_comps_%dd", r.MinCompsPerCard, r.WindowDays), r.Summary.CardsWithMinComps},
		{"raw_imports", r.Summary.RawImports},
	}
	for _, row := range rows {
		sb.WriteString(fmt.Sprintf("%s,%d\n", row.name, row.value))
	}

	return sb.String()
}
