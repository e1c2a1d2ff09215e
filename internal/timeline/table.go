package timeline

import (
	"fmt"
	"strings"
)

// FormatTable renders a summary table of the entries at the given timeline
// indices, with columns index | datetime | images | id and a trailing
// image-count total row. The result goes to the per-run textual report.
func FormatTable(entries []Entry, indices []int) string {
	headers := []string{"index", "datetime", "images", "id"}
	rows := make([][]string, 0, len(indices))
	total := 0
	for _, idx := range indices {
		e := entries[idx]
		rows = append(rows, []string{
			fmt.Sprintf("%d", idx),
			e.Datetime.Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%d", e.ImageCount()),
			e.ID,
		})
		total += e.ImageCount()
	}

	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var b strings.Builder
	writeRow := func(cells []string) {
		padded := make([]string, len(cells))
		for i, cell := range cells {
			padded[i] = cell + strings.Repeat(" ", widths[i]-len(cell))
		}
		b.WriteString(strings.TrimRight(strings.Join(padded, "  |  "), " "))
		b.WriteByte('\n')
	}

	writeRow(headers)
	sep := 0
	for _, w := range widths {
		sep += w
	}
	sep += 5 * (len(widths) - 1)
	b.WriteString(strings.Repeat("_", sep))
	b.WriteByte('\n')
	for _, row := range rows {
		writeRow(row)
	}
	b.WriteString(strings.Repeat("_", sep))
	b.WriteByte('\n')
	b.WriteString(fmt.Sprintf("%d images total\n", total))
	return b.String()
}
