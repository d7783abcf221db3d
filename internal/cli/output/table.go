package output

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
)

// Table is a header plus rows, rendered by the renderer's mode.
type Table struct {
	Title   string
	Columns []string
	Rows    [][]any
}

// Append adds a row.
func (t *Table) Append(values ...any) {
	t.Rows = append(t.Rows, values)
}

// Records returns the rows as column-keyed maps, in row order.
func (t *Table) Records() []map[string]any {
	out := make([]map[string]any, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(map[string]any, len(t.Columns))
		for i, col := range t.Columns {
			if i < len(row) {
				rec[col] = row[i]
			}
		}
		out = append(out, rec)
	}
	return out
}

// Table renders t. JSON mode writes the rows as a list of objects.
func (r *Renderer) Table(t *Table) error {
	mode := r.EffectiveMode()
	if mode == ModeJSON {
		return r.JSON(t.Records())
	}
	if len(t.Rows) == 0 && mode != ModeCSV {
		if t.Title != "" {
			r.Header(2, t.Title)
		}
		r.Println("(0 rows)")
		return nil
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(r.w)
	tw.SetStyle(table.StyleLight)

	header := make(table.Row, len(t.Columns))
	for i, col := range t.Columns {
		header[i] = col
	}
	tw.AppendHeader(header)
	for _, row := range t.Rows {
		tr := make(table.Row, len(row))
		for i, v := range row {
			tr[i] = FormatValue(v)
		}
		tw.AppendRow(tr)
	}

	switch mode {
	case ModeCSV:
		tw.RenderCSV()
	case ModeMarkdown:
		if t.Title != "" {
			r.Header(2, t.Title)
		}
		tw.RenderMarkdown()
		r.Println("")
	default:
		if t.Title != "" {
			tw.SetTitle(t.Title)
		}
		tw.Render()
		r.Printf("(%d rows)\n", len(t.Rows))
	}
	return nil
}

// FormatValue renders a cell value; composite values are written as JSON.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case string:
		return x
	case float64:
		return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.6f", x), "0"), ".")
	case []any, map[string]any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprintf("%v", x)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", x)
	}
}
