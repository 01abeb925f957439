package dataset

import (
	"bytes"
	"fmt"
	"strings"
)

// Summary renders a compact schema-and-stats briefing of the dataset,
// suitable for embedding in the agent's system prompt.
func (d *Dataset) Summary() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if d.Name != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", d.Name))
	}
	if d.RowCount < d.TotalRows {
		b.WriteString(fmt.Sprintf("Rows: ~%d (loaded %d)\n", d.TotalRows, d.RowCount))
	} else {
		b.WriteString(fmt.Sprintf("Rows: %d\n", d.RowCount))
	}
	b.WriteString(fmt.Sprintf("Columns: %d\n\n", len(d.Columns)))

	b.WriteString("[SCHEMA]\n")
	for _, c := range d.Columns {
		total := c.NonNull + c.Missing
		missPct := 0.0
		if total > 0 {
			missPct = float64(c.Missing) * 100.0 / float64(total)
		}
		b.WriteString(fmt.Sprintf("- %s: %s (non-null %d, missing %.1f%%)", safeName(c.Name), c.Kind, c.NonNull, missPct))
		switch c.Kind {
		case KindNumeric:
			if s := c.Stats; s != nil {
				b.WriteString(fmt.Sprintf(" min %.4g, max %.4g, mean %.4g, std %.4g", s.Min, s.Max, s.Mean, s.Std))
			}
		case KindCategorical:
			if len(c.TopValues) > 0 {
				b.WriteString(" top: ")
				for i, kv := range c.TopValues {
					if i > 0 {
						b.WriteString(", ")
					}
					b.WriteString(fmt.Sprintf("%s(%d)", safeVal(kv.Value), kv.Count))
				}
				if c.Unique > len(c.TopValues) {
					b.WriteString(fmt.Sprintf("; unique=%d", c.Unique))
				}
			}
		case KindText:
			if len(c.ExampleTexts) > 0 {
				b.WriteString(" e.g. ")
				for i, ex := range c.ExampleTexts {
					if i > 0 {
						b.WriteString(" | ")
					}
					b.WriteString(safeVal(ex))
				}
			}
		}
		b.WriteString("\n")
	}

	if rows := d.Preview(5); len(rows) > 0 {
		b.WriteString("\n[HEAD]\n")
		b.WriteString("| ")
		for i, c := range d.Columns {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(safeName(c.Name))
		}
		b.WriteString(" |\n| ")
		for i := range d.Columns {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString("---")
		}
		b.WriteString(" |\n")
		for _, row := range rows {
			b.WriteString("| ")
			for i := range d.Columns {
				if i > 0 {
					b.WriteString(" | ")
				}
				val := ""
				if i < len(row) {
					val = row[i]
				}
				if len(val) > 80 {
					val = val[:77] + "..."
				}
				b.WriteString(safeVal(val))
			}
			b.WriteString(" |\n")
		}
	}
	return b.String()
}

// PayloadCSV returns the original CSV bytes for the agent request,
// truncated on a row boundary when over maxBytes. The second return
// reports whether truncation happened.
func (d *Dataset) PayloadCSV(maxBytes int) ([]byte, bool) {
	if maxBytes <= 0 || len(d.raw) <= maxBytes {
		return d.raw, false
	}
	cut := bytes.LastIndexByte(d.raw[:maxBytes], '\n')
	if cut <= 0 {
		// Budget smaller than the header line; send it anyway so the
		// agent at least sees the schema.
		if head := bytes.IndexByte(d.raw, '\n'); head > 0 {
			return d.raw[:head+1], true
		}
		return d.raw, false
	}
	return d.raw[:cut+1], true
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/")
}
