package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"
)

type Table struct {
	Columns []string
	Rows    [][]string
}

func PrintJSON(w io.Writer, value any) error {
	encoded, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}

	_, err = w.Write(append(encoded, '\n'))
	return err
}

func PrintTable(w io.Writer, table Table) {
	if len(table.Columns) == 0 {
		return
	}

	widths := make([]int, len(table.Columns))
	for i, col := range table.Columns {
		widths[i] = utf8.RuneCountInString(col)
	}

	for _, row := range table.Rows {
		for i, cell := range row {
			if i >= len(widths) {
				break
			}
			if n := utf8.RuneCountInString(cell); n > widths[i] {
				widths[i] = n
			}
		}
	}

	writeRow := func(values []string) {
		for i, value := range values {
			if i > 0 {
				fmt.Fprint(w, "  ")
			}
			fmt.Fprint(w, padRight(value, widths[i]))
		}
		fmt.Fprint(w, "\n")
	}

	writeRow(table.Columns)
	separators := make([]string, len(table.Columns))
	for i, width := range widths {
		separators[i] = strings.Repeat("-", width)
	}
	writeRow(separators)

	for _, row := range table.Rows {
		normalized := make([]string, len(table.Columns))
		copy(normalized, row)
		writeRow(normalized)
	}
}

func PrintCSV(w io.Writer, table Table) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(table.Columns); err != nil {
		return err
	}

	for _, row := range table.Rows {
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// PrintRecords writes table as an aligned table, CSV, or a JSON array of
// objects keyed by column.
func PrintRecords(w io.Writer, format string, table Table) error {
	switch format {
	case "", "table":
		PrintTable(w, table)
		return nil
	case "csv":
		return PrintCSV(w, table)
	case "json":
		records := make([]map[string]string, 0, len(table.Rows))
		for _, row := range table.Rows {
			record := make(map[string]string, len(table.Columns))
			for i, col := range table.Columns {
				if i < len(row) {
					record[col] = row[i]
				}
			}
			records = append(records, record)
		}
		return PrintJSON(w, records)
	default:
		return fmt.Errorf("unsupported format %q (use table, csv or json)", format)
	}
}

// FormatCell renders a scalar for a table cell.
func FormatCell(value any) string {
	if value == nil {
		return ""
	}

	switch v := value.(type) {
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case *float64:
		if v == nil {
			return ""
		}
		return strconv.FormatFloat(*v, 'f', -1, 64)
	default:
		return fmt.Sprint(value)
	}
}

func padRight(value string, width int) string {
	n := utf8.RuneCountInString(value)
	if n >= width {
		return value
	}
	return value + strings.Repeat(" ", width-n)
}
