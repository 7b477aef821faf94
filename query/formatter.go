package query

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/goccy/go-yaml"
)

// Formatter formats query results
type Formatter struct {
	Format OutputFormat
}

// NewFormatter creates a new result formatter
func NewFormatter(format OutputFormat) *Formatter {
	return &Formatter{Format: format}
}

// Write formats the result according to the configured format.
func (f *Formatter) Write(result *Result, output io.Writer) error {
	switch f.Format {
	case FormatTable:
		return f.writeTable(result, output)
	case FormatJSON:
		return f.writeJSON(result, output)
	case FormatCSV:
		return f.writeCSV(result, output)
	case FormatYAML:
		return f.writeYAML(result, output)
	default:
		return fmt.Errorf("%w: %s", ErrInvalidOutputFormat, f.Format)
	}
}

func (f *Formatter) writeTable(result *Result, output io.Writer) error {
	if len(result.Rows) == 0 {
		fmt.Fprintln(output, "No results")
		return nil
	}

	w := tabwriter.NewWriter(output, 0, 4, 2, ' ', 0)

	for i, column := range result.Columns {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, column)
	}
	fmt.Fprintln(w)

	for _, row := range result.Rows {
		for i, value := range row {
			if i > 0 {
				fmt.Fprint(w, "\t")
			}
			fmt.Fprint(w, formatCell(value))
		}
		fmt.Fprintln(w)
	}

	return w.Flush()
}

func (f *Formatter) writeJSON(result *Result, output io.Writer) error {
	encoder := json.NewEncoder(output)
	encoder.SetIndent("", "  ")
	return encoder.Encode(rowsToMaps(result.Columns, result.Rows))
}

func (f *Formatter) writeCSV(result *Result, output io.Writer) error {
	w := csv.NewWriter(output)

	if err := w.Write(result.Columns); err != nil {
		return err
	}

	record := make([]string, len(result.Columns))
	for _, row := range result.Rows {
		for i, value := range row {
			record[i] = formatCell(value)
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}

	w.Flush()

	return w.Error()
}

func (f *Formatter) writeYAML(result *Result, output io.Writer) error {
	data, err := yaml.Marshal(rowsToMaps(result.Columns, result.Rows))
	if err != nil {
		return err
	}

	_, err = output.Write(data)

	return err
}

func rowsToMaps(columns []string, rows [][]any) []map[string]any {
	maps := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		m := make(map[string]any, len(columns))
		for i, column := range columns {
			if i < len(row) {
				m[column] = row[i]
			}
		}
		maps = append(maps, m)
	}
	return maps
}

func formatCell(value any) string {
	if value == nil {
		return "NULL"
	}
	return fmt.Sprintf("%v", value)
}
