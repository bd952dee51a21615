package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Table is one ordered dataset snapshot with named columns.
// Params: header order defines column order; rows hold cells aligned to the header.
// Returns: in-memory tabular snapshot shared by detection and evaluation.
type Table struct {
	Columns []string
	Rows    [][]any
}

// RowCount returns the number of data rows.
// Params: none.
// Returns: row count.
func (t Table) RowCount() int {
	return len(t.Rows)
}

// ColumnIndex finds one column position by name.
// Params: column name.
// Returns: zero-based index and presence flag.
func (t Table) ColumnIndex(name string) (int, bool) {
	for i, column := range t.Columns {
		if column == name {
			return i, true
		}
	}
	return 0, false
}

// NumericColumn extracts numeric values from one column in row order.
// Params: column name.
// Returns: coercible values (non-numeric cells skipped) and column presence flag.
func (t Table) NumericColumn(name string) ([]float64, bool) {
	index, ok := t.ColumnIndex(name)
	if !ok {
		return nil, false
	}
	values := make([]float64, 0, len(t.Rows))
	for _, row := range t.Rows {
		if index >= len(row) {
			continue
		}
		if value, ok := CoerceFloat(row[index]); ok {
			values = append(values, value)
		}
	}
	return values, true
}

// CoerceFloat converts one cell into a float64 when possible.
// Params: cell value of any supported scan/decode type.
// Returns: numeric value and conversion success flag.
func CoerceFloat(cell any) (float64, bool) {
	switch value := cell.(type) {
	case float64:
		return value, true
	case float32:
		return float64(value), true
	case int:
		return float64(value), true
	case int32:
		return float64(value), true
	case int64:
		return float64(value), true
	case uint64:
		return float64(value), true
	case bool:
		if value {
			return 1, true
		}
		return 0, true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	case []byte:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(string(value)), 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

// RenderCell converts one cell into its canonical string form.
// Params: cell value.
// Returns: deterministic string rendering or error for unsupported types.
func RenderCell(cell any) (string, error) {
	switch value := cell.(type) {
	case nil:
		return "", nil
	case string:
		return value, nil
	case []byte:
		return string(value), nil
	case float64:
		return strconv.FormatFloat(value, 'g', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(value), 'g', -1, 32), nil
	case int:
		return strconv.Itoa(value), nil
	case int32:
		return strconv.FormatInt(int64(value), 10), nil
	case int64:
		return strconv.FormatInt(value, 10), nil
	case uint64:
		return strconv.FormatUint(value, 10), nil
	case bool:
		return strconv.FormatBool(value), nil
	default:
		return "", fmt.Errorf("unsupported cell type %T", cell)
	}
}

// TableFromCSV builds a table from parsed CSV records.
// Params: records with header in the first row.
// Returns: table or error for an empty document.
func TableFromCSV(records [][]string) (Table, error) {
	if len(records) == 0 {
		return Table{}, fmt.Errorf("empty tabular document")
	}
	table := Table{Columns: append([]string(nil), records[0]...)}
	table.Rows = make([][]any, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make([]any, len(record))
		for i, cell := range record {
			row[i] = cell
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// TableFromMaps builds a table from decoded JSON objects.
// Params: column order and row maps projected onto that order.
// Returns: table with missing fields left nil.
func TableFromMaps(columns []string, rows []map[string]any) Table {
	table := Table{Columns: append([]string(nil), columns...)}
	table.Rows = make([][]any, 0, len(rows))
	for _, source := range rows {
		row := make([]any, len(columns))
		for i, column := range columns {
			row[i] = source[column]
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}
