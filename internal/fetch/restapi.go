package fetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"dashsync/internal/domain"
)

// fetchRESTAPI pulls a JSON endpoint and interprets the body as a table.
// Params: context and endpoint URL.
// Returns: table or transport/parse/unsupportedShape error. An array body
// becomes rows (object elements keep their keys as columns, scalar elements
// fill a single "0" column, an empty array yields a zero-row table); an
// object body is searched in document order for the first array-valued
// field; an object with no array field becomes a one-row table.
func (f *Fetcher) fetchRESTAPI(ctx context.Context, url string) (domain.Table, error) {
	body, err := f.get(ctx, url)
	if err != nil {
		return domain.Table{}, err
	}

	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) == 0 {
		return domain.Table{}, fetchErr(ErrParse, fmt.Errorf("empty response body"))
	}
	switch trimmed[0] {
	case '[':
		var elements []any
		if err := json.Unmarshal(body, &elements); err != nil {
			return domain.Table{}, fetchErr(ErrParse, err)
		}
		return tableFromArray(elements), nil
	case '{':
		return tableFromObject(body)
	default:
		return domain.Table{}, fetchErr(ErrUnsupportedShape, fmt.Errorf("body is neither array nor object"))
	}
}

// tableFromObject interprets one top-level JSON object.
// Params: raw object body.
// Returns: table from the first array field in document order, or a
// single-row table over the object's scalar fields.
func tableFromObject(body []byte) (domain.Table, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	if _, err := decoder.Token(); err != nil {
		return domain.Table{}, fetchErr(ErrParse, err)
	}

	single := make(map[string]any)
	var singleOrder []string
	for decoder.More() {
		keyToken, err := decoder.Token()
		if err != nil {
			return domain.Table{}, fetchErr(ErrParse, err)
		}
		key, ok := keyToken.(string)
		if !ok {
			return domain.Table{}, fetchErr(ErrParse, fmt.Errorf("non-string object key %v", keyToken))
		}
		var raw json.RawMessage
		if err := decoder.Decode(&raw); err != nil {
			return domain.Table{}, fetchErr(ErrParse, err)
		}
		trimmed := bytes.TrimLeft(raw, " \t\r\n")
		if len(trimmed) > 0 && trimmed[0] == '[' {
			var elements []any
			if err := json.Unmarshal(raw, &elements); err != nil {
				return domain.Table{}, fetchErr(ErrParse,
					fmt.Errorf("field %q: %w", key, err))
			}
			return tableFromArray(elements), nil
		}
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return domain.Table{}, fetchErr(ErrParse, err)
		}
		single[key] = value
		singleOrder = append(singleOrder, key)
	}
	return domain.TableFromMaps(singleOrder, []map[string]any{single}), nil
}

// tableFromArray builds a table from decoded array elements.
// Params: array elements of any JSON type.
// Returns: zero-row table for an empty array, object rows keyed by the
// first element's keys in sorted order, or one "0" column of scalar values.
func tableFromArray(elements []any) domain.Table {
	if len(elements) == 0 {
		return domain.Table{}
	}
	rows := make([]map[string]any, 0, len(elements))
	for _, element := range elements {
		object, ok := element.(map[string]any)
		if !ok {
			rows = nil
			break
		}
		rows = append(rows, object)
	}
	if rows == nil {
		scalarRows := make([]map[string]any, 0, len(elements))
		for _, element := range elements {
			scalarRows = append(scalarRows, map[string]any{"0": element})
		}
		return domain.TableFromMaps([]string{"0"}, scalarRows)
	}
	columns := make([]string, 0, len(rows[0]))
	for column := range rows[0] {
		columns = append(columns, column)
	}
	sort.Strings(columns)
	return domain.TableFromMaps(columns, rows)
}
