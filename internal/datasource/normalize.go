package datasource

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"
)

// valueOf converts a gjson value into a plain go value. Integers stay int64
// so they are not rendered in float notation.
func valueOf(value gjson.Result) any {
	switch value.Type {
	case gjson.Null:
		return nil
	case gjson.False:
		return false
	case gjson.True:
		return true
	case gjson.String:
		return value.Str
	case gjson.Number:
		integer, err := strconv.ParseInt(value.Raw, 10, 64)
		if err == nil {
			return integer
		}
		return value.Num
	default:
		return value.Value()
	}
}

func rowFromObject(object gjson.Result) Row {
	row := Row{}
	object.ForEach(func(key, value gjson.Result) bool {
		row.Set(key.String(), valueOf(value))
		return true
	})
	return row
}

func rowFromValue(value gjson.Result) Row {
	if value.IsObject() {
		return rowFromObject(value)
	}
	return NewRow("value", valueOf(value))
}

// NormalizeAPI flattens REST response bodies into rows. Each body may be
// empty (no rows), a single object (one row) or a list of objects (one row
// per element, in order). Rows of several bodies are concatenated in order.
func NormalizeAPI(bodies ...[]byte) ([]Row, error) {
	rows := []Row{}
	for i, body := range bodies {
		body = bytes.TrimSpace(body)
		if len(body) == 0 {
			continue
		}
		if !gjson.ValidBytes(body) {
			return nil, fmt.Errorf("normalize response %d: invalid json", i)
		}
		parsed := gjson.ParseBytes(body)
		if parsed.IsArray() {
			for _, element := range parsed.Array() {
				rows = append(rows, rowFromValue(element))
			}
			continue
		}
		rows = append(rows, rowFromValue(parsed))
	}
	return rows, nil
}

// NormalizeUX flattens the envelope returned by a UX data source call.
//
// Rows come from (in order of preference) the "rows" list of objects or the
// "tables" list, where each table zips its "columns" with each of its "rows".
// When neither holds rows, a non-empty "outputs" object becomes a single row.
func NormalizeUX(body []byte) ([]Row, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return []Row{}, nil
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("normalize ux response: invalid json")
	}
	parsed := gjson.ParseBytes(body)

	rows := []Row{}
	if list := parsed.Get("rows"); list.IsArray() {
		for _, element := range list.Array() {
			rows = append(rows, rowFromValue(element))
		}
	}

	if len(rows) == 0 {
		for _, table := range parsed.Get("tables").Array() {
			var columns []string
			for _, column := range table.Get("columns").Array() {
				columns = append(columns, column.String())
			}
			for _, record := range table.Get("rows").Array() {
				row := Row{}
				for i, value := range record.Array() {
					name := fmt.Sprintf("column_%d", i)
					if i < len(columns) {
						name = columns[i]
					}
					row.Set(name, valueOf(value))
				}
				rows = append(rows, row)
			}
		}
	}

	if len(rows) == 0 {
		outputs := parsed.Get("outputs")
		if outputs.IsObject() && len(outputs.Map()) > 0 {
			rows = append(rows, rowFromObject(outputs))
		}
	}

	return rows, nil
}
