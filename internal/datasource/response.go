package datasource

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Response is the result of a data source call. Raw holds the payload as the
// backend returned it, the rows are its normalized form.
type Response struct {
	ID   string
	Kind Kind
	Raw  any

	rows []Row
}

func NewResponse(id string, kind Kind, raw any, rows []Row) Response {
	if rows == nil {
		rows = []Row{}
	}
	return Response{ID: id, Kind: kind, Raw: raw, rows: rows}
}

func (r Response) Rows() []Row {
	return r.rows
}

func (r Response) Len() int {
	return len(r.rows)
}

// Columns returns the keys of the first row, which is also the csv header.
func (r Response) Columns() []string {
	if len(r.rows) == 0 {
		return nil
	}
	return r.rows[0].Keys()
}

// Column returns the value of `name` for every row that has it.
func (r Response) Column(name string) []any {
	var out []any
	for _, row := range r.rows {
		value, ok := row.Get(name)
		if ok {
			out = append(out, value)
		}
	}
	return out
}

// WriteCSV writes the rows as csv: a header from the first row's keys, then
// one line per row, each terminated by "\n". Keys missing from a row are
// written empty, a key that is not in the header is an error.
func (r Response) WriteCSV(out io.Writer) error {
	if len(r.rows) == 0 {
		return &ResponseError{Kind: r.Kind, ID: r.ID, Err: ErrNoRows}
	}

	header := r.rows[0].Keys()
	inHeader := make(map[string]struct{}, len(header))
	for _, h := range header {
		inHeader[h] = struct{}{}
	}

	w := csv.NewWriter(out)
	err := w.Write(header)
	if err != nil {
		return err
	}
	record := make([]string, len(header))
	for i, row := range r.rows {
		for _, key := range row.keys {
			if _, ok := inHeader[key]; !ok {
				return &ResponseError{
					Kind: r.Kind,
					ID:   r.ID,
					Err:  fmt.Errorf("row %d has field '%s' which is not in the header", i, key),
				}
			}
		}
		for j, h := range header {
			record[j] = FormatValue(row.values[h])
		}
		err = w.Write(record)
		if err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// SaveCSV writes the rows to a csv file at `path`, creating its directory.
func (r Response) SaveCSV(path string) error {
	if len(r.rows) == 0 {
		return &ResponseError{Kind: r.Kind, ID: r.ID, Err: ErrNoRows}
	}
	if dir := filepath.Dir(path); dir != "." {
		err := os.MkdirAll(dir, 0777)
		if err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	err = r.WriteCSV(f)
	if err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
