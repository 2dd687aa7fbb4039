// Package batch keeps the files of one automation run together: its folder,
// logs, http dumps and the records it has already processed.
package batch

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"pmcautomation/internal/components/chrono"
	"pmcautomation/internal/components/telemetry"
	"sort"
	"strings"
)

const report_batch_new_folder = "batch.new-folder"

type FolderOptions struct {
	// Root is the directory batch folders are created under, "" is the
	// working directory.
	Root string
	// Code names the folder, it defaults to the current date (YYYYMMDD).
	Code string
	// IncludeTime appends the current time (_HHMM) to a generated code.
	IncludeTime bool
	Test        bool
}

// Environment returns the name of the database a run targets.
func Environment(test bool) string {
	if test {
		return "TEST"
	}
	return "PROD"
}

// FolderPath returns <root>/batch_codes/<TEST|PROD>/<code>[_HHMM].
func FolderPath(opts FolderOptions, clock chrono.API) string {
	now := clock.Now()
	code := opts.Code
	if code == "" {
		code = now.Format("20060102")
	}
	name := code
	if opts.IncludeTime && opts.Code == "" {
		name = fmt.Sprintf("%s_%s", code, now.Format("1504"))
	}
	return filepath.Join(opts.Root, "batch_codes", Environment(opts.Test), name)
}

// NewFolder creates the batch folder of `opts` if it does not exist yet and
// returns its path. A custom code and IncludeTime together are not supported,
// the time is ignored with a warning.
func NewFolder(opts FolderOptions, clock chrono.API, tel telemetry.API) (string, error) {
	if opts.Code != "" && opts.IncludeTime {
		tel.ReportWarning(
			report_batch_new_folder,
			"a batch code and include time are not supported together, ignoring include time",
		)
		opts.IncludeTime = false
	}
	path := FolderPath(opts, clock)
	err := os.MkdirAll(path, 0777)
	if err != nil {
		tel.ReportBroken(report_batch_new_folder, err, path)
		return "", err
	}
	return path, nil
}

// ReadUpdated reads the records a previous run saved with SaveUpdated. A
// missing or empty file has no records.
func ReadUpdated[T any](path string) ([]T, error) {
	contents, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return []T{}, nil
	}
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(contents)) == "" {
		return []T{}, nil
	}

	var records []T
	err = json.Unmarshal(contents, &records)
	if err != nil {
		return nil, fmt.Errorf("read updated records %s: %w", path, err)
	}
	if records == nil {
		records = []T{}
	}
	return records, nil
}

// SaveUpdated overwrites `path` with `records` as indented json.
func SaveUpdated(path string, records any) error {
	encoded, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, encoded, 0666)
}

// LookupFold returns the value whose key equals `key` ignoring case. An exact
// match wins, otherwise the first folded match in key order.
func LookupFold[V any](values map[string]V, key string) (V, bool) {
	if value, ok := values[key]; ok {
		return value, true
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.EqualFold(k, key) {
			return values[k], true
		}
	}
	var zero V
	return zero, false
}
