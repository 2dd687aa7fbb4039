package utils

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"pmcautomation/internal/datasource"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

func NewTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}

// RenderResponse writes the rows of `res` as a table to `out`.
func RenderResponse(out io.Writer, res datasource.Response) {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	// column names are case sensitive data source fields
	t.Style().Format.Header = text.FormatDefault
	t.Style().Format.Footer = text.FormatDefault
	t.SetOutputMirror(out)

	columns := res.Columns()
	header := make(table.Row, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	t.AppendHeader(header)

	for _, row := range res.Rows() {
		line := make(table.Row, len(columns))
		for i, c := range columns {
			value, _ := row.Get(c)
			line[i] = datasource.FormatValue(value)
		}
		t.AppendRow(line)
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d rows", res.Len())})
	t.Render()
}

// ParseInputs turns name=value pairs into input fields. Values that are json
// literals (numbers, booleans, null, lists, objects) keep their type, anything
// else is a string.
func ParseInputs(pairs []string) (map[string]any, error) {
	fields := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("input '%s' is not in the form name=value", pair)
		}

		decoder := json.NewDecoder(bytes.NewReader([]byte(raw)))
		decoder.UseNumber()
		var value any
		if err := decoder.Decode(&value); err == nil && !decoder.More() {
			if _, isString := value.(string); !isString || strings.HasPrefix(strings.TrimSpace(raw), `"`) {
				fields[name] = value
				continue
			}
		}
		fields[name] = raw
	}
	return fields, nil
}

// MissingConfigMessage explains why credentials are being asked for.
func MissingConfigMessage(credentialFile string, keychain bool) string {
	if keychain {
		return fmt.Sprintf("PCN config file \"%s\" missing and the keychain is empty. Create one or enter your credentials now.", credentialFile)
	}
	return fmt.Sprintf("PCN config file \"%s\" missing. Create one or enter your credentials now.", credentialFile)
}

// CredentialPrompt decides whether a source whose reference key could not be
// resolved (`cause`) may fall back to asking for credentials, it returns the
// message to show. Only webservice credentials can be entered, api sources
// need a key.
func CredentialPrompt(kind datasource.Kind, raw, credentialFile string, keychain bool, cause error) (string, error) {
	if !errors.Is(cause, datasource.ErrConfigRequired) {
		return "", cause
	}
	if kind == datasource.KindAPI {
		return "", fmt.Errorf(
			"'%s' is not a 32 character api key and no credential store could resolve it: %w",
			raw, cause,
		)
	}
	return MissingConfigMessage(credentialFile, keychain), nil
}

// PromptBasicAuth shows `message` and asks for webservice credentials on the
// terminal.
func PromptBasicAuth(in io.Reader, out io.Writer, message string) (datasource.BasicAuth, error) {
	fmt.Fprintln(out, message)
	reader := bufio.NewReader(in)

	readLine := func(prompt string) (string, error) {
		fmt.Fprint(out, prompt)
		line, err := reader.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	username, err := readLine("Webservice username: ")
	if err != nil {
		return datasource.BasicAuth{}, err
	}
	password, err := readLine("Webservice password: ")
	if err != nil {
		return datasource.BasicAuth{}, err
	}
	if username == "" {
		return datasource.BasicAuth{}, fmt.Errorf("no username entered")
	}
	return datasource.BasicAuth{Username: username, Password: password}, nil
}
