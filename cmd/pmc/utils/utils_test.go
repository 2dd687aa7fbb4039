package utils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"pmcautomation/internal/datasource"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseInputs(t *testing.T) {
	fields, err := ParseInputs([]string{
		"PO_Key=2883902",
		"Active=true",
		"Part_Key=null",
		"Name=NISSAN MOTOR",
		"Quoted=\"12\"",
		"Expr=a=b",
		"Empty=",
	})
	require.NoError(t, err)
	require.Equal(t, map[string]any{
		"PO_Key":   json.Number("2883902"),
		"Active":   true,
		"Part_Key": nil,
		"Name":     "NISSAN MOTOR",
		"Quoted":   "12",
		"Expr":     "a=b",
		"Empty":    "",
	}, fields)

	_, err = ParseInputs([]string{"novalue"})
	require.Error(t, err)
	_, err = ParseInputs([]string{"=x"})
	require.Error(t, err)
}

func TestPromptBasicAuth(t *testing.T) {
	var out bytes.Buffer
	auth, err := PromptBasicAuth(strings.NewReader("GrandHavenWs@plex.com\nsecret\n"), &out, MissingConfigMessage("resources/pcn_config.json", false))
	require.NoError(t, err)
	require.Equal(t, datasource.BasicAuth{Username: "GrandHavenWs@plex.com", Password: "secret"}, auth)
	require.Contains(t, out.String(), `"resources/pcn_config.json" missing`)

	_, err = PromptBasicAuth(strings.NewReader(""), &out, "x")
	require.Error(t, err)
}

func TestCredentialPrompt(t *testing.T) {
	missing := fmt.Errorf("%w: credential file 'resources/pcn_config.json' is missing", datasource.ErrConfigRequired)

	message, err := CredentialPrompt(datasource.KindUX, "Grand Haven", "resources/pcn_config.json", false, missing)
	require.NoError(t, err)
	require.Equal(t, MissingConfigMessage("resources/pcn_config.json", false), message)
	require.NotContains(t, message, "keychain")

	message, err = CredentialPrompt(datasource.KindClassic, "Grand Haven", "resources/pcn_config.json", true, missing)
	require.NoError(t, err)
	require.Contains(t, message, "keychain is empty")

	_, err = CredentialPrompt(datasource.KindAPI, "Grand Haven", "resources/pcn_config.json", false, missing)
	require.ErrorIs(t, err, datasource.ErrConfigRequired)
	require.Contains(t, err.Error(), "api key")

	lookup := &datasource.LookupError{Reference: "Grand Havn", Source: "resources/pcn_config.json"}
	_, err = CredentialPrompt(datasource.KindUX, "Grand Havn", "resources/pcn_config.json", false, lookup)
	require.ErrorIs(t, err, lookup)
}

func TestRenderResponse(t *testing.T) {
	res := datasource.NewResponse("x", datasource.KindAPI, nil, []datasource.Row{
		datasource.NewRow("name", "NISSAN MOTOR", "code", int64(7)),
	})
	var out bytes.Buffer
	RenderResponse(&out, res)
	require.Contains(t, out.String(), "NISSAN MOTOR")
	require.Contains(t, out.String(), "1 rows")
	require.Contains(t, out.String(), " name ")
	require.NotContains(t, out.String(), "ROWS")
}
