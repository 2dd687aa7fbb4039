// Package classic executes Plex classic data sources through the
// ExecuteDataSource SOAP web service.
package classic

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"pmcautomation/internal/components/assert"
	"pmcautomation/internal/components/restyutil"
	"pmcautomation/internal/components/telemetry"
	"pmcautomation/internal/datasource"
	"strings"

	"github.com/go-resty/resty/v2"
)

const (
	ProdURL = "https://api.plexonline.com/DataSource/Service.asmx"
	TestURL = "https://testapi.plexonline.com/DataSource/Service.asmx"
)

const (
	report_client_query = "client.query"
	report_client_rows  = "client.rows"
)

// ExecuteError is the error a data source reports in its result.
type ExecuteError struct {
	ErrorNo int
	Message string
}

func (e *ExecuteError) Error() string {
	return fmt.Sprintf("data source error %d: %s", e.ErrorNo, e.Message)
}

// Result is the raw value of a classic Response.
type Result struct {
	DataSourceKey  string
	DataSourceName string
	InstanceNo     string
	TimeElapsed    string
	Outputs        datasource.Row
}

// URL returns the web service endpoint of the test or production database.
func URL(test bool) string {
	if test {
		return TestURL
	}
	return ProdURL
}

type Client struct {
	http     *resty.Client
	endpoint string
	tel      telemetry.API
}

// NewClient creates a client for `src`, which must hold basic auth. The
// endpoint follows src.Test() unless opts.BaseUrl is set.
func NewClient(src datasource.Source, tel telemetry.API, opts restyutil.Options) (*Client, error) {
	assert.NotNil("classic", tel)
	tel = telemetry.NewScopedAPI("classic", tel)

	if src.Kind() != datasource.KindClassic {
		return nil, &datasource.ValidationError{
			Field:   "kind",
			Value:   string(src.Kind()),
			Allowed: []string{string(datasource.KindClassic)},
		}
	}
	auth, ok := src.BasicAuth()
	if !ok {
		return nil, fmt.Errorf("classic data sources need a username and password, got %T", src.Credential())
	}

	endpoint := URL(src.Test())
	if opts.BaseUrl != "" {
		endpoint = opts.BaseUrl
		opts.BaseUrl = ""
	}
	httpClient, err := restyutil.New(opts, tel)
	if err != nil {
		return nil, err
	}
	httpClient.SetBasicAuth(auth.Username, auth.Password)

	return &Client{http: httpClient, endpoint: endpoint, tel: tel}, nil
}

// EncodeRequest returns the soap envelope executing data source `key` with
// `params`.
func EncodeRequest(key string, params []datasource.Parameter) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	err := xml.NewEncoder(&buf).Encode(newRequestEnvelope(key, params))
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeResponse turns a soap response into rows. Rows of every result set
// are concatenated with their column order kept, output parameters become a
// single row when there are no result rows.
func DecodeResponse(id string, body []byte) (datasource.Response, error) {
	var env responseEnvelope
	err := xml.Unmarshal(body, &env)
	if err != nil {
		return datasource.Response{}, fmt.Errorf("decode soap response: %w", err)
	}
	if fault := env.Body.Fault; fault != nil {
		return datasource.Response{}, &datasource.ResponseError{
			Kind: datasource.KindClassic,
			ID:   id,
			Err:  fmt.Errorf("soap fault %s: %s", fault.Code, strings.TrimSpace(fault.String)),
		}
	}

	result := env.Body.Response.Result
	if result.Error {
		return datasource.Response{}, &datasource.ResponseError{
			Kind: datasource.KindClassic,
			ID:   id,
			Err:  &ExecuteError{ErrorNo: result.ErrorNo, Message: result.Message},
		}
	}

	outputs := datasource.Row{}
	for _, p := range result.OutputParameters {
		outputs.Set(strings.TrimPrefix(p.Name, "@"), p.Value)
	}

	rows := []datasource.Row{}
	for _, set := range result.ResultSets {
		for _, r := range set.Rows {
			out := datasource.Row{}
			for _, c := range r.Columns {
				out.Set(c.Name, c.Value)
			}
			rows = append(rows, out)
		}
	}
	if len(rows) == 0 && outputs.Len() > 0 {
		rows = append(rows, outputs)
	}

	raw := Result{
		DataSourceKey:  result.DataSourceKey,
		DataSourceName: result.DataSourceName,
		InstanceNo:     result.InstanceNo,
		TimeElapsed:    result.TimeElapsed,
		Outputs:        outputs,
	}
	return datasource.NewResponse(id, datasource.KindClassic, raw, rows), nil
}

// Query executes the data source `in` names, its id is the data source key.
func (c *Client) Query(ctx context.Context, in *datasource.Input) (datasource.Response, error) {
	if in.Kind() != datasource.KindClassic {
		return datasource.Response{}, &datasource.ValidationError{
			Field:   "kind",
			Value:   string(in.Kind()),
			Allowed: []string{string(datasource.KindClassic)},
		}
	}
	params, ok := in.Query().([]datasource.Parameter)
	if !ok {
		return datasource.Response{}, fmt.Errorf("classic inputs must be parameters, got %T", in.Query())
	}

	body, err := EncodeRequest(in.ID(), params)
	if err != nil {
		return datasource.Response{}, err
	}
	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "text/xml; charset=utf-8").
		SetHeader("SOAPAction", executeAction).
		SetBody(body).
		Post(c.endpoint)
	if err != nil {
		c.tel.ReportBroken(report_client_query, err, in.ID())
		return datasource.Response{}, err
	}
	// faults come back as 500 with a soap body worth decoding
	if res.IsError() && !strings.Contains(res.String(), "Fault") {
		err = restyutil.CheckResponse(res)
		c.tel.ReportBroken(report_client_query, err, in.ID())
		return datasource.Response{}, err
	}

	out, err := DecodeResponse(in.ID(), res.Body())
	if err != nil {
		c.tel.ReportBroken(report_client_query, err, in.ID())
		return datasource.Response{}, err
	}
	c.tel.ReportCount(report_client_rows, int64(out.Len()))
	return out, nil
}
