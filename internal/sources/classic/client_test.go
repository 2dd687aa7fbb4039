package classic

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"pmcautomation/internal/components/restyutil"
	"pmcautomation/internal/components/telemetry"
	"pmcautomation/internal/datasource"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resultSetResponse = `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <ExecuteDataSourceResponse xmlns="http://www.plexus-online.com/DataSource">
      <ExecuteDataSourceResult>
        <DataSourceKey>2145</DataSourceKey>
        <DataSourceName>Part_Get</DataSourceName>
        <Error>false</Error>
        <ErrorNo>0</ErrorNo>
        <InstanceNo>1</InstanceNo>
        <Message>Success</Message>
        <OutputParameters>
          <OutputParameter><Name>@Result_Code</Name><Value>0</Value></OutputParameter>
        </OutputParameters>
        <ResultSets>
          <ResultSet>
            <RowCount>2</RowCount>
            <Rows>
              <Row><Columns>
                <Column><Name>Part_No</Name><Value>278780-20</Value></Column>
                <Column><Name>Revision</Name><Value>A</Value></Column>
              </Columns></Row>
              <Row><Columns>
                <Column><Name>Part_No</Name><Value>278780-21</Value></Column>
                <Column><Name>Revision</Name><Value>B</Value></Column>
              </Columns></Row>
            </Rows>
          </ResultSet>
        </ResultSets>
        <TimeElapsed>00:00:00.12</TimeElapsed>
      </ExecuteDataSourceResult>
    </ExecuteDataSourceResponse>
  </soap:Body>
</soap:Envelope>`

const outputsOnlyResponse = `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <ExecuteDataSourceResponse xmlns="http://www.plexus-online.com/DataSource">
      <ExecuteDataSourceResult>
        <Error>false</Error>
        <OutputParameters>
          <OutputParameter><Name>@Part_Key</Name><Value>1234</Value></OutputParameter>
          <OutputParameter><Name>@Result_Code</Name><Value>0</Value></OutputParameter>
        </OutputParameters>
        <ResultSets />
      </ExecuteDataSourceResult>
    </ExecuteDataSourceResponse>
  </soap:Body>
</soap:Envelope>`

const errorResponse = `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <ExecuteDataSourceResponse xmlns="http://www.plexus-online.com/DataSource">
      <ExecuteDataSourceResult>
        <Error>true</Error>
        <ErrorNo>53</ErrorNo>
        <Message>Data source not found.</Message>
      </ExecuteDataSourceResult>
    </ExecuteDataSourceResponse>
  </soap:Body>
</soap:Envelope>`

const faultResponse = `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <soap:Fault>
      <faultcode>soap:Client</faultcode>
      <faultstring>Server was unable to read request.</faultstring>
    </soap:Fault>
  </soap:Body>
</soap:Envelope>`

func TestEncodeRequest(t *testing.T) {
	body, err := EncodeRequest("2145", []datasource.Parameter{
		{Name: "@Part_No", Value: "278780-20"},
	})
	require.NoError(t, err)

	var decoded struct {
		Body struct {
			Execute struct {
				Request struct {
					Key    string `xml:"DataSourceKey"`
					Params []struct {
						Name  string `xml:"Name"`
						Value string `xml:"Value"`
					} `xml:"InputParameters>InputParameter"`
				} `xml:"ExecuteDataSourceRequest"`
			} `xml:"ExecuteDataSource"`
		} `xml:"Body"`
	}
	err = xml.Unmarshal(body, &decoded)
	require.NoError(t, err)
	require.Equal(t, "2145", decoded.Body.Execute.Request.Key)
	require.Len(t, decoded.Body.Execute.Request.Params, 1)
	require.Equal(t, "@Part_No", decoded.Body.Execute.Request.Params[0].Name)
	require.Equal(t, "278780-20", decoded.Body.Execute.Request.Params[0].Value)
	require.Contains(t, string(body), `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">`)
}

func TestDecodeResponse(t *testing.T) {
	res, err := DecodeResponse("2145", []byte(resultSetResponse))
	require.NoError(t, err)
	expected := []map[string]any{
		{"Part_No": "278780-20", "Revision": "A"},
		{"Part_No": "278780-21", "Revision": "B"},
	}
	var actual []map[string]any
	for _, row := range res.Rows() {
		actual = append(actual, row.Map())
	}
	diff := cmp.Diff(expected, actual)
	if diff != "" {
		t.Fatal(diff)
	}
	require.Equal(t, []string{"Part_No", "Revision"}, res.Columns())

	result, ok := res.Raw.(Result)
	require.True(t, ok)
	require.Equal(t, "Part_Get", result.DataSourceName)
	value, _ := result.Outputs.Get("Result_Code")
	require.Equal(t, "0", value)

	res, err = DecodeResponse("5678", []byte(outputsOnlyResponse))
	require.NoError(t, err)
	require.Equal(t, 1, res.Len())
	require.Equal(t, []string{"Part_Key", "Result_Code"}, res.Columns())

	_, err = DecodeResponse("9999", []byte(errorResponse))
	var executeErr *ExecuteError
	require.ErrorAs(t, err, &executeErr)
	require.Equal(t, 53, executeErr.ErrorNo)
	require.Equal(t, "Data source not found.", executeErr.Message)

	_, err = DecodeResponse("9999", []byte(faultResponse))
	var responseErr *datasource.ResponseError
	require.ErrorAs(t, err, &responseErr)
	require.Contains(t, err.Error(), "Server was unable to read request.")

	_, err = DecodeResponse("9999", []byte("not xml <"))
	require.Error(t, err)
}

func TestQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "http://www.plexus-online.com/DataSource/ExecuteDataSource", r.Header.Get("SOAPAction"))
		username, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "SpringLakeWs@plex.com", username)
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "<Name>@Part_No</Name>")

		w.Header().Set("content-type", "text/xml; charset=utf-8")
		w.Write([]byte(resultSetResponse))
	}))
	defer server.Close()

	src, err := datasource.NewSource(context.Background(), datasource.SourceOptions{
		Kind:       datasource.KindClassic,
		Credential: datasource.BasicAuth{Username: "SpringLakeWs@plex.com", Password: "p"},
	})
	require.NoError(t, err)

	opts := restyutil.DefaultOptions()
	opts.BaseUrl = server.URL
	opts.RetryCount = 1
	opts.Backoff = time.Millisecond
	opts.LegacyTLS = false
	tel := &telemetry.Recorder{}
	client, err := NewClient(src, tel, opts)
	require.NoError(t, err)

	in, err := datasource.NewInput("2145", "classic")
	require.NoError(t, err)
	in.Set("Part_No", "278780-20")

	res, err := client.Query(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, 2, res.Len())

	counts := tel.Reports("count")
	require.NotEmpty(t, counts)
	require.Equal(t, "classic: client.rows", counts[len(counts)-1].ID)
}

func TestEndpointURL(t *testing.T) {
	require.Equal(t, TestURL, URL(true))
	require.Equal(t, ProdURL, URL(false))
}
