package connect

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"pmcautomation/internal/components/restyutil"
	"pmcautomation/internal/components/telemetry"
	"pmcautomation/internal/datasource"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

const testKey = "abcdEFGH1234abcdEFGH1234abcdEFGH"

type recordedCall struct {
	Method   string
	Path     string
	Query    string
	Customer string
	ApiKey   string
	Body     string
}

type fakeConnect struct {
	mutex     sync.Mutex
	calls     []recordedCall
	responses map[string]string
	status    int
}

func (f *fakeConnect) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	customer := r.Header.Get(HeaderCustomerId)

	f.mutex.Lock()
	f.calls = append(f.calls, recordedCall{
		Method:   r.Method,
		Path:     r.URL.Path,
		Query:    r.URL.RawQuery,
		Customer: customer,
		ApiKey:   r.Header.Get(HeaderApiKey),
		Body:     string(body),
	})
	f.mutex.Unlock()

	w.Header().Set("content-type", "application/json")
	if f.status != 0 {
		w.WriteHeader(f.status)
	}
	w.Write([]byte(f.responses[customer]))
}

func setup(t testing.TB, fake *fakeConnect, test bool) (*Client, *telemetry.Recorder) {
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	src, err := datasource.NewSource(context.Background(), datasource.SourceOptions{
		Kind:       datasource.KindAPI,
		Credential: datasource.ParseCredential(datasource.KindAPI, testKey),
		Test:       test,
	})
	require.NoError(t, err)

	opts := restyutil.DefaultOptions()
	opts.BaseUrl = server.URL
	opts.Backoff = time.Millisecond
	opts.MaxBackoff = time.Millisecond
	opts.RetryCount = 2
	opts.RateLimit = rate.Inf
	opts.LegacyTLS = false

	tel := &telemetry.Recorder{}
	client, err := NewClient(src, tel, opts)
	require.NoError(t, err)
	return client, tel
}

func TestResolveURL(t *testing.T) {
	require.Equal(t, "https://test.connect.plex.com/mdm/v1/customers", ResolveURL("https://connect.plex.com/mdm/v1/customers", true))
	require.Equal(t, "https://connect.plex.com/mdm/v1/customers", ResolveURL("https://connect.plex.com/mdm/v1/customers", false))
	require.Equal(t, "https://connect.plex.com/mdm/v1/parts", ResolveURL("/mdm/v1/parts", false))
	require.Equal(t, "https://test.connect.plex.com/mdm/v1/parts", ResolveURL("mdm/v1/parts", true))
	require.Equal(t, "https://test.connect.plex.com/x", ResolveURL("https://test.connect.plex.com/x", true))
	require.Equal(t, "http://127.0.0.1:1234/x", ResolveURL("http://127.0.0.1:1234/x", true))
}

func TestQueryParams(t *testing.T) {
	params, err := queryParams(map[string]any{
		"status":   "Active",
		"ids":      []any{"a", "b"},
		"limit":    int64(5),
		"customer": nil,
	})
	require.NoError(t, err)
	require.Equal(t, "ids=a&ids=b&limit=5&status=Active", params.Encode())

	_, err = queryParams([]any{"a"})
	require.Error(t, err)
}

func TestQueryGetPerPcn(t *testing.T) {
	fake := &fakeConnect{responses: map[string]string{
		"79870": `[{"code": "A"}, {"code": "B"}]`,
		"123":   `{"code": "C"}`,
		"456":   ``,
	}}
	client, tel := setup(t, fake, true)

	in, err := datasource.NewAPIInput("https://connect.plex.com/mdm/v1/customers", "GET")
	require.NoError(t, err)
	in.Set("status", "Active")
	in.Set("name", nil)

	res, err := client.Query(context.Background(), in, "79870", "123", "456")
	require.NoError(t, err)
	require.Equal(t, 3, res.Len())
	require.Equal(t, []any{"A", "B", "C"}, res.Column("code"))

	expected := []recordedCall{
		{Method: "GET", Path: "/mdm/v1/customers", Query: "status=Active", Customer: "79870", ApiKey: testKey},
		{Method: "GET", Path: "/mdm/v1/customers", Query: "status=Active", Customer: "123", ApiKey: testKey},
		{Method: "GET", Path: "/mdm/v1/customers", Query: "status=Active", Customer: "456", ApiKey: testKey},
	}
	diff := cmp.Diff(expected, fake.calls)
	if diff != "" {
		t.Fatal(diff)
	}

	counts := tel.Reports("count")
	require.NotEmpty(t, counts)
	require.Equal(t, "connect: client.rows", counts[len(counts)-1].ID)
	require.Equal(t, []any{int64(3)}, counts[len(counts)-1].Params)
}

func TestQueryPostSendsJSON(t *testing.T) {
	fake := &fakeConnect{responses: map[string]string{"": `{"id": "new"}`}}
	client, _ := setup(t, fake, false)

	in, err := datasource.NewAPIInput("/purchasing/v1/release-search", "post")
	require.NoError(t, err)
	in.SetFields(map[string]any{"partId": "278780-20", "active": true})

	res, err := client.Query(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, []any{"new"}, res.Column("id"))

	require.Len(t, fake.calls, 1)
	require.Equal(t, "POST", fake.calls[0].Method)
	require.Equal(t, "/purchasing/v1/release-search", fake.calls[0].Path)
	require.Equal(t, "", fake.calls[0].Customer)
	require.Equal(t, "", fake.calls[0].Query)
	require.JSONEq(t, `{"partId": "278780-20", "active": true}`, fake.calls[0].Body)

	raw, ok := res.Raw.([]json.RawMessage)
	require.True(t, ok)
	require.Len(t, raw, 1)
}

func TestQueryRawPayload(t *testing.T) {
	fake := &fakeConnect{responses: map[string]string{"": `[]`}}
	client, _ := setup(t, fake, false)

	in, err := datasource.NewRawInput("/platform/custom-fields/v1/field-types", "api", []any{"a", "b"})
	require.NoError(t, err)
	require.NoError(t, in.SetMethod("put"))

	res, err := client.Query(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, 0, res.Len())
	require.JSONEq(t, `["a", "b"]`, fake.calls[0].Body)
}

func TestQueryAPIError(t *testing.T) {
	fake := &fakeConnect{
		status:    http.StatusUnauthorized,
		responses: map[string]string{"79870": `{"message": "api key invalid"}`},
	}
	client, tel := setup(t, fake, false)

	in, err := datasource.NewAPIInput("/mdm/v1/customers", "GET")
	require.NoError(t, err)

	_, err = client.Query(context.Background(), in, "79870")
	var apiErr *datasource.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.Status)
	require.Equal(t, "api key invalid", apiErr.Message())
	require.Len(t, fake.calls, 1)

	broken := tel.Reports("broken")
	require.Len(t, broken, 1)
	require.Equal(t, "connect: client.query", broken[0].ID)
}

func TestQueryRejectsOtherKinds(t *testing.T) {
	client, _ := setup(t, &fakeConnect{}, false)
	in, err := datasource.NewInput("9062", "ux")
	require.NoError(t, err)
	_, err = client.Query(context.Background(), in)
	var validationErr *datasource.ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestNewClientNeedsKey(t *testing.T) {
	src, err := datasource.NewSource(context.Background(), datasource.SourceOptions{
		Kind:       datasource.KindAPI,
		Credential: datasource.BasicAuth{Username: "u", Password: "p"},
	})
	require.NoError(t, err)
	_, err = NewClient(src, &telemetry.Recorder{}, restyutil.DefaultOptions())
	require.Error(t, err)

	ux, err := datasource.NewSource(context.Background(), datasource.SourceOptions{Kind: datasource.KindUX})
	require.NoError(t, err)
	_, err = NewClient(ux, &telemetry.Recorder{}, restyutil.DefaultOptions())
	var validationErr *datasource.ValidationError
	require.ErrorAs(t, err, &validationErr)
}
