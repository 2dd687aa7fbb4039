package classic

import (
	"encoding/xml"
	"pmcautomation/internal/datasource"
)

const (
	soapNamespace       = "http://schemas.xmlsoap.org/soap/envelope/"
	dataSourceNamespace = "http://www.plexus-online.com/DataSource"
	executeAction       = dataSourceNamespace + "/ExecuteDataSource"
)

type requestEnvelope struct {
	XMLName xml.Name `xml:"soap:Envelope"`
	Soap    string   `xml:"xmlns:soap,attr"`
	Body    struct {
		Execute executeDataSource `xml:"ExecuteDataSource"`
	} `xml:"soap:Body"`
}

type executeDataSource struct {
	Xmlns   string         `xml:"xmlns,attr"`
	Request executeRequest `xml:"ExecuteDataSourceRequest"`
}

type executeRequest struct {
	DataSourceKey   string           `xml:"DataSourceKey"`
	InputParameters []inputParameter `xml:"InputParameters>InputParameter"`
}

type inputParameter struct {
	Value    string `xml:"Value"`
	Name     string `xml:"Name"`
	Required bool   `xml:"Required"`
	Output   bool   `xml:"Output"`
}

func newRequestEnvelope(key string, params []datasource.Parameter) requestEnvelope {
	env := requestEnvelope{Soap: soapNamespace}
	env.Body.Execute.Xmlns = dataSourceNamespace
	env.Body.Execute.Request.DataSourceKey = key
	for _, p := range params {
		env.Body.Execute.Request.InputParameters = append(
			env.Body.Execute.Request.InputParameters,
			inputParameter{Name: p.Name, Value: p.Value},
		)
	}
	return env
}

type responseEnvelope struct {
	Body struct {
		Fault *struct {
			Code   string `xml:"faultcode"`
			String string `xml:"faultstring"`
		} `xml:"Fault"`
		Response struct {
			Result executeResult `xml:"ExecuteDataSourceResult"`
		} `xml:"ExecuteDataSourceResponse"`
	} `xml:"Body"`
}

type executeResult struct {
	Error            bool          `xml:"Error"`
	ErrorNo          int           `xml:"ErrorNo"`
	Message          string        `xml:"Message"`
	DataSourceKey    string        `xml:"DataSourceKey"`
	DataSourceName   string        `xml:"DataSourceName"`
	InstanceNo       string        `xml:"InstanceNo"`
	TimeElapsed      string        `xml:"TimeElapsed"`
	OutputParameters []outputParam `xml:"OutputParameters>OutputParameter"`
	ResultSets       []resultSet   `xml:"ResultSets>ResultSet"`
}

type outputParam struct {
	Name  string `xml:"Name"`
	Value string `xml:"Value"`
}

type resultSet struct {
	RowCount int   `xml:"RowCount"`
	Rows     []row `xml:"Rows>Row"`
}

type row struct {
	Columns []column `xml:"Columns>Column"`
}

type column struct {
	Name  string `xml:"Name"`
	Value string `xml:"Value"`
}
