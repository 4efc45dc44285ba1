package sync

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path"

	"github.com/iancoleman/strcase"
)

// EndpointDocRow represents a single row in the endpoint documentation.
type EndpointDocRow struct {
	Kind     string // Batch kind (e.g. "accounts")
	Heading  string // Heading used for the kind in text reports (e.g. "ACCOUNTS")
	Order    int    // 1-based submission position
	Path     string // Path relative to the base URL
	URL      string // Full endpoint URL
	Context  string // Request body "context" value, if any
	DataFile string // Local batch file read by the local data source
}

// EndpointDocumentation describes every endpoint a configuration submits to.
type EndpointDocumentation struct {
	Organization string
	BaseURL      string
	Rows         []EndpointDocRow
}

// GenerateEndpointDocumentation lists configured endpoints in submission order.
func GenerateEndpointDocumentation(config Config) EndpointDocumentation {
	doc := EndpointDocumentation{
		Organization: config.Organization.ID,
		BaseURL:      config.API.BaseURL,
		Rows:         []EndpointDocRow{},
	}
	for i, kind := range config.Kinds() {
		url, _ := config.EndpointURL(kind)
		c, _ := config.RequestContext(kind)
		doc.Rows = append(doc.Rows, EndpointDocRow{
			Kind:     kind,
			Heading:  strcase.ToScreamingSnake(kind),
			Order:    i + 1,
			Path:     config.API.Endpoints[kind],
			URL:      url,
			Context:  c,
			DataFile: path.Join(config.Paths.Data, kind+".json"),
		})
	}
	return doc
}

// FormatCSV formats the endpoint documentation as CSV.
func (d EndpointDocumentation) FormatCSV() (string, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{fmt.Sprintf("# Organization: %s", d.Organization)}); err != nil {
		return "", err
	}
	headers := []string{"Order", "Kind", "Report Heading", "Path", "URL", "Context", "Data File"}
	if err := writer.Write(headers); err != nil {
		return "", err
	}
	for _, row := range d.Rows {
		record := []string{fmt.Sprintf("%d", row.Order), row.Kind, row.Heading, row.Path, row.URL, row.Context, row.DataFile}
		if err := writer.Write(record); err != nil {
			return "", err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", err
	}

	return buf.String(), nil
}
