package sync

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/iancoleman/strcase"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Outcome is the decoded response of one successful batch submission.
type Outcome struct {
	Kind     string
	Response json.RawMessage
}

// Report is the aggregate outcome of one sync run.
//
// Results hold the successful submissions in the order they were made.
// Error is set when the run stopped early, either because loading the
// batches failed or because a submission failed; results completed before
// the failure are kept.
type Report struct {
	Timestamp    string
	Organization string
	Results      []Outcome
	Error        string

	cause error
}

type ReportStatus string

const (
	// StatusComplete means every supplied batch was submitted successfully.
	StatusComplete ReportStatus = "complete"
	// StatusPartial means at least one batch succeeded before a failure.
	StatusPartial ReportStatus = "partial"
	// StatusFailed means the run failed before any batch succeeded.
	StatusFailed ReportStatus = "failed"
)

func (r Report) Status() ReportStatus {
	switch {
	case r.Error == "":
		return StatusComplete
	case len(r.Results) > 0:
		return StatusPartial
	default:
		return StatusFailed
	}
}

// Err returns nil for a complete run and a CodePartialSync error otherwise,
// so a partially failed run cannot be mistaken for a successful one.
func (r Report) Err() error {
	if r.Error == "" {
		return nil
	}
	cause := r.cause
	if cause == nil {
		cause = errors.New(r.Error)
	}
	return newError(CodePartialSync, fmt.Sprintf("sync %s", r.Status()), cause)
}

// Cause returns the error that stopped the run, carrying its own code.
// It is nil for complete runs and for reports read back from storage.
func (r Report) Cause() error {
	return r.cause
}

// Result returns the response recorded for kind.
func (r Report) Result(kind string) (json.RawMessage, bool) {
	for _, o := range r.Results {
		if o.Kind == kind {
			return o.Response, true
		}
	}
	return nil, false
}

// Kinds returns the kinds with a recorded result, in submission order.
func (r Report) Kinds() []string {
	result := make([]string, len(r.Results))
	for i, o := range r.Results {
		result[i] = o.Kind
	}
	return result
}

func (r *Report) fail(err error) {
	r.cause = err
	r.Error = err.Error()
}

// MarshalJSON writes results as an object whose keys keep submission order.
func (r Report) MarshalJSON() ([]byte, error) {
	results := []byte{'{'}
	for i, o := range r.Results {
		if i > 0 {
			results = append(results, ',')
		}
		key, err := json.Marshal(o.Kind)
		if err != nil {
			return nil, err
		}
		results = append(results, key...)
		results = append(results, ':')
		if len(o.Response) == 0 {
			results = append(results, "null"...)
		} else {
			results = append(results, o.Response...)
		}
	}
	results = append(results, '}')

	out := []byte(`{}`)
	var err error
	out, err = sjson.SetBytes(out, "timestamp", r.Timestamp)
	if err == nil {
		out, err = sjson.SetBytes(out, "organization", r.Organization)
	}
	if err == nil {
		out, err = sjson.SetRawBytes(out, "results", results)
	}
	if err == nil && r.Error != "" {
		out, err = sjson.SetBytes(out, "error", r.Error)
	}
	return out, err
}

func (r *Report) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return errors.New("invalid json report")
	}
	parsed := gjson.ParseBytes(data)
	result := Report{
		Timestamp:    parsed.Get("timestamp").String(),
		Organization: parsed.Get("organization").String(),
		Error:        parsed.Get("error").String(),
	}
	parsed.Get("results").ForEach(func(key, value gjson.Result) bool {
		result.Results = append(result.Results, Outcome{
			Kind:     key.String(),
			Response: json.RawMessage(value.Raw),
		})
		return true
	})
	*r = result
	return nil
}

// Render returns the plain-text form of the report.
func (r Report) Render() string {
	var b strings.Builder
	b.WriteString("\nValidation Services Sync Report\n")
	b.WriteString("===============================\n")
	fmt.Fprintf(&b, "Organization: %s\n", r.Organization)
	fmt.Fprintf(&b, "Timestamp: %s\n", r.Timestamp)
	fmt.Fprintf(&b, "Status: %s\n", r.Status())
	b.WriteString("\nSync Results:\n")

	for _, o := range r.Results {
		fmt.Fprintf(&b, "\n%s:\n", strcase.ToScreamingSnake(o.Kind))
		doc := NewDocument(o.Response)
		if n, exists := doc.LenForPath("data"); exists {
			fmt.Fprintf(&b, "  - Records processed: %d\n", n)
		}
		if status, exists := doc.StringForPath("status"); exists {
			fmt.Fprintf(&b, "  - Status: %s\n", status)
		}
	}

	if r.Error != "" {
		fmt.Fprintf(&b, "\nERROR: %s\n", r.Error)
	}
	return b.String()
}
