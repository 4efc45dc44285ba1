package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// RequestBody builds the submission body for batch:
// {"data": [...], "timestamp": "...", "organization": "..."[, "context": "..."]}.
func (s *Session) RequestBody(batch Batch) ([]byte, error) {
	data := []byte{'['}
	for i, record := range batch.Records {
		if !gjson.ValidBytes(record) {
			return nil, fmt.Errorf("record %d is not valid json", i)
		}
		if i > 0 {
			data = append(data, ',')
		}
		data = append(data, record...)
	}
	data = append(data, ']')

	body := []byte(`{}`)
	var err error
	body, err = sjson.SetRawBytes(body, "data", data)
	if err == nil {
		body, err = sjson.SetBytes(body, "timestamp", s.timestamp())
	}
	if err == nil {
		body, err = sjson.SetBytes(body, "organization", s.Config.Organization.ID)
	}
	if c, exists := s.Config.RequestContext(batch.Kind); exists && err == nil {
		body, err = sjson.SetBytes(body, "context", c)
	}
	return body, err
}

// Submit posts batch to its configured endpoint and returns the decoded
// response. Network failures, non-2xx statuses and undecodable bodies all
// return an error; CodeOf tells them apart.
func (s *Session) Submit(ctx context.Context, batch Batch) (json.RawMessage, error) {
	op := fmt.Sprintf("%s validation sync", batch.Kind)
	log := s.logger()

	url, exists := s.Config.EndpointURL(batch.Kind)
	if !exists {
		return nil, newError(CodeInvalidConfig, op, fmt.Errorf("no endpoint configured for batch kind %q", batch.Kind))
	}
	body, err := s.RequestBody(batch)
	if err != nil {
		return nil, newError(CodeDecode, op, err)
	}
	builder, err := s.ValidationAPIBuilder(ctx, url, s.httpClient(), batch.Kind)
	if err != nil {
		return nil, newError(CodeUnauthorized, op, err)
	}

	var response string
	err = builder.
		Post().
		BodyBytes(body).
		ContentType("application/json").
		ToString(&response).
		Fetch(ctx)
	if err != nil {
		log.Errorf("%s failed: %v", op, err)
		return nil, transportError(op, err)
	}
	if !gjson.Valid(response) {
		log.Errorf("%s failed: invalid json response:\n%s", op, response)
		return nil, newError(CodeDecode, op, errors.New("invalid json response"))
	}

	var compact bytes.Buffer
	if err = json.Compact(&compact, []byte(response)); err != nil {
		return nil, newError(CodeDecode, op, err)
	}
	log.Infof("%s successful: %d records", op, len(batch.Records))
	return json.RawMessage(compact.Bytes()), nil
}

func (s *Session) newReport() Report {
	return Report{
		Timestamp:    s.timestamp(),
		Organization: s.Config.Organization.ID,
		Results:      []Outcome{},
	}
}

// Run submits batches one at a time, in order. The first failure is logged,
// recorded in Report.Error and stops the run; results of batches submitted
// before it are kept. Run never returns a nil-valued report.
func (s *Session) Run(ctx context.Context, batches Batches) Report {
	log := s.logger()
	report := s.newReport()
	log.Info("Starting complete sync process")

	for _, batch := range batches.All() {
		response, err := s.Submit(ctx, batch)
		if err != nil {
			log.Errorf("Sync process failed: %v", err)
			report.fail(err)
			return report
		}
		report.Results = append(report.Results, Outcome{Kind: batch.Kind, Response: response})
	}

	log.Info("Complete sync process finished successfully")
	return report
}

// SyncAll loads batches from source and runs them. A load failure produces
// a report with no results and Error set, without any network call.
func (s *Session) SyncAll(ctx context.Context, source BatchSource) Report {
	batches, err := source.Load(ctx)
	if err != nil {
		report := s.newReport()
		cause := newError(CodeDataLoad, "load batches", err)
		s.logger().Errorf("Sync process failed: %v", cause)
		report.fail(cause)
		return report
	}
	return s.Run(ctx, batches)
}
