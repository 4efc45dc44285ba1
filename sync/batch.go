package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// Batch is a named sequence of opaque records submitted to one endpoint.
// The record schema belongs to the remote API.
type Batch struct {
	Kind    string
	Records []json.RawMessage
}

// Batches is an insertion-ordered set of batches keyed by kind.
// The zero value is empty and ready to use.
type Batches struct {
	items []Batch
}

// NewBatches returns batches in the given order.
func NewBatches(batches ...Batch) (Batches, error) {
	var result Batches
	for _, b := range batches {
		if err := result.Add(b.Kind, b.Records); err != nil {
			return Batches{}, err
		}
	}
	return result, nil
}

// Add appends a batch. A kind may only be added once.
func (b *Batches) Add(kind string, records []json.RawMessage) error {
	if kind == "" {
		return errors.New("batch kind must not be empty")
	}
	if _, exists := b.Get(kind); exists {
		return fmt.Errorf("duplicate batch kind %q", kind)
	}
	b.items = append(b.items, Batch{Kind: kind, Records: records})
	return nil
}

func (b Batches) Get(kind string) (Batch, bool) {
	for _, item := range b.items {
		if item.Kind == kind {
			return item, true
		}
	}
	return Batch{}, false
}

func (b Batches) Len() int {
	return len(b.items)
}

// All returns the batches in insertion order.
func (b Batches) All() []Batch {
	return append([]Batch(nil), b.items...)
}

func (b Batches) Kinds() []string {
	result := make([]string, len(b.items))
	for i, item := range b.items {
		result[i] = item.Kind
	}
	return result
}

// SplitRecords splits a JSON array into its raw elements.
func SplitRecords(data []byte) ([]json.RawMessage, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("invalid json")
	}
	parsed := gjson.ParseBytes(data)
	if !parsed.IsArray() {
		return nil, errors.New("expected a json array of records")
	}
	result := []json.RawMessage{}
	parsed.ForEach(func(_, value gjson.Result) bool {
		result = append(result, json.RawMessage(value.Raw))
		return true
	})
	return result, nil
}

// BatchSource produces the batches for one sync run.
type BatchSource interface {
	Load(ctx context.Context) (Batches, error)
}

// LocalBatchSource reads <Dir>/<kind>.json for each kind, in order.
// Kinds without a file are skipped.
type LocalBatchSource struct {
	FS    billy.Filesystem
	Dir   string
	Kinds []string
}

func (s LocalBatchSource) Load(ctx context.Context) (Batches, error) {
	var result Batches
	for _, kind := range s.Kinds {
		if err := ctx.Err(); err != nil {
			return Batches{}, err
		}
		name := s.FS.Join(s.Dir, kind+".json")
		exists, err := fileExists(s.FS, name)
		if err != nil {
			return Batches{}, fmt.Errorf("failed to stat %s: %w", name, err)
		}
		if !exists {
			continue
		}
		data, err := util.ReadFile(s.FS, name)
		if err != nil {
			return Batches{}, fmt.Errorf("failed to read %s: %w", name, err)
		}
		records, err := SplitRecords(data)
		if err != nil {
			return Batches{}, fmt.Errorf("failed to load %s: %w", name, err)
		}
		if err = result.Add(kind, records); err != nil {
			return Batches{}, err
		}
	}
	return result, nil
}

type unimplementedSource struct {
	name   string
	logger logrus.FieldLogger
}

func (s unimplementedSource) Load(ctx context.Context) (Batches, error) {
	s.logger.Warnf("External data source '%s' not implemented", s.name)
	return Batches{}, nil
}

// LocalDataSource is the only data source name with an implementation.
const LocalDataSource = "local"

// SourceFor resolves a data source name. Names other than "local" yield a
// source that logs a warning and returns no batches.
func (s *Session) SourceFor(fs billy.Filesystem, name string) BatchSource {
	if name == LocalDataSource || name == "" {
		return LocalBatchSource{
			FS:    fs,
			Dir:   s.Config.Paths.Data,
			Kinds: s.Config.Kinds(),
		}
	}
	return unimplementedSource{name: name, logger: s.logger()}
}
