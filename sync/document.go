package sync

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Document is read-only access to an opaque JSON document, such as a remote
// response whose schema this package does not own.
type Document struct {
	data gjson.Result
}

func NewDocument(raw []byte) Document {
	return Document{data: gjson.ParseBytes(raw)}
}

func (d Document) Exists() bool {
	return d.data.Exists()
}

func (d Document) Raw() json.RawMessage {
	return json.RawMessage(d.data.Raw)
}

func (d Document) Get(path string) Document {
	return Document{data: d.data.Get(path)}
}

func (d Document) StringForPath(path string) (string, bool) {
	result := d.data.Get(path)
	return result.String(), result.Exists() && (result.Value() != nil)
}

func (d Document) IntForPath(path string) (int64, bool) {
	result := d.data.Get(path)
	return result.Int(), result.Exists() && (result.Value() != nil)
}

func (d Document) FloatForPath(path string) (float64, bool) {
	result := d.data.Get(path)
	return result.Float(), result.Exists() && (result.Value() != nil)
}

func (d Document) BoolForPath(path string) (bool, bool) {
	result := d.data.Get(path)
	return result.Bool(), result.Exists() && (result.Value() != nil)
}

// LenForPath returns the element count of an array, the key count of an
// object or the length of a string at path.
func (d Document) LenForPath(path string) (int, bool) {
	result := d.data.Get(path)
	if !result.Exists() || result.Value() == nil {
		return 0, false
	}
	switch {
	case result.IsArray():
		return len(result.Array()), true
	case result.IsObject():
		return len(result.Map()), true
	default:
		return len(result.String()), true
	}
}

// Items returns the elements of the array at path, or nil.
func (d Document) Items(path string) []Document {
	result := d.data.Get(path)
	if !result.IsArray() {
		return nil
	}
	var items []Document
	for _, v := range result.Array() {
		items = append(items, Document{data: v})
	}
	return items
}
