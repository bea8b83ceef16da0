package output

import (
	"bytes"
	"encoding/json"
)

// field is one key of a document.
type field struct {
	key   string
	value any
}

// document is a JSON object that keeps its keys in insertion order. Players
// are sensitive to neither order nor escaping, but stable output keeps the
// published files diffable.
type document []field

func (d document) has(key string) bool {
	for _, f := range d {
		if f.key == key {
			return true
		}
	}
	return false
}

// MarshalJSON encodes the fields in order without HTML escaping.
func (d document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range d {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encodeValue(&buf, f.key); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := encodeValue(&buf, f.value); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, v any) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	// Encode terminates every value with a newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}

func encodeDocuments(docs []document) ([]byte, error) {
	if docs == nil {
		docs = []document{}
	}
	var buf bytes.Buffer
	if err := encodeValue(&buf, docs); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
