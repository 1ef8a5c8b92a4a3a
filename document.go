package amee

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Document is a decoded JSON response. The AMEE schema is not contractually
// fixed, so responses are generic mappings and fields are read defensively:
// each accessor tolerates absent keys and unexpected shapes.
type Document map[string]interface{}

// Get walks nested mappings along path, returning the value and whether the
// full path was present.
func (d Document) Get(path ...string) (interface{}, bool) {
	var current interface{} = map[string]interface{}(d)
	for _, key := range path {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// String returns the string at path, or "" if absent or not a string.
func (d Document) String(path ...string) string {
	value, ok := d.Get(path...)
	if !ok {
		return ""
	}
	s, _ := value.(string)
	return s
}

// Float returns the number at path. JSON numbers decode as float64; numeric
// strings are accepted too because AMEE returns amounts both ways.
func (d Document) Float(path ...string) (float64, bool) {
	value, ok := d.Get(path...)
	if !ok {
		return 0, false
	}
	switch v := value.(type) {
	case float64:
		return v, true
	case string:
		var f float64
		if _, err := fmt.Sscanf(v, "%g", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}

// Map returns the nested mapping at path, or nil if absent or not a mapping.
func (d Document) Map(path ...string) Document {
	value, ok := d.Get(path...)
	if !ok {
		return nil
	}
	m, _ := value.(map[string]interface{})
	return Document(m)
}

// Slice returns the array at path, or nil if absent or not an array.
func (d Document) Slice(path ...string) []interface{} {
	value, ok := d.Get(path...)
	if !ok {
		return nil
	}
	s, _ := value.([]interface{})
	return s
}

// Decode populates out (a struct pointer) from the document, honoring
// `mapstructure` field tags. Useful when a caller does want a fixed view of
// a response despite the loose schema.
func (d Document) Decode(out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(map[string]interface{}(d))
}
