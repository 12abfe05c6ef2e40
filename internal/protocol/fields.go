package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Field is one top-level member of a protocol message. Value holds compact JSON.
type Field struct {
	Key   string
	Value json.RawMessage
}

// Fields is a protocol message with its member order preserved. The order
// matters because the MAC is computed over the serialized object.
type Fields []Field

var errNotObject = errors.New("message is not a JSON object")

// ParseFields decodes a JSON object keeping the order its members arrived in.
func ParseFields(body []byte) (Fields, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errNotObject
	}

	var fields Fields
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			return nil, fmt.Errorf("field %q: %w", key, err)
		}
		fields = append(fields, Field{Key: key, Value: buf.Bytes()})
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err == nil {
		return nil, errors.New("trailing data after message")
	}
	return fields, nil
}

func (f Fields) Get(key string) (json.RawMessage, bool) {
	for _, field := range f {
		if field.Key == key {
			return field.Value, true
		}
	}
	return nil, false
}

func (f Fields) GetString(key string) (string, bool) {
	raw, ok := f.Get(key)
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return string(raw), true
	}
	return s, true
}

func (f Fields) Without(key string) Fields {
	out := make(Fields, 0, len(f))
	for _, field := range f {
		if field.Key != key {
			out = append(out, field)
		}
	}
	return out
}

// Set replaces key in place or appends it.
func (f Fields) Set(key string, value interface{}) (Fields, error) {
	raw, err := encode(value)
	if err != nil {
		return nil, err
	}
	out := make(Fields, len(f))
	copy(out, f)
	for i := range out {
		if out[i].Key == key {
			out[i].Value = raw
			return out, nil
		}
	}
	return append(out, Field{Key: key, Value: raw}), nil
}

// MustSet is Set for values that always encode: strings and numbers.
func (f Fields) MustSet(key string, value interface{}) Fields {
	out, err := f.Set(key, value)
	if err != nil {
		panic(err)
	}
	return out
}

func (f Fields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, field := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := encode(field.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if len(field.Value) == 0 {
			buf.WriteString("null")
		} else {
			buf.Write(field.Value)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// encode marshals without HTML escaping, the way the aggregator serializes.
func encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
