// Copyright 2026 The TrustEdge Authors
// SPDX-License-Identifier: Apache-2.0

package canonjson

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
)

// ErrDuplicateKey is returned when an object repeats a key.
var ErrDuplicateKey = errors.New("canonjson: duplicate object key")

// maxDepth bounds nesting so hostile manifests cannot exhaust the stack.
const maxDepth = 64

// Marshal encodes v with encoding/json and returns the canonical form.
func Marshal(v any) ([]byte, error) {
	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(v); err != nil {
		return nil, fmt.Errorf("canonjson: %w", err)
	}
	return Canonicalize(buffer.Bytes())
}

// Canonicalize returns the canonical form of the JSON document in data.
func Canonicalize(data []byte) ([]byte, error) {
	return canonicalize(data, "")
}

// WithoutField returns the canonical form of the JSON object in data
// with the top-level key field removed. data must be an object.
func WithoutField(data []byte, field string) ([]byte, error) {
	if field == "" {
		return nil, errors.New("canonjson: empty field name")
	}
	return canonicalize(data, field)
}

func canonicalize(data []byte, dropTopLevel string) ([]byte, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	value, err := readValue(decoder, 0)
	if err != nil {
		return nil, err
	}
	if _, err := decoder.Token(); err != io.EOF {
		return nil, errors.New("canonjson: trailing data after document")
	}

	if dropTopLevel != "" {
		object, ok := value.(*object)
		if !ok {
			return nil, errors.New("canonjson: document is not an object")
		}
		object.remove(dropTopLevel)
	}

	var buffer bytes.Buffer
	if err := writeValue(&buffer, value); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

type member struct {
	key   string
	value any
}

type object struct {
	members []member
}

func (o *object) remove(key string) {
	kept := o.members[:0]
	for _, m := range o.members {
		if m.key != key {
			kept = append(kept, m)
		}
	}
	o.members = kept
}

func readValue(decoder *json.Decoder, depth int) (any, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("canonjson: nesting deeper than %d", maxDepth)
	}
	token, err := decoder.Token()
	if err != nil {
		if err == io.EOF {
			return nil, errors.New("canonjson: unexpected end of document")
		}
		return nil, fmt.Errorf("canonjson: %w", err)
	}

	switch token := token.(type) {
	case json.Delim:
		switch token {
		case '{':
			return readObject(decoder, depth)
		case '[':
			return readArray(decoder, depth)
		}
		return nil, fmt.Errorf("canonjson: unexpected delimiter %q", token)
	default:
		return token, nil
	}
}

func readObject(decoder *json.Decoder, depth int) (*object, error) {
	result := &object{}
	seen := make(map[string]bool)
	for decoder.More() {
		keyToken, err := decoder.Token()
		if err != nil {
			return nil, fmt.Errorf("canonjson: %w", err)
		}
		key, ok := keyToken.(string)
		if !ok {
			return nil, fmt.Errorf("canonjson: object key is %T", keyToken)
		}
		if seen[key] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateKey, key)
		}
		seen[key] = true

		value, err := readValue(decoder, depth+1)
		if err != nil {
			return nil, err
		}
		result.members = append(result.members, member{key: key, value: value})
	}
	if _, err := decoder.Token(); err != nil {
		return nil, fmt.Errorf("canonjson: %w", err)
	}
	sort.Slice(result.members, func(i, j int) bool {
		return result.members[i].key < result.members[j].key
	})
	return result, nil
}

func readArray(decoder *json.Decoder, depth int) ([]any, error) {
	result := []any{}
	for decoder.More() {
		value, err := readValue(decoder, depth+1)
		if err != nil {
			return nil, err
		}
		result = append(result, value)
	}
	if _, err := decoder.Token(); err != nil {
		return nil, fmt.Errorf("canonjson: %w", err)
	}
	return result, nil
}

func writeValue(buffer *bytes.Buffer, value any) error {
	switch value := value.(type) {
	case *object:
		buffer.WriteByte('{')
		for index, m := range value.members {
			if index > 0 {
				buffer.WriteByte(',')
			}
			if err := writeString(buffer, m.key); err != nil {
				return err
			}
			buffer.WriteByte(':')
			if err := writeValue(buffer, m.value); err != nil {
				return err
			}
		}
		buffer.WriteByte('}')
	case []any:
		buffer.WriteByte('[')
		for index, element := range value {
			if index > 0 {
				buffer.WriteByte(',')
			}
			if err := writeValue(buffer, element); err != nil {
				return err
			}
		}
		buffer.WriteByte(']')
	case string:
		return writeString(buffer, value)
	case json.Number:
		buffer.WriteString(value.String())
	case bool:
		if value {
			buffer.WriteString("true")
		} else {
			buffer.WriteString("false")
		}
	case nil:
		buffer.WriteString("null")
	default:
		return fmt.Errorf("canonjson: unexpected token type %T", value)
	}
	return nil
}

func writeString(buffer *bytes.Buffer, s string) error {
	var encoded bytes.Buffer
	encoder := json.NewEncoder(&encoded)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(s); err != nil {
		return fmt.Errorf("canonjson: %w", err)
	}
	buffer.Write(bytes.TrimSuffix(encoded.Bytes(), []byte("\n")))
	return nil
}
