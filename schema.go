// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package adaptiveform

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidSchema indicates a form definition that cannot be built
	ErrInvalidSchema = errors.New("invalid form schema")

	// ErrNoItems indicates a form definition without any items
	ErrNoItems = errors.New("form has no items")
)

// LoadSchemaFile reads a JSON or YAML form definition from file
func LoadSchemaFile(file string) (map[string]any, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	schema, err := LoadSchemaReader(f)
	if err != nil {
		return nil, fmt.Errorf("could not load %s: %w", file, err)
	}

	return schema, nil
}

// LoadSchemaReader reads a JSON or YAML form definition from r
func LoadSchemaReader(r io.Reader) (map[string]any, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	return ParseSchema(b)
}

// ParseSchema parses a JSON or YAML form definition, numbers become float64
func ParseSchema(b []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidSchema)
	}

	var raw any
	err := yaml.Unmarshal(b, &raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSchema, err)
	}

	schema, ok := normalizeValue(raw).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: document is not an object", ErrInvalidSchema)
	}

	return schema, nil
}

// ParseData parses a JSON or YAML data document for ImportData
func ParseData(b []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(b)) == 0 {
		return map[string]any{}, nil
	}

	var raw any
	err := yaml.Unmarshal(b, &raw)
	if err != nil {
		return nil, err
	}

	d, ok := normalizeValue(raw).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("data is not an object")
	}

	return d, nil
}

// normalizeValue converts decoded YAML into the shapes JSON decoding produces
func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		res := make(map[string]any, len(t))
		for k, e := range t {
			res[k] = normalizeValue(e)
		}
		return res
	case map[any]any:
		res := make(map[string]any, len(t))
		for k, e := range t {
			res[fmt.Sprint(k)] = normalizeValue(e)
		}
		return res
	case []any:
		res := make([]any, len(t))
		for i, e := range t {
			res[i] = normalizeValue(e)
		}
		return res
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case uint64:
		return float64(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}
