// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package adaptiveform

import (
	"fmt"
)

// CreateFormInstance builds a form from schema importing its data property when present,
// the queue is drained once the callback set with WithCallback returns
func CreateFormInstance(schema map[string]any, opts ...Option) (*Form, error) {
	f, err := NewForm(schema, opts...)
	if err != nil {
		return nil, err
	}

	if d, ok := schema["data"].(map[string]any); ok {
		err = f.loadData(d)
		if err != nil {
			return nil, err
		}
	}

	if f.callback != nil {
		f.callback(f)
	}

	f.queue.RunPending()

	return f, nil
}

// ValidateFormInstance reports if data is valid for the form described by schema
func ValidateFormInstance(schema map[string]any, data map[string]any) (bool, error) {
	v, err := ValidateFormData(schema, data)
	if err != nil {
		return false, err
	}

	return v.Valid, nil
}

// ValidateFormData validates data for the form described by schema, returning every failure
func ValidateFormData(schema map[string]any, data map[string]any) (Validation, error) {
	items, _ := schema["items"].([]any)
	if len(items) == 0 {
		return Validation{}, fmt.Errorf("%w", ErrNoItems)
	}

	f, err := CreateFormInstance(schema)
	if err != nil {
		return Validation{}, err
	}

	if data != nil {
		err = f.ImportData(data)
		if err != nil {
			return Validation{}, err
		}
	}

	errs := f.Validate()

	return Validation{Valid: len(errs) == 0, Errors: errs}, nil
}
