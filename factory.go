// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package adaptiveform

import (
	"fmt"

	"github.com/choria-io/adaptiveform/constraints"
)

// newElement creates the node for a definition, repeatable definitions are wrapped in an
// array container that manages their instances
func newElement(def map[string]any, form *Form, parent *Container) (element, error) {
	if def == nil {
		return nil, fmt.Errorf("%w: item definition is empty", ErrInvalidSchema)
	}

	if ft, ok := def["fieldType"].(string); ok {
		if alt, ok := alternateFieldTypes[ft]; ok {
			def["fieldType"] = alt
		}
	}

	if isRepeatable(def) {
		return newContainer(instanceManager(def), form, parent), nil
	}

	if _, ok := def["items"]; ok {
		return newContainer(def, form, parent), nil
	}

	return newField(def, form, parent), nil
}

// isRepeatable reports definitions marked repeatable whose bounds allow at least one instance
func isRepeatable(def map[string]any) bool {
	if def["repeatable"] != true {
		return false
	}

	minV, hasMin := occurrence(def, "minOccur")
	maxV, hasMax := occurrence(def, "maxOccur")

	switch {
	case !hasMin && !hasMax:
		return true
	case hasMin && hasMax:
		return maxV != 0
	case hasMin:
		return minV >= 0
	default:
		return maxV != 0
	}
}

func occurrence(def map[string]any, key string) (float64, bool) {
	v, ok := def[key]
	if !ok || v == nil {
		return 0, false
	}

	return constraints.ToNumber(v)
}

// instanceManager wraps a repeatable definition in an array container using the
// definition as item template
func instanceManager(def map[string]any) map[string]any {
	minV, _ := occurrence(def, "minOccur")
	maxV, hasMax := occurrence(def, "maxOccur")
	if !hasMax || maxV == 0 {
		maxV = -1
	}

	item := make(map[string]any, len(def))
	for k, v := range def {
		switch k {
		case "minOccur", "maxOccur", "repeatable", "name", "dataRef":
			continue
		}
		item[k] = v
	}
	if _, ok := item["items"]; ok {
		item["type"] = "object"
	}

	wrapper := map[string]any{
		"minItems":  minV,
		"maxItems":  maxV,
		"fieldType": def["fieldType"],
		"type":      "array",
		"name":      def["name"],
		"items":     []any{item},
	}
	if ref, ok := def["dataRef"]; ok {
		wrapper["dataRef"] = ref
	}

	return wrapper
}
