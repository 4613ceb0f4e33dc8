// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package adaptiveform

import (
	"strings"

	"github.com/choria-io/adaptiveform/constraints"
)

// State is a snapshot of a node, it holds only plain values and children snapshots
type State map[string]any

// ID is the id of the node the state was taken from
func (s State) ID() string { return stringProp(s, "id") }

// Value is the value of a field snapshot
func (s State) Value() any { return s["value"] }

// Valid reports the validity of a field snapshot, nil when not yet validated
func (s State) Valid() any { return s["valid"] }

// Items are the children snapshots of a container
func (s State) Items() []State {
	items, _ := s["items"].([]any)
	res := make([]State, 0, len(items))
	for _, i := range items {
		if st, ok := i.(State); ok {
			res = append(res, st)
		}
	}

	return res
}

// plainValue converts nodes into their snapshots so values can leave the runtime
func plainValue(v any) any {
	switch t := v.(type) {
	case Node:
		if t == nil {
			return nil
		}
		return t.State()
	case []any:
		res := make([]any, len(t))
		for i, e := range t {
			res[i] = plainValue(e)
		}
		return res
	default:
		return v
	}
}

// Validation is the outcome of validating a form
type Validation struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"validationErrors"`
}

// Attachment is a file value picked up for submission
type Attachment struct {
	// DataRef is the location of the field in the data, used as part name prefix
	DataRef string
	File    *constraints.FileObject
}

// FormState is a snapshot of the form with data and attachments computed on demand
type FormState struct {
	State

	form *Form
}

// Data is the exported form data at the time it is called
func (s FormState) Data() any {
	return s.form.ExportData()
}

// Attachments are the files held by every file field keyed by their data location
func (s FormState) Attachments() map[string][]Attachment {
	return s.form.attachments()
}

// attachments walks the file fields collecting their file values
func (f *Form) attachments() map[string][]Attachment {
	res := map[string][]Attachment{}

	f.Visit(func(n Node) {
		fld, ok := n.(*Field)
		if !ok || fld.kind != FileKind {
			return
		}

		ref := fileDataRef(fld)

		var files []any
		switch v := fld.value().(type) {
		case []any:
			files = v
		case nil:
		default:
			files = []any{v}
		}

		for _, file := range files {
			fo, ok := file.(*constraints.FileObject)
			if !ok || fo.Content == nil {
				continue
			}
			res[ref] = append(res[ref], Attachment{DataRef: ref, File: fo})
		}
	})

	return res
}

// fileDataRef is the dataRef of the field or its qualified name in dataRef form
func fileDataRef(f *Field) string {
	if ref, ok := f.model["dataRef"].(string); ok && ref != "" {
		return ref
	}

	return strings.TrimPrefix(f.QualifiedName(), "$form.")
}
