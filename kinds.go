// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package adaptiveform

// FieldKind is the closed set of node variants, derived from the fieldType of a definition
type FieldKind int

const (
	OtherKind FieldKind = iota
	TextKind
	MultilineKind
	NumberKind
	DateKind
	CheckboxKind
	CheckboxGroupKind
	RadioKind
	SelectKind
	FileKind
	ButtonKind
	PlainTextKind
	ImageKind
	PanelKind
	RepeatableKind
	FormKind
)

var kindNames = map[FieldKind]string{
	OtherKind:         "other",
	TextKind:          "text",
	MultilineKind:     "multiline",
	NumberKind:        "number",
	DateKind:          "date",
	CheckboxKind:      "checkbox",
	CheckboxGroupKind: "checkbox-group",
	RadioKind:         "radio",
	SelectKind:        "select",
	FileKind:          "file",
	ButtonKind:        "button",
	PlainTextKind:     "plain-text",
	ImageKind:         "image",
	PanelKind:         "panel",
	RepeatableKind:    "repeatable",
	FormKind:          "form",
}

func (k FieldKind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}

	return "other"
}

var fieldTypeKinds = map[string]FieldKind{
	"text-input":      TextKind,
	"multiline-input": MultilineKind,
	"number-input":    NumberKind,
	"date-input":      DateKind,
	"checkbox":        CheckboxKind,
	"checkbox-group":  CheckboxGroupKind,
	"radio-group":     RadioKind,
	"drop-down":       SelectKind,
	"file-input":      FileKind,
	"button":          ButtonKind,
	"plain-text":      PlainTextKind,
	"image":           ImageKind,
	"panel":           PanelKind,
}

// alternateFieldTypes maps html style input names to field types
var alternateFieldTypes = map[string]string{
	"text":     "text-input",
	"number":   "number-input",
	"email":    "text-input",
	"file":     "file-input",
	"range":    "range",
	"textarea": "multiline-input",
}

// optionalProperties are only carried by the kinds that list them in their capability
var optionalProperties = map[string]bool{
	"editValue": true,
	"format":    true,
	"maxLength": true,
	"minLength": true,
	"pattern":   true,
}

type capability struct {
	// static kinds never bind to data
	static bool
	// excluded properties read as nil and ignore writes
	excluded map[string]bool
	// included lists the optional properties the kind carries
	included map[string]bool
}

func nameSet(names ...string) map[string]bool {
	res := make(map[string]bool, len(names))
	for _, n := range names {
		res[n] = true
	}

	return res
}

var capabilities = map[FieldKind]capability{
	TextKind:      {included: nameSet("format", "maxLength", "minLength", "pattern")},
	NumberKind:    {included: nameSet("editValue")},
	DateKind:      {included: nameSet("editValue", "format")},
	FileKind:      {included: nameSet("format")},
	ButtonKind:    {excluded: nameSet("readOnly")},
	PlainTextKind: {static: true, excluded: nameSet("readOnly", "enabled")},
	ImageKind:     {static: true, excluded: nameSet("readOnly", "enabled")},
}

// Supports reports if nodes of this kind carry the property
func (k FieldKind) Supports(prop string) bool {
	c := capabilities[k]
	if c.excluded[prop] {
		return false
	}

	if optionalProperties[prop] {
		return c.included[prop]
	}

	return true
}

// IsStatic reports kinds that never bind to data
func (k FieldKind) IsStatic() bool {
	return capabilities[k].static
}

// IsContainer reports kinds holding children
func (k FieldKind) IsContainer() bool {
	return k == PanelKind || k == RepeatableKind || k == FormKind
}

func kindOf(fieldType string) FieldKind {
	if k, ok := fieldTypeKinds[fieldType]; ok {
		return k
	}

	return OtherKind
}

// editableProperties may be the target of rules and event updates
var editableProperties = nameSet(
	"value", "label", "description", "visible", "enabled", "readOnly", "enum", "enumNames",
	"required", "properties", "exclusiveMinimum", "exclusiveMaximum", "maximum", "maxItems",
	"minimum", "minItems",
)

// dependencyProperties changing on a node re-run the rules of its dependents
var dependencyProperties = func() map[string]bool {
	res := nameSet("valid", "index", "activeChild", "items")
	for k := range editableProperties {
		res[k] = true
	}
	return res
}()

// trackedProperties register a dependency when read by a rule
var trackedProperties = nameSet(
	"index", "label", "visible", "description", "properties", "value", "valid", "enum",
	"enumNames", "required", "readOnly", "enabled", "exclusiveMinimum", "exclusiveMaximum",
	"items", "maxItems", "minItems", "activeChild",
)

var validTypes = nameSet("string", "number", "integer", "boolean", "file", "string[]", "number[]",
	"integer[]", "boolean[]", "file[]", "array", "object")

var arrayTypes = nameSet("string[]", "boolean[]", "number[]", "array")

// defaultFieldType infers a field type for definitions that lack one
func defaultFieldType(def map[string]any) string {
	typ, _ := def["type"].(string)
	if typ == "" {
		typ = "string"
	}

	if e, ok := def["enum"]; ok {
		enum, _ := e.([]any)
		if len(enum) > 2 || arrayTypes[typ] {
			return "drop-down"
		}
		return "checkbox"
	}

	if typ == "string" || typ == "string[]" {
		format, _ := def["format"].(string)
		switch format {
		case "date":
			return "date-input"
		case "data-url", "binary":
			return "file-input"
		default:
			return "text-input"
		}
	}

	switch typ {
	case "number":
		return "number-input"
	case "boolean":
		return "checkbox"
	case "object", "array":
		return "panel"
	case "file", "file[]":
		return "file-input"
	default:
		return "text-input"
	}
}

// fallbackTypes maps field types to the value type used when none is declared
var fallbackTypes = map[string]string{
	"text-input":      "string",
	"multiline-input": "string",
	"number-input":    "number",
	"date-input":      "string",
	"plain-text":      "string",
	"image":           "string",
	"checkbox":        "boolean",
}

func isFileDefinition(def map[string]any) bool {
	typ, _ := def["type"].(string)
	format, _ := def["format"].(string)

	return typ == "file" || typ == "file[]" ||
		((typ == "string" || typ == "string[]") && (format == "binary" || format == "data-url"))
}
