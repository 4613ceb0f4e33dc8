// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package adaptiveform

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/choria-io/adaptiveform/constraints"
	"github.com/choria-io/adaptiveform/data"
)

var (
	formatCategory = regexp.MustCompile(`^(?:date|num)\|`)
	rangeProps     = []string{"minimum", "maximum", "exclusiveMinimum", "exclusiveMaximum"}
	defaultAccept  = []any{"audio/*", "video/*", "image/*", "text/*", "application/pdf"}
)

// Formatter converts values for editing and display, format is the edit or display format of
// the field prefixed with date| or num|
type Formatter interface {
	Format(value any, lang string, format string) (string, error)
}

type identityFormatter struct{}

func (identityFormatter) Format(v any, _ string, _ string) (string, error) {
	return constraints.ToString(v), nil
}

// Field is a leaf node holding a value
type Field struct {
	node
}

func newField(def map[string]any, form *Form, parent *Container) *Field {
	f := &Field{node: newNode(def, form, parent)}
	f.self = f

	if stringProp(f.model, "fieldType") == "" {
		form.log.Errorf("fieldType property is mandatory. Please ensure all the fields have a fieldType")
		f.model["fieldType"] = defaultFieldType(f.model)
	}

	f.kind = fieldKind(f.model)
	f.applyDefaults()

	f.queueEvent(Initialize())
	f.queueEvent(ExecuteRule())

	return f
}

func fieldKind(def map[string]any) FieldKind {
	ft := stringProp(def, "fieldType")

	switch {
	case isFileDefinition(def) || ft == "file-input":
		return FileKind
	case ft == "date-input" || (ft == "text-input" && stringProp(def, "format") == "date"):
		return DateKind
	default:
		return kindOf(ft)
	}
}

func (f *Field) defaults() map[string]any {
	res := map[string]any{
		"readOnly": false,
		"enabled":  true,
		"visible":  true,
		"type":     f.fallbackType(),
	}

	switch f.kind {
	case CheckboxKind:
		res["enforceEnum"] = true
	case CheckboxGroupKind:
		res["enforceEnum"] = true
		res["enum"] = []any{}
	case FileKind:
		res["accept"] = deepClone(defaultAccept, nil)
		res["maxFileSize"] = "2MB"
	}

	return res
}

// jsonType names the type of a plain value the way schemas do
func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return ""
	case []any, map[string]any:
		return "object"
	default:
		return data.TypeOf(v)
	}
}

// fallbackType infers a type from enum values, the default value or the field type
func (f *Field) fallbackType() string {
	if f.kind == FileKind {
		return "file"
	}

	typ := stringProp(f.model, "type")
	if !validTypes[typ] {
		typ = ""

		if enum, ok := f.model["enum"].([]any); ok && len(enum) > 0 {
			typ = jsonType(enum[0])
		}

		if typ == "" {
			switch d := f.model["default"].(type) {
			case []any:
				if len(d) > 0 {
					typ = jsonType(d[0]) + "[]"
				} else {
					typ = "object"
				}
			case nil:
			default:
				typ = jsonType(d)
			}
		}

		if typ == "" {
			typ = fallbackTypes[f.FieldType()]
		}
	}

	if f.kind == CheckboxGroupKind && !constraints.IsArrayType(typ) {
		if typ == "" {
			return "string[]"
		}
		return typ + "[]"
	}

	return typ
}

func (f *Field) applyDefaults() {
	for k, v := range f.defaults() {
		if _, ok := f.model[k]; !ok && v != nil && v != "" {
			f.model[k] = v
		}
	}

	f.coerceParam("required", "boolean")
	f.coerceParam("readOnly", "boolean")
	f.coerceParam("enabled", "boolean")

	if !validTypes[stringProp(f.model, "type")] {
		if t := f.fallbackType(); t != "" {
			f.model["type"] = t
		} else {
			delete(f.model, "type")
		}
	}

	if !f.kind.IsStatic() {
		delete(f.model, "value")
	}
	if _, ok := f.model["value"]; !ok {
		if v := constraints.Type(f.internalType(), f.model["default"]).Value; v != nil {
			f.model["value"] = v
		}
	}

	typ := f.Type()
	if typ != "string" {
		f.unset("emptyValue")
	}

	switch enum := f.model["enum"].(type) {
	case nil:
		if typ == "boolean" {
			f.model["enum"] = []any{true, false}
		}
	case []any:
		names, _ := f.model["enumNames"].([]any)
		for len(names) < len(enum) {
			names = append(names, constraints.ToString(enum[len(names)]))
		}
		f.model["enumNames"] = names
	}

	if typ != "string" {
		f.unset("format", "pattern", "minLength", "maxLength")
	} else if f.FieldType() == "date-input" {
		f.model["format"] = "date"
	}

	f.coerceParam("minLength", "number")
	f.coerceParam("maxLength", "number")

	format := stringProp(f.model, "format")
	if typ != "number" && format != "date" {
		f.unset(append([]string{"step"}, rangeProps...)...)
	}
	for _, p := range rangeProps {
		f.coerceParam(p, typ)
	}
	f.coerceParam("step", "number")

	if f.kind == DateKind {
		if stringProp(f.model, "editFormat") == "" {
			f.model["editFormat"] = "short"
		}
		if stringProp(f.model, "displayFormat") == "" {
			f.model["displayFormat"] = f.model["editFormat"]
		}
	}
}

func (f *Field) unset(props ...string) {
	for _, p := range props {
		delete(f.model, p)
	}
}

// coerceParam converts a configured value to type t dropping it when that is impossible
func (f *Field) coerceParam(param string, t string) {
	v, ok := f.model[param]
	if !ok || v == nil || data.TypeOf(v) == t {
		return
	}

	f.form.log.Infof("%s is not of type %s. Trying to coerce.", param, t)

	c, err := constraints.Coerce(v, t)
	if err != nil {
		f.form.log.Warnf("%v", err)
		f.unset(param)
		return
	}

	f.model[param] = c
}

func (f *Field) Type() string { return stringProp(f.model, "type") }

// internalType is the type values are coerced to
func (f *Field) internalType() string {
	if f.kind == FileKind {
		if constraints.IsArrayType(f.Type()) {
			return "file[]"
		}
		return "file"
	}

	if t := f.Type(); t != "" {
		return t
	}

	return "string"
}

func (f *Field) value() any { return f.model["value"] }

// Value is the typed value of the field
func (f *Field) Value() any { return f.value() }

// SetValue dispatches a change of the field value
func (f *Field) SetValue(v any) {
	f.self.Dispatch(Assign("value", v))
}

// IsValid reports false only once the field failed validation
func (f *Field) IsValid() bool { return f.model["valid"] != false }

// ErrorMessage is the message of the last failed constraint
func (f *Field) ErrorMessage() string { return stringProp(f.model, "errorMessage") }

// Default is the configured default value
func (f *Field) Default() any { return f.model["default"] }

func (f *Field) ruleValue() any { return f.value() }

func (f *Field) hasRange() bool {
	return f.Type() == "number" || stringProp(f.model, "format") == "date"
}

func (f *Field) format() string {
	format := stringProp(f.model, "format")
	if format == "" && f.Type() == "string" {
		switch f.FieldType() {
		case "date-input":
			return "date"
		case "file-input":
			return "data-url"
		}
	}

	return format
}

func (f *Field) enum() []any {
	enum, _ := f.model["enum"].([]any)
	if enum == nil && f.kind == CheckboxKind {
		return []any{}
	}

	return enum
}

func (f *Field) property(name string) any {
	if !f.kind.Supports(name) {
		return nil
	}

	switch name {
	case "value":
		return f.value()
	case "required":
		return f.model["required"] == true
	case "enum":
		if e := f.enum(); e != nil {
			return e
		}
		return nil
	case "step", "minimum", "maximum", "exclusiveMinimum", "exclusiveMaximum":
		if !f.hasRange() {
			return nil
		}
		return f.model[name]
	case "format":
		if v := f.format(); v != "" {
			return v
		}
		return nil
	case "editFormat", "displayFormat":
		return f.withCategory(stringProp(f.model, name))
	case "editValue":
		return f.formatted(stringProp(f.model, "editFormat"))
	case "displayValue":
		return f.formatted(stringProp(f.model, "displayFormat"))
	case "emptyValue":
		return f.emptyValue()
	case "maxFileSize":
		if s, ok := f.model[name].(string); ok {
			return float64(constraints.FileSizeInBytes(s))
		}
		return f.model[name]
	}

	return f.node.property(name)
}

func (f *Field) withCategory(df string) any {
	if df == "" {
		return nil
	}

	if !formatCategory.MatchString(df) {
		switch {
		case f.format() == "date":
			df = "date|" + df
		case f.Type() == "number":
			df = "num|" + df
		}
	}

	return df
}

func (f *Field) formatted(df string) any {
	v := f.value()
	category, _ := f.withCategory(df).(string)
	if category == "" || constraints.IsEmpty(v) || f.model["valid"] == false {
		return v
	}

	res, err := f.form.formatter.Format(v, f.form.Lang(), category)
	if err != nil {
		return v
	}

	return res
}

func (f *Field) emptyValue() any {
	switch f.model["emptyValue"] {
	case "":
		if f.Type() == "string" {
			return ""
		}
	}

	return nil
}

func (f *Field) isEmpty() bool {
	return constraints.IsEmpty(f.value())
}

// dataNodeValue is what the data graph stores for typed
func (f *Field) dataNodeValue(typed any) any {
	if f.isEmpty() {
		return f.emptyValue()
	}

	if f.kind != FileKind || typed == nil {
		return typed
	}

	switch f.Type() {
	case "string":
		if fo := constraints.ExtractFileInfo(typed); fo != nil {
			return fo.Data
		}
	case "string[]":
		files, ok := typed.([]any)
		if !ok {
			files = []any{typed}
		}
		res := make([]any, len(files))
		for i, file := range files {
			if fo := constraints.ExtractFileInfo(file); fo != nil {
				res[i] = fo.Data
			}
		}
		return res
	}

	return typed
}

func (f *Field) defaultDataModel(k data.Key) data.Node {
	var v any
	if !f.kind.IsStatic() {
		v = f.dataNodeValue(f.value())
	}

	typ := f.Type()
	if typ == "" {
		typ = data.StringType
	}

	return data.NewScalar(k, v, typ)
}

func (f *Field) assign(name string, v any) {
	switch name {
	case "value":
		f.setValue(v)
	case "minimum", "maximum", "exclusiveMinimum", "exclusiveMaximum":
		if f.hasRange() {
			f.setProperty(name, v, true)
		}
	default:
		f.node.assign(name, v)
	}
}

// SyncValue receives values written to a shared data node by another field
func (f *Field) SyncValue(v any) {
	f.setValue(v)
}

// updateDataNodeAndTypedValue stores the coerced value and pushes it into the data graph
func (f *Field) updateDataNodeAndTypedValue(v any) []PropertyChange {
	if f.kind.IsStatic() && f.data != nil {
		return nil
	}

	typed := constraints.Type(f.internalType(), v).Value
	changes := f.setProperty("value", typed, false)
	if len(changes) > 0 && f.data != nil {
		f.data.SetValue(f.dataNodeValue(typed), typed, f)
	}

	return changes
}

// setValue applies a new value then validates it and notifies with a single change action
func (f *Field) setValue(v any) {
	changes := f.updateDataNodeAndTypedValue(v)
	if len(changes) == 0 {
		return
	}

	typeRes := constraints.Type(f.internalType(), v)

	unique := true
	if p := f.parent; p != nil && p.Type() == data.ArrayType && p.DataNode() != nil {
		if u, ok := p.model["uniqueItems"]; ok && u == true {
			unique = constraints.UniqueItems(u, p.DataNode().Value()).Valid
		}
	}

	var updates map[string]PropertyChange
	if typeRes.Valid && unique {
		updates = f.evaluateConstraints()
	} else {
		updates = f.applyModelUpdates(map[string]any{"valid": false, "errorMessage": f.errorMessageFor("type")}, "valid", "errorMessage")
	}

	if _, ok := updates["valid"]; ok {
		f.triggerValidationEvent()
	}

	f.self.Dispatch(Change(append(changes, sortedChanges(updates)...)...))
}

func sortedChanges(updates map[string]PropertyChange) []PropertyChange {
	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	res := make([]PropertyChange, len(keys))
	for i, k := range keys {
		res[i] = updates[k]
	}

	return res
}

func (f *Field) errorMessageFor(constraint string) string {
	msgs, _ := f.model["constraintMessages"].(map[string]any)
	return stringProp(msgs, constraint)
}

// constraintSpec collects the constraints configured on the field
func (f *Field) constraintSpec() constraints.Spec {
	spec := constraints.Spec{
		Type:         f.Type(),
		Format:       f.format(),
		Required:     f.model["required"] == true,
		Restrictions: map[string]any{},
		Enum:         f.enum(),
		EnforceEnum:  f.model["enforceEnum"] == true,
	}

	for _, name := range constraints.Supported(spec.Type, spec.Format) {
		if v, ok := f.model[name]; ok && v != nil {
			spec.Restrictions[name] = v
		}
	}
	if spec.Format != "" {
		spec.Restrictions["format"] = spec.Format
	}

	if step, ok := f.model["step"].(float64); ok && f.Type() == "number" {
		spec.Step = &step

		for _, k := range []string{"minimum", "default"} {
			if n, ok := constraints.ToNumber(f.model[k]); ok && n != 0 {
				spec.StepBase = n
				break
			}
		}
	}

	if f.kind == CheckboxKind {
		enum := f.enum()
		var off any
		if len(enum) > 1 {
			off = enum[1]
		}

		spec.RequiredCheck = func(c any, v any) constraints.Result {
			valid := constraints.Required(c, v).Valid && (c != true || !constraints.Equal(v, off))
			return constraints.Result{Valid: valid, Value: v}
		}
	}

	if expr, ok := f.model["validationExpression"].(string); ok && expr != "" {
		spec.Expression = func() bool {
			return f.checkValidationExpression(expr)
		}
	}

	return spec
}

func (f *Field) checkValidationExpression(formula string) bool {
	rule := f.compiledRule("validationExpression", formula)
	if rule == nil {
		return true
	}

	res, err := f.form.engine.Execute(rule, f, nil, false)
	if err != nil {
		f.form.log.Errorf("%v", err)
		return true
	}

	return truthy(res)
}

// evaluateConstraints validates the current value recording valid and errorMessage
func (f *Field) evaluateConstraints() map[string]PropertyChange {
	value := f.value()
	out := constraints.Evaluate(f.constraintSpec(), value)

	msg := ""
	if !out.Valid {
		f.form.log.Infof("%s constraint evaluation failed %v. Received %v", out.Constraint, f.model[out.Constraint], value)
		msg = f.errorMessageFor(out.Constraint)
	}

	return f.applyModelUpdates(map[string]any{"valid": out.Valid, "errorMessage": msg}, "valid", "errorMessage")
}

func (f *Field) triggerValidationEvent() {
	if f.model["valid"] == true {
		f.self.Dispatch(Valid())
	} else {
		f.self.Dispatch(Invalid())
	}
}

func (f *Field) handle(a Action) {
	if a.Type == ResetType {
		f.reset()
		return
	}

	f.node.handle(a)
}

func (f *Field) reset() {
	changes := f.updateDataNodeAndTypedValue(f.model["default"])
	if len(changes) == 0 {
		return
	}

	updates := f.applyModelUpdates(map[string]any{"valid": nil, "errorMessage": ""}, "valid", "errorMessage")
	f.self.Dispatch(Change(append(changes, sortedChanges(updates)...)...))
}

// Reset restores the default value
func (f *Field) Reset() {
	f.self.Dispatch(Reset())
}

func (f *Field) validate() []ValidationError {
	updates := f.evaluateConstraints()
	if _, ok := updates["valid"]; ok {
		f.triggerValidationEvent()
		f.notify(Change(sortedChanges(updates)...))
	}

	if f.model["valid"] == false {
		return []ValidationError{{FieldName: f.ID(), ErrorMessages: []string{f.ErrorMessage()}}}
	}

	return nil
}

// Validate evaluates the constraints of the field
func (f *Field) Validate() []ValidationError {
	return f.validate()
}

func (f *Field) initialize() error {
	return f.initializeData()
}

func (f *Field) importData(ctx data.Node) error {
	err := f.bindToDataModel(ctx)
	if err != nil {
		return err
	}

	dn := f.data
	if dn == nil || dn == data.Null {
		return nil
	}

	v := dn.Value()
	prev := f.value()

	if f.kind == FileKind {
		if v == nil {
			delete(f.model, "value")
			return nil
		}

		res := constraints.Type(f.internalType(), v)
		if !res.Valid {
			f.form.log.Errorf("unable to bind %s to data", f.Name())
		}
		v = res.Value
	}

	if sameValue(v, prev) {
		return nil
	}

	if v == nil {
		delete(f.model, "value")
	} else {
		f.model["value"] = v
	}
	f.queueEvent(Change(PropertyChange{PropertyName: "value", CurrentValue: v, PrevValue: prev}))

	return nil
}

func (f *Field) State() State {
	s := f.baseState()

	s["value"] = f.value()
	for _, p := range []string{"editFormat", "displayFormat", "editValue", "displayValue", "format"} {
		if v := f.property(p); v != nil {
			s[p] = v
		}
	}
	if e := f.enum(); e != nil {
		s["enum"] = deepClone(e, nil)
	}

	return s
}

func (f *Field) String() string {
	return fmt.Sprintf("%s(%s)", f.kind, f.ID())
}

// truthy follows the truthiness rules of formulas
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	default:
		return true
	}
}
