// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package constraints holds the pure validation functions applied to form field
// values. Every constraint maps a constraint value and a field value to a Result
// reporting validity and the possibly coerced value.
package constraints

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"
)

// Result is the outcome of applying a single constraint
type Result struct {
	Valid bool
	Value any
}

// Func applies a constraint to a value
type Func func(constraint any, value any) Result

// Constraint groups selected by field type and format
const (
	DateGroup   = "date"
	StringGroup = "string"
	NumberGroup = "number"
	ArrayGroup  = "array"
	FileGroup   = "file"
)

// ValidConstraints lists, in evaluation order, the constraints supported per group
var ValidConstraints = map[string][]string{
	DateGroup:   {"minimum", "maximum", "exclusiveMinimum", "exclusiveMaximum", "format"},
	StringGroup: {"minLength", "maxLength", "pattern"},
	NumberGroup: {"minimum", "maximum", "exclusiveMinimum", "exclusiveMaximum"},
	ArrayGroup:  {"minItems", "maxItems", "uniqueItems"},
	FileGroup:   {"accept", "maxFileSize"},
}

// Table maps constraint names to their functions
var Table = map[string]Func{
	"type":             typeConstraint,
	"format":           Format,
	"minimum":          Minimum,
	"maximum":          Maximum,
	"exclusiveMinimum": ExclusiveMinimum,
	"exclusiveMaximum": ExclusiveMaximum,
	"minItems":         MinItems,
	"maxItems":         MaxItems,
	"uniqueItems":      UniqueItems,
	"minLength":        MinLength,
	"maxLength":        MaxLength,
	"pattern":          Pattern,
	"required":         Required,
	"enum":             Enum,
	"accept":           Accept,
	"maxFileSize":      MaxFileSize,
}

func typeConstraint(constraint any, value any) Result {
	t, _ := constraint.(string)
	return Type(t, value)
}

// IsArrayType reports if a field type is an array type like string[]
func IsArrayType(t string) bool {
	return strings.HasSuffix(t, "[]") || t == "array"
}

// ElementType is the element type of an array type, t itself otherwise
func ElementType(t string) string {
	return strings.TrimSuffix(t, "[]")
}

// Groups selects the constraint groups that apply to a field type and format
func Groups(typ string, format string) []string {
	switch typ {
	case "string":
		switch format {
		case "date":
			return []string{DateGroup}
		case "binary", "data-url":
			return []string{FileGroup}
		default:
			return []string{StringGroup}
		}
	case "file":
		return []string{FileGroup}
	case "number", "integer":
		return []string{NumberGroup}
	}

	if IsArrayType(typ) {
		groups := []string{ArrayGroup}
		switch ElementType(typ) {
		case "string":
			if format != "date" {
				groups = append(groups, StringGroup)
			} else {
				groups = append(groups, DateGroup)
			}
		case "number", "integer":
			groups = append(groups, NumberGroup)
		case "file":
			groups = append(groups, FileGroup)
		}
		return groups
	}

	return nil
}

// Supported lists the constraint names applying to a field type and format in evaluation order
func Supported(typ string, format string) []string {
	var res []string
	for _, g := range Groups(typ, format) {
		res = append(res, ValidConstraints[g]...)
	}

	return res
}

// Format validates well known string formats, only date is checked
func Format(constraint any, value any) Result {
	if value == nil {
		return Result{Valid: true, Value: value}
	}

	if constraint == "date" {
		s, _ := value.(string)
		return Result{Valid: IsValidDate(s), Value: value}
	}

	return Result{Valid: true, Value: value}
}

func Minimum(constraint any, value any) Result {
	c, ok := compare(value, constraint)
	return Result{Valid: ok && c >= 0, Value: value}
}

func Maximum(constraint any, value any) Result {
	c, ok := compare(value, constraint)
	return Result{Valid: ok && c <= 0, Value: value}
}

func ExclusiveMinimum(constraint any, value any) Result {
	c, ok := compare(value, constraint)
	return Result{Valid: ok && c > 0, Value: value}
}

func ExclusiveMaximum(constraint any, value any) Result {
	c, ok := compare(value, constraint)
	return Result{Valid: ok && c < 0, Value: value}
}

func MinItems(constraint any, value any) Result {
	arr, ok := value.([]any)
	c, _ := ToNumber(constraint)
	return Result{Valid: ok && float64(len(arr)) >= c, Value: value}
}

func MaxItems(constraint any, value any) Result {
	arr, ok := value.([]any)
	c, _ := ToNumber(constraint)
	return Result{Valid: ok && float64(len(arr)) <= c, Value: value}
}

// UniqueItems requires every array element to be distinct when the constraint is true
func UniqueItems(constraint any, value any) Result {
	if !truthy(constraint) {
		return Result{Valid: true, Value: value}
	}

	arr, ok := value.([]any)
	if !ok {
		return Result{Valid: false, Value: value}
	}

	for i := 0; i < len(arr); i++ {
		for j := i + 1; j < len(arr); j++ {
			if Equal(arr[i], arr[j]) {
				return Result{Valid: false, Value: value}
			}
		}
	}

	return Result{Valid: true, Value: value}
}

func stringLength(v any) float64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}

	return float64(utf8.RuneCountInString(s))
}

func MinLength(constraint any, value any) Result {
	return Result{Valid: Minimum(constraint, stringLength(value)).Valid, Value: value}
}

func MaxLength(constraint any, value any) Result {
	return Result{Valid: Maximum(constraint, stringLength(value)).Valid, Value: value}
}

var (
	patterns   = map[string]*regexp.Regexp{}
	patternsMu sync.Mutex
)

func compilePattern(p string) (*regexp.Regexp, error) {
	patternsMu.Lock()
	defer patternsMu.Unlock()

	if re, ok := patterns[p]; ok {
		return re, nil
	}

	re, err := regexp.Compile(p)
	if err != nil {
		return nil, err
	}
	patterns[p] = re

	return re, nil
}

// Pattern matches the string form of value against a regular expression, unanchored
func Pattern(constraint any, value any) Result {
	var re *regexp.Regexp

	switch c := constraint.(type) {
	case *regexp.Regexp:
		re = c
	case string:
		var err error
		re, err = compilePattern(c)
		if err != nil {
			return Result{Valid: false, Value: value}
		}
	default:
		return Result{Valid: false, Value: value}
	}

	return Result{Valid: re.MatchString(ToString(value)), Value: value}
}

// Required rejects nil and empty strings when the constraint is true
func Required(constraint any, value any) Result {
	if !truthy(constraint) {
		return Result{Valid: true, Value: value}
	}

	return Result{Valid: value != nil && value != "", Value: value}
}

// Enum requires the value to be a member of the constraint list
func Enum(constraint any, value any) Result {
	for _, v := range toSlice(constraint) {
		if Equal(v, value) {
			return Result{Valid: true, Value: value}
		}
	}

	return Result{Valid: false, Value: value}
}

// Accept requires every file to match one of the accepted media types
func Accept(constraint any, value any) Result {
	accepts := toStrings(constraint)
	if len(accepts) == 0 || value == nil {
		return Result{Valid: true, Value: value}
	}

	files, ok := value.([]any)
	if !ok {
		files = []any{value}
	}

	for _, f := range files {
		fo := ExtractFileInfo(f)
		mt := ""
		if fo != nil {
			mt = fo.MediaType
		}
		if !MatchMediaType(mt, accepts) {
			return Result{Valid: false, Value: value}
		}
	}

	return Result{Valid: true, Value: value}
}

// MaxFileSize limits the size of a file, constraints may be human sizes like 2MB
func MaxFileSize(constraint any, value any) Result {
	var limit float64
	if s, ok := constraint.(string); ok {
		limit = float64(FileSizeInBytes(s))
	} else {
		limit, _ = ToNumber(constraint)
	}

	fo, ok := value.(*FileObject)
	if !ok {
		return Result{Valid: true, Value: value}
	}

	return Result{Valid: float64(fo.Size) <= limit, Value: value}
}

// Equal compares values the way enum membership and uniqueness need, numbers by value
func Equal(a any, b any) bool {
	an, aok := numeric(a)
	bn, bok := numeric(b)
	if aok && bok {
		return an == bn
	}

	return reflect.DeepEqual(a, b)
}

// compare orders a against b, strings compare lexically and everything else numerically
func compare(a any, b any) (int, bool) {
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs), true
	}

	an, ok := ToNumber(a)
	if !ok {
		return 0, false
	}
	bn, ok := ToNumber(b)
	if !ok {
		return 0, false
	}

	switch {
	case an < bn:
		return -1, true
	case an > bn:
		return 1, true
	default:
		return 0, true
	}
}

func truthy(v any) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	case string:
		return b != ""
	default:
		n, ok := numeric(v)
		if ok {
			return n != 0
		}
		return true
	}
}

func toSlice(v any) []any {
	switch vals := v.(type) {
	case []any:
		return vals
	case []string:
		res := make([]any, len(vals))
		for i, s := range vals {
			res[i] = s
		}
		return res
	case nil:
		return nil
	default:
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Slice {
			res := make([]any, rv.Len())
			for i := 0; i < rv.Len(); i++ {
				res[i] = rv.Index(i).Interface()
			}
			return res
		}
		return nil
	}
}

func toStrings(v any) []string {
	switch vals := v.(type) {
	case string:
		return strings.Split(vals, ",")
	default:
		var res []string
		for _, e := range toSlice(v) {
			res = append(res, fmt.Sprint(e))
		}
		return res
	}
}
