// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package constraints

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	leadingFloat = regexp.MustCompile(`^[+-]?(Infinity|(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?)`)
	dateRegex    = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})$`)
	daysInMonth  = []int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}
)

// Type coerces value into the field type t reporting if the value is of that type.
// Supported types are string, number, integer, boolean, file and their array forms,
// unknown types pass through unchanged. A nil value is always valid.
func Type(t string, value any) Result {
	if value == nil {
		return Result{Valid: true, Value: value}
	}

	switch t {
	case "string":
		return Result{Valid: true, Value: ToString(value)}

	case "string[]":
		return Result{Valid: true, Value: toArray(value)}

	case "number":
		return checkNumber(value)

	case "integer":
		return checkInteger(value)

	case "boolean":
		return checkBool(value)

	case "file":
		if arr, ok := value.([]any); ok {
			if len(arr) == 0 {
				return Result{Valid: false, Value: value}
			}
			return checkFile(arr[0])
		}
		return checkFile(value)

	case "integer[]":
		return partition(value, checkInteger)

	case "number[]":
		return partition(value, checkNumber)

	case "boolean[]":
		return partition(value, checkBool)

	case "file[]":
		return partition(value, checkFile)
	}

	return Result{Valid: true, Value: value}
}

// Coerce converts param into a string, number or boolean, failing on values that cannot convert
func Coerce(param any, t string) (any, error) {
	switch t {
	case "string":
		return ToString(param), nil

	case "number":
		if n, ok := strictNumber(param); ok {
			return n, nil
		}

	case "boolean":
		switch v := param.(type) {
		case bool:
			return v, nil
		case string:
			return v == "true", nil
		default:
			if n, ok := numeric(param); ok {
				return n != 0, nil
			}
		}

	default:
		return param, nil
	}

	return nil, fmt.Errorf("%v has invalid type. Expected: %s, Actual: %T", param, t, param)
}

func checkNumber(v any) Result {
	if v == nil || v == "" {
		return Result{Valid: true, Value: ""}
	}

	n, ok := ToNumber(v)
	if !ok {
		return Result{Valid: false, Value: v}
	}

	return Result{Valid: true, Value: n}
}

func checkInteger(v any) Result {
	if v == nil || v == "" {
		return Result{Valid: true, Value: ""}
	}

	n, ok := ToNumber(v)
	if !ok || math.Round(n) != n {
		return Result{Valid: false, Value: v}
	}

	return Result{Valid: true, Value: n}
}

func checkBool(v any) Result {
	switch b := v.(type) {
	case bool:
		return Result{Valid: true, Value: b}
	case string:
		if b == "true" || b == "false" {
			return Result{Valid: true, Value: b == "true"}
		}
	}

	return Result{Valid: false, Value: v}
}

func checkFile(v any) Result {
	f := ExtractFileInfo(v)
	if f == nil {
		return Result{Valid: false, Value: v}
	}

	return Result{Valid: true, Value: f}
}

func toArray(v any) []any {
	if arr, ok := v.([]any); ok {
		return arr
	}

	if s := toSlice(v); s != nil {
		return s
	}

	return []any{v}
}

// partition converts every element stopping at the first invalid one
func partition(v any, check func(any) Result) Result {
	arr := toArray(v)
	res := make([]any, 0, len(arr))

	for _, e := range arr {
		r := check(e)
		if !r.Valid {
			return Result{Valid: false, Value: v}
		}
		res = append(res, r.Value)
	}

	return Result{Valid: true, Value: res}
}

// numeric extracts a float from Go numeric types without parsing strings
func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// ToNumber converts numbers and numeric string prefixes into a float, so "12px" is 12
func ToNumber(v any) (float64, bool) {
	if n, ok := numeric(v); ok {
		return n, !math.IsNaN(n)
	}

	s, ok := v.(string)
	if !ok {
		return 0, false
	}

	m := leadingFloat.FindString(strings.TrimSpace(s))
	if m == "" {
		return 0, false
	}

	switch strings.TrimLeft(m, "+-") {
	case "Infinity":
		if strings.HasPrefix(m, "-") {
			return math.Inf(-1), true
		}
		return math.Inf(1), true
	}

	n, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}

	return n, true
}

// strictNumber converts the whole value into a number, empty strings are 0
func strictNumber(v any) (float64, bool) {
	if n, ok := numeric(v); ok {
		return n, true
	}

	switch s := v.(type) {
	case bool:
		if s {
			return 1, true
		}
		return 0, true
	case string:
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, true
		}
		n, err := strconv.ParseFloat(s, 64)
		return n, err == nil
	}

	return 0, false
}

// ToString renders a value the way it appears in an input, numbers without exponents
func ToString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case *FileObject:
		return s.Data
	case []any:
		parts := make([]string, len(s))
		for i, e := range s {
			parts[i] = ToString(e)
		}
		return strings.Join(parts, ",")
	}

	if n, ok := numeric(v); ok {
		if math.Abs(n) < 1e21 {
			return strconv.FormatFloat(n, 'f', -1, 64)
		}
		return strconv.FormatFloat(n, 'g', -1, 64)
	}

	return fmt.Sprint(v)
}

func isLeapYear(y int) bool {
	return y%400 == 0 || (y%4 == 0 && y%100 != 0)
}

// IsValidDate checks dates in the YYYY-M-D layout including leap years
func IsValidDate(s string) bool {
	m := dateRegex.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return false
	}

	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])

	if month < 1 || month > 12 {
		return false
	}

	max := daysInMonth[month-1]
	if month == 2 && isLeapYear(year) {
		max = 29
	}

	return day >= 1 && day <= max
}
