// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package constraints

// Spec describes the constraints configured on a single field
type Spec struct {
	// Type is the field type such as number or string[]
	Type string
	// Format is the field format such as date
	Format string
	// Required demands a non empty value, and a non empty list for array types
	Required bool
	// RequiredCheck replaces the default required constraint when set
	RequiredCheck Func
	// Restrictions holds the configured constraint values keyed by constraint name
	Restrictions map[string]any
	// Enum lists the allowed values, checked only when EnforceEnum is set
	Enum        []any
	EnforceEnum bool
	// Step is the numeric step size, ignored when nil or for non numeric types
	Step *float64
	// StepBase is the value steps are counted from
	StepBase float64
	// Expression is an additional validation callback
	Expression func() bool
}

// Outcome reports the result of evaluating every constraint of a field
type Outcome struct {
	Valid bool
	// Constraint names the failing constraint, or the last one checked when valid
	Constraint string
}

// IsEmpty reports values that count as not provided
func IsEmpty(v any) bool {
	return v == nil || v == ""
}

// Evaluate checks value against s. Required is checked first, then when the value is
// not empty each supported constraint in order with the first failure winning, then
// enum membership, step alignment and finally the validation expression.
func Evaluate(s Spec, value any) Outcome {
	required := s.RequiredCheck
	if required == nil {
		required = Required
	}

	valid := required(s.Required, value).Valid
	if valid && s.Required && IsArrayType(s.Type) {
		arr, ok := value.([]any)
		valid = ok && len(arr) > 0
	}
	if !valid {
		return Outcome{Valid: false, Constraint: "required"}
	}

	if IsEmpty(value) {
		return Outcome{Valid: true, Constraint: "required"}
	}

	arr, isArr := value.([]any)
	isArr = isArr && IsArrayType(s.Type)
	arrayConstraints := ValidConstraints[ArrayGroup]

	for _, name := range Supported(s.Type, s.Format) {
		restriction, ok := s.Restrictions[name]
		if !ok || restriction == nil {
			continue
		}

		fn := Table[name]
		if fn == nil {
			continue
		}

		failed := false
		if isArr && !contains(arrayConstraints, name) {
			for _, e := range arr {
				if !fn(restriction, e).Valid {
					failed = true
					break
				}
			}
		} else {
			failed = !fn(restriction, value).Valid
		}

		if failed {
			return Outcome{Valid: false, Constraint: name}
		}
	}

	if !checkEnum(s, value, isArr) {
		return Outcome{Valid: false, Constraint: "enum"}
	}

	if s.Type == "number" && s.Step != nil {
		n, ok := ToNumber(value)
		if !ok || !CheckStep(n, *s.Step, s.StepBase).Valid {
			return Outcome{Valid: false, Constraint: "step"}
		}
	}

	if s.Expression != nil && !s.Expression() {
		return Outcome{Valid: false, Constraint: "validationExpression"}
	}

	return Outcome{Valid: true, Constraint: "validationExpression"}
}

func checkEnum(s Spec, value any, isArr bool) bool {
	if !s.EnforceEnum || value == nil {
		return true
	}

	if isArr {
		for _, e := range value.([]any) {
			if !Enum(s.Enum, e).Valid {
				return false
			}
		}
		return true
	}

	return Enum(s.Enum, value).Valid
}

func contains(list []string, s string) bool {
	for _, e := range list {
		if e == s {
			return true
		}
	}

	return false
}
