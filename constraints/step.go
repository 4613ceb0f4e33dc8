// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package constraints

import (
	"math"
	"strconv"
	"strings"
)

// StepTolerance is the largest remainder accepted as aligned after fixed point scaling
const StepTolerance = 0.001

// StepResult reports step alignment, Next and Prev are the nearest aligned values when invalid
type StepResult struct {
	Valid bool
	Next  float64
	Prev  float64
}

// CheckStep reports if value sits on a step boundary counted from initial. Values are
// scaled by 10^decimals-of-step before comparison to avoid binary float artifacts.
func CheckStep(value float64, step float64, initial float64) StepResult {
	prec := 0
	s := strconv.FormatFloat(step, 'f', -1, 64)
	if i := strings.IndexByte(s, '.'); i > -1 {
		prec = len(s) - i - 1
	}

	factor := math.Pow(10, float64(prec))
	fStep := step * factor
	fVal := value * factor
	fIVal := initial * factor

	if fStep == 0 {
		return StepResult{Valid: true}
	}

	valid := math.Mod(math.Abs(fVal-fIVal), fStep) < StepTolerance
	if valid {
		return StepResult{Valid: true}
	}

	qt := (fVal - fIVal) / fStep
	next := (math.Ceil(qt)*fStep + fIVal) / factor
	prev := (next*factor - fStep) / factor

	return StepResult{Valid: false, Next: next, Prev: prev}
}
