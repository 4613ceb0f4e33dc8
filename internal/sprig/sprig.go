// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package sprig provides the Masterminds sprig functions with the random and
// uuid helpers replaced by crypto backed versions
package sprig

import (
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

func overrides(m map[string]any) map[string]any {
	m["uuidv4"] = uuidv4
	m["randBytes"] = randBytes

	return m
}

// GenericFuncMap returns the sprig functions as a plain map
func GenericFuncMap() map[string]any {
	return overrides(sprig.GenericFuncMap())
}

// TxtFuncMap returns the sprig functions for use with text/template
func TxtFuncMap() template.FuncMap {
	return template.FuncMap(GenericFuncMap())
}
