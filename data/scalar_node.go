// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package data

// Scalar is a leaf node holding a single value
type Scalar struct {
	base
}

// NewScalar creates a leaf node, typ defaults to the type of v when empty
func NewScalar(k Key, v any, typ string) *Scalar {
	if typ == "" {
		typ = TypeOf(v)
	}

	return &Scalar{base: base{key: k, raw: v, typ: typ}}
}

func (s *Scalar) Value() any {
	if s.disabled() {
		return nil
	}

	return s.raw
}

func (s *Scalar) IsGroup() bool { return false }
func (s *Scalar) Get(Key) Node { return nil }
func (s *Scalar) Contains(Key) bool { return false }
func (s *Scalar) Add(Key, Node, bool) {}
func (s *Scalar) Remove(Key) {}
func (s *Scalar) Len() int { return 0 }
func (s *Scalar) ToScalar() Node { return s }
func (s *Scalar) String() string { return "scalar " + s.key.String() }
