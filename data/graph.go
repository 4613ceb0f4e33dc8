// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

// Package data implements the data graph a form reads from and writes to.
//
// The graph mirrors the shape of the exported JSON document: objects and arrays
// are Group nodes, everything else is a Scalar. Form fields bind to nodes and the
// graph keeps a weak list of those bindings, used only to decide whether a node
// contributes its value to the export and to keep fields sharing a node in sync.
//
// Nodes are located and created with dot/bracket path expressions, see path.go.
package data

import (
	"fmt"
	"strconv"
)

// Type names reported by nodes
const (
	StringType  = "string"
	NumberType  = "number"
	BooleanType = "boolean"
	ArrayType   = "array"
	ObjectType  = "object"
	NullType    = "null"
)

// Binder is a form field bound to a node in the graph
type Binder interface {
	// IsEnabled reports if the field contributes to the exported data
	IsEnabled() bool
	// SyncValue receives values written to the node by another bound field
	SyncValue(v any)
}

// Key addresses a child of a group, either by name or by index
type Key struct {
	name    string
	index   int
	isIndex bool
}

// Name creates a key addressing an object member
func Name(n string) Key { return Key{name: n} }

// Index creates a key addressing an array slot
func Index(i int) Key { return Key{index: i, isIndex: true} }

// IsIndex reports if the key is an array index
func (k Key) IsIndex() bool { return k.isIndex }

// Int is the array index, or -1 for names that are not numeric
func (k Key) Int() int {
	if k.isIndex {
		return k.index
	}

	i, err := strconv.Atoi(k.name)
	if err != nil {
		return -1
	}

	return i
}

// IsEmpty reports if the key is the empty name
func (k Key) IsEmpty() bool { return !k.isIndex && k.name == "" }

func (k Key) String() string {
	if k.isIndex {
		return strconv.Itoa(k.index)
	}

	return k.name
}

// Node is a single addressable value in the data graph
type Node interface {
	// Key is the name or index this node is stored under
	Key() Key
	// Value is the effective value taking bound field state into account
	Value() any
	// Raw is the value as stored, ignoring bound fields
	Raw() any
	// Type is one of the type constants
	Type() string
	// IsGroup reports if the node holds children
	IsGroup() bool
	// Fields are the fields bound to this node
	Fields() []Binder
	// Bind registers a field with the node, binding the same field twice is a noop
	Bind(f Binder)
	// SetValue stores typed and pushes original into every bound field other than from
	SetValue(typed any, original any, from Binder)
	// Get retrieves a child, nil when absent
	Get(k Key) Node
	// Contains reports if a child exists and was not removed
	Contains(k Key) bool
	// Add stores a child, arrays insert at the index unless override is set
	Add(k Key, n Node, override bool)
	// Remove leaves a hole where the child used to be
	Remove(k Key)
	// Len is the number of child slots, holes included
	Len() int
	// ToScalar converts the node into a scalar holding its current value
	ToScalar() Node
}

// base holds the state shared by every node type
type base struct {
	key    Key
	raw    any
	typ    string
	fields []Binder
}

func (b *base) Key() Key         { return b.key }
func (b *base) Raw() any         { return b.raw }
func (b *base) Type() string     { return b.typ }
func (b *base) Fields() []Binder { return b.fields }

func (b *base) Bind(f Binder) {
	for _, e := range b.fields {
		if e == f {
			return
		}
	}

	b.fields = append(b.fields, f)
}

// disabled is true when fields are bound and every one of them is disabled
func (b *base) disabled() bool {
	if len(b.fields) == 0 {
		return false
	}

	for _, f := range b.fields {
		if f.IsEnabled() {
			return false
		}
	}

	return true
}

func (b *base) SetValue(typed any, original any, from Binder) {
	b.raw = typed

	// copy so fields rebinding during sync do not disturb the walk
	fields := make([]Binder, len(b.fields))
	copy(fields, b.fields)

	for _, f := range fields {
		if f != from {
			f.SyncValue(original)
		}
	}
}

// TypeOf determines the graph type name of a plain value
func TypeOf(v any) string {
	switch v.(type) {
	case nil:
		return ""
	case string:
		return StringType
	case bool:
		return BooleanType
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return NumberType
	case []any:
		return ArrayType
	case map[string]any:
		return ObjectType
	default:
		return fmt.Sprintf("%T", v)
	}
}

// New creates a node for a plain value, maps and slices produce groups recursively
func New(k Key, v any) Node {
	switch v.(type) {
	case []any, map[string]any:
		return NewGroup(k, v)
	default:
		return NewScalar(k, v, TypeOf(v))
	}
}

// IsNull reports if n is the Null sentinel or a nil node
func IsNull(n Node) bool {
	return n == nil || n == Null
}
