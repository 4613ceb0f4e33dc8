// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package data

// Null is the sentinel for an explicitly unbound field, it absorbs every mutation
var Null Node = &nullNode{}

type nullNode struct{}

func (n *nullNode) Key() Key { return Name("") }
func (n *nullNode) Value() any { return nil }
func (n *nullNode) Raw() any { return nil }
func (n *nullNode) Type() string { return NullType }
func (n *nullNode) IsGroup() bool { return false }
func (n *nullNode) Fields() []Binder { return nil }
func (n *nullNode) Bind(Binder) {}
func (n *nullNode) SetValue(any, any, Binder) {}
func (n *nullNode) Get(Key) Node { return n }
func (n *nullNode) Contains(Key) bool { return false }
func (n *nullNode) Add(Key, Node, bool) {}
func (n *nullNode) Remove(Key) {}
func (n *nullNode) Len() int { return 0 }
func (n *nullNode) ToScalar() Node { return n }
