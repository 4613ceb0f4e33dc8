// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package data

// Group is an object or array node holding children.
//
// Arrays keep their slots in order with nil marking removed entries, objects keep
// members in insertion order. The effective value is computed from live children
// on every read.
type Group struct {
	base
	items   []Node
	keys    []string
	members map[string]Node
}

// NewGroup creates a group from a plain []any or map[string]any, building children recursively
func NewGroup(k Key, v any) *Group {
	g := &Group{base: base{key: k, raw: v}}

	switch vals := v.(type) {
	case []any:
		g.typ = ArrayType
		g.items = make([]Node, 0, len(vals))
		for i, item := range vals {
			if item == nil {
				g.items = append(g.items, NewScalar(Index(i), nil, ""))
				continue
			}
			g.items = append(g.items, New(Index(i), item))
		}

	default:
		g.typ = ObjectType
		g.members = map[string]Node{}
		if m, ok := v.(map[string]any); ok {
			for key, item := range m {
				if item == nil {
					continue
				}
				g.keys = append(g.keys, key)
				g.members[key] = New(Name(key), item)
			}
		}
	}

	return g
}

// NewArray creates an empty array group
func NewArray(k Key) *Group { return NewGroup(k, []any{}) }

// NewObject creates an empty object group
func NewObject(k Key) *Group { return NewGroup(k, map[string]any{}) }

func (g *Group) IsGroup() bool { return true }

// IsArray reports if the group is an array
func (g *Group) IsArray() bool { return g.typ == ArrayType }

func (g *Group) Value() any {
	if g.disabled() {
		if g.IsArray() {
			return []any{}
		}
		return map[string]any{}
	}

	if g.IsArray() {
		res := []any{}
		for _, item := range g.items {
			if item == nil {
				continue
			}
			res = append(res, item.Value())
		}

		return res
	}

	res := map[string]any{}
	for _, key := range g.keys {
		item := g.members[key]
		if item == nil {
			continue
		}

		v := item.Value()
		if v == nil {
			continue
		}

		res[item.Key().String()] = v
	}

	return res
}

func (g *Group) Len() int {
	if g.IsArray() {
		return len(g.items)
	}

	return len(g.keys)
}

func (g *Group) ToScalar() Node {
	return NewScalar(g.key, g.Value(), g.typ)
}

func (g *Group) Add(k Key, n Node, override bool) {
	if n == nil || n == Null {
		return
	}

	if !g.IsArray() {
		name := k.String()
		if _, ok := g.members[name]; !ok {
			g.keys = append(g.keys, name)
		}
		g.members[name] = n
		return
	}

	idx := k.Int()
	if idx < 0 {
		return
	}

	switch {
	case override && idx < len(g.items):
		g.items[idx] = n

	case override:
		// sparse assignment past the end grows the slots, the gap being holes
		for len(g.items) < idx {
			g.items = append(g.items, nil)
		}
		g.items = append(g.items, n)

	case idx >= len(g.items):
		g.items = append(g.items, n)

	default:
		g.items = append(g.items, nil)
		copy(g.items[idx+1:], g.items[idx:])
		g.items[idx] = n
	}
}

func (g *Group) Remove(k Key) {
	if !g.IsArray() {
		if _, ok := g.members[k.String()]; ok {
			g.members[k.String()] = nil
		}
		return
	}

	idx := k.Int()
	if idx >= 0 && idx < len(g.items) {
		g.items[idx] = nil
	}
}

// RemoveNode leaves a hole in the slot holding n, it reports false when n is not a child
func (g *Group) RemoveNode(n Node) bool {
	idx := g.IndexOf(n)
	if idx == -1 {
		return false
	}

	if g.IsArray() {
		g.items[idx] = nil
	} else {
		g.members[g.keys[idx]] = nil
	}

	return true
}

// IndexOf finds the slot holding n, -1 when n is not a child
func (g *Group) IndexOf(n Node) int {
	if g.IsArray() {
		for i, item := range g.items {
			if item != nil && item == n {
				return i
			}
		}
		return -1
	}

	for i, key := range g.keys {
		if g.members[key] != nil && g.members[key] == n {
			return i
		}
	}

	return -1
}

func (g *Group) Get(k Key) Node {
	if g.IsArray() {
		idx := k.Int()
		if idx < 0 || idx >= len(g.items) || g.items[idx] == nil {
			return nil
		}
		return g.items[idx]
	}

	n := g.members[k.String()]
	if n == nil {
		return nil
	}

	return n
}

func (g *Group) Contains(k Key) bool {
	return g.Get(k) != nil
}

// Each calls cb for every live child in slot order
func (g *Group) Each(cb func(Key, Node)) {
	if g.IsArray() {
		for i, item := range g.items {
			if item != nil {
				cb(Index(i), item)
			}
		}
		return
	}

	for _, key := range g.keys {
		if n := g.members[key]; n != nil {
			cb(Name(key), n)
		}
	}
}
