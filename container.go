// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package adaptiveform

import (
	"fmt"
	"strconv"

	"github.com/choria-io/adaptiveform/data"
)

// Container is a panel holding child nodes, when it is of type array with a single
// item it is repeatable and the item acts as the template for new instances
type Container struct {
	node

	children []element
	template map[string]any
	active   element
}

func newContainer(def map[string]any, form *Form, parent *Container) *Container {
	c := &Container{node: newNode(def, form, parent)}
	c.self = c
	c.kind = PanelKind
	c.applyDefaults()

	c.queueEvent(Initialize())
	c.queueEvent(ExecuteRule())

	return c
}

func (c *Container) applyDefaults() {
	for k, v := range map[string]any{"visible": true, "enabled": true} {
		if _, ok := c.model[k]; !ok {
			c.model[k] = v
		}
	}

	if ref, ok := c.model["dataRef"]; ok && ref != nil {
		if _, ok := c.model["type"]; !ok {
			c.model["type"] = data.ObjectType
		}
	}
}

// Type is array or object, any other declared type is ignored
func (c *Container) Type() string {
	t := stringProp(c.model, "type")
	if t == data.ArrayType || t == data.ObjectType {
		return t
	}

	return ""
}

func (c *Container) FieldType() string { return "panel" }

// IsRepeatable reports containers that create items from a template
func (c *Container) IsRepeatable() bool { return c.template != nil }

// Items are the child nodes in order
func (c *Container) Items() []Node {
	res := make([]Node, len(c.children))
	for i, child := range c.children {
		res[i] = child
	}

	return res
}

// MinItems is the lower bound of items, -1 when not set
func (c *Container) MinItems() int {
	if v, ok := intProp(c.model, "minItems"); ok {
		return v
	}

	return -1
}

// MaxItems is the upper bound of items, -1 meaning unbounded
func (c *Container) MaxItems() int {
	if v, ok := intProp(c.model, "maxItems"); ok {
		return v
	}

	return -1
}

// ActiveChild is the child currently holding focus
func (c *Container) ActiveChild() Node {
	if c.active == nil {
		return nil
	}

	return c.active
}

func (c *Container) indexOf(el element) int {
	for i, child := range c.children {
		if child == el {
			return i
		}
	}

	return -1
}

func (c *Container) property(name string) any {
	switch name {
	case "items":
		res := make([]any, len(c.children))
		for i, child := range c.children {
			res[i] = child
		}
		return res
	case "activeChild":
		return c.ActiveChild()
	case "minItems", "maxItems", "initialItems":
		return c.model[name]
	case "fieldType":
		return c.self.FieldType()
	case "type":
		return c.self.Type()
	}

	return c.node.property(name)
}

func (c *Container) ruleValue() any { return nil }

func (c *Container) assign(name string, v any) {
	switch name {
	case "maxItems":
		c.setMaxItems(v)
	case "activeChild":
		c.setActive(c.resolveChild(v))
	default:
		c.node.assign(name, v)
	}
}

// resolveChild accepts a node or the id of a node
func (c *Container) resolveChild(v any) element {
	switch t := v.(type) {
	case element:
		return t
	case string:
		if el, ok := c.form.elements[t]; ok {
			return el
		}
	}

	return nil
}

func (c *Container) setMaxItems(v any) {
	m, ok := v.(float64)
	if !ok {
		n, isInt := v.(int)
		if !isInt {
			c.form.log.Warnf("maxItems must be a number, got %v", v)
			return
		}
		m = float64(n)
	}

	c.setProperty("maxItems", m, true)
	if m < 0 {
		return
	}

	minItems := c.MinItems()
	if minItems < 1 {
		minItems = 1
	}

	count := len(c.children)
	remove := min(count-int(m), count-minItems)
	if remove <= 0 {
		return
	}

	removed := c.children[int(m) : int(m)+remove]
	elems := make([]any, len(removed))
	for i, child := range removed {
		elems[i] = child
	}

	for _, child := range removed {
		c.detach(child)
	}
	c.children = append(c.children[:int(m):int(m)], c.children[int(m)+remove:]...)

	c.notify(Change(PropertyChange{PropertyName: "items", PrevValue: elems}))
}

// setActive makes child the active item clearing the previous active path
func (c *Container) setActive(child element) {
	if child == c.active {
		return
	}

	prev := c.active
	for cont := containerOf(prev); cont != nil; {
		next := cont.active
		cont.clearActive()
		cont = containerOf(next)
	}

	c.active = child
	if c.parent != nil && child != nil {
		c.parent.setActive(c.self)
	}

	if child == nil {
		delete(c.model, "activeChild")
	} else {
		c.model["activeChild"] = child.ID()
	}

	var prevValue any
	if prev != nil {
		prevValue = prev
	}
	c.notify(Change(PropertyChange{PropertyName: "activeChild", CurrentValue: c.ActiveChild(), PrevValue: prevValue}))
}

func (c *Container) clearActive() {
	if c.active == nil {
		return
	}

	prev := c.active
	c.active = nil
	delete(c.model, "activeChild")
	c.notify(Change(PropertyChange{PropertyName: "activeChild", PrevValue: prev}))
}

// containerOf returns the container behind an element, nil for fields
func containerOf(el element) *Container {
	switch t := el.(type) {
	case *Container:
		return t
	case *Form:
		return &t.Container
	default:
		return nil
	}
}

func (c *Container) handle(a Action) {
	switch a.Type {
	case ResetType:
		c.self.reset()
	case AddItemType, AddInstanceType:
		c.addItem(indexPayload(a.Payload))
	case RemoveItemType, RemoveInstanceType:
		c.removeItem(indexPayload(a.Payload))
	default:
		c.node.handle(a)
	}
}

func (c *Container) queueEvent(a Action) {
	c.node.queueEvent(a)

	if a.dispatchToItems() {
		for _, child := range c.children {
			child.queueEvent(a)
		}
	}
}

func (c *Container) defaultDataModel(k data.Key) data.Node {
	switch c.Type() {
	case data.ArrayType:
		return data.NewArray(k)
	case data.ObjectType:
		return data.NewObject(k)
	default:
		return nil
	}
}

// addChild creates a child from def and inserts it at index, out of range indexes append
func (c *Container) addChild(def map[string]any, index int, cloneIDs bool) (element, error) {
	if index < 0 || index > len(c.children) {
		index = len(c.children)
	}

	var ids func() string
	if cloneIDs {
		ids = c.form.ids.Next
	}

	itemDef, _ := deepClone(def, ids).(map[string]any)
	child, err := newElement(itemDef, c.form, c)
	if err != nil {
		return nil, err
	}

	c.form.fieldAdded(child)

	c.children = append(c.children, nil)
	copy(c.children[index+1:], c.children[index:])
	c.children[index] = child

	for _, sibling := range c.children[index+1:] {
		sibling.clearQualifiedName()
	}

	return child, nil
}

func (c *Container) initialize() error {
	err := c.initializeData()
	if err != nil {
		return err
	}

	items, _ := c.model["items"].([]any)
	c.model["items"] = []any{}

	switch {
	case c.Type() == data.ArrayType && len(items) == 1 && c.data != nil:
		tmpl, ok := deepClone(items[0], nil).(map[string]any)
		if !ok {
			return fmt.Errorf("%w: item template of %s is not an object", ErrInvalidSchema, c.ID())
		}
		c.template = tmpl
		c.kind = RepeatableKind

		if _, ok := intProp(c.model, "minItems"); !ok {
			c.model["minItems"] = float64(0)
		}
		if _, ok := intProp(c.model, "maxItems"); !ok {
			c.model["maxItems"] = float64(-1)
		}
		if _, ok := intProp(c.model, "initialItems"); !ok {
			c.model["initialItems"] = float64(max(1, c.MinItems()))
		}

		initial, _ := intProp(c.model, "initialItems")
		for i := 0; i < initial; i++ {
			child, err := c.addChild(c.template, -1, i > 0)
			if err != nil {
				return err
			}
			err = child.initialize()
			if err != nil {
				return err
			}
		}

	case len(items) > 0:
		for _, item := range items {
			def, ok := item.(map[string]any)
			if !ok {
				return fmt.Errorf("%w: item of %s is not an object", ErrInvalidSchema, c.ID())
			}

			child, err := c.addChild(def, -1, false)
			if err != nil {
				return err
			}

			err = child.initialize()
			if err != nil {
				return err
			}
		}

		count := float64(len(c.children))
		c.model["minItems"] = count
		c.model["maxItems"] = count
		c.model["initialItems"] = count

	default:
		c.form.log.Warnf("A container exists with no items.")
	}

	return nil
}

// addItem creates a new instance from the template at index, negative appends
func (c *Container) addItem(index int) {
	if c.template == nil {
		return
	}

	maxItems := c.MaxItems()
	if maxItems != -1 && len(c.children) >= maxItems {
		c.form.log.Infof("Cannot add item to %s, maxItems %d reached", c.ID(), maxItems)
		return
	}

	child, err := c.addChild(c.template, index, true)
	if err != nil {
		c.form.log.Errorf("Could not add item to %s: %v", c.ID(), err)
		return
	}

	pos := c.indexOf(child)
	if g, ok := c.data.(*data.Group); ok {
		slot := 0
		if pos > 0 {
			if prev := c.children[pos-1].DataNode(); prev != nil {
				slot = g.IndexOf(prev) + 1
			}
		}

		key := data.Index(slot)
		if nd := child.defaultDataModel(key); nd != nil {
			g.Add(key, nd, false)
			if _, hasRef := child.core().model["dataRef"]; !hasRef {
				child.core().attach(nd, g, key)
			}
		}
	}

	err = child.initialize()
	if err != nil {
		c.form.log.Errorf("Could not initialize item of %s: %v", c.ID(), err)
	}

	c.notify(Change(PropertyChange{PropertyName: "items", CurrentValue: child.State()}))

	child.Dispatch(Initialize())
	child.Dispatch(ExecuteRule())
	for _, sibling := range c.children[pos+1:] {
		sibling.Dispatch(ExecuteRule())
	}
}

// removeItem removes the item at index, negative removes the last, never going below minItems
func (c *Container) removeItem(index int) {
	if c.template == nil || len(c.children) == 0 {
		return
	}

	if index < 0 {
		index = len(c.children) - 1
	}
	if index >= len(c.children) {
		c.form.log.Warnf("Cannot remove item %d from %s holding %d items", index, c.ID(), len(c.children))
		return
	}

	if len(c.children) <= c.MinItems() {
		c.form.log.Infof("Cannot remove item from %s, minItems %d reached", c.ID(), c.MinItems())
		return
	}

	child := c.children[index]
	state := child.State()

	c.children = append(c.children[:index:index], c.children[index+1:]...)
	c.detach(child)

	for _, sibling := range c.children[index:] {
		sibling.clearQualifiedName()
		sibling.Dispatch(ExecuteRule())
	}

	c.notify(Change(PropertyChange{PropertyName: "items", PrevValue: state}))
}

// detach drops the data of a removed child and forgets it in the form
func (c *Container) detach(child element) {
	if g, ok := c.data.(*data.Group); ok && child.DataNode() != nil {
		g.RemoveNode(child.DataNode())
	}

	if c.active == child {
		c.active = nil
		delete(c.model, "activeChild")
	}

	c.form.fieldRemoved(child)
}

func (c *Container) reset() {
	for _, child := range c.children {
		child.reset()
	}
}

func (c *Container) validate() []ValidationError {
	var res []ValidationError
	for _, child := range c.children {
		for _, e := range child.validate() {
			if e.FieldName != "" {
				res = append(res, e)
			}
		}
	}

	return res
}

// Validate evaluates the constraints of every descendant field
func (c *Container) Validate() []ValidationError {
	return c.self.validate()
}

// Reset restores every descendant field to its default
func (c *Container) Reset() {
	c.self.Dispatch(Reset())
}

func (c *Container) importData(ctx data.Node) error {
	err := c.bindToDataModel(ctx)
	if err != nil {
		return err
	}

	dn := c.data
	if dn == nil {
		dn = ctx
	}

	return c.syncDataAndFormModel(dn)
}

// syncDataAndFormModel grows or shrinks repeatable items to fit array data then imports into each child
func (c *Container) syncDataAndFormModel(ctx data.Node) error {
	if ctx != nil && ctx.Type() == data.ArrayType && c.template != nil {
		dataLen := ctx.Len()
		count := len(c.children)

		maxItems := c.MaxItems()
		if maxItems == -1 {
			maxItems = dataLen
		}
		minItems := max(c.MinItems(), 0)

		add := min(dataLen-count, maxItems-count)
		remove := min(count-dataLen, count-minItems)

		for ; add > 0; add-- {
			child, err := c.addChild(c.template, -1, true)
			if err != nil {
				return err
			}

			err = child.initialize()
			if err != nil {
				return err
			}
		}

		if remove > 0 {
			for _, child := range c.children[dataLen : dataLen+remove] {
				c.form.fieldRemoved(child)
			}
			c.children = append(c.children[:dataLen:dataLen], c.children[dataLen+remove:]...)
		}
	}

	for _, child := range c.children {
		err := child.importData(ctx)
		if err != nil {
			return err
		}
	}

	return nil
}

// lookup finds a child by name, or by index in arrays, descending into transparent containers
func (c *Container) lookup(name string, t Tracker) (Node, bool) {
	if c.IsRepeatable() && t != nil {
		t.Track(c.self)
	}

	if c.Type() == data.ArrayType {
		i, err := strconv.Atoi(name)
		if err != nil || i < 0 || i >= len(c.children) {
			return nil, false
		}

		return c.trackedChild(c.children[i], t), true
	}

	for _, child := range c.children {
		if child.Name() == name && name != "" {
			return c.trackedChild(child, t), true
		}
	}

	for _, child := range c.children {
		cont := containerOf(child)
		if cont == nil || !child.IsTransparent() {
			continue
		}

		if found, ok := cont.lookup(name, t); ok {
			return found, true
		}
	}

	return nil, false
}

func (c *Container) trackedChild(child element, t Tracker) Node {
	if cont := containerOf(child); cont != nil && cont.IsRepeatable() && t != nil {
		t.Track(child)
	}

	return child
}

func (c *Container) State() State {
	s := c.baseState()

	items := make([]any, len(c.children))
	for i, child := range c.children {
		items[i] = child.State()
	}
	s["items"] = items
	s["fieldType"] = c.self.FieldType()
	if c.Type() != "" {
		s["type"] = c.Type()
	} else {
		delete(s, "type")
	}

	return s
}
