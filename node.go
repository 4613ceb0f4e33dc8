// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package adaptiveform

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/choria-io/adaptiveform/data"
)

// Node is a form element, the form itself, a container or a field
type Node interface {
	// ID uniquely identifies the node within its form
	ID() string
	Name() string
	// Type is the value type such as string, number[] or object
	Type() string
	// FieldType is the widget kind such as text-input or panel
	FieldType() string
	Kind() FieldKind
	// Parent is the container holding the node, nil for the form
	Parent() *Container
	// Index is the position within the parent
	Index() int
	// QualifiedName is the path of the node within the form, empty for transparent nodes
	QualifiedName() string
	// IsTransparent reports nodes that do not take part in qualified names
	IsTransparent() bool
	Visible() bool
	Enabled() bool
	Label() string
	Description() string
	Properties() map[string]any
	// ReadProperty reads a property registering a dependency with t when the property is tracked
	ReadProperty(name string, t Tracker) any
	// SetProperty dispatches a request to set a property
	SetProperty(name string, value any)
	// Subscribe registers cb for actions of type event, an empty event means change
	Subscribe(cb func(Action), event string) *Subscription
	// Dispatch queues the action and drains the queue
	Dispatch(a Action)
	// State is a snapshot of the node
	State() State
	// Validate evaluates constraints returning the failures
	Validate() []ValidationError
	// Reset restores default values
	Reset()
	// Focus makes the node the active child of its parent chain
	Focus()
	DataNode() data.Node
	Form() *Form

	core() *node
}

// Tracker records nodes read while a rule runs
type Tracker interface {
	Track(n Node)
}

// element is implemented by every node type, node calls back into it for behavior
// that differs between containers and fields
type element interface {
	Node
	data.Binder

	property(name string) any
	assign(name string, v any)
	handle(a Action)
	queueEvent(a Action)
	executeAction(a Action)
	defaultDataModel(k data.Key) data.Node
	initialize() error
	importData(ctx data.Node) error
	validate() []ValidationError
	reset()
	ruleValue() any
	clearQualifiedName()
}

// Subscription is returned by Subscribe
type Subscription struct {
	unsubscribe func()
}

// Unsubscribe stops further notifications
func (s *Subscription) Unsubscribe() {
	if s != nil && s.unsubscribe != nil {
		s.unsubscribe()
	}
}

type subscriber struct {
	cb func(Action)
}

type dependent struct {
	node element
	sub  *Subscription
}

// ValidationError reports a field that failed validation
type ValidationError struct {
	FieldName     string   `json:"fieldName"`
	ErrorMessages []string `json:"errorMessages"`
}

// node holds the state and behavior shared by containers and fields
type node struct {
	self   element
	form   *Form
	parent *Container
	kind   FieldKind
	model  map[string]any
	data   data.Node
	tokens []data.Token

	subscribers map[string][]*subscriber
	dependents  []dependent

	rules  map[string]*Rule
	events map[string][]*Rule

	qualifiedName *string
}

func newNode(def map[string]any, form *Form, parent *Container) node {
	n := node{
		form:        form,
		parent:      parent,
		model:       def,
		subscribers: map[string][]*subscriber{},
		rules:       map[string]*Rule{},
		events:      map[string][]*Rule{},
	}

	if n.model == nil {
		n.model = map[string]any{}
	}

	id, _ := n.model["id"].(string)
	if id == "" && form != nil {
		n.model["id"] = form.ids.Next()
	} else if form != nil {
		form.ids.Reserve(id)
	}

	return n
}

func (n *node) core() *node { return n }

func (n *node) ID() string { return stringProp(n.model, "id") }

func (n *node) Name() string { return stringProp(n.model, "name") }

func (n *node) Type() string { return stringProp(n.model, "type") }

func (n *node) FieldType() string {
	if ft := stringProp(n.model, "fieldType"); ft != "" {
		return ft
	}

	return "text-input"
}

func (n *node) Kind() FieldKind { return n.kind }

func (n *node) Parent() *Container { return n.parent }

func (n *node) Form() *Form { return n.form }

func (n *node) DataNode() data.Node { return n.data }

func (n *node) Index() int {
	if n.parent == nil {
		return 0
	}

	return n.parent.indexOf(n.self)
}

func (n *node) IsTransparent() bool {
	if n.parent == nil {
		return false
	}

	return n.Name() == "" && n.parent.Type() != data.ArrayType
}

func (n *node) nonTransparentParent() *Container {
	p := n.parent
	for p != nil && p.IsTransparent() {
		p = p.parent
	}

	return p
}

func (n *node) QualifiedName() string {
	if n.IsTransparent() {
		return ""
	}

	if n.qualifiedName != nil {
		return *n.qualifiedName
	}

	var qn string
	parent := n.nonTransparentParent()
	switch {
	case parent == nil:
		qn = n.self.Name()
	case parent.Type() == data.ArrayType:
		qn = fmt.Sprintf("%s[%d]", parent.QualifiedName(), n.Index())
	default:
		qn = parent.QualifiedName() + "." + n.Name()
	}

	n.qualifiedName = &qn

	return qn
}

func (n *node) clearQualifiedName() {
	n.qualifiedName = nil
}

func (n *node) Visible() bool { return n.model["visible"] != false }

func (n *node) Enabled() bool { return n.self.property("enabled") != false }

// IsEnabled reports if the node contributes to exported data
func (n *node) IsEnabled() bool { return n.Enabled() }

// SyncValue is called when another field writes to the shared data node
func (n *node) SyncValue(any) {}

func (n *node) Label() string {
	switch l := n.model["label"].(type) {
	case map[string]any:
		return stringProp(l, "value")
	case string:
		return l
	default:
		return ""
	}
}

func (n *node) Description() string { return stringProp(n.model, "description") }

func (n *node) Properties() map[string]any {
	if p, ok := n.model["properties"].(map[string]any); ok {
		return p
	}

	return map[string]any{}
}

func (n *node) isRepeatable() bool {
	return n.parent != nil && n.parent.IsRepeatable()
}

// property is the untracked generic accessor, honoring the capability table
func (n *node) property(name string) any {
	switch name {
	case "id":
		return n.self.ID()
	case "name":
		return n.self.Name()
	case "type":
		return n.self.Type()
	case "fieldType":
		return n.self.FieldType()
	case "index":
		return float64(n.Index())
	case "qualifiedName":
		return n.self.QualifiedName()
	case "parent":
		if n.parent == nil {
			return nil
		}
		return n.parent.self
	case "properties":
		return n.Properties()
	case "visible":
		return n.Visible()
	case "repeatable":
		return n.isRepeatable()
	case "value":
		return n.self.ruleValue()
	}

	if !n.kind.Supports(name) {
		return nil
	}

	return n.model[name]
}

func (n *node) ReadProperty(name string, t Tracker) any {
	if t != nil && trackedProperties[name] {
		t.Track(n.self)
	}

	return n.self.property(name)
}

func (n *node) SetProperty(name string, value any) {
	n.self.Dispatch(Assign(name, value))
}

// assign sets a property notifying subscribers, types with special setters override it
func (n *node) assign(name string, v any) {
	if !n.kind.Supports(name) {
		return
	}

	n.setProperty(name, v, true)
}

// setProperty stores a model property and reports the change, notifying change subscribers when notify is set
func (n *node) setProperty(prop string, v any, notify bool) []PropertyChange {
	old, exists := n.model[prop]
	if exists && sameValue(old, v) {
		return nil
	}
	if !exists && v == nil {
		return nil
	}

	n.model[prop] = v
	change := PropertyChange{PropertyName: prop, CurrentValue: v, PrevValue: old}

	if notify {
		n.notify(Change(change))
	}

	return []PropertyChange{change}
}

// applyModelUpdates sets properties without notifying, returning the changes keyed by property
func (n *node) applyModelUpdates(updates map[string]any, names ...string) map[string]PropertyChange {
	res := map[string]PropertyChange{}
	for _, name := range names {
		changes := n.setProperty(name, updates[name], false)
		if len(changes) > 0 {
			res[name] = changes[0]
		}
	}

	return res
}

// applyUpdates applies the map returned by an event formula
func (n *node) applyUpdates(updates map[string]any) {
	keys := make([]string, 0, len(updates))
	for k := range updates {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if editableProperties[k] || k == "activeChild" {
			n.self.assign(k, updates[k])
			continue
		}

		n.form.log.Warnf("%s is not a valid editable property.", k)
	}
}

func (n *node) Subscribe(cb func(Action), event string) *Subscription {
	if event == "" {
		event = ChangeType
	}

	s := &subscriber{cb: cb}
	n.subscribers[event] = append(n.subscribers[event], s)

	return &Subscription{unsubscribe: func() {
		subs := n.subscribers[event]
		for i, e := range subs {
			if e == s {
				n.subscribers[event] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}}
}

// notify calls the subscribers for the action type
func (n *node) notify(a Action) {
	subs := make([]*subscriber, len(n.subscribers[a.Type]))
	copy(subs, n.subscribers[a.Type])

	a = a.withTarget(n.self)
	for _, s := range subs {
		s.cb(a)
	}
}

// addDependent re-runs the rules of dep whenever a dependency property of this node changes
func (n *node) addDependent(dep element) {
	for _, d := range n.dependents {
		if d.node == dep {
			return
		}
	}

	sub := n.Subscribe(func(a Action) {
		p, ok := a.Payload.(ChangePayload)
		if !ok {
			return
		}

		for _, c := range p.Changes {
			if dependencyProperties[c.PropertyName] {
				dep.Dispatch(ExecuteRule())
				return
			}
		}
	}, ChangeType)

	n.dependents = append(n.dependents, dependent{node: dep, sub: sub})
}

func (n *node) removeDependent(dep element) {
	for i, d := range n.dependents {
		if d.node == dep {
			d.sub.Unsubscribe()
			n.dependents = append(n.dependents[:i:i], n.dependents[i+1:]...)
			return
		}
	}
}

func (n *node) queueEvent(a Action) {
	n.form.queue.Queue(n.self, a.Type == ValidType || a.Type == InvalidType, a)
}

func (n *node) Dispatch(a Action) {
	n.self.queueEvent(a)
	n.form.queue.RunPending()
}

func (n *node) Focus() {
	if n.parent != nil {
		n.parent.SetProperty("activeChild", n.self)
	}
}

// bindToDataModel locates or creates the data node for this node relative to ctx
func (n *node) bindToDataModel(ctx data.Node) error {
	if n.parent == nil {
		n.data = ctx
		return nil
	}

	var (
		nd     data.Node
		parent = ctx
		key    data.Key
	)

	ref, hasRef := n.model["dataRef"]
	switch {
	case hasRef && ref == nil:
		nd = data.Null

	case hasRef:
		if len(n.tokens) == 0 {
			tokens, err := data.Tokenize(fmt.Sprint(ref))
			if err != nil {
				return fmt.Errorf("invalid dataRef on %s: %w", n.ID(), err)
			}
			n.tokens = tokens
		}

		search := ctx
		if n.tokens[0].Type == data.GlobalToken {
			search = n.form.data
		}

		if search != nil {
			last := n.tokens[len(n.tokens)-1]
			key = last.Key()

			var err error
			nd, err = data.Resolve(search, n.tokens, n.self.defaultDataModel(key))
			if err != nil {
				return fmt.Errorf("cannot bind %s to %v: %w", n.ID(), ref, err)
			}

			parent, err = data.Resolve(search, n.tokens[:len(n.tokens)-1], nil)
			if err != nil {
				return fmt.Errorf("cannot bind %s to %v: %w", n.ID(), ref, err)
			}
		}

	default:
		if ctx == nil || ctx == data.Null || n.kind.IsStatic() {
			break
		}

		if ctx.Type() == data.ArrayType {
			key = data.Index(n.Index())
		} else {
			key = data.Name(n.Name())
		}

		if key.IsEmpty() {
			break
		}

		create := n.self.defaultDataModel(key)
		if create == nil {
			break
		}

		nd = ctx.Get(key)
		if nd == nil {
			nd = create
			ctx.Add(key, nd, false)
		}
	}

	if nd == nil {
		return nil
	}

	n.attach(nd, parent, key)

	return nil
}

// attach binds the node to nd, leaf nodes always hold scalars in the graph
func (n *node) attach(nd data.Node, parent data.Node, key data.Key) {
	if !n.kind.IsContainer() && !data.IsNull(parent) && nd != data.Null {
		nd = nd.ToScalar()
		parent.Add(key, nd, true)
	}

	nd.Bind(n.self)
	n.data = nd
}

// initializeData binds to the nearest ancestor data node when not yet bound
func (n *node) initializeData() error {
	if n.data != nil {
		return nil
	}

	var ctx data.Node
	for p := n.parent; p != nil && ctx == nil; p = p.parent {
		ctx = p.data
	}

	return n.bindToDataModel(ctx)
}

func (n *node) compiledRule(prop string, formula string) *Rule {
	if r, ok := n.rules[prop]; ok {
		return r
	}

	r, err := n.form.engine.Compile(formula)
	if err != nil {
		n.form.log.Errorf("Unable to compile rule `%q : %q` Exception : %v", prop, formula, err)
	}
	n.rules[prop] = r

	return r
}

func (n *node) compiledEvents(name string) []*Rule {
	if rules, ok := n.events[name]; ok {
		return rules
	}

	var formulas []string
	events, _ := n.model["events"].(map[string]any)
	switch e := events[name].(type) {
	case string:
		if e != "" {
			formulas = []string{e}
		}
	case []any:
		for _, f := range e {
			if s, ok := f.(string); ok && s != "" {
				formulas = append(formulas, s)
			}
		}
	}

	var rules []*Rule
	for _, f := range formulas {
		r, err := n.form.engine.Compile(f)
		if err != nil {
			n.form.log.Errorf("Unable to compile expression `%q : %q` Exception : %v", name, f, err)
			continue
		}
		rules = append(rules, r)
	}

	n.events[name] = rules

	return rules
}

func (n *node) ruleFormulas() map[string]string {
	res := map[string]string{}
	rules, _ := n.model["rules"].(map[string]any)
	for k, v := range rules {
		if s, ok := v.(string); ok && s != "" {
			res[k] = s
		}
	}

	return res
}

// executeAllRules evaluates every rule in property name order assigning the results
func (n *node) executeAllRules(a Action) {
	formulas := n.ruleFormulas()
	props := make([]string, 0, len(formulas))
	for p := range formulas {
		props = append(props, p)
	}
	sort.Strings(props)

	for _, prop := range props {
		rule := n.compiledRule(prop, formulas[prop])
		if rule == nil {
			continue
		}

		v, err := n.form.engine.Execute(rule, n.self, &a, true)
		if err != nil {
			n.form.log.Errorf("%v", err)
			continue
		}

		if !editableProperties[prop] {
			n.form.log.Warnf("%s is not a valid editable property.", prop)
			continue
		}

		n.self.assign(prop, v)
	}
}

func (n *node) executeEvent(a Action, rule *Rule) {
	res, err := n.form.engine.Execute(rule, n.self, &a, false)
	if err != nil {
		n.form.log.Errorf("%v", err)
		return
	}

	if updates, ok := res.(map[string]any); ok {
		n.applyUpdates(updates)
	}
}

// handle runs the built in behavior for actions, shared by all node types
func (n *node) handle(a Action) {
	switch a.Type {
	case InitializeType:
		n.compileAll()
	case ExecuteRuleType:
		n.executeAllRules(a)
	}
}

// compileAll compiles every rule and event up front so syntax errors are logged early
func (n *node) compileAll() {
	for prop, formula := range n.ruleFormulas() {
		n.compiledRule(prop, formula)
	}

	events, _ := n.model["events"].(map[string]any)
	for name := range events {
		n.compiledEvents(name)
	}
}

// executeAction runs the built in handler, then event formulas, then subscribers
func (n *node) executeAction(a Action) {
	if a.Type == ChangeType {
		if asg, ok := a.Payload.(Assignment); ok {
			n.self.assign(asg.Property, asg.Value)
			return
		}
	}

	name := a.Type
	if a.IsCustom() {
		name = customPrefix + a.Type
	}

	n.self.handle(a)

	for _, rule := range n.compiledEvents(name) {
		n.executeEvent(a, rule)
	}

	n.notify(a)
}

// baseState is the snapshot shared by all node types
func (n *node) baseState() State {
	s := State{}
	for k, v := range n.model {
		if v == nil || k == "rules" || k == "events" || k == "items" {
			continue
		}
		if !n.kind.Supports(k) {
			continue
		}
		s[k] = deepClone(v, nil)
	}

	s["id"] = n.self.ID()
	s["properties"] = deepClone(n.Properties(), nil)
	s["index"] = n.Index()
	if qn := n.self.QualifiedName(); qn != "" {
		s["qualifiedName"] = qn
	}
	if n.isRepeatable() {
		s["repeatable"] = true
	}
	s[":type"] = n.FieldType()
	if t, ok := n.model[":type"].(string); ok && t != "" {
		s[":type"] = t
	}

	return s
}

func stringProp(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func intProp(m map[string]any, key string) (int, bool) {
	switch v := m[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	default:
		return 0, false
	}
}

// sameValue compares by JSON encoding when both values are composite, by identity otherwise
func sameValue(a any, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	ka, kb := reflect.TypeOf(a).Kind(), reflect.TypeOf(b).Kind()
	composite := func(k reflect.Kind) bool {
		return k == reflect.Map || k == reflect.Slice || k == reflect.Struct
	}

	if composite(ka) && composite(kb) {
		ja, erra := json.Marshal(a)
		jb, errb := json.Marshal(b)
		if erra == nil && errb == nil {
			return string(ja) == string(jb)
		}
		return reflect.DeepEqual(a, b)
	}

	if !reflect.TypeOf(a).Comparable() || !reflect.TypeOf(b).Comparable() {
		return reflect.DeepEqual(a, b)
	}

	return a == b
}

// deepClone copies maps and slices, replacing every id with a fresh one when ids is set
func deepClone(v any, ids func() string) any {
	switch t := v.(type) {
	case []any:
		res := make([]any, len(t))
		for i, e := range t {
			res[i] = deepClone(e, ids)
		}
		return res

	case map[string]any:
		res := make(map[string]any, len(t))
		for k, e := range t {
			res[k] = deepClone(e, ids)
		}
		if ids != nil {
			if id, ok := res["id"].(string); ok && id != "" {
				res["id"] = ids()
			}
		}
		return res

	default:
		return v
	}
}

func isCustomName(name string) bool {
	return strings.HasPrefix(name, customPrefix)
}
