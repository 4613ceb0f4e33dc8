// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package adaptiveform

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/builtin"
	"github.com/expr-lang/expr/vm"
	"github.com/expr-lang/expr/vm/runtime"

	"github.com/choria-io/adaptiveform/internal/sprig"
)

const (
	refFunc    = "$ref"
	memberFunc = "$member"
)

// globals are resolved from the environment rather than the node scope
var globals = nameSet("self", "$form", "$field", "$event", "$env")

// nodeArguments lists function arguments that receive nodes rather than values
var nodeArguments = map[string][]int{
	"validate":      {0},
	"setFocus":      {0},
	"dispatchEvent": {0},
}

// envFunc is the single signature every runtime provided function is exposed with, compiled
// programs assert function types so compile and run environments must agree
type envFunc = func(args ...any) (any, error)

var sprigFuncs = func() map[string]any {
	res := map[string]any{}
	for k, v := range sprig.GenericFuncMap() {
		if _, ok := builtin.Index[k]; ok {
			continue
		}
		res[k] = v
	}

	return res
}()

// Rule is a compiled formula
type Rule struct {
	Formula string

	program *vm.Program
}

// RuleEngine compiles formulas and evaluates them against form nodes
type RuleEngine struct {
	functions *Functions
	log       Logger
	cache     map[string]*Rule
	mu        sync.Mutex
}

// NewRuleEngine creates an engine resolving functions from the package defaults and functions
func NewRuleEngine(functions *Functions, log Logger) *RuleEngine {
	if log == nil {
		log = NewLevelLogger(nil, OffLevel)
	}

	return &RuleEngine{
		functions: functions,
		log:       log,
		cache:     map[string]*Rule{},
	}
}

// refCollector records the shape of the tree before names are rewritten
type refCollector struct {
	callees  map[ast.Node]bool
	asNode   map[ast.Node]bool
	declared map[string]bool
}

func (c *refCollector) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.CallNode:
		c.callees[n.Callee] = true

		ident, ok := n.Callee.(*ast.IdentifierNode)
		if !ok {
			return
		}
		for _, i := range nodeArguments[ident.Value] {
			if i < len(n.Arguments) {
				c.asNode[n.Arguments[i]] = true
			}
		}

	case *ast.MemberNode:
		if !n.Method {
			c.asNode[n.Node] = true
		}

	case *ast.VariableDeclaratorNode:
		c.declared[n.Name] = true
	}
}

// refPatcher rewrites names and member access into calls resolved against the node scope
type refPatcher struct {
	*refCollector
}

func (p *refPatcher) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.IdentifierNode:
		if p.callees[n] || p.declared[n.Value] || globals[n.Value] {
			return
		}

		ast.Patch(node, &ast.CallNode{
			Callee:    &ast.IdentifierNode{Value: refFunc},
			Arguments: []ast.Node{&ast.StringNode{Value: n.Value}, &ast.BoolNode{Value: p.asNode[n]}},
		})

	case *ast.MemberNode:
		if n.Method || p.callees[n] {
			return
		}

		ast.Patch(node, &ast.CallNode{
			Callee:    &ast.IdentifierNode{Value: memberFunc},
			Arguments: []ast.Node{n.Node, n.Property, &ast.BoolNode{Value: p.asNode[n]}},
		})
	}
}

// Compile parses and checks formula, compiled rules are cached by formula
func (e *RuleEngine) Compile(formula string) (*Rule, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if r, ok := e.cache[formula]; ok {
		return r, nil
	}

	collector := &refCollector{
		callees:  map[ast.Node]bool{},
		asNode:   map[ast.Node]bool{},
		declared: map[string]bool{},
	}

	program, err := expr.Compile(formula,
		expr.Env(e.environment(nil)),
		expr.AllowUndefinedVariables(),
		expr.Patch(collector),
		expr.Patch(&refPatcher{collector}),
	)
	if err != nil {
		return nil, err
	}

	r := &Rule{Formula: formula, program: program}
	e.cache[formula] = r

	return r, nil
}

// evalContext is the scope of one rule evaluation
type evalContext struct {
	engine *RuleEngine
	form   *Form
	field  element
	event  *Action
}

// Track makes the field being evaluated a dependent of n
func (c *evalContext) Track(n Node) {
	if c.field == nil || n == nil || Node(c.field) == n {
		return
	}

	n.core().addDependent(c.field)
}

// environment builds the variables and functions formulas see, a nil context yields the
// prototype used while compiling
func (e *RuleEngine) environment(ctx *evalContext) map[string]any {
	env := make(map[string]any, len(sprigFuncs)+32)
	for k, v := range sprigFuncs {
		env[k] = v
	}

	fctx := &FunctionContext{}
	if ctx != nil {
		fctx = &FunctionContext{Form: ctx.form, Field: ctx.field, Event: ctx.event}
	}

	bind := func(fn Function) envFunc {
		return func(args ...any) (any, error) {
			return fn(fctx, args...)
		}
	}

	for name, fn := range builtinFunctions {
		env[name] = bind(fn)
	}

	registries := []*Functions{defaultFunctions}
	if e.functions != nil && e.functions != defaultFunctions {
		registries = append(registries, e.functions)
	}
	for _, r := range registries {
		r.each(func(name string, fn Function, plain any) {
			if fn != nil {
				env[name] = bind(fn)
			} else {
				env[name] = plain
			}
		})
	}

	var ref, member envFunc
	if ctx == nil {
		ref = func(...any) (any, error) { return nil, nil }
		member = ref
		env["self"], env["$form"], env["$field"], env["$event"] = nil, nil, nil, nil
	} else {
		ref = ctx.refFunc
		member = ctx.memberFunc

		env["self"] = ctx.field
		env["$form"] = ctx.form
		env["$field"] = ctx.field
		env["$event"] = nil
		if ctx.event != nil {
			var target any
			if ctx.event.Target != nil {
				target = ctx.event.Target
			}
			env["$event"] = map[string]any{
				"type":    ctx.event.Type,
				"payload": eventPayload(ctx.event.Payload),
				"target":  target,
			}
		}
	}

	env[refFunc] = ref
	env[memberFunc] = member

	return env
}

// Execute evaluates rule for field, with useValueOf node results are replaced by their value
func (e *RuleEngine) Execute(rule *Rule, field element, event *Action, useValueOf bool) (any, error) {
	if rule == nil {
		return nil, fmt.Errorf("no rule to execute")
	}

	ctx := &evalContext{engine: e, field: field, event: event}
	if field != nil {
		ctx.form = field.Form()
	}

	res, err := expr.Run(rule.program, e.environment(ctx))
	if err != nil {
		return nil, fmt.Errorf("could not evaluate %q: %w", rule.Formula, err)
	}

	if n, ok := res.(Node); ok && n != nil {
		if !useValueOf {
			return n, nil
		}
		el, ok := n.(element)
		if !ok {
			return nil, nil
		}
		ctx.Track(el)
		return normalizeResult(el.ruleValue()), nil
	}

	return normalizeResult(res), nil
}

// normalizeResult makes numbers float64 and slices []any like values held by fields
func normalizeResult(v any) any {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case int32:
		return float64(t)
	case float32:
		return float64(t)
	case []string:
		res := make([]any, len(t))
		for i, s := range t {
			res[i] = s
		}
		return res
	case []int:
		res := make([]any, len(t))
		for i, n := range t {
			res[i] = float64(n)
		}
		return res
	case []float64:
		res := make([]any, len(t))
		for i, n := range t {
			res[i] = n
		}
		return res
	case []any:
		res := make([]any, len(t))
		for i, e := range t {
			res[i] = normalizeResult(e)
		}
		return res
	case map[string]any:
		res := make(map[string]any, len(t))
		for k, e := range t {
			res[k] = normalizeResult(e)
		}
		return res
	default:
		return v
	}
}

func (c *evalContext) refFunc(args ...any) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("%s expects 2 arguments", refFunc)
	}

	name, _ := args[0].(string)
	asNode, _ := args[1].(bool)

	return c.ref(name, asNode), nil
}

func (c *evalContext) memberFunc(args ...any) (any, error) {
	if len(args) != 3 {
		return nil, fmt.Errorf("%s expects 3 arguments", memberFunc)
	}

	asNode, _ := args[2].(bool)

	return c.member(args[0], args[1], asNode)
}

// ref resolves a bare name, $ names are properties of the field, other names are looked up
// among the siblings of the field before falling back to the field itself
func (c *evalContext) ref(name string, asNode bool) any {
	if c.field == nil {
		return nil
	}

	if strings.HasPrefix(name, "$") {
		return c.field.ReadProperty(name[1:], c)
	}

	if p := c.field.core().nonTransparentParent(); p != nil {
		if n, ok := p.lookup(name, c); ok {
			return c.expose(n, asNode)
		}
	} else if cont := containerOf(c.field); cont != nil {
		if n, ok := cont.lookup(name, c); ok {
			return c.expose(n, asNode)
		}
	}

	v, _ := c.member(c.field, name, asNode)

	return v
}

// expose hands containers and node arguments to formulas as nodes, fields as their value
func (c *evalContext) expose(n Node, asNode bool) any {
	el, ok := n.(element)
	if !ok || el == nil {
		return nil
	}

	if asNode || containerOf(el) != nil {
		return el
	}

	c.Track(el)

	return el.ruleValue()
}

func (c *evalContext) member(obj any, prop any, asNode bool) (v any, err error) {
	switch o := obj.(type) {
	case nil:
		return nil, nil

	case element:
		name := propName(prop)
		if strings.HasPrefix(name, "$") {
			return o.ReadProperty(name[1:], c), nil
		}

		if cont := containerOf(o); cont != nil {
			if child, ok := cont.lookup(name, c); ok {
				return c.expose(child, asNode), nil
			}
			return o.ReadProperty(name, c), nil
		}

		if i, ok := propIndex(prop); ok {
			c.Track(o)
			return indexOf(o.ruleValue(), i), nil
		}

		return o.ReadProperty(name, c), nil

	case map[string]any:
		return o[propName(prop)], nil

	case State:
		return o[propName(prop)], nil

	case []any:
		i, ok := propIndex(prop)
		if !ok {
			return nil, nil
		}
		return indexOf(o, i), nil
	}

	defer func() {
		if r := recover(); r != nil {
			v = nil
			err = fmt.Errorf("%v", r)
		}
	}()

	return runtime.Fetch(obj, prop), nil
}

func indexOf(v any, i int) any {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	if i < 0 {
		i += len(arr)
	}
	if i < 0 || i >= len(arr) {
		return nil
	}

	return arr[i]
}

func propName(prop any) string {
	switch p := prop.(type) {
	case string:
		return p
	case float64:
		return strconv.FormatFloat(p, 'f', -1, 64)
	default:
		return fmt.Sprint(prop)
	}
}

func propIndex(prop any) (int, bool) {
	switch p := prop.(type) {
	case int:
		return p, true
	case float64:
		return int(p), p == float64(int(p))
	case string:
		i, err := strconv.Atoi(p)
		return i, err == nil
	default:
		return 0, false
	}
}
